package adapters

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aristath/exposure-engine/internal/domain"
)

func TestParseManualUploadCSV(t *testing.T) {
	csv := "ticker,name,weight,isin\nNVDA,NVIDIA CORP,0.0512,US67066G1040\nAAPL,APPLE INC,0.0488,\n"
	rows, err := ParseManualUpload(ManualUpload{Path: "holdings.csv", Reader: strings.NewReader(csv)})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "NVDA", rows[0].Ticker)
	require.Equal(t, "US67066G1040", rows[0].ISIN)
	require.InDelta(t, 0.0488, rows[1].Weight, 0.0001)
}

func TestParseManualUploadCSVMissingColumnErrors(t *testing.T) {
	csv := "ticker,name\nNVDA,NVIDIA CORP\n"
	_, err := ParseManualUpload(ManualUpload{Path: "holdings.csv", Reader: strings.NewReader(csv)})
	require.Error(t, err)
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestParseManualUploadJSON(t *testing.T) {
	body := `[{"ticker":"NVDA","name":"NVIDIA CORP","weight":0.05}]`
	rows, err := ParseManualUpload(ManualUpload{Path: "holdings.json", Reader: strings.NewReader(body)})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "NVDA", rows[0].Ticker)
}

func TestParseManualUploadUnsupportedFormat(t *testing.T) {
	_, err := ParseManualUpload(ManualUpload{Path: "holdings.xlsx", Reader: strings.NewReader("")})
	require.Error(t, err)
	var unsupported *domain.ErrUnsupportedManualFormat
	require.ErrorAs(t, err, &unsupported)
}
