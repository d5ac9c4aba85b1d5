package wikidata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildQueryRejectsUnsafeVariant(t *testing.T) {
	_, err := buildQuery([]string{`NVIDIA"; DROP EVERYTHING`})
	require.Error(t, err)
	var unsafe *ErrUnsafeVariant
	require.ErrorAs(t, err, &unsafe)
}

func TestBuildQueryAcceptsSafeVariants(t *testing.T) {
	query, err := buildQuery([]string{"NVIDIA CORP", "NVIDIA", "AT&T"})
	require.NoError(t, err)
	assert.Contains(t, query, "NVIDIA CORP")
	assert.Contains(t, query, "VALUES")
}
