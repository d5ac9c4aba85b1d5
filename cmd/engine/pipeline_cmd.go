package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/aristath/exposure-engine/internal/domain"
	"github.com/aristath/exposure-engine/internal/ingestion"
	"github.com/aristath/exposure-engine/internal/pipeline"
)

var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Run the exposure pipeline outside the HTTP host",
}

var pipelineRunCmd = &cobra.Command{
	Use:   "run <positions.csv>",
	Short: "Ingest a positions CSV and run one pipeline pass",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		c, err := buildContainer(cfg)
		if err != nil {
			return fmt.Errorf("failed to build container: %w", err)
		}
		defer c.Close()

		rows, err := readPositionsCSV(args[0])
		if err != nil {
			return fmt.Errorf("failed to read positions file: %w", err)
		}

		canonical, rowErrs := c.ingestor.IngestPositions(rows)
		for _, e := range rowErrs {
			c.log.Warn().Int("row", e.Index).Str("field", e.Err.Field).Str("reason", e.Err.Reason).Msg("dropped position row")
		}

		var totalValue float64
		for _, p := range canonical {
			totalValue += p.MarketValue()
		}
		if totalValue <= 0 {
			totalValue = 1
		}

		var direct, etfs []pipeline.Input
		for _, p := range canonical {
			h := ingestion.ToHoldingRow(p, p.Ticker)
			in := pipeline.Input{Row: h, Weight: h.MarketValue() / totalValue, MarketValue: h.MarketValue()}
			if h.AssetClass == domain.AssetClassETF {
				etfs = append(etfs, in)
			} else {
				direct = append(direct, in)
			}
		}

		result, err := c.orchestrator.Run(context.Background(), direct, etfs)
		if err != nil {
			return fmt.Errorf("pipeline run failed: %w", err)
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result.Health)
	},
}

func init() {
	pipelineCmd.AddCommand(pipelineRunCmd)
	rootCmd.AddCommand(pipelineCmd)
}

// readPositionsCSV reads a positions file shaped isin,ticker,name,
// quantity,unit_price,currency,asset_type.
func readPositionsCSV(path string) ([]ingestion.RawPosition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header row: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[h] = i
	}

	var rows []ingestion.RawPosition
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		quantity, _ := strconv.ParseFloat(field(record, col, "quantity"), 64)
		unitPrice, _ := strconv.ParseFloat(field(record, col, "unit_price"), 64)

		rows = append(rows, ingestion.RawPosition{
			ISIN:      field(record, col, "isin"),
			Ticker:    field(record, col, "ticker"),
			Name:      field(record, col, "name"),
			Quantity:  quantity,
			UnitPrice: unitPrice,
			Currency:  field(record, col, "currency"),
			Source:    "csv_upload",
			AssetType: field(record, col, "asset_type"),
		})
	}
	return rows, nil
}

func field(record []string, col map[string]int, name string) string {
	if i, ok := col[name]; ok && i < len(record) {
		return record[i]
	}
	return ""
}
