package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/exposure-engine/internal/domain"
	"github.com/aristath/exposure-engine/internal/ingestion"
	"github.com/aristath/exposure-engine/internal/pipeline"
)

// Envelope is the §6 response shape: {id, status, data?, error?}.
type Envelope struct {
	ID     string      `json:"id"`
	Status string      `json:"status"`
	Data   interface{} `json:"data,omitempty"`
	Error  *ErrorInfo  `json:"error,omitempty"`
}

// ErrorInfo is the §6 error detail shape.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// commandRequest is the §6 request shape: {id, command, payload}.
type commandRequest struct {
	ID      string          `json:"id"`
	Command string          `json:"command"`
	Payload json.RawMessage `json:"payload"`
}

type commandHandler func(ctx context.Context, payload json.RawMessage) (interface{}, error)

func (s *Server) commandHandlers() map[string]commandHandler {
	return map[string]commandHandler{
		"health_check":                s.handleHealthCheck,
		"sync_portfolio":              s.handleSyncPortfolio,
		"run_pipeline":                s.handleRunPipeline,
		"get_true_holdings":           s.handleGetTrueHoldings,
		"get_pipeline_report":         s.handleGetPipelineReport,
		"contribute_holdings_to_hive": s.handleContributeHoldingsToHive,
	}
}

// handleCommand is the single POST /api/command/{command} entry point.
// upload_holdings_file is multipart and handled separately since the
// other six commands carry a JSON payload.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	command := chi.URLParam(r, "command")
	if command == "upload_holdings_file" {
		s.handleUploadHoldingsFile(w, r)
		return
	}

	var req commandRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, Envelope{Status: "error", Error: &ErrorInfo{
				Code: "invalid_request", Message: "failed to decode request body: " + err.Error(),
			}})
			return
		}
	}
	if req.Command == "" {
		req.Command = command
	}

	handler, ok := s.commandHandlers()[command]
	if !ok {
		writeJSON(w, http.StatusNotFound, Envelope{ID: req.ID, Status: "error", Error: &ErrorInfo{
			Code: "unknown_command", Message: fmt.Sprintf("unknown command %q", command),
		}})
		return
	}

	data, err := handler(r.Context(), req.Payload)
	if err != nil {
		s.writeCommandError(w, req.ID, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{ID: req.ID, Status: "ok", Data: data})
}

func (s *Server) writeCommandError(w http.ResponseWriter, id string, err error) {
	code, status := classifyError(err)
	s.log.Warn().Err(err).Str("code", code).Msg("command failed")
	writeJSON(w, status, Envelope{ID: id, Status: "error", Error: &ErrorInfo{Code: code, Message: err.Error()}})
}

// classifyError maps a tagged domain error (§7) to a stable wire code
// and HTTP status; anything untagged is an internal error.
func classifyError(err error) (code string, status int) {
	switch err.(type) {
	case *domain.ValidationError:
		return "validation_error", http.StatusBadRequest
	case *domain.NotFoundError:
		return "not_found", http.StatusNotFound
	case *domain.ManualUploadRequiredError:
		return "manual_upload_required", http.StatusConflict
	case *domain.ErrUnsupportedManualFormat:
		return "unsupported_format", http.StatusUnprocessableEntity
	case *domain.RateLimitedError, *domain.TimeoutError, *domain.NetworkError:
		return "upstream_unavailable", http.StatusBadGateway
	case *domain.CacheError, *domain.PipelineFatalError:
		return "internal_error", http.StatusInternalServerError
	default:
		return "internal_error", http.StatusInternalServerError
	}
}

// healthCheckResponse is the health_check command's data (§6: "returns
// version, last-sync timestamp, cache sizes").
type healthCheckResponse struct {
	Version    string    `json:"version"`
	LastSyncAt time.Time `json:"last_sync_at"`
	CacheSizes struct {
		Assets      int64 `json:"assets"`
		Listings    int64 `json:"listings"`
		Aliases     int64 `json:"aliases"`
		ETFHoldings int64 `json:"etf_holdings"`
	} `json:"cache_sizes"`
	HiveEnabled bool `json:"hive_enabled"`
}

func (s *Server) handleHealthCheck(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	lastSync, err := s.store.LastSync()
	if err != nil {
		return nil, err
	}
	stats, err := s.store.CacheStats()
	if err != nil {
		return nil, err
	}
	resp := healthCheckResponse{Version: s.cfg.Version, LastSyncAt: lastSync}
	resp.CacheSizes.Assets = stats.Assets
	resp.CacheSizes.Listings = stats.Listings
	resp.CacheSizes.Aliases = stats.Aliases
	resp.CacheSizes.ETFHoldings = stats.ETFHoldings
	resp.HiveEnabled = s.hive != nil && s.hive.Enabled()
	return resp, nil
}

// syncPortfolioPayload optionally carries raw rows fetched by the
// shell's own broker session; when absent the server falls back to its
// injected BrokerClient, if one is configured.
type syncPortfolioPayload struct {
	Positions []ingestion.RawPosition `json:"positions"`
}

type syncPortfolioResponse struct {
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
}

// handleSyncPortfolio implements sync_portfolio (§6): normalizes and
// stores positions, but MUST NOT run the pipeline.
func (s *Server) handleSyncPortfolio(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	var req syncPortfolioPayload
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, &domain.ValidationError{Field: "payload", Reason: "failed to decode sync_portfolio payload: " + err.Error()}
		}
	}

	rows := req.Positions
	if len(rows) == 0 {
		if s.broker == nil {
			return nil, &domain.ValidationError{Field: "positions", Reason: "no positions supplied and no broker collaborator configured"}
		}
		fetched, err := s.broker.GetPortfolio(ctx)
		if err != nil {
			return nil, err
		}
		rows = fetched
	}

	canonical, errs := s.ingestor.IngestPositions(rows)
	holdings := make([]domain.HoldingRow, len(canonical))
	for i, c := range canonical {
		holdings[i] = ingestion.ToHoldingRow(c, "")
	}

	s.mu.Lock()
	s.positions = holdings
	s.mu.Unlock()

	return syncPortfolioResponse{Accepted: len(holdings), Rejected: len(errs)}, nil
}

// handleRunPipeline implements run_pipeline (§6): runs §4.8 against the
// positions most recently accepted by sync_portfolio.
func (s *Server) handleRunPipeline(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	s.mu.RLock()
	holdings := s.positions
	s.mu.RUnlock()

	if len(holdings) == 0 {
		return nil, &domain.ValidationError{Field: "positions", Reason: "no positions synced; call sync_portfolio first"}
	}

	var totalValue float64
	for _, h := range holdings {
		totalValue += h.MarketValue()
	}
	if totalValue <= 0 {
		totalValue = 1 // avoid a divide-by-zero weight for an all-zero-value portfolio
	}

	var direct, etfs []pipeline.Input
	for _, h := range holdings {
		in := pipeline.Input{Row: h, Weight: h.MarketValue() / totalValue, MarketValue: h.MarketValue()}
		if h.AssetClass == domain.AssetClassETF {
			etfs = append(etfs, in)
		} else {
			direct = append(direct, in)
		}
	}

	result, err := s.orchestrator.Run(ctx, direct, etfs)
	if err != nil {
		s.bus.EmitError(err.Error())
		return nil, err
	}

	s.mu.Lock()
	s.lastResult = &result
	s.mu.Unlock()

	return result.Health, nil
}

// trueHoldingsResponse is get_true_holdings' data (§6: "aggregated rows
// + provenance").
type trueHoldingsResponse struct {
	Rows interface{} `json:"rows"`
}

func (s *Server) handleGetTrueHoldings(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	s.mu.RLock()
	result := s.lastResult
	s.mu.RUnlock()
	if result == nil {
		return nil, &domain.NotFoundError{Alias: "no pipeline run has completed yet"}
	}
	return trueHoldingsResponse{Rows: result.Exposures}, nil
}

// handleGetPipelineReport implements get_pipeline_report (§6) by
// reading the health report back from its stable on-disk path, so it
// reflects the latest run even across process restarts.
func (s *Server) handleGetPipelineReport(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	if s.cfg.HealthReportPath == "" {
		return nil, &domain.NotFoundError{Alias: "no health report path configured"}
	}
	body, err := os.ReadFile(s.cfg.HealthReportPath)
	if os.IsNotExist(err) {
		return nil, &domain.NotFoundError{Alias: "no pipeline run has completed yet"}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read health report: %w", err)
	}
	var report pipeline.HealthReport
	if err := json.Unmarshal(body, &report); err != nil {
		return nil, fmt.Errorf("failed to parse health report: %w", err)
	}
	return report, nil
}

// contributeHoldingsPayload is contribute_holdings_to_hive's payload
// (§6): the opt-in contribution of one ETF's normalized decomposition.
type contributeHoldingsPayload struct {
	ETFISIN string                     `json:"etf_isin"`
	Edges   []domain.ETFHoldingEdge `json:"edges"`
}

func (s *Server) handleContributeHoldingsToHive(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	var req contributeHoldingsPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, &domain.ValidationError{Field: "payload", Reason: "failed to decode contribute_holdings_to_hive payload: " + err.Error()}
	}
	if req.ETFISIN == "" {
		return nil, &domain.ValidationError{Field: "etf_isin", Reason: "required"}
	}
	if s.hive == nil || !s.hive.Enabled() {
		return nil, &domain.ValidationError{Field: "hive", Reason: "community store is not configured"}
	}
	if err := s.hive.ContributeETFHoldings(ctx, req.ETFISIN, req.Edges); err != nil {
		return nil, err
	}
	return map[string]interface{}{"contributed": len(req.Edges)}, nil
}
