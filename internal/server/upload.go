package server

import (
	"net/http"

	"github.com/aristath/exposure-engine/internal/domain"
)

// maxUploadBytes bounds a single manual holdings file; issuer fact
// sheets run a few hundred KB at most.
const maxUploadBytes = 10 << 20 // 10 MiB

// handleUploadHoldingsFile implements upload_holdings_file (§6): stores
// a user-provided ETF holdings file for later use by the adapter
// registry's tier-1 manual-upload check. multipart/form-data with an
// "etf_isin" field and a "file" field.
func (s *Server) handleUploadHoldingsFile(w http.ResponseWriter, r *http.Request) {
	if s.manualStore == nil {
		s.writeCommandError(w, r.URL.Query().Get("id"), &domain.ValidationError{
			Field: "manual_store", Reason: "manual upload storage is not configured",
		})
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeCommandError(w, r.URL.Query().Get("id"), &domain.ValidationError{
			Field: "body", Reason: "failed to parse multipart upload: " + err.Error(),
		})
		return
	}

	id := r.FormValue("id")
	etfISIN := r.FormValue("etf_isin")
	if etfISIN == "" || !domain.IsValidISIN(etfISIN) {
		s.writeCommandError(w, id, &domain.ValidationError{Field: "etf_isin", Reason: "missing or malformed ISIN"})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeCommandError(w, id, &domain.ValidationError{Field: "file", Reason: "missing uploaded file: " + err.Error()})
		return
	}
	defer file.Close()

	if err := s.manualStore.Save(etfISIN, header.Filename, file); err != nil {
		s.writeCommandError(w, id, err)
		return
	}

	writeJSON(w, http.StatusOK, Envelope{ID: id, Status: "ok", Data: map[string]string{
		"etf_isin": etfISIN,
		"filename": header.Filename,
	}})
}
