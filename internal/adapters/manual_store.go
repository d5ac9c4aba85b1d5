package adapters

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// FileManualStore is the on-disk ManualStore: one file per ETF ISIN
// under a base directory, holding whatever the user last uploaded via
// upload_holdings_file (§6). The extension is preserved so
// ParseManualUpload can still dispatch on it.
type FileManualStore struct {
	baseDir string
	log     zerolog.Logger
}

// NewFileManualStore builds a FileManualStore rooted at baseDir,
// creating it if missing.
func NewFileManualStore(baseDir string, log zerolog.Logger) (*FileManualStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create manual uploads directory: %w", err)
	}
	return &FileManualStore{baseDir: baseDir, log: log.With().Str("component", "manual_store").Logger()}, nil
}

func (s *FileManualStore) pathFor(etfISIN, ext string) string {
	return filepath.Join(s.baseDir, etfISIN+ext)
}

// Save writes the uploaded file, replacing any prior upload for the
// same ETF ISIN regardless of its original extension.
func (s *FileManualStore) Save(etfISIN, filename string, r io.Reader) error {
	if err := s.clear(etfISIN); err != nil {
		return err
	}
	ext := filepath.Ext(filename)
	f, err := os.Create(s.pathFor(etfISIN, ext))
	if err != nil {
		return fmt.Errorf("failed to create manual upload file for %s: %w", etfISIN, err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("failed to write manual upload file for %s: %w", etfISIN, err)
	}
	s.log.Info().Str("isin", etfISIN).Str("filename", filename).Msg("manual upload stored")
	return nil
}

func (s *FileManualStore) clear(etfISIN string) error {
	for _, ext := range []string{".csv", ".json", ".xlsx", ".pdf"} {
		path := s.pathFor(etfISIN, ext)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to clear prior manual upload for %s: %w", etfISIN, err)
		}
	}
	return nil
}

// GetManualUpload implements ManualStore. It returns nil, nil when no
// upload has been stored for the ETF under any supported extension.
func (s *FileManualStore) GetManualUpload(etfISIN string) (*ManualUpload, error) {
	for _, ext := range []string{".csv", ".json", ".xlsx", ".pdf"} {
		path := s.pathFor(etfISIN, ext)
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to open manual upload file for %s: %w", etfISIN, err)
		}
		return &ManualUpload{Path: etfISIN + ext, Reader: bytes.NewReader(data)}, nil
	}
	return nil, nil
}
