package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jask/despacho/internal/api"
	"github.com/jask/despacho/internal/apperr"
)

// maxSpreadsheetBytes bounds what is read into memory for the upload.
const maxSpreadsheetBytes = 16 << 20

// Uploader is the freight spreadsheet endpoint.
type Uploader interface {
	UploadSpreadsheet(ctx context.Context, filename string, r io.Reader) (api.SpreadsheetResult, error)
}

// UploadService imports a Mandaê freight spreadsheet from a local path.
type UploadService struct {
	API Uploader
	Log *slog.Logger
}

// Upload checks the file before sending it. A leading "~/" is expanded.
func (s *UploadService) Upload(ctx context.Context, path string) (api.SpreadsheetResult, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return api.SpreadsheetResult{}, apperr.InvalidErr("Selecione um arquivo.", nil)
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".xlsx", ".xls":
	default:
		return api.SpreadsheetResult{}, apperr.InvalidErr("Formato não suportado. Use .csv, .xlsx ou .xls.", nil)
	}
	info, err := os.Stat(path)
	if err != nil {
		return api.SpreadsheetResult{}, apperr.InvalidErr("Arquivo não encontrado.", nil)
	}
	if info.IsDir() {
		return api.SpreadsheetResult{}, apperr.InvalidErr("Selecione um arquivo.", nil)
	}
	if info.Size() > maxSpreadsheetBytes {
		return api.SpreadsheetResult{}, apperr.InvalidErr("Arquivo muito grande (máximo 16 MB).", nil)
	}

	f, err := os.Open(path)
	if err != nil {
		return api.SpreadsheetResult{}, fmt.Errorf("open spreadsheet: %w", err)
	}
	defer f.Close()

	res, err := s.API.UploadSpreadsheet(ctx, filepath.Base(path), f)
	if err != nil {
		return res, err
	}
	if s.Log != nil {
		s.Log.LogAttrs(ctx, slog.LevelInfo, "spreadsheet_uploaded",
			slog.String("file", filepath.Base(path)), slog.Int("updated", res.Updated))
	}
	return res, nil
}
