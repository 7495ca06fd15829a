package service

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jask/despacho/internal/api"
	"github.com/jask/despacho/internal/database/repository"
	"github.com/jask/despacho/internal/journal"
	"github.com/jask/despacho/internal/storage"
)

// Exporter is the part of the API client that produces spreadsheets.
type Exporter interface {
	DashboardExcel(ctx context.Context) (api.Download, error)
	ExportFinalized(ctx context.Context, store, search string) (api.Download, error)
	DailyReportExcel(ctx context.Context, day time.Time) (api.Download, error)
	PeriodReportExcel(ctx context.Context, start, end time.Time) (api.Download, error)
	ChannelReportExcel(ctx context.Context, start, end time.Time) (api.Download, error)
}

// Recorder receives journal entries.
type Recorder interface {
	Record(e repository.Entry) bool
}

// ExportService downloads a spreadsheet and hands it to storage.
type ExportService struct {
	API     Exporter
	Store   storage.Storage
	Journal Recorder
	Log     *slog.Logger
}

func (s *ExportService) Dashboard(ctx context.Context) (storage.PutResult, error) {
	return s.save(ctx, "dashboard", s.API.DashboardExcel)
}

func (s *ExportService) Finalized(ctx context.Context, store, search string) (storage.PutResult, error) {
	return s.save(ctx, "finalizados", func(ctx context.Context) (api.Download, error) {
		return s.API.ExportFinalized(ctx, store, search)
	})
}

func (s *ExportService) DailyReport(ctx context.Context, day time.Time) (storage.PutResult, error) {
	return s.save(ctx, "relatorio_diario", func(ctx context.Context) (api.Download, error) {
		return s.API.DailyReportExcel(ctx, day)
	})
}

func (s *ExportService) PeriodReport(ctx context.Context, start, end time.Time) (storage.PutResult, error) {
	return s.save(ctx, "relatorio_periodo", func(ctx context.Context) (api.Download, error) {
		return s.API.PeriodReportExcel(ctx, start, end)
	})
}

func (s *ExportService) ChannelReport(ctx context.Context, start, end time.Time) (storage.PutResult, error) {
	return s.save(ctx, "relatorio_canais", func(ctx context.Context) (api.Download, error) {
		return s.API.ChannelReportExcel(ctx, start, end)
	})
}

func (s *ExportService) save(ctx context.Context, what string, fetch func(context.Context) (api.Download, error)) (storage.PutResult, error) {
	if s.API == nil || s.Store == nil {
		return storage.PutResult{}, fmt.Errorf("exports: not configured")
	}
	d, err := fetch(ctx)
	if err != nil {
		return storage.PutResult{}, err
	}
	res, err := s.Store.Put(ctx, bytes.NewReader(d.Body), storage.PutInput{
		Filename:    d.Filename,
		ContentType: d.ContentType,
		Size:        int64(len(d.Body)),
	})
	if err != nil {
		return storage.PutResult{}, fmt.Errorf("store %s: %w", d.Filename, err)
	}
	if s.Log != nil {
		s.Log.LogAttrs(ctx, slog.LevelInfo, "export_saved",
			slog.String("export", what), slog.String("location", res.Location), slog.Int("bytes", len(d.Body)))
	}
	if s.Journal != nil {
		s.Journal.Record(repository.Entry{Kind: journal.KindExported, Message: res.Location})
	}
	return res, nil
}
