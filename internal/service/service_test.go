package service

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jask/despacho/internal/api"
	"github.com/jask/despacho/internal/apperr"
	"github.com/jask/despacho/internal/database"
	"github.com/jask/despacho/internal/database/repository"
	"github.com/jask/despacho/internal/journal"
	"github.com/jask/despacho/internal/storage"
)

type fakeExporter struct {
	store, search string
	err           error
}

func (f *fakeExporter) DashboardExcel(context.Context) (api.Download, error) {
	return api.Download{Filename: "dashboard-2026-03-02.xlsx", Body: []byte("dash")}, f.err
}

func (f *fakeExporter) ExportFinalized(_ context.Context, store, search string) (api.Download, error) {
	f.store, f.search = store, search
	return api.Download{Filename: "finalizados-2026-03-02.xlsx", Body: []byte("fin")}, f.err
}

func (f *fakeExporter) DailyReportExcel(_ context.Context, day time.Time) (api.Download, error) {
	return api.Download{Filename: "relatorio-" + day.Format(time.DateOnly) + ".xlsx", Body: []byte("d")}, f.err
}

func (f *fakeExporter) PeriodReportExcel(context.Context, time.Time, time.Time) (api.Download, error) {
	return api.Download{Filename: "periodo.xlsx", Body: []byte("p")}, f.err
}

func (f *fakeExporter) ChannelReportExcel(context.Context, time.Time, time.Time) (api.Download, error) {
	return api.Download{Filename: "canais.xlsx", Body: []byte("c")}, f.err
}

type memJournal struct {
	mu      sync.Mutex
	entries []repository.Entry
}

func (m *memJournal) Record(e repository.Entry) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return true
}

func TestExportSavesToStorage(t *testing.T) {
	dir := t.TempDir()
	fe := &fakeExporter{}
	j := &memJournal{}
	svc := &ExportService{API: fe, Store: storage.NewLocal(dir), Journal: j}

	res, err := svc.Finalized(context.Background(), "Shopee", "123")
	require.NoError(t, err)
	require.Equal(t, "Shopee", fe.store)
	require.Equal(t, "123", fe.search)
	require.Equal(t, filepath.Join(dir, "finalizados-2026-03-02.xlsx"), res.Location)

	raw, err := os.ReadFile(res.Location)
	require.NoError(t, err)
	require.Equal(t, "fin", string(raw))

	require.Len(t, j.entries, 1)
	require.Equal(t, journal.KindExported, j.entries[0].Kind)
	require.Equal(t, res.Location, j.entries[0].Message)

	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	res, err = svc.DailyReport(context.Background(), day)
	require.NoError(t, err)
	require.Equal(t, "relatorio-2026-03-01.xlsx", res.Key)
}

func TestExportDownloadFailureStoresNothing(t *testing.T) {
	dir := t.TempDir()
	svc := &ExportService{API: &fakeExporter{err: apperr.NetworkErr(errors.New("boom"))}, Store: storage.NewLocal(dir)}
	_, err := svc.Dashboard(context.Background())
	require.Equal(t, apperr.Network, apperr.KindOf(err))

	files, _ := os.ReadDir(dir)
	require.Empty(t, files)
}

type fakeWiper struct {
	res api.WipeResult
	err error
}

func (f fakeWiper) WipeOrders(context.Context) (api.WipeResult, error) { return f.res, f.err }

func TestWipeClearsJournal(t *testing.T) {
	db, err := database.Open(filepath.Join(t.TempDir(), "despacho.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.RunMigrations(db))

	ctx := context.Background()
	repo := repository.NewJournalRepo(db)
	require.NoError(t, repo.InsertBatch(ctx, []repository.Entry{
		{ID: "a", RecordedAt: time.Now(), Kind: journal.KindFinalized, OrderNo: "1"},
		{ID: "b", RecordedAt: time.Now(), Kind: journal.KindFinalized, OrderNo: "2"},
	}))

	var res api.WipeResult
	res.Deleted.Orders = 2
	j := &memJournal{}
	svc := &MaintenanceService{API: fakeWiper{res: res}, DB: db, Journal: j}

	got, err := svc.Wipe(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, got.Deleted.Orders)

	left, err := repo.Recent(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, left)
	require.Len(t, j.entries, 1)
	require.Equal(t, journal.KindWiped, j.entries[0].Kind)
}

func TestWipeFailureKeepsJournal(t *testing.T) {
	db, err := database.Open(filepath.Join(t.TempDir(), "despacho.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.RunMigrations(db))

	ctx := context.Background()
	repo := repository.NewJournalRepo(db)
	require.NoError(t, repo.InsertBatch(ctx, []repository.Entry{{ID: "a", RecordedAt: time.Now(), Kind: journal.KindReserved}}))

	forbidden := &apperr.AppError{Kind: apperr.Forbidden, PublicMsg: "Acesso negado"}
	svc := &MaintenanceService{API: fakeWiper{err: forbidden}, DB: db}
	_, err = svc.Wipe(ctx)
	require.Equal(t, apperr.Forbidden, apperr.KindOf(err))

	left, err := repo.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, left, 1)
}

type fakeUploader struct {
	name string
	body string
}

func (f *fakeUploader) UploadSpreadsheet(_ context.Context, filename string, r io.Reader) (api.SpreadsheetResult, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return api.SpreadsheetResult{}, err
	}
	f.name, f.body = filename, string(raw)
	return api.SpreadsheetResult{Message: "ok", Updated: 3}, nil
}

func TestUploadSpreadsheet(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mandae.csv")
	require.NoError(t, os.WriteFile(path, []byte("pedido;frete\n1;10,00\n"), 0o600))

	up := &fakeUploader{}
	svc := &UploadService{API: up}
	res, err := svc.Upload(context.Background(), "  "+path+"  ")
	require.NoError(t, err)
	require.Equal(t, 3, res.Updated)
	require.Equal(t, "mandae.csv", up.name)
	require.Contains(t, up.body, "1;10,00")
}

func TestUploadRejectsBadInput(t *testing.T) {
	dir := t.TempDir()
	pdf := filepath.Join(dir, "nota.pdf")
	require.NoError(t, os.WriteFile(pdf, []byte("%PDF"), 0o600))

	svc := &UploadService{API: &fakeUploader{}}
	ctx := context.Background()
	for _, p := range []string{"", pdf, filepath.Join(dir, "missing.xlsx")} {
		_, err := svc.Upload(ctx, p)
		require.Equal(t, apperr.Invalid, apperr.KindOf(err), p)
	}
}
