package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/jask/despacho/internal/api"
	"github.com/jask/despacho/internal/database"
	"github.com/jask/despacho/internal/database/repository"
	"github.com/jask/despacho/internal/journal"
)

// Wiper is the admin endpoint that clears orders on the backend.
type Wiper interface {
	WipeOrders(ctx context.Context) (api.WipeResult, error)
}

// MaintenanceService houses destructive actions surfaced through the TUI. Both
// are behind a confirmation in the UI.
type MaintenanceService struct {
	API     Wiper
	DB      *sql.DB
	Journal Recorder
	Log     *slog.Logger
}

// Wipe clears all orders on the backend and then the local journal, which only
// describes those orders.
func (s *MaintenanceService) Wipe(ctx context.Context) (api.WipeResult, error) {
	if s.API == nil {
		return api.WipeResult{}, fmt.Errorf("maintenance: api not configured")
	}
	res, err := s.API.WipeOrders(ctx)
	if err != nil {
		return api.WipeResult{}, err
	}
	if s.DB != nil {
		if err := s.ResetJournal(ctx); err != nil {
			return res, err
		}
	}
	if s.Log != nil {
		s.Log.LogAttrs(ctx, slog.LevelWarn, "orders_wiped",
			slog.Int("orders", res.Deleted.Orders),
			slog.Int("freight_costs", res.Deleted.FreightCosts),
			slog.Int("audit", res.Deleted.AuditEntries))
	}
	if s.Journal != nil {
		s.Journal.Record(repository.Entry{
			Kind:    journal.KindWiped,
			Message: fmt.Sprintf("%d pedidos removidos", res.Deleted.Orders),
		})
	}
	return res, nil
}

// ResetJournal empties the local journal. It keeps the schema intact so the
// app can continue running.
func (s *MaintenanceService) ResetJournal(ctx context.Context) error {
	if s.DB == nil {
		return fmt.Errorf("maintenance: db not configured")
	}
	if err := database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM journal_entries"); err != nil {
			return fmt.Errorf("reset journal: %w", err)
		}
		return nil
	}); err != nil {
		return err
	}
	_, _ = s.DB.ExecContext(ctx, "VACUUM")
	return nil
}
