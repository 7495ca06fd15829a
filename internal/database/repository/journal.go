package repository

import (
	"context"
	"database/sql"
	"strings"
)

// JournalRepo handles the local activity journal.
type JournalRepo struct {
	db *sql.DB
}

func NewJournalRepo(db *sql.DB) *JournalRepo { return &JournalRepo{db: db} }

// InsertBatch writes entries in one statement. Duplicate ids are ignored.
func (r *JournalRepo) InsertBatch(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString(`INSERT OR IGNORE INTO journal_entries
	(id, recorded_at, kind, order_no, from_state, to_state, user_email, message) VALUES `)
	args := make([]any, 0, len(entries)*8)
	for i, e := range entries {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args, e.ID, e.RecordedAt.UTC(), e.Kind, e.OrderNo, e.FromState, e.ToState, e.UserEmail, e.Message)
	}
	_, err := r.db.ExecContext(ctx, sb.String(), args...)
	return err
}

// Recent returns the newest entries first.
func (r *JournalRepo) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, recorded_at, kind, order_no, from_state, to_state, user_email, message
	FROM journal_entries
	ORDER BY recorded_at DESC, rowid DESC
	LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.RecordedAt, &e.Kind, &e.OrderNo, &e.FromState, &e.ToState, &e.UserEmail, &e.Message); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ByOrder returns the history of one order, oldest first.
func (r *JournalRepo) ByOrder(ctx context.Context, orderNo string) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, recorded_at, kind, order_no, from_state, to_state, user_email, message
	FROM journal_entries
	WHERE order_no = ?
	ORDER BY recorded_at, rowid`, orderNo)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.RecordedAt, &e.Kind, &e.OrderNo, &e.FromState, &e.ToState, &e.UserEmail, &e.Message); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Clear deletes every entry and returns how many were removed.
func (r *JournalRepo) Clear(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM journal_entries`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
