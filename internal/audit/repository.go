// Package audit stores every published domain event in the audit_logs
// table and answers paginated queries over it.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-identity/internal/infrastructure/database"
)

// Page size bounds for List.
const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// Entry is one recorded domain event.
type Entry struct {
	ID          string          `json:"id"`
	EventType   string          `json:"event_type"`
	AggregateID string          `json:"aggregate_id"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	OccurredAt  time.Time       `json:"occurred_at"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Filter selects entries for List. Zero fields do not filter.
type Filter struct {
	EventType   string
	AggregateID string
	Since       time.Time // inclusive, on occurred_at
	Until       time.Time // exclusive, on occurred_at
	Limit       int       // default 50, max 200
	Offset      int
}

// ListResult is a page of entries, newest first.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Repository is the audit log store.
type Repository interface {
	Append(ctx context.Context, entries ...*Entry) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository implements Repository over the audit_logs table.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository returns a repository over db.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// Append inserts entries in one transaction. Missing IDs are generated
// and CreatedAt is stamped with the current time.
func (r *SQLiteRepository) Append(ctx context.Context, entries ...*Entry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning audit transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO audit_logs (id, event_type, aggregate_id, payload, occurred_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing audit insert: %w", err)
	}
	defer stmt.Close()

	now := r.now().UTC()
	for _, e := range entries {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		e.CreatedAt = now

		var payload sql.NullString
		if len(e.Payload) > 0 {
			payload = sql.NullString{String: string(e.Payload), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, e.ID, e.EventType, e.AggregateID, payload,
			database.FormatTime(e.OccurredAt), database.FormatTime(now)); err != nil {
			return fmt.Errorf("inserting audit entry %s: %w", e.EventType, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing audit entries: %w", err)
	}
	return nil
}

// List returns entries matching filter, ordered by occurred_at descending.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = DefaultLimit
	}
	if filter.Limit > MaxLimit {
		filter.Limit = MaxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	if filter.EventType != "" {
		conditions = append(conditions, "event_type = ?")
		args = append(args, filter.EventType)
	}
	if filter.AggregateID != "" {
		conditions = append(conditions, "aggregate_id = ?")
		args = append(args, filter.AggregateID)
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "occurred_at >= ?")
		args = append(args, database.FormatTime(filter.Since))
	}
	if !filter.Until.IsZero() {
		conditions = append(conditions, "occurred_at < ?")
		args = append(args, database.FormatTime(filter.Until))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	//nolint:gosec // WHERE is assembled from fixed, parameterised conditions
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_logs "+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting audit entries: %w", err)
	}

	//nolint:gosec // WHERE is assembled from fixed, parameterised conditions
	query := "SELECT id, event_type, aggregate_id, payload, occurred_at, created_at FROM audit_logs " +
		where + " ORDER BY occurred_at DESC, id DESC LIMIT ? OFFSET ?"
	rows, err := r.db.QueryContext(ctx, query, append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("querying audit entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var payload sql.NullString
		var occurredAt, createdAt string
		if err := rows.Scan(&e.ID, &e.EventType, &e.AggregateID, &payload, &occurredAt, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		if payload.Valid {
			e.Payload = json.RawMessage(payload.String)
		}
		if e.OccurredAt, err = database.ParseTime(occurredAt); err != nil {
			return nil, fmt.Errorf("parsing audit occurred_at %q: %w", occurredAt, err)
		}
		if e.CreatedAt, err = database.ParseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing audit created_at %q: %w", createdAt, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit entries: %w", err)
	}

	return &ListResult{
		Entries: entries,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}
