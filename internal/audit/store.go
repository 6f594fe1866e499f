package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/indihub/internal/events"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500

	// timeLayout is fixed width so stored timestamps sort as text.
	timeLayout = "2006-01-02T15:04:05.000000000Z"
)

// Record is a stored broker event.
type Record struct {
	ID string `json:"id"`
	events.Event
}

// Filter controls which records List returns.
type Filter struct {
	Kind   events.Kind // optional
	Driver string      // optional
	Since  time.Time   // optional, inclusive
	Limit  int         // default 50, max 500
	Offset int
}

// ListResult is one page of records, newest first.
type ListResult struct {
	Records []Record `json:"records"`
	Total   int      `json:"total"`
	Limit   int      `json:"limit"`
	Offset  int      `json:"offset"`
}

// SQLiteRepository reads and writes the broker_events and driver_sessions
// tables.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository on db. The schema comes from
// the migrations package.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create stores ev and returns its record ID.
func (r *SQLiteRepository) Create(ctx context.Context, ev events.Event) (string, error) {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	id := "evt-" + uuid.NewString()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO broker_events
		   (id, kind, occurred_at, client_id, driver, device, property, reason, restarts, delay_s)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, string(ev.Kind), ev.Time.UTC().Format(timeLayout),
		ev.Client, ev.Driver, ev.Device, ev.Property, ev.Reason, ev.Restarts, ev.Delay,
	)
	if err != nil {
		return "", fmt.Errorf("inserting broker event: %w", err)
	}
	return id, nil
}

// List returns records matching filter, newest first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	filter.Limit = min(filter.Limit, maxListLimit)
	filter.Offset = max(filter.Offset, 0)

	var conditions []string
	var args []any
	if filter.Kind != "" {
		conditions = append(conditions, "kind = ?")
		args = append(args, string(filter.Kind))
	}
	if filter.Driver != "" {
		conditions = append(conditions, "driver = ?")
		args = append(args, filter.Driver)
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "occurred_at >= ?")
		args = append(args, filter.Since.UTC().Format(timeLayout))
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM broker_events " + where //nolint:gosec // conditions are placeholders only
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting broker events: %w", err)
	}

	query := `SELECT id, kind, occurred_at, client_id, driver, device, property, reason, restarts, delay_s
	          FROM broker_events ` + where + ` ORDER BY occurred_at DESC, rowid DESC LIMIT ? OFFSET ?` //nolint:gosec // conditions are placeholders only
	rows, err := r.db.QueryContext(ctx, query, append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("querying broker events: %w", err)
	}
	defer rows.Close()

	result := &ListResult{Records: []Record{}, Total: total, Limit: filter.Limit, Offset: filter.Offset}
	for rows.Next() {
		var rec Record
		var kind, occurred string
		if err := rows.Scan(&rec.ID, &kind, &occurred, &rec.Client, &rec.Driver, &rec.Device,
			&rec.Property, &rec.Reason, &rec.Restarts, &rec.Delay); err != nil {
			return nil, fmt.Errorf("scanning broker event: %w", err)
		}
		rec.Kind = events.Kind(kind)
		rec.Time, _ = time.Parse(timeLayout, occurred) //nolint:errcheck // written by Create
		result.Records = append(result.Records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating broker events: %w", err)
	}
	return result, nil
}

// Prune deletes events older than before and returns how many went.
func (r *SQLiteRepository) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM broker_events WHERE occurred_at < ?",
		before.UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning broker events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("pruning broker events: %w", err)
	}
	return n, nil
}
