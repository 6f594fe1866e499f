package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DriverSession is one driver incarnation, from connect until it stops,
// retires or is scheduled for restart.
type DriverSession struct {
	ID        string     `json:"id"`
	Driver    string     `json:"driver"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Outcome   string     `json:"outcome,omitempty"`
	Restarts  int        `json:"restarts"`
}

// OpenSession starts a session for driver, closing any it left open.
func (r *SQLiteRepository) OpenSession(ctx context.Context, driver string, at time.Time) (string, error) {
	if _, err := r.CloseSessions(ctx, driver, at, "superseded", 0); err != nil {
		return "", err
	}
	id := "drv-" + uuid.NewString()
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO driver_sessions (id, driver, started_at) VALUES (?, ?, ?)",
		id, driver, at.UTC().Format(timeLayout),
	)
	if err != nil {
		return "", fmt.Errorf("inserting driver session: %w", err)
	}
	return id, nil
}

// CloseSessions ends every open session of driver with outcome.
func (r *SQLiteRepository) CloseSessions(ctx context.Context, driver string, at time.Time, outcome string, restarts int) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE driver_sessions SET ended_at = ?, outcome = ?, restarts = ?
		 WHERE driver = ? AND ended_at IS NULL`,
		at.UTC().Format(timeLayout), outcome, restarts, driver,
	)
	if err != nil {
		return 0, fmt.Errorf("closing driver sessions: %w", err)
	}
	return res.RowsAffected()
}

// ListSessions returns the most recent sessions of driver, or of every
// driver when driver is empty.
func (r *SQLiteRepository) ListSessions(ctx context.Context, driver string, limit int) ([]DriverSession, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	limit = min(limit, maxListLimit)

	query := "SELECT id, driver, started_at, ended_at, outcome, restarts FROM driver_sessions"
	args := []any{}
	if driver != "" {
		query += " WHERE driver = ?"
		args = append(args, driver)
	}
	query += " ORDER BY started_at DESC, rowid DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying driver sessions: %w", err)
	}
	defer rows.Close()

	sessions := []DriverSession{}
	for rows.Next() {
		var s DriverSession
		var started string
		var ended sql.NullString
		if err := rows.Scan(&s.ID, &s.Driver, &started, &ended, &s.Outcome, &s.Restarts); err != nil {
			return nil, fmt.Errorf("scanning driver session: %w", err)
		}
		s.StartedAt, _ = time.Parse(timeLayout, started) //nolint:errcheck // written by OpenSession
		if ended.Valid {
			t, _ := time.Parse(timeLayout, ended.String) //nolint:errcheck // written by CloseSessions
			s.EndedAt = &t
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating driver sessions: %w", err)
	}
	return sessions, nil
}
