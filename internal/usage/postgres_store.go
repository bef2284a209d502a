package usage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresStore is an EventStore backed by the usage_events and
// error_events tables.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, event *Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO usage_events (handle, address, risk_score, decision, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, event.Handle, event.Address, event.RiskScore, event.Decision, event.Timestamp).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("append usage event: %w", err)
	}
	return nil
}

func (s *PostgresStore) AppendError(ctx context.Context, event *ErrorEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO error_events (handle, kind, message, address, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, event.Handle, string(event.Kind), event.Message, event.Address, event.Timestamp).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("append error event: %w", err)
	}
	return nil
}

func (s *PostgresStore) CountSince(ctx context.Context, handle string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM usage_events
		WHERE handle = $1 AND created_at >= $2
	`, handle, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count usage events: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) DecisionCountsSince(ctx context.Context, handle string, since time.Time) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT decision, COUNT(*) FROM usage_events
		WHERE handle = $1 AND created_at >= $2
		GROUP BY decision
	`, handle, since)
	if err != nil {
		return nil, fmt.Errorf("count decisions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]int)
	for rows.Next() {
		var decision string
		var n int
		if err := rows.Scan(&decision, &n); err != nil {
			return nil, fmt.Errorf("scan decision count: %w", err)
		}
		counts[decision] = n
	}
	return counts, rows.Err()
}

func (s *PostgresStore) TotalCount(ctx context.Context, handle string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM usage_events WHERE handle = $1
	`, handle).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count usage events: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) RecentErrors(ctx context.Context, limit int) ([]*ErrorEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, COALESCE(handle, ''), kind, message, COALESCE(address, ''), created_at
		FROM error_events
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list error events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []*ErrorEvent
	for rows.Next() {
		var e ErrorEvent
		var kind string
		if err := rows.Scan(&e.ID, &e.Handle, &kind, &e.Message, &e.Address, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan error event: %w", err)
		}
		e.Kind = ErrorKind(kind)
		events = append(events, &e)
	}
	return events, rows.Err()
}
