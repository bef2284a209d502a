package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// PostgresStore persists identities in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed identity store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const uniqueViolation = "23505"

func (s *PostgresStore) Get(ctx context.Context, handle string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT handle, COALESCE(username, ''), is_admin, is_active,
		       daily_limit, monthly_limit, created_at, updated_at
		FROM users
		WHERE handle = $1
	`, handle)

	var u User
	err := row.Scan(&u.Handle, &u.Username, &u.Admin, &u.Active,
		&u.DailyLimit, &u.MonthlyLimit, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get identity: %w", err)
	}
	return &u, nil
}

func (s *PostgresStore) Create(ctx context.Context, user *User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (handle, username, is_admin, is_active, daily_limit, monthly_limit, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, user.Handle, user.Username, user.Admin, user.Active,
		user.DailyLimit, user.MonthlyLimit, user.CreatedAt, user.UpdatedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("create identity: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, user *User) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET username = $2, is_admin = $3, is_active = $4,
		    daily_limit = $5, monthly_limit = $6, updated_at = $7
		WHERE handle = $1
	`, user.Handle, user.Username, user.Admin, user.Active,
		user.DailyLimit, user.MonthlyLimit, user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update identity: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, handle string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE handle = $1`, handle)
	if err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT handle, COALESCE(username, ''), is_admin, is_active,
		       daily_limit, monthly_limit, created_at, updated_at
		FROM users
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []*User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.Handle, &u.Username, &u.Admin, &u.Active,
			&u.DailyLimit, &u.MonthlyLimit, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		users = append(users, &u)
	}
	return users, rows.Err()
}
