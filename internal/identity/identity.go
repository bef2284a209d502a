// Package identity manages the whitelist of identities allowed to request
// wallet screenings.
//
// Identities are opaque, case-sensitive handles (a username or numeric id).
// Each carries admin/active flags and daily/monthly usage limits. The
// configured administrator identity is bootstrapped at startup and can never
// be removed.
package identity

import (
	"context"
	"errors"
	"time"
)

// Errors
var (
	ErrNotFound       = errors.New("identity not found")
	ErrAlreadyExists  = errors.New("identity already exists")
	ErrAdminImmutable = errors.New("admin identity cannot be removed")
)

// User is one whitelisted identity.
type User struct {
	Handle       string    `json:"handle"`
	Username     string    `json:"username,omitempty"`
	Admin        bool      `json:"admin"`
	Active       bool      `json:"active"`
	DailyLimit   int       `json:"dailyLimit"`
	MonthlyLimit int       `json:"monthlyLimit"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Store persists identity records.
type Store interface {
	Get(ctx context.Context, handle string) (*User, error)
	Create(ctx context.Context, user *User) error
	Update(ctx context.Context, user *User) error
	Delete(ctx context.Context, handle string) error
	List(ctx context.Context) ([]*User, error)
}

// Limits used for the bootstrapped admin identity.
const (
	AdminDailyLimit   = 999
	AdminMonthlyLimit = 9999
)

// Service wraps a Store with the admin operations the API exposes.
type Service struct {
	store Store
}

// NewService creates an identity service over the given store.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Get returns one identity record.
func (s *Service) Get(ctx context.Context, handle string) (*User, error) {
	return s.store.Get(ctx, handle)
}

// Add creates a new identity with the given limits. The handle must not
// already exist.
func (s *Service) Add(ctx context.Context, handle, username string, dailyLimit, monthlyLimit int) (*User, error) {
	now := time.Now()
	user := &User{
		Handle:       handle,
		Username:     username,
		Active:       true,
		DailyLimit:   dailyLimit,
		MonthlyLimit: monthlyLimit,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Remove deletes an identity. Admin identities are never removable.
func (s *Service) Remove(ctx context.Context, handle string) error {
	user, err := s.store.Get(ctx, handle)
	if err != nil {
		return err
	}
	if user.Admin {
		return ErrAdminImmutable
	}
	return s.store.Delete(ctx, handle)
}

// SetLimits updates an identity's daily and monthly limits.
func (s *Service) SetLimits(ctx context.Context, handle string, dailyLimit, monthlyLimit int) (*User, error) {
	user, err := s.store.Get(ctx, handle)
	if err != nil {
		return nil, err
	}
	user.DailyLimit = dailyLimit
	user.MonthlyLimit = monthlyLimit
	user.UpdatedAt = time.Now()
	if err := s.store.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// SetActive toggles an identity's active flag. Deactivation is soft; the
// record is kept.
func (s *Service) SetActive(ctx context.Context, handle string, active bool) (*User, error) {
	user, err := s.store.Get(ctx, handle)
	if err != nil {
		return nil, err
	}
	user.Active = active
	user.UpdatedAt = time.Now()
	if err := s.store.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// List returns all identities, newest first.
func (s *Service) List(ctx context.Context) ([]*User, error) {
	return s.store.List(ctx)
}

// EnsureAdmin creates the configured administrator identity if it does not
// exist yet. Called once at startup; idempotent.
func (s *Service) EnsureAdmin(ctx context.Context, handle string) (*User, error) {
	user, err := s.store.Get(ctx, handle)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	now := time.Now()
	user = &User{
		Handle:       handle,
		Username:     handle,
		Admin:        true,
		Active:       true,
		DailyLimit:   AdminDailyLimit,
		MonthlyLimit: AdminMonthlyLimit,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Create(ctx, user); err != nil {
		// Lost a startup race with another instance; the admin now exists.
		if errors.Is(err, ErrAlreadyExists) {
			return s.store.Get(ctx, handle)
		}
		return nil, err
	}
	return user, nil
}
