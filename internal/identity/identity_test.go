package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_AddAndGet(t *testing.T) {
	svc := NewService(NewMemoryStore())
	ctx := context.Background()

	user, err := svc.Add(ctx, "alice_01", "alice_01", 10, 300)
	require.NoError(t, err)
	assert.True(t, user.Active)
	assert.False(t, user.Admin)
	assert.Equal(t, 10, user.DailyLimit)
	assert.Equal(t, 300, user.MonthlyLimit)

	got, err := svc.Get(ctx, "alice_01")
	require.NoError(t, err)
	assert.Equal(t, "alice_01", got.Handle)
}

func TestService_AddDuplicate(t *testing.T) {
	svc := NewService(NewMemoryStore())
	ctx := context.Background()

	_, err := svc.Add(ctx, "alice_01", "alice_01", 10, 300)
	require.NoError(t, err)

	_, err = svc.Add(ctx, "alice_01", "alice_01", 10, 300)
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestService_HandlesAreCaseSensitive(t *testing.T) {
	svc := NewService(NewMemoryStore())
	ctx := context.Background()

	_, err := svc.Add(ctx, "Alice_01", "Alice_01", 10, 300)
	require.NoError(t, err)

	_, err = svc.Get(ctx, "alice_01")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_RemoveRefusesAdmin(t *testing.T) {
	svc := NewService(NewMemoryStore())
	ctx := context.Background()

	admin, err := svc.EnsureAdmin(ctx, "rootadmin")
	require.NoError(t, err)
	require.True(t, admin.Admin)

	assert.ErrorIs(t, svc.Remove(ctx, "rootadmin"), ErrAdminImmutable)

	// Still present after the refused removal.
	_, err = svc.Get(ctx, "rootadmin")
	assert.NoError(t, err)
}

func TestService_RemoveRegularUser(t *testing.T) {
	svc := NewService(NewMemoryStore())
	ctx := context.Background()

	_, err := svc.Add(ctx, "bob_2024", "bob_2024", 10, 300)
	require.NoError(t, err)

	require.NoError(t, svc.Remove(ctx, "bob_2024"))
	_, err = svc.Get(ctx, "bob_2024")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, svc.Remove(ctx, "bob_2024"), ErrNotFound)
}

func TestService_SetLimits(t *testing.T) {
	svc := NewService(NewMemoryStore())
	ctx := context.Background()

	_, err := svc.Add(ctx, "carol_7", "carol_7", 10, 300)
	require.NoError(t, err)

	user, err := svc.SetLimits(ctx, "carol_7", 20, 500)
	require.NoError(t, err)
	assert.Equal(t, 20, user.DailyLimit)
	assert.Equal(t, 500, user.MonthlyLimit)

	_, err = svc.SetLimits(ctx, "nobody_here", 20, 500)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_SetActive(t *testing.T) {
	svc := NewService(NewMemoryStore())
	ctx := context.Background()

	_, err := svc.Add(ctx, "dave_99", "dave_99", 10, 300)
	require.NoError(t, err)

	user, err := svc.SetActive(ctx, "dave_99", false)
	require.NoError(t, err)
	assert.False(t, user.Active)

	// Deactivation is soft: the record survives.
	got, err := svc.Get(ctx, "dave_99")
	require.NoError(t, err)
	assert.False(t, got.Active)
}

func TestService_EnsureAdminIdempotent(t *testing.T) {
	svc := NewService(NewMemoryStore())
	ctx := context.Background()

	first, err := svc.EnsureAdmin(ctx, "rootadmin")
	require.NoError(t, err)
	assert.Equal(t, AdminDailyLimit, first.DailyLimit)
	assert.Equal(t, AdminMonthlyLimit, first.MonthlyLimit)

	second, err := svc.EnsureAdmin(ctx, "rootadmin")
	require.NoError(t, err)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)

	users, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}
