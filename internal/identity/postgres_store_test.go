package identity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walletscreen/walletscreen/internal/testutil"
)

func TestPostgresStore_CRUD(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	user := &User{
		Handle:       "pg_user_1",
		Username:     "pg_user_1",
		Active:       true,
		DailyLimit:   10,
		MonthlyLimit: 300,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, store.Create(ctx, user))

	// Duplicate insert maps the unique violation to ErrAlreadyExists.
	assert.ErrorIs(t, store.Create(ctx, user), ErrAlreadyExists)

	got, err := store.Get(ctx, "pg_user_1")
	require.NoError(t, err)
	assert.Equal(t, 10, got.DailyLimit)
	assert.True(t, got.Active)

	got.DailyLimit = 25
	got.Active = false
	got.UpdatedAt = time.Now().UTC()
	require.NoError(t, store.Update(ctx, got))

	got, err = store.Get(ctx, "pg_user_1")
	require.NoError(t, err)
	assert.Equal(t, 25, got.DailyLimit)
	assert.False(t, got.Active)

	users, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)

	require.NoError(t, store.Delete(ctx, "pg_user_1"))
	_, err = store.Get(ctx, "pg_user_1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.Delete(ctx, "pg_user_1"), ErrNotFound)
}

func TestPostgresStore_UpdateMissing(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	err := store.Update(context.Background(), &User{Handle: "ghost_user", UpdatedAt: time.Now()})
	assert.ErrorIs(t, err, ErrNotFound)
}
