package usage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walletscreen/walletscreen/internal/identity"
)

func newTestLedger(t *testing.T) (*Ledger, *identity.Service, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	ids := identity.NewService(identity.NewMemoryStore())
	return NewLedger(store, ids, nil), ids, store
}

func TestCheckLimitUnknownHandle(t *testing.T) {
	ledger, _, _ := newTestLedger(t)

	check, err := ledger.CheckLimit(context.Background(), "ghost")
	require.NoError(t, err)
	assert.False(t, check.Allowed)
	assert.Equal(t, "User not authorized", check.Reason)
	assert.Equal(t, 0, check.RemainingDaily)
	assert.Equal(t, 0, check.RemainingMonthly)
}

func TestCheckLimitFreshUser(t *testing.T) {
	ledger, ids, _ := newTestLedger(t)
	_, err := ids.Add(context.Background(), "alice", "Alice", 10, 300)
	require.NoError(t, err)

	check, err := ledger.CheckLimit(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, check.Allowed)
	assert.Equal(t, "OK", check.Reason)
	assert.Equal(t, 10, check.RemainingDaily)
	assert.Equal(t, 300, check.RemainingMonthly)
}

func TestCheckLimitDailyExhausted(t *testing.T) {
	ledger, ids, _ := newTestLedger(t)
	_, err := ids.Add(context.Background(), "alice", "", 2, 300)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		require.NoError(t, ledger.Record(context.Background(), "alice", "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa", nil, "Approved"))
	}

	check, err := ledger.CheckLimit(context.Background(), "alice")
	require.NoError(t, err)
	assert.False(t, check.Allowed)
	assert.Equal(t, "Daily limit reached (2 queries/day)", check.Reason)
	assert.Equal(t, 0, check.RemainingDaily)
	assert.Equal(t, 298, check.RemainingMonthly, "monthly headroom does not rescue an exhausted day")
}

func TestCheckLimitMonthlyExhausted(t *testing.T) {
	ledger, ids, store := newTestLedger(t)
	_, err := ids.Add(context.Background(), "bob", "", 10, 3)
	require.NoError(t, err)

	// Spread three events over earlier days so the daily window is clear
	// but the monthly one is full.
	for day := 2; day <= 4; day++ {
		err := store.Append(context.Background(), &Event{
			Handle:    "bob",
			Address:   "addr",
			Decision:  "Approved",
			Timestamp: time.Now().UTC().Add(-time.Duration(day) * 24 * time.Hour),
		})
		require.NoError(t, err)
	}

	check, err := ledger.CheckLimit(context.Background(), "bob")
	require.NoError(t, err)
	assert.False(t, check.Allowed)
	assert.Equal(t, "Monthly limit reached (3 queries/month)", check.Reason)
	assert.Equal(t, 10, check.RemainingDaily)
	assert.Equal(t, 0, check.RemainingMonthly)
}

func TestCheckLimitDailyReasonWinsWhenBothExhausted(t *testing.T) {
	ledger, ids, _ := newTestLedger(t)
	_, err := ids.Add(context.Background(), "carol", "", 1, 1)
	require.NoError(t, err)

	require.NoError(t, ledger.Record(context.Background(), "carol", "addr", nil, "Rejected"))

	check, err := ledger.CheckLimit(context.Background(), "carol")
	require.NoError(t, err)
	assert.False(t, check.Allowed)
	assert.Equal(t, "Daily limit reached (1 queries/day)", check.Reason)
}

func TestLimitOfOneAllowsExactlyOne(t *testing.T) {
	ctx := context.Background()
	ledger, ids, _ := newTestLedger(t)
	_, err := ids.Add(ctx, "dave", "", 1, 300)
	require.NoError(t, err)

	check, err := ledger.CheckLimit(ctx, "dave")
	require.NoError(t, err)
	require.True(t, check.Allowed)

	require.NoError(t, ledger.Record(ctx, "dave", "addr", nil, "Approved"))

	check, err = ledger.CheckLimit(ctx, "dave")
	require.NoError(t, err)
	assert.False(t, check.Allowed)
	assert.Equal(t, 0, check.RemainingDaily)
}

func TestWindowExcludesOldEvents(t *testing.T) {
	ctx := context.Background()
	ledger, ids, store := newTestLedger(t)
	_, err := ids.Add(ctx, "erin", "", 10, 300)
	require.NoError(t, err)

	for _, age := range []time.Duration{time.Hour, 25 * time.Hour, 31 * 24 * time.Hour} {
		err := store.Append(ctx, &Event{
			Handle:    "erin",
			Address:   "addr",
			Decision:  "Approved",
			Timestamp: time.Now().UTC().Add(-age),
		})
		require.NoError(t, err)
	}

	daily, err := ledger.CountInWindow(ctx, "erin", WindowDay)
	require.NoError(t, err)
	assert.Equal(t, 1, daily)

	monthly, err := ledger.CountInWindow(ctx, "erin", WindowMonth)
	require.NoError(t, err)
	assert.Equal(t, 2, monthly)
}

func TestRecordUnknownHandleFails(t *testing.T) {
	ledger, _, store := newTestLedger(t)

	err := ledger.Record(context.Background(), "ghost", "addr", nil, "Approved")
	require.ErrorIs(t, err, identity.ErrNotFound)

	n, err := store.TotalCount(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestLogErrorDoesNotCountAsUsage(t *testing.T) {
	ctx := context.Background()
	ledger, ids, _ := newTestLedger(t)
	_, err := ids.Add(ctx, "frank", "", 1, 300)
	require.NoError(t, err)

	ledger.LogError(ctx, "frank", ErrorAPITimeout, "request timed out", "addr")

	check, err := ledger.CheckLimit(ctx, "frank")
	require.NoError(t, err)
	assert.True(t, check.Allowed)
	assert.Equal(t, 1, check.RemainingDaily)

	errs, err := ledger.RecentErrors(ctx, 10)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrorAPITimeout, errs[0].Kind)
	assert.Equal(t, "request timed out", errs[0].Message)
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	ledger, ids, _ := newTestLedger(t)
	_, err := ids.Add(ctx, "grace", "Grace", 10, 300)
	require.NoError(t, err)

	score := 7.5
	require.NoError(t, ledger.Record(ctx, "grace", "addr1", &score, "Rejected"))
	require.NoError(t, ledger.Record(ctx, "grace", "addr2", nil, "Approved"))
	require.NoError(t, ledger.Record(ctx, "grace", "addr3", nil, "Approved"))

	stats, err := ledger.Stats(ctx, "grace")
	require.NoError(t, err)
	assert.Equal(t, "grace", stats.Handle)
	assert.Equal(t, 3, stats.DailyUsage)
	assert.Equal(t, 10, stats.DailyLimit)
	assert.Equal(t, 3, stats.MonthlyUsage)
	assert.Equal(t, 300, stats.MonthlyLimit)
	assert.Equal(t, 3, stats.TotalQueries)
	assert.Equal(t, map[string]int{"Approved": 2, "Rejected": 1}, stats.Decisions)
	assert.False(t, stats.Admin)
	assert.True(t, stats.Active)
}

func TestStatsDecisionsCoverMonthlyWindowOnly(t *testing.T) {
	ctx := context.Background()
	ledger, ids, store := newTestLedger(t)
	_, err := ids.Add(ctx, "heidi", "", 10, 300)
	require.NoError(t, err)

	// One decision inside the trailing 30 days, one aged out.
	require.NoError(t, store.Append(ctx, &Event{
		Handle:    "heidi",
		Address:   "addr1",
		Decision:  "Approved",
		Timestamp: time.Now().UTC().Add(-time.Hour),
	}))
	require.NoError(t, store.Append(ctx, &Event{
		Handle:    "heidi",
		Address:   "addr2",
		Decision:  "Rejected",
		Timestamp: time.Now().UTC().Add(-31 * 24 * time.Hour),
	}))

	stats, err := ledger.Stats(ctx, "heidi")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"Approved": 1}, stats.Decisions)

	// Lifetime count still includes the aged-out event.
	assert.Equal(t, 2, stats.TotalQueries)
	assert.Equal(t, 1, stats.MonthlyUsage)
}

func TestRecentErrorsNewestFirst(t *testing.T) {
	ctx := context.Background()
	ledger, _, _ := newTestLedger(t)

	ledger.LogError(ctx, "", ErrorValidation, "first", "")
	ledger.LogError(ctx, "", ErrorUnexpected, "second", "")

	errs, err := ledger.RecentErrors(ctx, 1)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, "second", errs[0].Message)
}
