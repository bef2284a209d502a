package usage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/walletscreen/walletscreen/internal/identity"
)

// LimitsLookup resolves the current limits for a handle. Satisfied by
// identity.Store and identity.Service.
type LimitsLookup interface {
	Get(ctx context.Context, handle string) (*identity.User, error)
}

// LimitCheck is the point-in-time result of a quota check. Remaining counts
// are clamped at zero.
type LimitCheck struct {
	Allowed          bool   `json:"allowed"`
	Reason           string `json:"reason"`
	RemainingDaily   int    `json:"remainingDaily"`
	RemainingMonthly int    `json:"remainingMonthly"`
}

// Stats summarizes an identity's activity across both windows.
type Stats struct {
	Handle       string         `json:"handle"`
	DailyUsage   int            `json:"dailyUsage"`
	DailyLimit   int            `json:"dailyLimit"`
	MonthlyUsage int            `json:"monthlyUsage"`
	MonthlyLimit int            `json:"monthlyLimit"`
	TotalQueries int            `json:"totalQueries"`
	Decisions    map[string]int `json:"decisions"`
	Admin        bool           `json:"admin"`
	Active       bool           `json:"active"`
}

// Ledger enforces per-identity quotas over rolling windows and records
// completed screenings and failures.
//
// CheckLimit and Record are not atomic with respect to each other: two
// concurrent screenings can both pass a check with one slot remaining and
// both record. Limits here are soft quotas, so the occasional overshoot by
// the concurrency degree is acceptable.
type Ledger struct {
	events EventStore
	limits LimitsLookup
	logger *slog.Logger
}

func NewLedger(events EventStore, limits LimitsLookup, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{events: events, limits: limits, logger: logger}
}

// CountInWindow returns how many screenings the handle completed inside the
// rolling window ending now.
func (l *Ledger) CountInWindow(ctx context.Context, handle string, w Window) (int, error) {
	d := w.Duration()
	if d == 0 {
		return 0, fmt.Errorf("unknown window %q", w)
	}
	return l.events.CountSince(ctx, handle, time.Now().UTC().Add(-d))
}

// CheckLimit reports whether the handle may run one more screening. The
// daily window is checked before the monthly one, so when both are
// exhausted the reason names the daily limit. Unknown handles are denied.
func (l *Ledger) CheckLimit(ctx context.Context, handle string) (*LimitCheck, error) {
	user, err := l.limits.Get(ctx, handle)
	if errors.Is(err, identity.ErrNotFound) {
		return &LimitCheck{Allowed: false, Reason: "User not authorized"}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup limits: %w", err)
	}

	daily, err := l.CountInWindow(ctx, handle, WindowDay)
	if err != nil {
		return nil, err
	}
	monthly, err := l.CountInWindow(ctx, handle, WindowMonth)
	if err != nil {
		return nil, err
	}

	check := &LimitCheck{
		RemainingDaily:   max(0, user.DailyLimit-daily),
		RemainingMonthly: max(0, user.MonthlyLimit-monthly),
	}
	if daily >= user.DailyLimit {
		check.Reason = fmt.Sprintf("Daily limit reached (%d queries/day)", user.DailyLimit)
		return check, nil
	}
	if monthly >= user.MonthlyLimit {
		check.Reason = fmt.Sprintf("Monthly limit reached (%d queries/month)", user.MonthlyLimit)
		return check, nil
	}
	check.Allowed = true
	check.Reason = "OK"
	return check, nil
}

// Record appends a usage event for a completed screening. The handle is
// re-resolved so events for identities removed mid-flight are dropped
// rather than orphaned; that case is reported as an error for the caller
// to log, not to fail the screening.
func (l *Ledger) Record(ctx context.Context, handle, address string, riskScore *float64, decision string) error {
	if _, err := l.limits.Get(ctx, handle); err != nil {
		return fmt.Errorf("record usage for %s: %w", handle, err)
	}
	event := &Event{
		Handle:    handle,
		Address:   address,
		RiskScore: riskScore,
		Decision:  decision,
	}
	if err := l.events.Append(ctx, event); err != nil {
		return fmt.Errorf("record usage for %s: %w", handle, err)
	}
	return nil
}

// LogError records a failed screening attempt. Failures never count as
// usage. Append errors are logged and swallowed: error bookkeeping must
// not mask the original failure.
func (l *Ledger) LogError(ctx context.Context, handle string, kind ErrorKind, message, address string) {
	event := &ErrorEvent{
		Handle:  handle,
		Kind:    kind,
		Message: message,
		Address: address,
	}
	if err := l.events.AppendError(ctx, event); err != nil {
		l.logger.Error("failed to record error event",
			"handle", handle,
			"kind", string(kind),
			"error", err)
	}
}

// Stats returns the handle's usage across both windows plus decision
// counts over the trailing monthly window.
func (l *Ledger) Stats(ctx context.Context, handle string) (*Stats, error) {
	user, err := l.limits.Get(ctx, handle)
	if err != nil {
		return nil, fmt.Errorf("lookup identity: %w", err)
	}

	daily, err := l.CountInWindow(ctx, handle, WindowDay)
	if err != nil {
		return nil, err
	}
	monthly, err := l.CountInWindow(ctx, handle, WindowMonth)
	if err != nil {
		return nil, err
	}
	total, err := l.events.TotalCount(ctx, handle)
	if err != nil {
		return nil, err
	}
	decisions, err := l.events.DecisionCountsSince(ctx, handle, time.Now().UTC().Add(-WindowMonth.Duration()))
	if err != nil {
		return nil, err
	}

	return &Stats{
		Handle:       user.Handle,
		DailyUsage:   daily,
		DailyLimit:   user.DailyLimit,
		MonthlyUsage: monthly,
		MonthlyLimit: user.MonthlyLimit,
		TotalQueries: total,
		Decisions:    decisions,
		Admin:        user.Admin,
		Active:       user.Active,
	}, nil
}

// RecentErrors returns the newest error events, most recent first.
func (l *Ledger) RecentErrors(ctx context.Context, limit int) ([]*ErrorEvent, error) {
	return l.events.RecentErrors(ctx, limit)
}
