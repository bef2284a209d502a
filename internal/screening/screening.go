// Package screening orchestrates a wallet screening end to end:
// authorization, address validation, quota check, upstream analysis,
// compliance evaluation, and usage bookkeeping.
package screening

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/walletscreen/walletscreen/internal/access"
	"github.com/walletscreen/walletscreen/internal/compliance"
	"github.com/walletscreen/walletscreen/internal/elliptic"
	"github.com/walletscreen/walletscreen/internal/metrics"
	"github.com/walletscreen/walletscreen/internal/realtime"
	"github.com/walletscreen/walletscreen/internal/traces"
	"github.com/walletscreen/walletscreen/internal/usage"
	"github.com/walletscreen/walletscreen/internal/validation"
)

// Analyzer fetches a wallet exposure analysis. Implemented by
// elliptic.Client.
type Analyzer interface {
	AnalyzeWallet(ctx context.Context, address string) (*elliptic.Analysis, error)
}

// DeniedError reports a request stopped by the access gate before any
// upstream call was made.
type DeniedError struct {
	Reason string
	Check  *usage.LimitCheck
}

func (e *DeniedError) Error() string { return e.Reason }

// ValidationError reports a rejected wallet address.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Result is a completed screening.
type Result struct {
	Handle           string                    `json:"handle"`
	Address          string                    `json:"address"`
	Verdict          *compliance.Verdict       `json:"verdict"`
	Financial        elliptic.FinancialSummary `json:"financial"`
	RemainingDaily   int                       `json:"remainingDaily"`
	RemainingMonthly int                       `json:"remainingMonthly"`
}

// Service runs screenings.
type Service struct {
	gate      *access.Controller
	analyzer  Analyzer
	evaluator *compliance.Evaluator
	ledger    *usage.Ledger
	hub       *realtime.Hub // optional
	logger    *slog.Logger
}

func NewService(gate *access.Controller, analyzer Analyzer, evaluator *compliance.Evaluator,
	ledger *usage.Ledger, hub *realtime.Hub, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		gate:      gate,
		analyzer:  analyzer,
		evaluator: evaluator,
		ledger:    ledger,
		hub:       hub,
		logger:    logger,
	}
}

// Screen runs one wallet screening for the handle. Denials and validation
// failures never consume quota. A completed evaluation always records
// usage, approvals and rejections alike.
func (s *Service) Screen(ctx context.Context, handle, address string) (*Result, error) {
	ctx, span := traces.StartSpan(ctx, "screening.Screen",
		traces.Handle(handle),
		traces.WalletAddress(address))
	defer span.End()

	timer := prometheus.NewTimer(metrics.ScreeningDuration)
	defer timer.ObserveDuration()

	auth, err := s.gate.Authorize(ctx, handle)
	if err != nil {
		return nil, err
	}
	if !auth.Authorized() {
		reason := auth.DenyReason()
		metrics.LimitDenialsTotal.WithLabelValues("unauthorized").Inc()
		s.logger.Info("screening denied", "handle", handle, "reason", reason)
		return nil, &DeniedError{Reason: reason}
	}

	// Validation runs between authorization and the quota check: a bad
	// address never spends a quota lookup, and an exhausted user still
	// learns their address is malformed.
	if ok, msg := validation.ValidateWalletAddress(address); !ok {
		s.ledger.LogError(ctx, handle, usage.ErrorValidation, msg, address)
		return nil, &ValidationError{Message: msg}
	}

	check, err := s.gate.CheckQuota(ctx, handle)
	if err != nil {
		return nil, err
	}
	if !check.Allowed {
		metrics.LimitDenialsTotal.WithLabelValues(limitBucket(check)).Inc()
		s.logger.Info("screening denied", "handle", handle, "reason", check.Reason)
		return nil, &DeniedError{Reason: check.Reason, Check: check}
	}

	analysis, err := s.analyzer.AnalyzeWallet(ctx, address)
	if err != nil {
		kind := errorKind(err)
		metrics.UpstreamErrorsTotal.WithLabelValues(string(kind)).Inc()
		s.ledger.LogError(ctx, handle, kind, err.Error(), address)
		span.SetAttributes(traces.ErrorKind(string(kind)))
		s.logger.Error("wallet analysis failed",
			"handle", handle,
			"kind", string(kind),
			"error", err)
		return nil, fmt.Errorf("analyze wallet: %w", err)
	}

	verdict := s.evaluator.Evaluate(analysis.Assessment)
	span.SetAttributes(
		traces.Decision(string(verdict.Decision)),
		traces.Rule(string(verdict.Reason.Code)))

	metrics.ScreeningsTotal.WithLabelValues(string(verdict.Decision)).Inc()
	if !verdict.Approved() {
		metrics.RejectionsTotal.WithLabelValues(string(verdict.Reason.Code)).Inc()
	}

	// Usage is charged for every completed evaluation. A record failure
	// must not undo the decision the caller already has.
	if err := s.ledger.Record(ctx, handle, address, verdict.RiskScore, string(verdict.Decision)); err != nil {
		s.logger.Error("failed to record usage", "handle", handle, "error", err)
	}

	if s.hub != nil {
		s.hub.BroadcastScreening(&realtime.ScreeningEvent{
			Handle:    handle,
			Address:   address,
			Decision:  string(verdict.Decision),
			Reason:    verdict.Reason.Message,
			RiskScore: verdict.RiskScore,
		})
	}

	s.logger.Info("screening completed",
		"handle", handle,
		"decision", string(verdict.Decision),
		"reason", verdict.Reason.Message)

	return &Result{
		Handle:           handle,
		Address:          address,
		Verdict:          verdict,
		Financial:        analysis.Financial,
		RemainingDaily:   decrement(check.RemainingDaily),
		RemainingMonthly: decrement(check.RemainingMonthly),
	}, nil
}

func decrement(n int) int {
	if n <= 0 {
		return 0
	}
	return n - 1
}

// limitBucket maps a quota denial onto a low-cardinality metric label.
func limitBucket(check *usage.LimitCheck) string {
	if check.RemainingDaily == 0 {
		return "daily_limit"
	}
	return "monthly_limit"
}

// errorKind maps an analysis failure onto the error event taxonomy.
func errorKind(err error) usage.ErrorKind {
	var apiErr *elliptic.APIError
	if !errors.As(err, &apiErr) {
		if errors.Is(err, context.DeadlineExceeded) {
			return usage.ErrorAPITimeout
		}
		return usage.ErrorUnexpected
	}
	switch apiErr.Kind {
	case elliptic.KindAuth:
		return usage.ErrorAPIAuth
	case elliptic.KindRateLimit:
		return usage.ErrorAPIRateLimit
	case elliptic.KindServer:
		return usage.ErrorAPIServer
	case elliptic.KindTimeout:
		return usage.ErrorAPITimeout
	case elliptic.KindConnection:
		return usage.ErrorAPIConnection
	case elliptic.KindMalformed:
		return usage.ErrorAPIMalformed
	}
	return usage.ErrorUnexpected
}
