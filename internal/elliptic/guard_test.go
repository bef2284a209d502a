package elliptic

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walletscreen/walletscreen/internal/circuitbreaker"
	"github.com/walletscreen/walletscreen/internal/compliance"
)

type fakeAnalyzer struct {
	calls int
	err   error
}

func (f *fakeAnalyzer) AnalyzeWallet(ctx context.Context, address string) (*Analysis, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	score := 1.5
	return &Analysis{Assessment: &compliance.Assessment{RiskScore: &score}}, nil
}

func TestGuardPassesThrough(t *testing.T) {
	inner := &fakeAnalyzer{}
	guard := NewGuard(inner, circuitbreaker.New(2, time.Minute))

	analysis, err := guard.AnalyzeWallet(context.Background(), "0xabc")
	require.NoError(t, err)
	require.NotNil(t, analysis.Assessment)
	assert.Equal(t, 1, inner.calls)
}

func TestGuardOpensOnTransientFailures(t *testing.T) {
	inner := &fakeAnalyzer{err: &APIError{Kind: KindServer, Status: 502, Message: "upstream down"}}
	guard := NewGuard(inner, circuitbreaker.New(2, time.Minute))

	for i := 0; i < 2; i++ {
		_, err := guard.AnalyzeWallet(context.Background(), "0xabc")
		require.Error(t, err)
	}
	assert.Equal(t, 2, inner.calls)

	// Circuit is now open: the inner client is not invoked.
	_, err := guard.AnalyzeWallet(context.Background(), "0xabc")
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, KindConnection, apiErr.Kind)
	assert.Equal(t, 2, inner.calls)
}

func TestGuardIgnoresPermanentFailures(t *testing.T) {
	inner := &fakeAnalyzer{err: &APIError{Kind: KindAuth, Status: 401, Message: "Invalid API credentials"}}
	guard := NewGuard(inner, circuitbreaker.New(1, time.Minute))

	for i := 0; i < 3; i++ {
		_, err := guard.AnalyzeWallet(context.Background(), "0xabc")
		require.Error(t, err)
	}

	// Auth failures never trip the circuit.
	assert.Equal(t, 3, inner.calls)
}

func TestGuardRecoversAfterProbe(t *testing.T) {
	inner := &fakeAnalyzer{err: &APIError{Kind: KindConnection, Message: "Failed to connect to Elliptic API."}}
	guard := NewGuard(inner, circuitbreaker.New(1, 10*time.Millisecond))

	_, err := guard.AnalyzeWallet(context.Background(), "0xabc")
	require.Error(t, err)

	time.Sleep(20 * time.Millisecond)
	inner.err = nil

	analysis, err := guard.AnalyzeWallet(context.Background(), "0xabc")
	require.NoError(t, err)
	require.NotNil(t, analysis.Assessment)

	// Closed again after the successful probe.
	_, err = guard.AnalyzeWallet(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.Equal(t, 3, inner.calls)
}
