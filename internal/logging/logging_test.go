package logging

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_Levels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "bogus"} {
		logger := New(level, "text")
		assert.NotNil(t, logger, "level %s", level)
	}
}

func TestNew_JSONFormat(t *testing.T) {
	logger := New("info", "json")
	assert.NotNil(t, logger)
}

func TestRequestID_RoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RequestID(ctx))

	ctx = WithRequestID(ctx, "req-42")
	assert.Equal(t, "req-42", RequestID(ctx))
}

func TestFromContext_Fallback(t *testing.T) {
	// No logger in context: default is returned, never nil.
	assert.NotNil(t, FromContext(context.Background()))

	logger := New("info", "text")
	ctx := WithLogger(context.Background(), logger)
	assert.Same(t, logger, FromContext(ctx))
}

func TestL_AttachesRequestID(t *testing.T) {
	logger := New("info", "text")
	ctx := WithLogger(context.Background(), logger)
	ctx = WithRequestID(ctx, "req-7")

	// L should return a derived logger, not the original.
	derived := L(ctx)
	assert.NotSame(t, logger, derived)
}

func TestComponent_NilLogger(t *testing.T) {
	var logger *slog.Logger
	assert.NotNil(t, Component(logger, "screening"))
}
