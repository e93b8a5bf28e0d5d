package skills

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "attestor/pkg/domain-errors"
	"attestor/pkg/platform/circuit"
)

// countingExtractor records calls and returns a scripted error.
type countingExtractor struct {
	calls int
	err   error
}

func (c *countingExtractor) Extract(ctx context.Context, claimText string) (Result, error) {
	c.calls++
	if c.err != nil {
		return Result{}, c.err
	}
	return Result{Valid: true, Skills: []string{"go"}}, nil
}

func TestResilientExtractorPassesThroughWhenClosed(t *testing.T) {
	inner := &countingExtractor{}
	ext := NewResilientExtractor(inner, circuit.New("test"), slog.New(slog.DiscardHandler))

	result, err := ext.Extract(context.Background(), "built the deployment pipeline in Go")
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, 1, inner.calls)
}

func TestResilientExtractorFailsFastWhenOpen(t *testing.T) {
	inner := &countingExtractor{err: errors.New("connection refused")}
	breaker := circuit.New("test", circuit.WithFailureThreshold(2))
	ext := NewResilientExtractor(inner, breaker, slog.New(slog.DiscardHandler),
		WithProbeInterval(time.Hour))

	ctx := context.Background()

	// Trip the circuit.
	_, err := ext.Extract(ctx, "claim")
	require.Error(t, err)
	_, err = ext.Extract(ctx, "claim")
	require.Error(t, err)
	require.True(t, breaker.IsOpen())

	callsBefore := inner.calls

	// Open circuit: calls fail fast without reaching the service.
	_, err = ext.Extract(ctx, "claim")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeExtraction))
	assert.Equal(t, callsBefore, inner.calls)
}

func TestResilientExtractorProbesAndRecovers(t *testing.T) {
	inner := &countingExtractor{err: errors.New("connection refused")}
	breaker := circuit.New("test",
		circuit.WithFailureThreshold(1),
		circuit.WithSuccessThreshold(1))
	ext := NewResilientExtractor(inner, breaker, slog.New(slog.DiscardHandler),
		WithProbeInterval(time.Nanosecond))

	ctx := context.Background()

	_, err := ext.Extract(ctx, "claim")
	require.Error(t, err)
	require.True(t, breaker.IsOpen())

	// Service comes back; the probe succeeds and closes the circuit.
	inner.err = nil
	time.Sleep(time.Millisecond)

	result, err := ext.Extract(ctx, "claim")
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.False(t, breaker.IsOpen())
}
