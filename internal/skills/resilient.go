package skills

import (
	"context"
	"log/slog"
	"sync"
	"time"

	dErrors "attestor/pkg/domain-errors"
	"attestor/pkg/platform/circuit"
)

// ResilientExtractor wraps an Extractor with circuit breaker protection.
// When the analysis service fails repeatedly the circuit opens and calls fail
// fast instead of waiting out a timeout on every issuance; a probe call is let
// through periodically so consecutive successes can close the circuit again.
type ResilientExtractor struct {
	inner         Extractor
	breaker       *circuit.Breaker
	logger        *slog.Logger
	probeInterval time.Duration

	mu        sync.Mutex
	lastProbe time.Time
}

// ResilientExtractorOption configures the resilient extractor.
type ResilientExtractorOption func(*ResilientExtractor)

// WithProbeInterval sets how often a call is let through while the circuit is
// open. Default is 30 seconds.
func WithProbeInterval(d time.Duration) ResilientExtractorOption {
	return func(r *ResilientExtractor) {
		if d > 0 {
			r.probeInterval = d
		}
	}
}

func NewResilientExtractor(inner Extractor, breaker *circuit.Breaker, logger *slog.Logger, opts ...ResilientExtractorOption) *ResilientExtractor {
	if breaker == nil {
		breaker = circuit.New("skills_extractor")
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &ResilientExtractor{
		inner:         inner,
		breaker:       breaker,
		logger:        logger,
		probeInterval: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *ResilientExtractor) Extract(ctx context.Context, claimText string) (Result, error) {
	if r.breaker.IsOpen() && !r.probeDue() {
		return Result{}, dErrors.New(dErrors.CodeExtraction, "claim analysis circuit open")
	}

	result, err := r.inner.Extract(ctx, claimText)
	if err != nil {
		if _, change := r.breaker.RecordFailure(); change.Opened {
			// Start the probe clock so the next call fails fast instead
			// of probing immediately.
			r.stampProbe()
			r.logger.WarnContext(ctx, "claim analysis circuit opened",
				"circuit", r.breaker.Name(),
				"error", err,
			)
		}
		return Result{}, err
	}

	if _, change := r.breaker.RecordSuccess(); change.Closed {
		r.logger.InfoContext(ctx, "claim analysis circuit closed",
			"circuit", r.breaker.Name(),
		)
	}
	return result, nil
}

func (r *ResilientExtractor) probeDue() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if time.Since(r.lastProbe) < r.probeInterval {
		return false
	}
	r.lastProbe = time.Now()
	return true
}

func (r *ResilientExtractor) stampProbe() {
	r.mu.Lock()
	r.lastProbe = time.Now()
	r.mu.Unlock()
}
