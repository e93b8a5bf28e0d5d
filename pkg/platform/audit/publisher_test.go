package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attestor/pkg/requestcontext"
)

func TestEmitSync(t *testing.T) {
	sink := NewMemorySink()
	p := NewPublisher(sink)

	ctx := requestcontext.WithRequestID(context.Background(), "req-123")
	err := p.Emit(ctx, Event{
		Actor:       "did:attestor:issuer-1",
		Fingerprint: "abc123",
		Action:      ActionCredentialIssued,
		Outcome:     "issued",
	})
	require.NoError(t, err)

	events := sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, ActionCredentialIssued, events[0].Action)
	assert.Equal(t, "req-123", events[0].RequestID, "request id enriched from context")
	assert.False(t, events[0].Timestamp.IsZero(), "timestamp stamped on emit")
}

func TestEmitAsyncDrainsOnClose(t *testing.T) {
	sink := NewMemorySink()
	p := NewPublisher(sink, WithAsyncBuffer(16))

	for i := 0; i < 5; i++ {
		require.NoError(t, p.Emit(context.Background(), Event{
			Actor:  "did:attestor:issuer-1",
			Action: ActionCredentialVerified,
		}))
	}
	p.Close()

	assert.Len(t, sink.Events(), 5)
}

func TestEmitAsyncFullBufferDrops(t *testing.T) {
	// A sink that blocks forever keeps the buffer full.
	blocked := make(chan struct{})
	sink := sinkFunc(func(context.Context, Event) error {
		<-blocked
		return nil
	})

	p := NewPublisher(sink, WithAsyncBuffer(1))
	defer close(blocked)

	// First event occupies the worker, second fills the buffer; eventually
	// emits start failing instead of blocking the caller.
	deadline := time.After(2 * time.Second)
	for {
		err := p.Emit(context.Background(), Event{Action: ActionCredentialIssued})
		if err != nil {
			assert.Contains(t, err.Error(), "audit buffer full")
			return
		}
		select {
		case <-deadline:
			t.Fatal("emit never reported a full buffer")
		default:
		}
	}
}

func TestEmitSyncPropagatesSinkError(t *testing.T) {
	sink := NewMemorySink()
	sink.Err = errors.New("broker down")
	p := NewPublisher(sink)

	err := p.Emit(context.Background(), Event{Action: ActionCredentialRevoked})
	assert.ErrorContains(t, err, "broker down")
}

type sinkFunc func(context.Context, Event) error

func (f sinkFunc) Append(ctx context.Context, event Event) error { return f(ctx, event) }
