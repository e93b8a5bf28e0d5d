// Package audit captures lifecycle events for the credential trail. Events
// are transport-agnostic; sinks decide whether they land in Kafka, memory, or
// nowhere.
package audit

import (
	"context"
	"time"
)

// Event is emitted from domain logic to capture key actions.
type Event struct {
	Timestamp   time.Time `json:"timestamp"`
	Actor       string    `json:"actor"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	Action      string    `json:"action"`
	Outcome     string    `json:"outcome"`
	Reason      string    `json:"reason,omitempty"`
	RequestID   string    `json:"request_id,omitempty"`
}

const (
	ActionCredentialIssued   = "credential_issued"
	ActionCredentialRevoked  = "credential_revoked"
	ActionCredentialVerified = "credential_verified"
	ActionVisibilityChanged  = "visibility_changed"
	ActionRecordReconciled   = "record_reconciled"
)

// Sink persists audit events. Implementations must be safe for concurrent use.
type Sink interface {
	Append(ctx context.Context, event Event) error
}

// Emitter is the interface domain services depend on.
// Satisfied by Publisher.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}
