// Package ledger is the only component that talks to the external anchoring
// ledger. The ledger is consumed as a black box through a gateway that fronts
// the smart contract; this package owns transaction submission, confirmation
// waiting, and the translation of gateway failures into domain errors.
//
// The per-fingerprint state machine lives on the ledger and is monotonic:
// unanchored -> anchored -> revoked. Nothing in this package fabricates a
// transition locally; it only reflects what the ledger confirms.
package ledger

import (
	"context"
	"time"

	id "attestor/pkg/domain"
)

// Status is the fee-free read of a fingerprint's on-ledger state.
// Exists=false for never-anchored fingerprints is a fact, not an error.
type Status struct {
	Exists    bool
	Revoked   bool
	IssuedAt  time.Time
	IssuerRef string
}

// Receipt references a confirmed write transaction.
type Receipt struct {
	TxRef string
}

// Client is the ledger port consumed by the credential lifecycle manager.
//
// Anchor and Revoke block until the ledger confirms the transaction, bounded
// by the context deadline. A confirmation timeout after submission surfaces
// as CodeAnchorTimeout, meaning outcome unknown: callers must consult
// ReadStatus before retrying instead of blindly resubmitting.
type Client interface {
	Anchor(ctx context.Context, fingerprint id.Fingerprint) (Receipt, error)
	ReadStatus(ctx context.Context, fingerprint id.Fingerprint) (Status, error)
	Revoke(ctx context.Context, fingerprint id.Fingerprint, issuerRef string) (Receipt, error)
}
