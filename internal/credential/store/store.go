// Package store persists credential records. The store is a local cache of
// ledger truth: nothing here is authoritative for verification, but the
// fingerprint column is the join key to the ledger and must stay unique.
package store

import (
	"context"

	"attestor/internal/credential/models"
	id "attestor/pkg/domain"
	dErrors "attestor/pkg/domain-errors"
)

var (
	// ErrNotFound keeps storage-specific 404s consistent across implementations.
	ErrNotFound = dErrors.New(dErrors.CodeNotFound, "credential record not found")

	// ErrDuplicateFingerprint signals that another record already holds the
	// fingerprint. Insert must be atomic so concurrent issuance of the same
	// canonical claim resolves to exactly one record.
	ErrDuplicateFingerprint = dErrors.New(dErrors.CodeConflict, "fingerprint already recorded")
)

type Store interface {
	// Insert adds a new record, failing with ErrDuplicateFingerprint if the
	// fingerprint is already present.
	Insert(ctx context.Context, record models.Record) error

	FindByFingerprint(ctx context.Context, fingerprint id.Fingerprint) (models.Record, error)

	// ListByIssuer returns every record the issuer created, newest first.
	ListByIssuer(ctx context.Context, issuer id.DID) ([]models.Record, error)

	// ListByHolder returns every record held by the DID, newest first. The
	// caller applies visibility filtering; the store does not decide privacy.
	ListByHolder(ctx context.Context, holder id.DID) ([]models.Record, error)

	// MarkRevoked flips the record's status to revoked. It is idempotent at
	// the storage level; already-revoked records are left as-is.
	MarkRevoked(ctx context.Context, fingerprint id.Fingerprint) error

	// SetVisibility updates the holder's privacy flag.
	SetVisibility(ctx context.Context, fingerprint id.Fingerprint, visible bool) error
}
