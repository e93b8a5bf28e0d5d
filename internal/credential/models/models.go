// Package models defines the credential record and the service-level request
// and result shapes for the credential bounded context.
package models

import (
	"time"

	id "attestor/pkg/domain"
	dErrors "attestor/pkg/domain-errors"
)

// Status is the local lifecycle state of a credential. It mirrors the ledger
// fact and transitions one way only: active -> revoked.
type Status string

const (
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
)

// ParseStatus validates a status string from storage or API input.
func ParseStatus(value string) (Status, error) {
	switch Status(value) {
	case StatusActive, StatusRevoked:
		return Status(value), nil
	default:
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown credential status")
	}
}

// PayloadMode selects how claim payloads are persisted. It is deployment
// policy, not a per-record choice.
type PayloadMode string

const (
	PayloadPlain  PayloadMode = "plain"
	PayloadSealed PayloadMode = "sealed"
)

// ParsePayloadMode validates a payload mode from configuration.
func ParsePayloadMode(value string) (PayloadMode, error) {
	switch PayloadMode(value) {
	case PayloadPlain, PayloadSealed:
		return PayloadMode(value), nil
	default:
		return "", dErrors.New(dErrors.CodeInvalidInput, "payload mode must be plain or sealed")
	}
}

// Record is the locally stored credential. The fingerprint is the
// cross-system join key with the ledger; everything else is local metadata.
//
// Payload holds the canonical claim bytes either in the clear or as a sealed
// envelope, never both. Skills are extracted metadata kept queryable in both
// modes; the visibility gate decides whether they reach a response.
type Record struct {
	ID          id.RecordID
	Fingerprint id.Fingerprint
	IssuerDID   id.DID
	HolderDID   id.DID
	Payload     string
	Sealed      bool
	ClaimText   string
	Skills      []string
	FileURL     string

	// LedgerReceipt is the anchor transaction reference. Nil means the record
	// is pending/unconfirmed and must never be treated as verified. Set once.
	LedgerReceipt *string

	Status Status

	// Visible is the holder-controlled privacy flag.
	Visible bool

	// OffPlatform marks a record reconciled from ledger state without
	// recoverable claim data. Such records are ledger-verifiable but carry
	// no local details.
	OffPlatform bool

	CreatedAt time.Time
}

// Revoked reports whether the record has been revoked locally.
func (r *Record) Revoked() bool {
	return r.Status == StatusRevoked
}

// Anchored reports whether the record carries a ledger receipt.
func (r *Record) Anchored() bool {
	return r.LedgerReceipt != nil && *r.LedgerReceipt != ""
}

// IssueRequest captures a validated issuance command.
type IssueRequest struct {
	IssuerDID id.DID
	HolderDID id.DID
	ClaimText string
	// SkillsOverride bypasses skill extraction when the issuer supplies the
	// skill list explicitly. With an override, extraction failures are always
	// non-fatal regardless of policy.
	SkillsOverride []string
	FileURL        string
}

// IssueResult reports the outcome of issuance.
type IssueResult struct {
	Record *Record
	// Existing is true when an identical canonical payload was already
	// active locally and issuance degenerated to returning that record.
	Existing bool
}

// VerifyRequest identifies the credential to verify: either directly by
// fingerprint, or by resubmitted claim fields from which the fingerprint is
// recomputed. Resubmitted claims also feed reconciliation of
// anchored-but-orphaned records.
type VerifyRequest struct {
	Fingerprint id.Fingerprint

	IssuerDID id.DID
	HolderDID id.DID
	ClaimText string
	Skills    []string
	IssuedAt  time.Time
}

// ByFingerprint reports whether the request carries a precomputed fingerprint.
func (r VerifyRequest) ByFingerprint() bool {
	return !r.Fingerprint.IsNil()
}

// VerificationStatus is the verdict of the verification protocol.
type VerificationStatus string

const (
	// VerificationVerified: on-ledger valid, local record present and visible.
	VerificationVerified VerificationStatus = "verified"
	// VerificationPrivate: on-ledger valid, holder suppressed local details.
	VerificationPrivate VerificationStatus = "verified_private"
	// VerificationOffPlatform: on-ledger valid, no local claim data.
	VerificationOffPlatform VerificationStatus = "verified_off_platform"
	// VerificationRevoked: the ledger reports the fingerprint revoked.
	VerificationRevoked VerificationStatus = "revoked"
	// VerificationInvalid: the fingerprint was never anchored.
	VerificationInvalid VerificationStatus = "invalid"
	// VerificationUnconfirmed: the ledger could not be reached; no claim of
	// validity or invalidity is made.
	VerificationUnconfirmed VerificationStatus = "unconfirmed"
)

// Details is the local claim content released by the visibility gate.
type Details struct {
	ClaimText string   `json:"claim_text"`
	Skills    []string `json:"skills"`
	FileURL   string   `json:"file_url,omitempty"`
	HolderDID string   `json:"holder_did"`
	IssuerDID string   `json:"issuer_did"`
}

// VerificationResponse combines ledger facts with gated local details.
type VerificationResponse struct {
	Status      VerificationStatus `json:"status"`
	Fingerprint string             `json:"fingerprint"`
	// Ledger facts, present whenever the ledger answered.
	LedgerIssuedAt *time.Time `json:"ledger_issued_at,omitempty"`
	LedgerIssuer   string     `json:"ledger_issuer,omitempty"`
	// Details is nil for private, off-platform, revoked, invalid, and
	// unconfirmed responses.
	Details *Details `json:"details,omitempty"`
	Notice  string   `json:"notice,omitempty"`
}
