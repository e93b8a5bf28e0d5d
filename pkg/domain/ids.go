// Package domain provides type-safe identifiers to prevent mixing up IDs at compile time.
package domain

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/google/uuid"

	dErrors "attestor/pkg/domain-errors"
)

// RecordID identifies a local credential record. It is local-only: the
// cross-system join key between ledger and store is the Fingerprint.
type RecordID uuid.UUID

// NewRecordID generates a fresh record identifier.
func NewRecordID() RecordID {
	return RecordID(uuid.New())
}

// ParseRecordID validates a record ID string. Use at trust boundaries.
func ParseRecordID(s string) (RecordID, error) {
	if s == "" {
		return RecordID{}, dErrors.New(dErrors.CodeInvalidInput, "record ID cannot be empty")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return RecordID{}, dErrors.New(dErrors.CodeInvalidInput, "invalid record ID format")
	}
	return RecordID(id), nil
}

func (id RecordID) String() string { return uuid.UUID(id).String() }
func (id RecordID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// DID is an opaque decentralized identifier for issuers and holders.
// The service treats DIDs as opaque account references; only shape is checked.
type DID string

const maxDIDLength = 256

var validDID = regexp.MustCompile(`^[a-zA-Z0-9:._-]+$`)

// ParseDID validates a DID string at trust boundaries. Surrounding spaces
// are tolerated; control characters anywhere are not.
func ParseDID(s string) (DID, error) {
	if strings.ContainsFunc(s, unicode.IsControl) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid DID format")
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "DID cannot be empty")
	}
	if len(s) > maxDIDLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "DID is too long")
	}
	if !validDID.MatchString(s) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid DID format")
	}
	return DID(s), nil
}

func (d DID) String() string { return string(d) }
func (d DID) IsNil() bool    { return d == "" }

// Fingerprint is the hex-encoded digest of a credential's canonical payload.
// It is the credential's on-ledger identity and the store's uniqueness key.
type Fingerprint string

var validFingerprint = regexp.MustCompile(`^[0-9a-f]{64}$`)

// ParseFingerprint validates a fingerprint string (lowercase hex SHA-256).
func ParseFingerprint(s string) (Fingerprint, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "fingerprint cannot be empty")
	}
	if !validFingerprint.MatchString(s) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "fingerprint must be 64 lowercase hex characters")
	}
	return Fingerprint(s), nil
}

func (f Fingerprint) String() string { return string(f) }
func (f Fingerprint) IsNil() bool    { return f == "" }
