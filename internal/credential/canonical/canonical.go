// Package canonical turns a credential claim into deterministic bytes and a
// collision-resistant fingerprint.
//
// The fingerprinted field set is fixed: issuer DID, holder DID, claim text,
// skills, and the issuance timestamp. The stored file URL, visibility flag,
// local record ID, ledger receipt, and status are deliberately excluded — a
// credential's on-ledger identity never changes when its local metadata does.
// Two issuances of the same logical claim must yield byte-identical output
// regardless of field ordering or skill ordering in the input.
package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	id "attestor/pkg/domain"
	dErrors "attestor/pkg/domain-errors"
)

// Claim enumerates the fields that participate in the fingerprint.
type Claim struct {
	IssuerDID id.DID
	HolderDID id.DID
	ClaimText string
	Skills    []string
	IssuedAt  time.Time
}

// payload is the serialization shape. Field order is fixed by the struct
// declaration; encoding/json preserves it, which keeps output deterministic.
type payload struct {
	IssuerDID string   `json:"issuer_did"`
	HolderDID string   `json:"holder_did"`
	ClaimText string   `json:"claim_text"`
	Skills    []string `json:"skills"`
	IssuedAt  string   `json:"issued_at"`
}

// Canonicalize produces the deterministic byte form of a claim.
// Skills are trimmed, lowercase-deduplicated, and sorted; the timestamp is
// rendered in RFC 3339 UTC at second precision so serialization quirks in
// callers cannot diverge fingerprints.
func Canonicalize(c Claim) ([]byte, error) {
	if c.IssuerDID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "issuer DID is required")
	}
	if c.HolderDID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "holder DID is required")
	}
	if strings.TrimSpace(c.ClaimText) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "claim text is required")
	}
	if c.IssuedAt.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "issuance time is required")
	}

	p := payload{
		IssuerDID: c.IssuerDID.String(),
		HolderDID: c.HolderDID.String(),
		ClaimText: strings.TrimSpace(c.ClaimText),
		Skills:    NormalizeSkills(c.Skills),
		IssuedAt:  c.IssuedAt.UTC().Truncate(time.Second).Format(time.RFC3339),
	}

	out, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("canonicalize claim: %w", err)
	}
	return out, nil
}

// NormalizeSkills returns the canonical skill list: trimmed, lowercased,
// empty entries dropped, duplicates removed, sorted. Lowercasing happens
// before dedup so input ordering cannot pick a surviving casing and diverge
// fingerprints. Always non-nil so "no skills" serializes as [] from every
// caller.
func NormalizeSkills(skills []string) []string {
	out := make([]string, 0, len(skills))
	seen := make(map[string]struct{}, len(skills))
	for _, s := range skills {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}

// Fingerprint computes the SHA-256 digest of canonical bytes, hex encoded.
// The digest is the credential's public identity on the ledger and the local
// store's uniqueness constraint.
func Fingerprint(canonicalBytes []byte) id.Fingerprint {
	sum := sha256.Sum256(canonicalBytes)
	return id.Fingerprint(hex.EncodeToString(sum[:]))
}

// Parse recovers a claim from canonical bytes, for example after unsealing a
// stored payload. It is the inverse of Canonicalize for well-formed input.
func Parse(data []byte) (Claim, error) {
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Claim{}, dErrors.Wrap(err, dErrors.CodeIntegrity, "malformed canonical payload")
	}

	issuer, err := id.ParseDID(p.IssuerDID)
	if err != nil {
		return Claim{}, dErrors.Wrap(err, dErrors.CodeIntegrity, "malformed issuer DID in payload")
	}
	holder, err := id.ParseDID(p.HolderDID)
	if err != nil {
		return Claim{}, dErrors.Wrap(err, dErrors.CodeIntegrity, "malformed holder DID in payload")
	}
	issuedAt, err := time.Parse(time.RFC3339, p.IssuedAt)
	if err != nil {
		return Claim{}, dErrors.Wrap(err, dErrors.CodeIntegrity, "malformed issuance time in payload")
	}

	return Claim{
		IssuerDID: issuer,
		HolderDID: holder,
		ClaimText: p.ClaimText,
		Skills:    p.Skills,
		IssuedAt:  issuedAt,
	}, nil
}

// FingerprintClaim canonicalizes and fingerprints in one step.
func FingerprintClaim(c Claim) (id.Fingerprint, []byte, error) {
	canonicalBytes, err := Canonicalize(c)
	if err != nil {
		return "", nil, err
	}
	return Fingerprint(canonicalBytes), canonicalBytes, nil
}
