// Package visibility decides what local claim content leaves the service.
// Ledger facts are public; everything stored locally is released only when
// the holder's privacy flag and the record state allow it.
package visibility

import (
	"attestor/internal/credential/canonical"
	"attestor/internal/credential/models"
	dErrors "attestor/pkg/domain-errors"
	"attestor/pkg/envelope"
)

// Opener decrypts a sealed payload envelope.
type Opener interface {
	Open(sealed string) ([]byte, error)
}

var _ Opener = (*envelope.Codec)(nil)

// Gate assembles releasable detail views from stored records. A nil opener is
// valid when the deployment stores payloads in the clear; encountering a
// sealed record then is an integrity fault, not a fallback to raw bytes.
type Gate struct {
	opener Opener
}

func NewGate(opener Opener) *Gate {
	return &Gate{opener: opener}
}

// Releasable reports whether the record's local details may be shown to a
// third-party verifier. The holder always sees their own records regardless.
func Releasable(record models.Record) bool {
	return record.Visible && !record.OffPlatform
}

// Details builds the detail view for a record, unsealing the payload when the
// record is sealed. It does not check Releasable; callers gate first so owner
// reads can bypass the privacy flag.
func (g *Gate) Details(record models.Record) (*models.Details, error) {
	if record.OffPlatform {
		return nil, nil
	}

	claimText := record.ClaimText
	skills := record.Skills
	if record.Sealed {
		if g.opener == nil {
			return nil, dErrors.New(dErrors.CodeIntegrity, "sealed record but no payload codec configured")
		}
		plain, err := g.opener.Open(record.Payload)
		if err != nil {
			return nil, err
		}
		claim, err := canonical.Parse(plain)
		if err != nil {
			return nil, err
		}
		claimText = claim.ClaimText
		skills = claim.Skills
	}

	if skills == nil {
		skills = []string{}
	}
	return &models.Details{
		ClaimText: claimText,
		Skills:    skills,
		FileURL:   record.FileURL,
		HolderDID: record.HolderDID.String(),
		IssuerDID: record.IssuerDID.String(),
	}, nil
}

// Portfolio filters a holder's records down to what a third party may list:
// active, holder-visible, on-platform records only.
func Portfolio(records []models.Record) []models.Record {
	out := make([]models.Record, 0, len(records))
	for _, r := range records {
		if r.Status == models.StatusActive && Releasable(r) {
			out = append(out, r)
		}
	}
	return out
}
