// Package skills extracts structured skill tags from free-form claim text by
// calling an external extraction service. Extraction is advisory: issuance
// policy decides whether an empty result blocks an issue or degrades to a
// tagless credential.
package skills

import (
	"context"
)

// Extractor turns claim text into a normalized skill list.
type Extractor interface {
	Extract(ctx context.Context, text string) (Result, error)
}

// Result is the extraction verdict for one claim text.
type Result struct {
	// Valid reports whether the service recognized the text as a
	// credential-shaped claim at all.
	Valid bool
	// Skills are the extracted tags, as returned by the service. Callers
	// normalize them before fingerprinting.
	Skills []string
	// Suggestions are near-miss tags the service offers when Valid is false
	// or the skill list is thin. Informational only.
	Suggestions []string
}
