package skills

import (
	"context"
	"strings"
	"time"
)

// MockExtractor is a deterministic extractor for tests and local development.
// It splits the text on whitespace and reports words longer than three
// characters as skills, with a configurable latency to mimic a real call.
type MockExtractor struct {
	Latency time.Duration
	Err     error
}

func (m MockExtractor) Extract(_ context.Context, text string) (Result, error) {
	time.Sleep(m.Latency)
	if m.Err != nil {
		return Result{}, m.Err
	}

	var found []string
	for _, word := range strings.Fields(text) {
		if len(word) > 3 {
			found = append(found, word)
		}
	}
	return Result{
		Valid:  len(found) > 0,
		Skills: found,
	}, nil
}
