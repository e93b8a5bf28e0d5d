package store

import (
	"context"
	"sort"
	"sync"

	"attestor/internal/credential/models"
	id "attestor/pkg/domain"
)

// InMemoryStore is an in-memory implementation of Store for tests or local use.
// It is safe for concurrent access but does not persist across process restarts.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[id.Fingerprint]models.Record
}

// NewInMemoryStore constructs an empty in-memory credential store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[id.Fingerprint]models.Record)}
}

// Insert adds a record, rejecting duplicate fingerprints.
func (s *InMemoryStore) Insert(_ context.Context, record models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[record.Fingerprint]; exists {
		return ErrDuplicateFingerprint
	}
	s.records[record.Fingerprint] = record
	return nil
}

// FindByFingerprint retrieves a record or returns ErrNotFound.
func (s *InMemoryStore) FindByFingerprint(_ context.Context, fingerprint id.Fingerprint) (models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if record, ok := s.records[fingerprint]; ok {
		return record, nil
	}
	return models.Record{}, ErrNotFound
}

// ListByIssuer returns the issuer's records, newest first.
func (s *InMemoryStore) ListByIssuer(_ context.Context, issuer id.DID) ([]models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(func(r models.Record) bool { return r.IssuerDID == issuer }), nil
}

// ListByHolder returns the holder's records, newest first.
func (s *InMemoryStore) ListByHolder(_ context.Context, holder id.DID) ([]models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(func(r models.Record) bool { return r.HolderDID == holder }), nil
}

func (s *InMemoryStore) collect(match func(models.Record) bool) []models.Record {
	var out []models.Record
	for _, record := range s.records {
		if match(record) {
			out = append(out, record)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// MarkRevoked flips the status to revoked, leaving revoked records as-is.
func (s *InMemoryStore) MarkRevoked(_ context.Context, fingerprint id.Fingerprint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[fingerprint]
	if !ok {
		return ErrNotFound
	}
	record.Status = models.StatusRevoked
	s.records[fingerprint] = record
	return nil
}

// SetVisibility updates the holder privacy flag.
func (s *InMemoryStore) SetVisibility(_ context.Context, fingerprint id.Fingerprint, visible bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[fingerprint]
	if !ok {
		return ErrNotFound
	}
	record.Visible = visible
	s.records[fingerprint] = record
	return nil
}
