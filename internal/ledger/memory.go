package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	id "attestor/pkg/domain"
	dErrors "attestor/pkg/domain-errors"
)

// Memory is an in-process ledger for tests and local development. It honors
// the same monotonic state machine as the real ledger and supports injectable
// failure modes so the lifecycle protocol's partial-failure windows can be
// exercised deterministically.
type Memory struct {
	mu      sync.Mutex
	entries map[id.Fingerprint]*memoryEntry
	txSeq   int

	// AnchorErr, when set, fails every Anchor call with this error.
	AnchorErr error
	// AnchorTimeoutButCommit simulates the outcome-unknown window: Anchor
	// returns CodeAnchorTimeout while the transaction still commits.
	AnchorTimeoutButCommit bool
	// ReadErr, when set, fails every ReadStatus call with this error.
	ReadErr error
	// RevokeErr, when set, fails every Revoke call with this error.
	RevokeErr error

	clock func() time.Time
}

type memoryEntry struct {
	revoked   bool
	issuedAt  time.Time
	issuerRef string
}

// Ensure Memory implements Client.
var _ Client = (*Memory)(nil)

// NewMemory constructs an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[id.Fingerprint]*memoryEntry),
		clock:   time.Now,
	}
}

// WithClock overrides the ledger clock for deterministic tests.
func (m *Memory) WithClock(clock func() time.Time) *Memory {
	m.clock = clock
	return m
}

func (m *Memory) Anchor(_ context.Context, fingerprint id.Fingerprint) (Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.AnchorErr != nil {
		return Receipt{}, m.AnchorErr
	}

	if _, exists := m.entries[fingerprint]; exists {
		return Receipt{}, dErrors.New(dErrors.CodeConflict, "fingerprint already anchored")
	}

	m.txSeq++
	m.entries[fingerprint] = &memoryEntry{
		issuedAt:  m.clock().UTC(),
		issuerRef: "memory-issuer",
	}

	if m.AnchorTimeoutButCommit {
		return Receipt{}, dErrors.New(dErrors.CodeAnchorTimeout, "confirmation window elapsed; transaction outcome unknown")
	}
	return Receipt{TxRef: fmt.Sprintf("0xmem%06d", m.txSeq)}, nil
}

func (m *Memory) ReadStatus(_ context.Context, fingerprint id.Fingerprint) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ReadErr != nil {
		return Status{}, m.ReadErr
	}

	entry, exists := m.entries[fingerprint]
	if !exists {
		return Status{Exists: false}, nil
	}
	return Status{
		Exists:    true,
		Revoked:   entry.revoked,
		IssuedAt:  entry.issuedAt,
		IssuerRef: entry.issuerRef,
	}, nil
}

func (m *Memory) Revoke(_ context.Context, fingerprint id.Fingerprint, _ string) (Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.RevokeErr != nil {
		return Receipt{}, m.RevokeErr
	}

	entry, exists := m.entries[fingerprint]
	if !exists {
		return Receipt{}, dErrors.New(dErrors.CodeNotFound, "fingerprint not anchored")
	}
	if entry.revoked {
		return Receipt{}, dErrors.New(dErrors.CodeAlreadyRevoked, "fingerprint already revoked on ledger")
	}

	entry.revoked = true
	m.txSeq++
	return Receipt{TxRef: fmt.Sprintf("0xmem%06d", m.txSeq)}, nil
}

// Anchored reports whether a fingerprint is present, for test assertions.
func (m *Memory) Anchored(fingerprint id.Fingerprint) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, exists := m.entries[fingerprint]
	return exists
}
