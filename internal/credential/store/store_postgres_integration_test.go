//go:build integration

package store_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"attestor/internal/credential/models"
	"attestor/internal/credential/store"
	id "attestor/pkg/domain"
	"attestor/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
	issuer   id.DID
	holder   id.DID
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)

	var err error
	s.issuer, err = id.ParseDID("did:attestor:issuer-1")
	s.Require().NoError(err)
	s.holder, err = id.ParseDID("did:attestor:holder-1")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "credentials"))
}

func (s *PostgresStoreSuite) newRecord(fingerprint id.Fingerprint) models.Record {
	receipt := "0x" + fingerprint.String()[:16]
	return models.Record{
		ID:            id.NewRecordID(),
		Fingerprint:   fingerprint,
		IssuerDID:     s.issuer,
		HolderDID:     s.holder,
		Payload:       `{"claim_text":"Completed distributed systems course"}`,
		ClaimText:     "Completed distributed systems course",
		Skills:        []string{"distributed-systems", "go"},
		LedgerReceipt: &receipt,
		Status:        models.StatusActive,
		Visible:       true,
		CreatedAt:     time.Now().UTC().Truncate(time.Microsecond),
	}
}

func fingerprintOf(n byte) id.Fingerprint {
	out := make([]byte, 64)
	for i := range out {
		out[i] = 'a' + n%6
	}
	fp, _ := id.ParseFingerprint(string(out))
	return fp
}

func (s *PostgresStoreSuite) TestInsertRoundTrip() {
	ctx := context.Background()
	record := s.newRecord(fingerprintOf(0))

	s.Require().NoError(s.store.Insert(ctx, record))

	found, err := s.store.FindByFingerprint(ctx, record.Fingerprint)
	s.Require().NoError(err)
	s.Equal(record.ID, found.ID)
	s.Equal(record.Fingerprint, found.Fingerprint)
	s.Equal(record.Payload, found.Payload)
	s.Equal(record.Skills, found.Skills)
	s.Require().NotNil(found.LedgerReceipt)
	s.Equal(*record.LedgerReceipt, *found.LedgerReceipt)
	s.Equal(models.StatusActive, found.Status)
	s.True(found.Visible)
	s.False(found.OffPlatform)
	s.WithinDuration(record.CreatedAt, found.CreatedAt, time.Second)
}

func (s *PostgresStoreSuite) TestConcurrentInsertSameFingerprint() {
	ctx := context.Background()
	fingerprint := fingerprintOf(1)
	const goroutines = 20

	var wg sync.WaitGroup
	var successes, duplicates atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.store.Insert(ctx, s.newRecord(fingerprint))
			switch {
			case err == nil:
				successes.Add(1)
			case err == store.ErrDuplicateFingerprint:
				duplicates.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), successes.Load(), "exactly one insert wins")
	s.Equal(int32(goroutines-1), duplicates.Load(), "the rest see the duplicate")
}

func (s *PostgresStoreSuite) TestListOrdering() {
	ctx := context.Background()

	older := s.newRecord(fingerprintOf(2))
	older.CreatedAt = time.Now().UTC().Add(-time.Hour)
	newer := s.newRecord(fingerprintOf(3))

	s.Require().NoError(s.store.Insert(ctx, older))
	s.Require().NoError(s.store.Insert(ctx, newer))

	byIssuer, err := s.store.ListByIssuer(ctx, s.issuer)
	s.Require().NoError(err)
	s.Require().Len(byIssuer, 2)
	s.Equal(newer.Fingerprint, byIssuer[0].Fingerprint)

	byHolder, err := s.store.ListByHolder(ctx, s.holder)
	s.Require().NoError(err)
	s.Len(byHolder, 2)
}

func (s *PostgresStoreSuite) TestMarkRevoked() {
	ctx := context.Background()
	record := s.newRecord(fingerprintOf(4))
	s.Require().NoError(s.store.Insert(ctx, record))

	s.Require().NoError(s.store.MarkRevoked(ctx, record.Fingerprint))

	found, err := s.store.FindByFingerprint(ctx, record.Fingerprint)
	s.Require().NoError(err)
	s.Equal(models.StatusRevoked, found.Status)

	// Idempotent at the storage level.
	s.NoError(s.store.MarkRevoked(ctx, record.Fingerprint))

	s.ErrorIs(s.store.MarkRevoked(ctx, fingerprintOf(5)), store.ErrNotFound)
}

func (s *PostgresStoreSuite) TestSetVisibility() {
	ctx := context.Background()
	record := s.newRecord(fingerprintOf(0))
	s.Require().NoError(s.store.Insert(ctx, record))

	s.Require().NoError(s.store.SetVisibility(ctx, record.Fingerprint, false))

	found, err := s.store.FindByFingerprint(ctx, record.Fingerprint)
	s.Require().NoError(err)
	s.False(found.Visible)
}

func (s *PostgresStoreSuite) TestNullReceiptRoundTrip() {
	ctx := context.Background()
	record := s.newRecord(fingerprintOf(1))
	record.LedgerReceipt = nil
	record.OffPlatform = true
	record.ClaimText = ""
	record.Payload = ""
	record.Skills = nil

	s.Require().NoError(s.store.Insert(ctx, record))

	found, err := s.store.FindByFingerprint(ctx, record.Fingerprint)
	s.Require().NoError(err)
	s.Nil(found.LedgerReceipt)
	s.True(found.OffPlatform)
	s.Empty(found.Skills)
}

func (s *PostgresStoreSuite) TestOffPlatformStubRoundTrip() {
	ctx := context.Background()
	stub := models.Record{
		ID:          id.NewRecordID(),
		Fingerprint: fingerprintOf(2),
		Status:      models.StatusActive,
		OffPlatform: true,
		CreatedAt:   time.Now().UTC().Truncate(time.Microsecond),
	}

	s.Require().NoError(s.store.Insert(ctx, stub))

	found, err := s.store.FindByFingerprint(ctx, stub.Fingerprint)
	s.Require().NoError(err, "stubs without party identities must stay readable")
	s.True(found.OffPlatform)
	s.True(found.IssuerDID.IsNil())
	s.True(found.HolderDID.IsNil())
	s.Equal(models.StatusActive, found.Status)

	// Later reads must keep returning the stub, not an error.
	again, err := s.store.FindByFingerprint(ctx, stub.Fingerprint)
	s.Require().NoError(err)
	s.Equal(found.ID, again.ID)
}

func (s *PostgresStoreSuite) TestNotFound() {
	_, err := s.store.FindByFingerprint(context.Background(), fingerprintOf(3))
	s.ErrorIs(err, store.ErrNotFound)
}
