// Package service implements the credential lifecycle: issuance, revocation,
// verification, and holder visibility control. The ledger is the source of
// truth for existence and revocation; the local store is a cache of that
// truth plus the claim content the ledger never sees.
package service

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"attestor/internal/credential/canonical"
	"attestor/internal/credential/metrics"
	"attestor/internal/credential/models"
	"attestor/internal/credential/store"
	"attestor/internal/credential/visibility"
	"attestor/internal/ledger"
	"attestor/internal/skills"
	id "attestor/pkg/domain"
	dErrors "attestor/pkg/domain-errors"
	"attestor/pkg/envelope"
	"attestor/pkg/platform/audit"
	"attestor/pkg/requestcontext"
)

// Option configures the Manager.
type Option func(*Manager)

// Manager orchestrates the credential lifecycle against the store and ledger.
type Manager struct {
	store     store.Store
	ledger    ledger.Client
	extractor skills.Extractor
	codec     *envelope.Codec
	gate      *visibility.Gate
	auditor   audit.Emitter
	metrics   *metrics.Metrics
	logger    *slog.Logger

	payloadMode    models.PayloadMode
	skillsRequired bool

	// reconcile collapses concurrent reconciliation of the same fingerprint
	// into a single store write.
	reconcile singleflight.Group
}

// NewManager creates a lifecycle manager with the required dependencies.
func NewManager(recordStore store.Store, ledgerClient ledger.Client, opts ...Option) *Manager {
	m := &Manager{
		store:       recordStore,
		ledger:      ledgerClient,
		payloadMode: models.PayloadPlain,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.gate = visibility.NewGate(m.codec)
	return m
}

// WithExtractor configures the skill extraction client.
func WithExtractor(extractor skills.Extractor) Option {
	return func(m *Manager) { m.extractor = extractor }
}

// WithCodec configures payload sealing and switches the payload mode to sealed.
func WithCodec(codec *envelope.Codec) Option {
	return func(m *Manager) {
		m.codec = codec
		m.payloadMode = models.PayloadSealed
	}
}

// WithSkillsRequired makes extraction failures fatal for issuance instead of
// degrading to a tagless credential.
func WithSkillsRequired(required bool) Option {
	return func(m *Manager) { m.skillsRequired = required }
}

// WithAuditor configures an audit publisher for the manager.
func WithAuditor(auditor audit.Emitter) Option {
	return func(m *Manager) { m.auditor = auditor }
}

// WithMetrics configures lifecycle metrics.
func WithMetrics(mx *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mx }
}

// WithLogger configures a logger for the manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// Issue anchors a new credential. The order of operations is fixed: skills,
// canonical fingerprint, local duplicate check, ledger anchor, local write.
// No local record is created unless the ledger confirmed the anchor, so an
// anchor failure leaves no state behind and a retry is safe.
func (m *Manager) Issue(ctx context.Context, req models.IssueRequest) (models.IssueResult, error) {
	start := time.Now()

	if err := m.requireCaller(ctx, req.IssuerDID, "caller is not the issuer"); err != nil {
		return models.IssueResult{}, err
	}

	skillList, err := m.resolveSkills(ctx, req)
	if err != nil {
		m.countIssue("failed")
		return models.IssueResult{}, err
	}

	claim := canonical.Claim{
		IssuerDID: req.IssuerDID,
		HolderDID: req.HolderDID,
		ClaimText: req.ClaimText,
		Skills:    skillList,
		IssuedAt:  requestcontext.Now(ctx),
	}
	fingerprint, canonicalBytes, err := canonical.FingerprintClaim(claim)
	if err != nil {
		m.countIssue("failed")
		return models.IssueResult{}, err
	}

	// Identical canonical claims share a fingerprint, so issuance is
	// idempotent: an existing active record is returned as-is.
	if existing, err := m.store.FindByFingerprint(ctx, fingerprint); err == nil {
		if existing.Revoked() {
			m.countIssue("already_revoked")
			return models.IssueResult{}, dErrors.New(dErrors.CodeAlreadyRevoked, "claim was revoked; revocation is permanent")
		}
		m.countIssue("duplicate")
		return models.IssueResult{Record: &existing, Existing: true}, nil
	} else if !dErrors.HasCode(err, dErrors.CodeNotFound) {
		m.countIssue("failed")
		return models.IssueResult{}, err
	}

	receipt, err := m.ledger.Anchor(ctx, fingerprint)
	switch {
	case err == nil:
		// anchored; fall through to the local write
	case dErrors.HasCode(err, dErrors.CodeConflict):
		// Anchored on the ledger but absent locally: an orphan from a prior
		// partial failure. Adopt it instead of failing the issuer.
		return m.adoptOrphanedAnchor(ctx, claim, fingerprint, canonicalBytes, req.FileURL)
	case dErrors.HasCode(err, dErrors.CodeAnchorTimeout):
		// Outcome unknown. Writing a local record here could fabricate an
		// unanchored credential; the issuer retries and the conflict path
		// above adopts the anchor if it committed.
		m.countIssue("timeout")
		m.logger.WarnContext(ctx, "anchor outcome unknown",
			"fingerprint", fingerprint.String(),
		)
		return models.IssueResult{}, err
	default:
		m.countIssue("failed")
		m.audit(ctx, audit.Event{
			Actor:       req.IssuerDID.String(),
			Fingerprint: fingerprint.String(),
			Action:      audit.ActionCredentialIssued,
			Outcome:     "anchor_failed",
			Reason:      err.Error(),
		})
		return models.IssueResult{}, err
	}

	record, err := m.buildRecord(claim, fingerprint, canonicalBytes, req.FileURL)
	if err != nil {
		m.countIssue("failed")
		return models.IssueResult{}, err
	}
	record.LedgerReceipt = &receipt.TxRef

	if err := m.store.Insert(ctx, record); err != nil {
		if dErrors.HasCode(err, dErrors.CodeConflict) {
			// Concurrent issuance of the same claim; the other writer won.
			if existing, findErr := m.store.FindByFingerprint(ctx, fingerprint); findErr == nil {
				m.countIssue("duplicate")
				return models.IssueResult{Record: &existing, Existing: true}, nil
			}
		}
		// Anchored but not recorded: the orphan window. Verification
		// reconciles it lazily; issuance reports the fault.
		m.logger.ErrorContext(ctx, "local write failed after anchor",
			"fingerprint", fingerprint.String(),
			"error", err,
		)
		m.countIssue("failed")
		return models.IssueResult{}, err
	}

	m.countIssue("issued")
	if m.metrics != nil {
		m.metrics.IssueDurationSeconds.Observe(time.Since(start).Seconds())
	}
	m.audit(ctx, audit.Event{
		Actor:       req.IssuerDID.String(),
		Fingerprint: fingerprint.String(),
		Action:      audit.ActionCredentialIssued,
		Outcome:     "issued",
	})
	return models.IssueResult{Record: &record}, nil
}

// resolveSkills returns the normalized skill list for issuance, either from
// the issuer's explicit override or from the extraction service.
func (m *Manager) resolveSkills(ctx context.Context, req models.IssueRequest) ([]string, error) {
	if req.SkillsOverride != nil {
		return canonical.NormalizeSkills(req.SkillsOverride), nil
	}
	if m.extractor == nil {
		if m.skillsRequired {
			return nil, dErrors.New(dErrors.CodeExtraction, "skill extraction required but not configured")
		}
		return nil, nil
	}

	result, err := m.extractor.Extract(ctx, req.ClaimText)
	if err != nil {
		if m.skillsRequired {
			return nil, err
		}
		m.logger.WarnContext(ctx, "skill extraction failed, issuing without skills",
			"error", err,
		)
		return nil, nil
	}
	if !result.Valid {
		if m.skillsRequired {
			return nil, dErrors.New(dErrors.CodeExtraction, "claim text not recognized as a credential claim")
		}
		return nil, nil
	}
	return canonical.NormalizeSkills(result.Skills), nil
}

// adoptOrphanedAnchor handles issuance of a claim the ledger already holds
// but the local store does not. The issuer is resubmitting the full claim, so
// the record can be recovered with complete content.
func (m *Manager) adoptOrphanedAnchor(ctx context.Context, claim canonical.Claim, fingerprint id.Fingerprint, canonicalBytes []byte, fileURL string) (models.IssueResult, error) {
	status, err := m.ledger.ReadStatus(ctx, fingerprint)
	if err != nil {
		m.countIssue("failed")
		return models.IssueResult{}, err
	}
	if !status.Exists {
		// The conflict said anchored, the read says not. Ledger confirmation
		// may still be settling; the issuer retries.
		m.countIssue("failed")
		return models.IssueResult{}, dErrors.New(dErrors.CodeAnchorFailed, "ledger state is settling, retry issuance")
	}
	if status.Revoked {
		m.countIssue("already_revoked")
		return models.IssueResult{}, dErrors.New(dErrors.CodeAlreadyRevoked, "claim was revoked; revocation is permanent")
	}

	record, err := m.buildRecord(claim, fingerprint, canonicalBytes, fileURL)
	if err != nil {
		m.countIssue("failed")
		return models.IssueResult{}, err
	}

	if err := m.store.Insert(ctx, record); err != nil {
		if dErrors.HasCode(err, dErrors.CodeConflict) {
			if existing, findErr := m.store.FindByFingerprint(ctx, fingerprint); findErr == nil {
				m.countIssue("duplicate")
				return models.IssueResult{Record: &existing, Existing: true}, nil
			}
		}
		m.countIssue("failed")
		return models.IssueResult{}, err
	}

	m.countIssue("recovered")
	m.countReconciliation("recovered")
	m.audit(ctx, audit.Event{
		Actor:       claim.IssuerDID.String(),
		Fingerprint: fingerprint.String(),
		Action:      audit.ActionRecordReconciled,
		Outcome:     "recovered",
	})
	return models.IssueResult{Record: &record}, nil
}

// buildRecord materializes a local record from a canonicalized claim.
// In sealed mode the canonical payload is encrypted and the claim text is not
// stored in the clear; skills stay queryable in both modes.
func (m *Manager) buildRecord(claim canonical.Claim, fingerprint id.Fingerprint, canonicalBytes []byte, fileURL string) (models.Record, error) {
	record := models.Record{
		ID:          id.NewRecordID(),
		Fingerprint: fingerprint,
		IssuerDID:   claim.IssuerDID,
		HolderDID:   claim.HolderDID,
		Skills:      canonical.NormalizeSkills(claim.Skills),
		FileURL:     fileURL,
		Status:      models.StatusActive,
		Visible:     true,
		CreatedAt:   time.Now().UTC(),
	}

	if m.payloadMode == models.PayloadSealed {
		if m.codec == nil {
			return models.Record{}, dErrors.New(dErrors.CodeInternal, "sealed payload mode without codec")
		}
		sealed, err := m.codec.Seal(canonicalBytes)
		if err != nil {
			return models.Record{}, err
		}
		record.Payload = sealed
		record.Sealed = true
	} else {
		record.Payload = string(canonicalBytes)
		record.ClaimText = claim.ClaimText
	}
	return record, nil
}

// Revoke permanently invalidates a credential. The ledger write happens
// first; the local flag follows. Only the anchoring issuer may revoke.
func (m *Manager) Revoke(ctx context.Context, fingerprint id.Fingerprint) error {
	record, err := m.store.FindByFingerprint(ctx, fingerprint)
	if err != nil {
		m.countRevoke("not_found")
		return err
	}

	if err := m.requireCaller(ctx, record.IssuerDID, "only the issuer may revoke"); err != nil {
		m.countRevoke("forbidden")
		return err
	}

	if record.Revoked() {
		m.countRevoke("already_revoked")
		return dErrors.New(dErrors.CodeAlreadyRevoked, "credential already revoked")
	}

	_, err = m.ledger.Revoke(ctx, fingerprint, "")
	switch {
	case err == nil:
		// fall through to the local flag
	case dErrors.HasCode(err, dErrors.CodeAlreadyRevoked):
		// The ledger got there first; converge the local flag and still
		// report the duplicate to the caller.
		if markErr := m.store.MarkRevoked(ctx, fingerprint); markErr != nil {
			m.logger.ErrorContext(ctx, "failed to converge local revocation",
				"fingerprint", fingerprint.String(),
				"error", markErr,
			)
		}
		m.countRevoke("already_revoked")
		return err
	default:
		m.countRevoke("failed")
		m.audit(ctx, audit.Event{
			Actor:       record.IssuerDID.String(),
			Fingerprint: fingerprint.String(),
			Action:      audit.ActionCredentialRevoked,
			Outcome:     "failed",
			Reason:      err.Error(),
		})
		return err
	}

	if err := m.store.MarkRevoked(ctx, fingerprint); err != nil {
		// The ledger already holds the truth; verification reads will report
		// revoked regardless. Log and let lazy convergence catch the flag.
		m.logger.ErrorContext(ctx, "local revocation flag failed after ledger revoke",
			"fingerprint", fingerprint.String(),
			"error", err,
		)
	}

	m.countRevoke("revoked")
	m.audit(ctx, audit.Event{
		Actor:       record.IssuerDID.String(),
		Fingerprint: fingerprint.String(),
		Action:      audit.ActionCredentialRevoked,
		Outcome:     "revoked",
	})
	return nil
}

// Verify answers whether a credential is valid. The ledger is consulted on
// every call: local state alone can never produce a "verified" verdict. A
// ledger outage yields unconfirmed, never invalid.
func (m *Manager) Verify(ctx context.Context, req models.VerifyRequest) (models.VerificationResponse, error) {
	start := time.Now()

	fingerprint := req.Fingerprint
	var resubmitted *canonical.Claim
	if !req.ByFingerprint() {
		claim := canonical.Claim{
			IssuerDID: req.IssuerDID,
			HolderDID: req.HolderDID,
			ClaimText: req.ClaimText,
			Skills:    req.Skills,
			IssuedAt:  req.IssuedAt,
		}
		computed, _, err := canonical.FingerprintClaim(claim)
		if err != nil {
			return models.VerificationResponse{}, err
		}
		fingerprint = computed
		resubmitted = &claim
	}

	status, err := m.ledger.ReadStatus(ctx, fingerprint)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeLedgerUnreachable) {
			m.countVerification(string(models.VerificationUnconfirmed))
			return models.VerificationResponse{
				Status:      models.VerificationUnconfirmed,
				Fingerprint: fingerprint.String(),
				Notice:      "ledger unreachable; validity cannot be confirmed or denied",
			}, nil
		}
		return models.VerificationResponse{}, err
	}

	response := models.VerificationResponse{Fingerprint: fingerprint.String()}
	if status.Exists {
		issuedAt := status.IssuedAt
		response.LedgerIssuedAt = &issuedAt
		response.LedgerIssuer = status.IssuerRef
	}

	switch {
	case !status.Exists:
		response.Status = models.VerificationInvalid
	case status.Revoked:
		response.Status = models.VerificationRevoked
		m.convergeRevocation(ctx, fingerprint)
	default:
		if err := m.resolveValid(ctx, &response, fingerprint, resubmitted); err != nil {
			return models.VerificationResponse{}, err
		}
	}

	m.countVerification(string(response.Status))
	if m.metrics != nil {
		m.metrics.VerifyDurationSeconds.Observe(time.Since(start).Seconds())
	}
	m.audit(ctx, audit.Event{
		Actor:       requestcontext.CallerDID(ctx).String(),
		Fingerprint: fingerprint.String(),
		Action:      audit.ActionCredentialVerified,
		Outcome:     string(response.Status),
	})
	return response, nil
}

// resolveValid fills the response for a fingerprint the ledger reports as
// anchored and unrevoked.
func (m *Manager) resolveValid(ctx context.Context, response *models.VerificationResponse, fingerprint id.Fingerprint, resubmitted *canonical.Claim) error {
	record, err := m.store.FindByFingerprint(ctx, fingerprint)
	if dErrors.HasCode(err, dErrors.CodeNotFound) {
		record, err = m.reconcileOrphan(ctx, fingerprint, resubmitted)
	}
	if err != nil {
		return err
	}

	switch {
	case record.OffPlatform:
		response.Status = models.VerificationOffPlatform
		response.Notice = "anchored on ledger; no claim content is held on this platform"
	case !record.Visible:
		response.Status = models.VerificationPrivate
		response.Notice = "valid credential; the holder keeps its details private"
	default:
		details, err := m.gate.Details(record)
		if err != nil {
			return err
		}
		response.Status = models.VerificationVerified
		response.Details = details
	}
	return nil
}

// reconcileOrphan creates the missing local record for an anchored
// fingerprint. With resubmitted claim content the record is fully recovered;
// without it an off-platform stub is stored so the gap is visible once, not
// on every verification.
func (m *Manager) reconcileOrphan(ctx context.Context, fingerprint id.Fingerprint, resubmitted *canonical.Claim) (models.Record, error) {
	result, err, _ := m.reconcile.Do(fingerprint.String(), func() (any, error) {
		// Another caller may have won the race before singleflight collapsed.
		if existing, err := m.store.FindByFingerprint(ctx, fingerprint); err == nil {
			return existing, nil
		}

		var record models.Record
		kind := "off_platform"
		if resubmitted != nil {
			canonicalBytes, err := canonical.Canonicalize(*resubmitted)
			if err != nil {
				return models.Record{}, err
			}
			if canonical.Fingerprint(canonicalBytes) != fingerprint {
				return models.Record{}, dErrors.New(dErrors.CodeIntegrity, "resubmitted claim does not match fingerprint")
			}
			record, err = m.buildRecord(*resubmitted, fingerprint, canonicalBytes, "")
			if err != nil {
				return models.Record{}, err
			}
			kind = "recovered"
		} else {
			record = models.Record{
				ID:          id.NewRecordID(),
				Fingerprint: fingerprint,
				Status:      models.StatusActive,
				OffPlatform: true,
				CreatedAt:   time.Now().UTC(),
			}
		}

		if err := m.store.Insert(ctx, record); err != nil {
			if dErrors.HasCode(err, dErrors.CodeConflict) {
				return m.store.FindByFingerprint(ctx, fingerprint)
			}
			return models.Record{}, err
		}

		m.countReconciliation(kind)
		m.audit(ctx, audit.Event{
			Fingerprint: fingerprint.String(),
			Action:      audit.ActionRecordReconciled,
			Outcome:     kind,
		})
		return record, nil
	})
	if err != nil {
		return models.Record{}, err
	}
	return result.(models.Record), nil
}

// convergeRevocation flips the local status when the ledger reports revoked.
// Best effort: the verdict already came from the ledger.
func (m *Manager) convergeRevocation(ctx context.Context, fingerprint id.Fingerprint) {
	record, err := m.store.FindByFingerprint(ctx, fingerprint)
	if err != nil || record.Revoked() {
		return
	}
	if err := m.store.MarkRevoked(ctx, fingerprint); err != nil {
		m.logger.WarnContext(ctx, "failed to converge revocation flag",
			"fingerprint", fingerprint.String(),
			"error", err,
		)
	}
}

// SetVisibility flips the holder's privacy flag. Only the holder may change
// it; revocation state does not matter since the flag only gates details.
func (m *Manager) SetVisibility(ctx context.Context, fingerprint id.Fingerprint, visible bool) (models.Record, error) {
	record, err := m.store.FindByFingerprint(ctx, fingerprint)
	if err != nil {
		return models.Record{}, err
	}
	if record.OffPlatform {
		return models.Record{}, dErrors.New(dErrors.CodeConflict, "off-platform records hold no details to hide")
	}
	if err := m.requireCaller(ctx, record.HolderDID, "only the holder controls visibility"); err != nil {
		return models.Record{}, err
	}

	if err := m.store.SetVisibility(ctx, fingerprint, visible); err != nil {
		return models.Record{}, err
	}
	record.Visible = visible

	m.audit(ctx, audit.Event{
		Actor:       record.HolderDID.String(),
		Fingerprint: fingerprint.String(),
		Action:      audit.ActionVisibilityChanged,
		Outcome:     visibilityOutcome(visible),
	})
	return record, nil
}

func visibilityOutcome(visible bool) string {
	if visible {
		return "shared"
	}
	return "hidden"
}

// ListIssued returns every record the calling issuer created.
func (m *Manager) ListIssued(ctx context.Context, issuer id.DID) ([]models.Record, error) {
	if err := m.requireCaller(ctx, issuer, "caller is not the issuer"); err != nil {
		return nil, err
	}
	return m.store.ListByIssuer(ctx, issuer)
}

// ListHolder returns a holder's records. The holder sees everything; anyone
// else sees only the active, holder-visible portfolio.
func (m *Manager) ListHolder(ctx context.Context, holder id.DID) ([]models.Record, error) {
	records, err := m.store.ListByHolder(ctx, holder)
	if err != nil {
		return nil, err
	}
	if requestcontext.CallerDID(ctx) == holder {
		return records, nil
	}
	return visibility.Portfolio(records), nil
}

// Details exposes the gate for handlers assembling list responses.
func (m *Manager) Details(record models.Record) (*models.Details, error) {
	return m.gate.Details(record)
}

// requireCaller enforces that the authenticated caller matches the expected
// DID. An empty caller context is rejected as unauthorized.
func (m *Manager) requireCaller(ctx context.Context, expected id.DID, message string) error {
	caller := requestcontext.CallerDID(ctx)
	if caller.IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "caller identity required")
	}
	if caller != expected {
		return dErrors.New(dErrors.CodeForbidden, message)
	}
	return nil
}

func (m *Manager) audit(ctx context.Context, event audit.Event) {
	if m.auditor == nil {
		return
	}
	if event.Actor == "" {
		event.Actor = requestcontext.CallerDID(ctx).String()
	}
	if err := m.auditor.Emit(ctx, event); err != nil {
		m.logger.WarnContext(ctx, "audit emit failed",
			"action", event.Action,
			"error", err,
		)
	}
}

func (m *Manager) countIssue(outcome string) {
	if m.metrics != nil {
		m.metrics.RecordIssue(outcome)
	}
}

func (m *Manager) countRevoke(outcome string) {
	if m.metrics != nil {
		m.metrics.RecordRevoke(outcome)
	}
}

func (m *Manager) countVerification(status string) {
	if m.metrics != nil {
		m.metrics.RecordVerification(status)
	}
}

func (m *Manager) countReconciliation(kind string) {
	if m.metrics != nil {
		m.metrics.RecordReconciliation(kind)
	}
}
