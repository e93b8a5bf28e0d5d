package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"attestor/internal/credential/models"
	id "attestor/pkg/domain"
	dErrors "attestor/pkg/domain-errors"
	"attestor/pkg/platform/httputil"
	"attestor/pkg/requestcontext"
)

const maxClaimTextLen = 10_000

// Service defines the lifecycle operations used by the handler.
type Service interface {
	Issue(ctx context.Context, req models.IssueRequest) (models.IssueResult, error)
	Revoke(ctx context.Context, fingerprint id.Fingerprint) error
	Verify(ctx context.Context, req models.VerifyRequest) (models.VerificationResponse, error)
	SetVisibility(ctx context.Context, fingerprint id.Fingerprint, visible bool) (models.Record, error)
	ListIssued(ctx context.Context, issuer id.DID) ([]models.Record, error)
	ListHolder(ctx context.Context, holder id.DID) ([]models.Record, error)
	Details(record models.Record) (*models.Details, error)
}

// Handler wires credential endpoints to the lifecycle manager.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a credential handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts credential endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	h.RegisterProtected(r)
	h.RegisterPublic(r)
}

// RegisterProtected mounts the routes that require an authenticated caller.
func (h *Handler) RegisterProtected(r chi.Router) {
	r.Post("/credentials/issue", h.HandleIssue)
	r.Get("/credentials/issued", h.HandleListIssued)
	r.Post("/credentials/{fingerprint}/revoke", h.HandleRevoke)
	r.Patch("/credentials/{fingerprint}/visibility", h.HandleVisibility)
}

// RegisterPublic mounts the routes open to anonymous callers. A bearer token
// is still honored when present so holders see their own hidden records.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Post("/credentials/verify", h.HandleVerify)
	r.Get("/holders/{did}/credentials", h.HandleHolderCredentials)
}

// IssueRequest is the request body for credential issuance.
type IssueRequest struct {
	HolderDID string   `json:"holder_did"`
	ClaimText string   `json:"claim_text"`
	Skills    []string `json:"skills,omitempty"`
	FileURL   string   `json:"file_url,omitempty"`

	parsedHolder id.DID
}

// Validate validates and parses the issuance request.
func (r *IssueRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if len(r.ClaimText) > maxClaimTextLen {
		return dErrors.New(dErrors.CodeValidation, "claim_text is too long")
	}
	if r.ClaimText == "" {
		return dErrors.New(dErrors.CodeValidation, "claim_text is required")
	}
	if r.HolderDID == "" {
		return dErrors.New(dErrors.CodeValidation, "holder_did is required")
	}

	parsed, err := id.ParseDID(r.HolderDID)
	if err != nil {
		return dErrors.New(dErrors.CodeBadRequest, err.Error())
	}
	r.parsedHolder = parsed
	return nil
}

// RecordResponse is the API shape of a stored credential record.
type RecordResponse struct {
	Fingerprint   string    `json:"fingerprint"`
	IssuerDID     string    `json:"issuer_did"`
	HolderDID     string    `json:"holder_did"`
	ClaimText     string    `json:"claim_text,omitempty"`
	Skills        []string  `json:"skills"`
	FileURL       string    `json:"file_url,omitempty"`
	LedgerReceipt string    `json:"ledger_receipt,omitempty"`
	Status        string    `json:"status"`
	Visible       bool      `json:"visible"`
	OffPlatform   bool      `json:"off_platform,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// IssueResponse is the response body for credential issuance.
type IssueResponse struct {
	Credential RecordResponse `json:"credential"`
	Existing   bool           `json:"existing,omitempty"`
}

func toRecordResponse(record models.Record) RecordResponse {
	out := RecordResponse{
		Fingerprint: record.Fingerprint.String(),
		IssuerDID:   record.IssuerDID.String(),
		HolderDID:   record.HolderDID.String(),
		ClaimText:   record.ClaimText,
		Skills:      record.Skills,
		FileURL:     record.FileURL,
		Status:      string(record.Status),
		Visible:     record.Visible,
		OffPlatform: record.OffPlatform,
		CreatedAt:   record.CreatedAt,
	}
	if out.Skills == nil {
		out.Skills = []string{}
	}
	if record.LedgerReceipt != nil {
		out.LedgerReceipt = *record.LedgerReceipt
	}
	return out
}

// HandleIssue handles POST /credentials/issue requests.
func (h *Handler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	caller := requestcontext.CallerDID(ctx)
	if caller.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[IssueRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.service.Issue(ctx, models.IssueRequest{
		IssuerDID:      caller,
		HolderDID:      req.parsedHolder,
		ClaimText:      req.ClaimText,
		SkillsOverride: req.Skills,
		FileURL:        req.FileURL,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to issue credential",
			"request_id", requestID,
			"issuer", caller.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	status := http.StatusCreated
	if result.Existing {
		status = http.StatusOK
	}
	httputil.WriteJSON(w, status, IssueResponse{
		Credential: toRecordResponse(*result.Record),
		Existing:   result.Existing,
	})
}

// VerifyRequest is the request body for credential verification. Either the
// fingerprint or the full resubmitted claim identifies the credential.
type VerifyRequest struct {
	Fingerprint string `json:"fingerprint,omitempty"`

	IssuerDID string   `json:"issuer_did,omitempty"`
	HolderDID string   `json:"holder_did,omitempty"`
	ClaimText string   `json:"claim_text,omitempty"`
	Skills    []string `json:"skills,omitempty"`
	IssuedAt  string   `json:"issued_at,omitempty"`

	parsed models.VerifyRequest
}

// Validate validates and parses the verification request.
func (r *VerifyRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}

	if r.Fingerprint != "" {
		fp, err := id.ParseFingerprint(r.Fingerprint)
		if err != nil {
			return dErrors.New(dErrors.CodeBadRequest, err.Error())
		}
		r.parsed = models.VerifyRequest{Fingerprint: fp}
		return nil
	}

	if r.ClaimText == "" {
		return dErrors.New(dErrors.CodeValidation, "fingerprint or resubmitted claim is required")
	}
	if len(r.ClaimText) > maxClaimTextLen {
		return dErrors.New(dErrors.CodeValidation, "claim_text is too long")
	}

	issuer, err := id.ParseDID(r.IssuerDID)
	if err != nil {
		return dErrors.New(dErrors.CodeBadRequest, "issuer_did: "+err.Error())
	}
	holder, err := id.ParseDID(r.HolderDID)
	if err != nil {
		return dErrors.New(dErrors.CodeBadRequest, "holder_did: "+err.Error())
	}
	issuedAt, err := time.Parse(time.RFC3339, r.IssuedAt)
	if err != nil {
		return dErrors.New(dErrors.CodeBadRequest, "issued_at must be RFC 3339")
	}

	r.parsed = models.VerifyRequest{
		IssuerDID: issuer,
		HolderDID: holder,
		ClaimText: r.ClaimText,
		Skills:    r.Skills,
		IssuedAt:  issuedAt,
	}
	return nil
}

// HandleVerify handles POST /credentials/verify requests. Verification is
// open to any caller; the response never contains more than the visibility
// gate releases.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[VerifyRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	response, err := h.service.Verify(ctx, req.parsed)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to verify credential",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, response)
}

// HandleRevoke handles POST /credentials/{fingerprint}/revoke requests.
func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	caller := requestcontext.CallerDID(ctx)
	if caller.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	fingerprint, err := id.ParseFingerprint(chi.URLParam(r, "fingerprint"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, err.Error()))
		return
	}

	if err := h.service.Revoke(ctx, fingerprint); err != nil {
		h.logger.ErrorContext(ctx, "failed to revoke credential",
			"request_id", requestcontext.RequestID(ctx),
			"fingerprint", fingerprint.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"fingerprint": fingerprint.String(),
		"status":      string(models.StatusRevoked),
	})
}

// VisibilityRequest is the request body for the holder privacy toggle.
type VisibilityRequest struct {
	Visible *bool `json:"visible"`
}

// Validate validates the visibility request.
func (r *VisibilityRequest) Validate() error {
	if r == nil || r.Visible == nil {
		return dErrors.New(dErrors.CodeValidation, "visible is required")
	}
	return nil
}

// HandleVisibility handles PATCH /credentials/{fingerprint}/visibility.
func (h *Handler) HandleVisibility(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	caller := requestcontext.CallerDID(ctx)
	if caller.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	fingerprint, err := id.ParseFingerprint(chi.URLParam(r, "fingerprint"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, err.Error()))
		return
	}

	req, ok := httputil.DecodeAndPrepare[VisibilityRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	record, err := h.service.SetVisibility(ctx, fingerprint, *req.Visible)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toRecordResponse(record))
}

// ListResponse is the response body for record listings.
type ListResponse struct {
	Credentials []RecordResponse `json:"credentials"`
}

// HandleListIssued handles GET /credentials/issued for the calling issuer.
func (h *Handler) HandleListIssued(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	caller := requestcontext.CallerDID(ctx)
	if caller.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	records, err := h.service.ListIssued(ctx, caller)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, h.toListResponse(ctx, records, caller))
}

// HandleHolderCredentials handles GET /holders/{did}/credentials. Holders see
// all their records; anonymous and other callers see the visible, active
// portfolio.
func (h *Handler) HandleHolderCredentials(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := requestcontext.CallerDID(ctx)

	holder, err := id.ParseDID(chi.URLParam(r, "did"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, err.Error()))
		return
	}

	records, svcErr := h.service.ListHolder(ctx, holder)
	if svcErr != nil {
		httputil.WriteError(w, svcErr)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, h.toListResponse(ctx, records, caller))
}

// toListResponse renders records, unsealing claim content where the caller is
// entitled to it. Sealed details the caller may not see are simply omitted.
func (h *Handler) toListResponse(ctx context.Context, records []models.Record, caller id.DID) ListResponse {
	out := ListResponse{Credentials: make([]RecordResponse, 0, len(records))}
	for _, record := range records {
		item := toRecordResponse(record)
		if record.Sealed && (caller == record.HolderDID || caller == record.IssuerDID || record.Visible) {
			if details, err := h.service.Details(record); err == nil && details != nil {
				item.ClaimText = details.ClaimText
				item.Skills = details.Skills
			} else if err != nil {
				h.logger.WarnContext(ctx, "failed to unseal record for listing",
					"fingerprint", record.Fingerprint.String(),
					"error", err,
				)
			}
		}
		out.Credentials = append(out.Credentials, item)
	}
	return out
}
