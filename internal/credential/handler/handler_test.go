package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attestor/internal/credential/models"
	id "attestor/pkg/domain"
	dErrors "attestor/pkg/domain-errors"
	"attestor/pkg/requestcontext"
)

const testFingerprint = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

type fakeService struct {
	issueResult  models.IssueResult
	issueErr     error
	issueReq     models.IssueRequest
	revokeErr    error
	revokedFP    id.Fingerprint
	verifyResp   models.VerificationResponse
	verifyErr    error
	verifyReq    models.VerifyRequest
	visRecord    models.Record
	visErr       error
	listIssued   []models.Record
	listHolder   []models.Record
}

func (f *fakeService) Issue(_ context.Context, req models.IssueRequest) (models.IssueResult, error) {
	f.issueReq = req
	return f.issueResult, f.issueErr
}

func (f *fakeService) Revoke(_ context.Context, fp id.Fingerprint) error {
	f.revokedFP = fp
	return f.revokeErr
}

func (f *fakeService) Verify(_ context.Context, req models.VerifyRequest) (models.VerificationResponse, error) {
	f.verifyReq = req
	return f.verifyResp, f.verifyErr
}

func (f *fakeService) SetVisibility(context.Context, id.Fingerprint, bool) (models.Record, error) {
	return f.visRecord, f.visErr
}

func (f *fakeService) ListIssued(context.Context, id.DID) ([]models.Record, error) {
	return f.listIssued, nil
}

func (f *fakeService) ListHolder(context.Context, id.DID) ([]models.Record, error) {
	return f.listHolder, nil
}

func (f *fakeService) Details(models.Record) (*models.Details, error) {
	return nil, nil
}

func testRecord(t *testing.T) models.Record {
	t.Helper()
	fp, err := id.ParseFingerprint(testFingerprint)
	require.NoError(t, err)
	issuer, err := id.ParseDID("did:attestor:issuer-1")
	require.NoError(t, err)
	holder, err := id.ParseDID("did:attestor:holder-1")
	require.NoError(t, err)
	receipt := "0xabc"
	return models.Record{
		ID:            id.NewRecordID(),
		Fingerprint:   fp,
		IssuerDID:     issuer,
		HolderDID:     holder,
		ClaimText:     "Completed Go training",
		Skills:        []string{"go"},
		LedgerReceipt: &receipt,
		Status:        models.StatusActive,
		Visible:       true,
		CreatedAt:     time.Now().UTC(),
	}
}

func setup(t *testing.T, svc *fakeService) *chi.Mux {
	t.Helper()
	h := New(svc, slog.New(slog.DiscardHandler))
	r := chi.NewRouter()
	h.Register(r)
	return r
}

func doRequest(t *testing.T, router http.Handler, method, path string, body any, caller string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if caller != "" {
		did, err := id.ParseDID(caller)
		require.NoError(t, err)
		req = req.WithContext(requestcontext.WithCallerDID(req.Context(), did))
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandleIssue(t *testing.T) {
	t.Run("issues for the authenticated caller", func(t *testing.T) {
		record := testRecord(t)
		svc := &fakeService{issueResult: models.IssueResult{Record: &record}}
		router := setup(t, svc)

		rec := doRequest(t, router, http.MethodPost, "/credentials/issue", IssueRequest{
			HolderDID: "did:attestor:holder-1",
			ClaimText: "Completed Go training",
		}, "did:attestor:issuer-1")

		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		assert.Equal(t, "did:attestor:issuer-1", svc.issueReq.IssuerDID.String(), "issuer taken from auth, not body")

		var resp IssueResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, testFingerprint, resp.Credential.Fingerprint)
		assert.False(t, resp.Existing)
	})

	t.Run("duplicate issuance returns 200", func(t *testing.T) {
		record := testRecord(t)
		svc := &fakeService{issueResult: models.IssueResult{Record: &record, Existing: true}}
		router := setup(t, svc)

		rec := doRequest(t, router, http.MethodPost, "/credentials/issue", IssueRequest{
			HolderDID: "did:attestor:holder-1",
			ClaimText: "Completed Go training",
		}, "did:attestor:issuer-1")

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("requires authentication", func(t *testing.T) {
		router := setup(t, &fakeService{})
		rec := doRequest(t, router, http.MethodPost, "/credentials/issue", IssueRequest{
			HolderDID: "did:attestor:holder-1",
			ClaimText: "x",
		}, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("validates the body", func(t *testing.T) {
		router := setup(t, &fakeService{})
		rec := doRequest(t, router, http.MethodPost, "/credentials/issue", IssueRequest{
			HolderDID: "did:attestor:holder-1",
		}, "did:attestor:issuer-1")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("anchor timeout maps to 504", func(t *testing.T) {
		svc := &fakeService{issueErr: dErrors.New(dErrors.CodeAnchorTimeout, "outcome unknown")}
		router := setup(t, svc)
		rec := doRequest(t, router, http.MethodPost, "/credentials/issue", IssueRequest{
			HolderDID: "did:attestor:holder-1",
			ClaimText: "Completed Go training",
		}, "did:attestor:issuer-1")
		assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	})

	t.Run("anchor failure maps to 502", func(t *testing.T) {
		svc := &fakeService{issueErr: dErrors.New(dErrors.CodeAnchorFailed, "rejected")}
		router := setup(t, svc)
		rec := doRequest(t, router, http.MethodPost, "/credentials/issue", IssueRequest{
			HolderDID: "did:attestor:holder-1",
			ClaimText: "Completed Go training",
		}, "did:attestor:issuer-1")
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})
}

func TestHandleVerify(t *testing.T) {
	t.Run("by fingerprint, anonymous allowed", func(t *testing.T) {
		svc := &fakeService{verifyResp: models.VerificationResponse{
			Status:      models.VerificationVerified,
			Fingerprint: testFingerprint,
		}}
		router := setup(t, svc)

		rec := doRequest(t, router, http.MethodPost, "/credentials/verify", VerifyRequest{
			Fingerprint: testFingerprint,
		}, "")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, testFingerprint, svc.verifyReq.Fingerprint.String())

		var resp models.VerificationResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, models.VerificationVerified, resp.Status)
	})

	t.Run("by resubmitted claim", func(t *testing.T) {
		svc := &fakeService{verifyResp: models.VerificationResponse{Status: models.VerificationInvalid}}
		router := setup(t, svc)

		rec := doRequest(t, router, http.MethodPost, "/credentials/verify", VerifyRequest{
			IssuerDID: "did:attestor:issuer-1",
			HolderDID: "did:attestor:holder-1",
			ClaimText: "Completed Go training",
			IssuedAt:  "2026-04-10T09:30:00Z",
		}, "")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.False(t, svc.verifyReq.ByFingerprint())
		assert.Equal(t, "Completed Go training", svc.verifyReq.ClaimText)
	})

	t.Run("rejects empty requests", func(t *testing.T) {
		router := setup(t, &fakeService{})
		rec := doRequest(t, router, http.MethodPost, "/credentials/verify", VerifyRequest{}, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed fingerprint rejected", func(t *testing.T) {
		router := setup(t, &fakeService{})
		rec := doRequest(t, router, http.MethodPost, "/credentials/verify", VerifyRequest{
			Fingerprint: "not-hex",
		}, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleRevoke(t *testing.T) {
	t.Run("revokes", func(t *testing.T) {
		svc := &fakeService{}
		router := setup(t, svc)

		rec := doRequest(t, router, http.MethodPost, "/credentials/"+testFingerprint+"/revoke", nil, "did:attestor:issuer-1")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, testFingerprint, svc.revokedFP.String())
	})

	t.Run("already revoked maps to 409", func(t *testing.T) {
		svc := &fakeService{revokeErr: dErrors.New(dErrors.CodeAlreadyRevoked, "already revoked")}
		router := setup(t, svc)

		rec := doRequest(t, router, http.MethodPost, "/credentials/"+testFingerprint+"/revoke", nil, "did:attestor:issuer-1")
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("foreign issuer maps to 403", func(t *testing.T) {
		svc := &fakeService{revokeErr: dErrors.New(dErrors.CodeForbidden, "only the issuer may revoke")}
		router := setup(t, svc)

		rec := doRequest(t, router, http.MethodPost, "/credentials/"+testFingerprint+"/revoke", nil, "did:attestor:someone-else")
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("requires authentication", func(t *testing.T) {
		router := setup(t, &fakeService{})
		rec := doRequest(t, router, http.MethodPost, "/credentials/"+testFingerprint+"/revoke", nil, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestHandleVisibility(t *testing.T) {
	t.Run("toggles", func(t *testing.T) {
		record := testRecord(t)
		record.Visible = false
		svc := &fakeService{visRecord: record}
		router := setup(t, svc)

		hidden := false
		rec := doRequest(t, router, http.MethodPatch, "/credentials/"+testFingerprint+"/visibility", VisibilityRequest{
			Visible: &hidden,
		}, "did:attestor:holder-1")

		require.Equal(t, http.StatusOK, rec.Code)
		var resp RecordResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.False(t, resp.Visible)
	})

	t.Run("visible flag is required", func(t *testing.T) {
		router := setup(t, &fakeService{})
		rec := doRequest(t, router, http.MethodPatch, "/credentials/"+testFingerprint+"/visibility", map[string]string{}, "did:attestor:holder-1")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleListings(t *testing.T) {
	record := testRecord(t)
	svc := &fakeService{
		listIssued: []models.Record{record},
		listHolder: []models.Record{record},
	}
	router := setup(t, svc)

	t.Run("issued list", func(t *testing.T) {
		rec := doRequest(t, router, http.MethodGet, "/credentials/issued", nil, "did:attestor:issuer-1")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp ListResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Credentials, 1)
		assert.Equal(t, testFingerprint, resp.Credentials[0].Fingerprint)
	})

	t.Run("holder portfolio", func(t *testing.T) {
		rec := doRequest(t, router, http.MethodGet, "/holders/did:attestor:holder-1/credentials", nil, "did:attestor:someone-else")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp ListResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Len(t, resp.Credentials, 1)
	})

	t.Run("holder portfolio is open to anonymous callers", func(t *testing.T) {
		rec := doRequest(t, router, http.MethodGet, "/holders/did:attestor:holder-1/credentials", nil, "")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp ListResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Len(t, resp.Credentials, 1)
	})
}
