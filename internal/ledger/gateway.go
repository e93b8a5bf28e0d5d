package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	contract "attestor/contracts/ledger"
	id "attestor/pkg/domain"
	dErrors "attestor/pkg/domain-errors"
)

var (
	anchorLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "attestor_ledger_anchor_latency_seconds",
		Help:    "Time from anchor submission to ledger confirmation",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
	})
	ledgerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attestor_ledger_errors_total",
		Help: "Ledger gateway failures by operation and kind",
	}, []string{"operation", "kind"})
)

var tracer = otel.Tracer("attestor/internal/ledger")

// GatewayClient implements Client against the HTTP ledger gateway.
//
// The gateway holds the funded signing key; this service authenticates to the
// gateway with an API key and never sees key material. Write calls submit a
// transaction and poll its confirmation until confirmed, failed, or the
// confirmation window elapses.
type GatewayClient struct {
	baseURL       string
	apiKey        string
	issuerRef     string
	confirmWindow time.Duration
	pollInterval  time.Duration
	httpClient    *http.Client
}

// Ensure GatewayClient implements Client.
var _ Client = (*GatewayClient)(nil)

// GatewayOption configures the GatewayClient.
type GatewayOption func(*GatewayClient)

// WithHTTPClient sets a custom HTTP client (for testing).
func WithHTTPClient(client *http.Client) GatewayOption {
	return func(c *GatewayClient) {
		c.httpClient = client
	}
}

// WithConfirmWindow bounds how long a write call waits for confirmation.
func WithConfirmWindow(window time.Duration) GatewayOption {
	return func(c *GatewayClient) {
		if window > 0 {
			c.confirmWindow = window
		}
	}
}

// WithPollInterval sets the confirmation polling cadence.
func WithPollInterval(interval time.Duration) GatewayOption {
	return func(c *GatewayClient) {
		if interval > 0 {
			c.pollInterval = interval
		}
	}
}

// NewGateway creates a ledger gateway client. issuerRef is this service's
// on-ledger writing identity, fixed at startup.
func NewGateway(baseURL, apiKey, issuerRef string, opts ...GatewayOption) *GatewayClient {
	c := &GatewayClient{
		baseURL:       baseURL,
		apiKey:        apiKey,
		issuerRef:     issuerRef,
		confirmWindow: 30 * time.Second,
		pollInterval:  500 * time.Millisecond,
		httpClient:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IssuerRef exposes the configured on-ledger writing identity.
func (c *GatewayClient) IssuerRef() string {
	return c.issuerRef
}

// Anchor submits an anchor transaction and blocks until the ledger confirms
// it. A confirmation timeout after successful submission is outcome-unknown
// and returns CodeAnchorTimeout; callers must check ReadStatus before any
// retry to avoid double-anchoring the same fingerprint.
func (c *GatewayClient) Anchor(ctx context.Context, fingerprint id.Fingerprint) (Receipt, error) {
	ctx, span := tracer.Start(ctx, "ledger.Anchor")
	span.SetAttributes(attribute.String("fingerprint", fingerprint.String()))
	defer span.End()

	start := time.Now()

	body, err := json.Marshal(contract.AnchorRequest{Fingerprint: fingerprint.String()})
	if err != nil {
		return Receipt{}, fmt.Errorf("marshal anchor request: %w", err)
	}

	status, respBody, err := c.do(ctx, http.MethodPost, "/api/v1/anchors", body)
	if err != nil {
		ledgerErrors.WithLabelValues("anchor", "transport").Inc()
		span.SetStatus(codes.Error, "submission failed")
		return Receipt{}, dErrors.Wrap(err, dErrors.CodeAnchorFailed, "anchor submission failed")
	}

	switch status {
	case http.StatusOK, http.StatusAccepted:
		// submitted; fall through to confirmation
	case http.StatusPaymentRequired:
		ledgerErrors.WithLabelValues("anchor", "fee").Inc()
		return Receipt{}, dErrors.New(dErrors.CodeAnchorFailed, "anchor rejected: insufficient gateway funds")
	case http.StatusConflict:
		// The ledger's own uniqueness check fired: the fingerprint is already
		// anchored. Treat as success by reading the existing state.
		return Receipt{}, dErrors.New(dErrors.CodeConflict, "fingerprint already anchored")
	default:
		ledgerErrors.WithLabelValues("anchor", "rejected").Inc()
		return Receipt{}, dErrors.New(dErrors.CodeAnchorFailed, gatewayMessage(respBody, "anchor rejected by gateway"))
	}

	var submitted contract.AnchorResponse
	if err := json.Unmarshal(respBody, &submitted); err != nil || submitted.TxRef == "" {
		ledgerErrors.WithLabelValues("anchor", "contract").Inc()
		return Receipt{}, dErrors.New(dErrors.CodeAnchorFailed, "gateway returned malformed anchor response")
	}

	receipt, err := c.awaitConfirmation(ctx, submitted.TxRef)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeAnchorTimeout) {
			ledgerErrors.WithLabelValues("anchor", "timeout").Inc()
			span.SetStatus(codes.Error, "confirmation timeout")
		}
		return Receipt{}, err
	}

	anchorLatency.Observe(time.Since(start).Seconds())
	return receipt, nil
}

// ReadStatus is the fee-free, read-only view of a fingerprint. Transport
// failures surface as CodeLedgerUnreachable so callers can degrade to
// "cannot confirm" instead of claiming invalid.
func (c *GatewayClient) ReadStatus(ctx context.Context, fingerprint id.Fingerprint) (Status, error) {
	status, respBody, err := c.do(ctx, http.MethodGet, "/api/v1/fingerprints/"+fingerprint.String(), nil)
	if err != nil {
		ledgerErrors.WithLabelValues("read_status", "transport").Inc()
		return Status{}, dErrors.Wrap(err, dErrors.CodeLedgerUnreachable, "ledger status read failed")
	}

	switch status {
	case http.StatusOK:
		// fall through to parse
	case http.StatusNotFound:
		return Status{Exists: false}, nil
	default:
		ledgerErrors.WithLabelValues("read_status", "rejected").Inc()
		return Status{}, dErrors.New(dErrors.CodeLedgerUnreachable, gatewayMessage(respBody, "unexpected gateway status"))
	}

	var parsed contract.StatusResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		ledgerErrors.WithLabelValues("read_status", "contract").Inc()
		return Status{}, dErrors.New(dErrors.CodeLedgerUnreachable, "gateway returned malformed status response")
	}

	out := Status{
		Exists:    parsed.Exists,
		Revoked:   parsed.Revoked,
		IssuerRef: parsed.IssuerRef,
	}
	if parsed.IssuedAt > 0 {
		out.IssuedAt = time.Unix(parsed.IssuedAt, 0).UTC()
	}
	return out, nil
}

// Revoke submits a revoke transaction restricted to the anchoring issuer and
// blocks until confirmed. The ledger enforces issuer authorization; this
// client trusts its verdict.
func (c *GatewayClient) Revoke(ctx context.Context, fingerprint id.Fingerprint, issuerRef string) (Receipt, error) {
	ctx, span := tracer.Start(ctx, "ledger.Revoke")
	span.SetAttributes(attribute.String("fingerprint", fingerprint.String()))
	defer span.End()

	if issuerRef == "" {
		issuerRef = c.issuerRef
	}

	body, err := json.Marshal(contract.RevokeRequest{
		Fingerprint: fingerprint.String(),
		IssuerRef:   issuerRef,
	})
	if err != nil {
		return Receipt{}, fmt.Errorf("marshal revoke request: %w", err)
	}

	status, respBody, err := c.do(ctx, http.MethodPost, "/api/v1/revocations", body)
	if err != nil {
		ledgerErrors.WithLabelValues("revoke", "transport").Inc()
		span.SetStatus(codes.Error, "submission failed")
		return Receipt{}, dErrors.Wrap(err, dErrors.CodeLedgerUnreachable, "revoke submission failed")
	}

	switch status {
	case http.StatusOK, http.StatusAccepted:
		// submitted; fall through to confirmation
	case http.StatusForbidden:
		return Receipt{}, dErrors.New(dErrors.CodeForbidden, "caller is not the anchoring issuer")
	case http.StatusConflict:
		return Receipt{}, dErrors.New(dErrors.CodeAlreadyRevoked, "fingerprint already revoked on ledger")
	case http.StatusNotFound:
		return Receipt{}, dErrors.New(dErrors.CodeNotFound, "fingerprint not anchored")
	default:
		ledgerErrors.WithLabelValues("revoke", "rejected").Inc()
		return Receipt{}, dErrors.New(dErrors.CodeInternal, gatewayMessage(respBody, "revoke rejected by gateway"))
	}

	var submitted contract.RevokeResponse
	if err := json.Unmarshal(respBody, &submitted); err != nil || submitted.TxRef == "" {
		ledgerErrors.WithLabelValues("revoke", "contract").Inc()
		return Receipt{}, dErrors.New(dErrors.CodeInternal, "gateway returned malformed revoke response")
	}

	return c.awaitConfirmation(ctx, submitted.TxRef)
}

// awaitConfirmation polls the transaction status until confirmed, failed, or
// the confirmation window elapses. Elapsing after submission means the
// outcome is unknown, not that the transaction failed.
func (c *GatewayClient) awaitConfirmation(ctx context.Context, txRef string) (Receipt, error) {
	deadline := time.Now().Add(c.confirmWindow)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		status, respBody, err := c.do(ctx, http.MethodGet, "/api/v1/tx/"+txRef, nil)
		if err == nil && status == http.StatusOK {
			var tx contract.TxStatusResponse
			if jsonErr := json.Unmarshal(respBody, &tx); jsonErr == nil {
				if tx.Confirmed {
					return Receipt{TxRef: txRef}, nil
				}
				if tx.Failed {
					return Receipt{}, dErrors.New(dErrors.CodeAnchorFailed, gatewayReason(tx.Reason, "transaction failed on ledger"))
				}
			}
		}
		// Transient poll errors are retried until the window closes; the
		// transaction may still confirm underneath them.

		if time.Now().After(deadline) {
			return Receipt{}, dErrors.New(dErrors.CodeAnchorTimeout, "confirmation window elapsed; transaction outcome unknown")
		}

		select {
		case <-ctx.Done():
			return Receipt{}, dErrors.Wrap(ctx.Err(), dErrors.CodeAnchorTimeout, "context cancelled awaiting confirmation; transaction outcome unknown")
		case <-ticker.C:
		}
	}
}

func (c *GatewayClient) do(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return 0, nil, fmt.Errorf("gateway request timeout: %w", err)
		}
		return 0, nil, fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read gateway response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

func gatewayMessage(body []byte, fallback string) string {
	var errResp contract.ErrorResponse
	if json.Unmarshal(body, &errResp) == nil && errResp.Message != "" {
		return errResp.Message
	}
	return fallback
}

func gatewayReason(reason, fallback string) string {
	if reason != "" {
		return reason
	}
	return fallback
}
