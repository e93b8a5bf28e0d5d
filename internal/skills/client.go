package skills

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	dErrors "attestor/pkg/domain-errors"
)

// HTTPClient implements Extractor by calling the external skill-extraction
// service.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Ensure HTTPClient implements Extractor.
var _ Extractor = (*HTTPClient)(nil)

// HTTPClientOption configures the HTTPClient.
type HTTPClientOption func(*HTTPClient)

// WithHTTPClient sets a custom HTTP client (for testing).
func WithHTTPClient(client *http.Client) HTTPClientOption {
	return func(c *HTTPClient) {
		c.httpClient = client
	}
}

// NewHTTPClient creates a new HTTP-based skill extraction client.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration, opts ...HTTPClientOption) *HTTPClient {
	c := &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type extractRequest struct {
	Text string `json:"text"`
}

type extractResponse struct {
	IsValid     bool     `json:"is_valid"`
	Skills      []string `json:"skills"`
	Suggestions []string `json:"suggestions"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Extract sends claim text for skill extraction. All failures carry
// CodeExtraction so issuance policy can decide between blocking and
// degrading.
func (c *HTTPClient) Extract(ctx context.Context, text string) (Result, error) {
	reqBody, err := json.Marshal(extractRequest{Text: text})
	if err != nil {
		return Result{}, dErrors.Wrap(err, dErrors.CodeExtraction, "marshal extraction request")
	}

	url := fmt.Sprintf("%s/api/v1/extract", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return Result{}, dErrors.Wrap(err, dErrors.CodeExtraction, "create extraction request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return Result{}, dErrors.Wrap(err, dErrors.CodeExtraction, "extraction request timeout")
		}
		return Result{}, dErrors.Wrap(err, dErrors.CodeExtraction, "extraction service unreachable")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, dErrors.Wrap(err, dErrors.CodeExtraction, "read extraction response")
	}

	switch resp.StatusCode {
	case http.StatusOK:
		// fall through to parse
	case http.StatusBadRequest:
		var errResp errorResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Message != "" {
			return Result{}, dErrors.New(dErrors.CodeExtraction, errResp.Message)
		}
		return Result{}, dErrors.New(dErrors.CodeExtraction, "extraction service rejected the text")
	case http.StatusUnauthorized:
		return Result{}, dErrors.New(dErrors.CodeExtraction, "extraction service authentication failed")
	case http.StatusTooManyRequests:
		return Result{}, dErrors.New(dErrors.CodeExtraction, "extraction service rate limited")
	default:
		return Result{}, dErrors.New(dErrors.CodeExtraction, fmt.Sprintf("unexpected extraction status: %d", resp.StatusCode))
	}

	var parsed extractResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Result{}, dErrors.Wrap(err, dErrors.CodeExtraction, "parse extraction response")
	}

	return Result{
		Valid:       parsed.IsValid,
		Skills:      parsed.Skills,
		Suggestions: parsed.Suggestions,
	}, nil
}
