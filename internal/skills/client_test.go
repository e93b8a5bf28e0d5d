package skills

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "attestor/pkg/domain-errors"
)

func TestExtract(t *testing.T) {
	t.Run("successful extraction", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			require.Equal(t, "/api/v1/extract", r.URL.Path)
			require.Equal(t, "secret", r.Header.Get("X-API-Key"))

			var req extractRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "Completed advanced Go training", req.Text)

			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(extractResponse{
				IsValid: true,
				Skills:  []string{"go", "backend"},
			})
		}))
		defer srv.Close()

		client := NewHTTPClient(srv.URL, "secret", 5*time.Second)
		result, err := client.Extract(context.Background(), "Completed advanced Go training")
		require.NoError(t, err)
		assert.True(t, result.Valid)
		assert.Equal(t, []string{"go", "backend"}, result.Skills)
	})

	t.Run("invalid text carries suggestions", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(extractResponse{
				IsValid:     false,
				Suggestions: []string{"did you mean: golang"},
			})
		}))
		defer srv.Close()

		client := NewHTTPClient(srv.URL, "secret", 5*time.Second)
		result, err := client.Extract(context.Background(), "gibberish")
		require.NoError(t, err)
		assert.False(t, result.Valid)
		assert.Empty(t, result.Skills)
		assert.NotEmpty(t, result.Suggestions)
	})

	t.Run("service rejection surfaces the message", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(errorResponse{Error: "bad_request", Message: "text too long"})
		}))
		defer srv.Close()

		client := NewHTTPClient(srv.URL, "secret", 5*time.Second)
		_, err := client.Extract(context.Background(), "x")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeExtraction))
		assert.Contains(t, err.Error(), "text too long")
	})

	t.Run("unreachable service", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()

		client := NewHTTPClient(srv.URL, "secret", time.Second)
		_, err := client.Extract(context.Background(), "anything")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeExtraction))
	})

	t.Run("malformed response body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("not json"))
		}))
		defer srv.Close()

		client := NewHTTPClient(srv.URL, "secret", time.Second)
		_, err := client.Extract(context.Background(), "anything")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeExtraction))
	})
}
