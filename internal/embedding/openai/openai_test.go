package openai

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func embeddingServer(t *testing.T, vec []float32, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		var req map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req["model"])

		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  "nomic-embed-text",
			"data": []map[string]any{
				{"object": "embedding", "index": 0, "embedding": vec},
			},
		})
	}))
}

func TestNewClient_RequiresKeyForOpenAI(t *testing.T) {
	t.Setenv("RAGCHAT_TEST_KEY", "")
	_, err := NewClient(Config{APIKeyEnv: "RAGCHAT_TEST_KEY"})
	assert.Error(t, err)
}

func TestNewClient_LocalServerNeedsNoKey(t *testing.T) {
	c, err := NewClient(Config{BaseURL: "http://localhost:11434/v1", Model: "nomic-embed-text"})
	require.NoError(t, err)
	assert.Equal(t, "openai:nomic-embed-text", c.Name())
}

func TestEmbed_NormalisesAndLearnsDimension(t *testing.T) {
	srv := embeddingServer(t, []float32{3, 4}, http.StatusOK)
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL + "/v1", Model: "nomic-embed-text"})
	require.NoError(t, err)

	v, err := c.Embed(context.Background(), "capacitor")
	require.NoError(t, err)
	require.Len(t, v, 2)
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)
	assert.InDelta(t, 1.0, math.Hypot(float64(v[0]), float64(v[1])), 1e-6)
	assert.Equal(t, 2, c.Dimension())
}

func TestEmbed_DimensionMismatch(t *testing.T) {
	srv := embeddingServer(t, []float32{1, 0, 0}, http.StatusOK)
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL + "/v1", Model: "nomic-embed-text", Dimension: 2})
	require.NoError(t, err)

	_, err = c.Embed(context.Background(), "capacitor")
	assert.Error(t, err)
}

func TestEmbed_ServerErrorPropagates(t *testing.T) {
	srv := embeddingServer(t, nil, http.StatusInternalServerError)
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL + "/v1", Model: "nomic-embed-text"})
	require.NoError(t, err)

	_, err = c.Embed(context.Background(), "capacitor")
	assert.Error(t, err)
}

func TestEmbed_RejectsEmptyText(t *testing.T) {
	c, err := NewClient(Config{BaseURL: "http://localhost:11434/v1"})
	require.NoError(t, err)
	_, err = c.Embed(context.Background(), "   ")
	assert.Error(t, err)
}
