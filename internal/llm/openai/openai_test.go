package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatServer(t *testing.T, choices []string, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		var req goopenai.ChatCompletionRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "tet_bot", req.Model)
		if assert.Len(t, req.Messages, 1) {
			assert.Equal(t, goopenai.ChatMessageRoleUser, req.Messages[0].Role)
			assert.Contains(t, req.Messages[0].Content, "Question:")
		}

		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"model not loaded","type":"server_error"}}`))
			return
		}
		resp := goopenai.ChatCompletionResponse{Model: req.Model}
		for i, c := range choices {
			resp.Choices = append(resp.Choices, goopenai.ChatCompletionChoice{
				Index:   i,
				Message: goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleAssistant, Content: c},
			})
		}
		assert.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGenerate_ReturnsFirstChoice(t *testing.T) {
	srv := chatServer(t, []string{"  Capacitors store charge.\n"}, http.StatusOK)
	c, err := NewClient(Config{BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)
	assert.Equal(t, "tet_bot", c.Model())

	out, err := c.Generate(context.Background(), "Question: what is a capacitor?")
	require.NoError(t, err)
	assert.Equal(t, "Capacitors store charge.", out)
}

func TestGenerate_NoChoices(t *testing.T) {
	srv := chatServer(t, nil, http.StatusOK)
	c, err := NewClient(Config{BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), "Question: ?")
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestGenerate_ServerError(t *testing.T) {
	srv := chatServer(t, nil, http.StatusInternalServerError)
	c, err := NewClient(Config{BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), "Question: ?")
	assert.Error(t, err)
}

func TestNewClient_RequiresKeyForHostedAPI(t *testing.T) {
	t.Setenv("RAGCHAT_TEST_KEY", "")
	_, err := NewClient(Config{BaseURL: "https://api.openai.com/v1", APIKeyEnv: "RAGCHAT_TEST_KEY"})
	assert.Error(t, err)

	t.Setenv("RAGCHAT_TEST_KEY", "sk-test")
	_, err = NewClient(Config{BaseURL: "https://api.openai.com/v1", APIKeyEnv: "RAGCHAT_TEST_KEY"})
	assert.NoError(t, err)
}
