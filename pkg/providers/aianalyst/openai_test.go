package aianalyst

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOpenAIBackend(t *testing.T, handler http.HandlerFunc) *openAIBackend {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	b := newOpenAIBackend("test-key", "")
	b.endpoint = srv.URL
	return b
}

func TestNewOpenAIBackend_DefaultModel(t *testing.T) {
	assert.Equal(t, "gpt-4o-mini", newOpenAIBackend("k", "").model)
	assert.Equal(t, "gpt-4o", newOpenAIBackend("k", "gpt-4o").model)
}

func TestOpenAIBackend_Complete(t *testing.T) {
	var gotAuth, gotContentType string
	var gotPayload map[string]any
	b := newTestOpenAIBackend(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		w.Write([]byte(`{"choices": [{"message": {"content": "{\"findings\": []}"}}]}`))
	})

	text, err := b.Complete(context.Background(), "analyze this")

	require.NoError(t, err)
	assert.Equal(t, `{"findings": []}`, text)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "gpt-4o-mini", gotPayload["model"])
	assert.Equal(t, float64(0), gotPayload["temperature"])

	messages, ok := gotPayload["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 1)
	message := messages[0].(map[string]any)
	assert.Equal(t, "user", message["role"])
	assert.Equal(t, "analyze this", message["content"])
}

func TestOpenAIBackend_CompleteErrorStatus(t *testing.T) {
	b := newTestOpenAIBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := b.Complete(context.Background(), "analyze this")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "OpenAI API returned status")
}

func TestOpenAIBackend_CompleteNoChoices(t *testing.T) {
	b := newTestOpenAIBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices": []}`))
	})

	_, err := b.Complete(context.Background(), "analyze this")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no response choices")
}
