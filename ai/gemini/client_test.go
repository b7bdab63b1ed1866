package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freshroots/storefront/ai"
	"github.com/freshroots/storefront/core"
)

func geminiReply(text string) string {
	return `{
		"candidates": [{"content": {"role": "model", "parts": [{"text": ` + jsonString(text) + `}]}, "finishReason": "STOP"}],
		"usageMetadata": {"promptTokenCount": 12, "candidatesTokenCount": 34, "totalTokenCount": 46}
	}`
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func newServerClient(t *testing.T, handler http.HandlerFunc, opts ...ai.Option) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	opts = append([]ai.Option{
		ai.WithAPIKey("test-key"),
		ai.WithBaseURL(server.URL),
		ai.WithModel("test-model"),
		ai.WithTimeout(5 * time.Second),
	}, opts...)
	return NewClient(opts...)
}

func TestGenerateResponseSuccess(t *testing.T) {
	var gotPath, gotKey string
	var gotBody GeminiRequest
	client := newServerClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(geminiReply("Hello from Gemini")))
	})

	resp, err := client.GenerateResponse(context.Background(), "say hello", nil)
	require.NoError(t, err)

	assert.Equal(t, "Hello from Gemini", resp.Content)
	assert.Equal(t, "test-model", resp.Model)
	assert.Equal(t, 12, resp.Usage.PromptTokens)
	assert.Equal(t, 34, resp.Usage.CompletionTokens)
	assert.Equal(t, 46, resp.Usage.TotalTokens)

	assert.Equal(t, "/models/test-model:generateContent", gotPath)
	assert.Equal(t, "test-key", gotKey)
	require.Len(t, gotBody.Contents, 1)
	assert.Equal(t, "user", gotBody.Contents[0].Role)
	assert.Equal(t, "say hello", gotBody.Contents[0].Parts[0].Text)
}

func TestGenerateResponseSendsResponseSchema(t *testing.T) {
	var gotBody GeminiRequest
	client := newServerClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(geminiReply(`{"ok": true}`)))
	})

	schema := &core.Schema{
		Type: "object",
		Properties: map[string]*core.Schema{
			"recipeName":  {Type: "string"},
			"ingredients": {Type: "array", Items: &core.Schema{Type: "string"}},
		},
		Required: []string{"recipeName", "ingredients"},
	}
	_, err := client.GenerateResponse(context.Background(), "p", &core.AIOptions{
		ResponseMIMEType: "application/json",
		ResponseSchema:   schema,
	})
	require.NoError(t, err)

	cfg := gotBody.GenerationConfig
	require.NotNil(t, cfg)
	assert.Equal(t, "application/json", cfg.ResponseMimeType)
	require.NotNil(t, cfg.ResponseSchema)
	assert.Equal(t, "OBJECT", cfg.ResponseSchema.Type, "wire types are uppercase")
	assert.Equal(t, "STRING", cfg.ResponseSchema.Properties["recipeName"].Type)
	assert.Equal(t, "ARRAY", cfg.ResponseSchema.Properties["ingredients"].Type)
	assert.Equal(t, "STRING", cfg.ResponseSchema.Properties["ingredients"].Items.Type)
	assert.Equal(t, []string{"recipeName", "ingredients"}, cfg.ResponseSchema.Required)
}

func TestGenerateResponseSystemPrompt(t *testing.T) {
	var gotBody GeminiRequest
	client := newServerClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(geminiReply("ok")))
	})

	_, err := client.GenerateResponse(context.Background(), "p", &core.AIOptions{
		SystemPrompt: "You are a grocer.",
	})
	require.NoError(t, err)

	require.NotNil(t, gotBody.SystemInstruction)
	assert.Equal(t, "You are a grocer.", gotBody.SystemInstruction.Parts[0].Text)
}

func TestGenerateResponseSingleAttempt(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantMsg string
	}{
		{"unauthorized", http.StatusUnauthorized, "invalid or missing API key"},
		{"rate limited", http.StatusTooManyRequests, "rate limit exceeded"},
		{"server error", http.StatusInternalServerError, "temporarily unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			client := newServerClient(t, func(w http.ResponseWriter, r *http.Request) {
				calls++
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error": {"message": "nope"}}`))
			})

			_, err := client.GenerateResponse(context.Background(), "p", nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
			assert.Equal(t, 1, calls, "errors are returned, never retried")
		})
	}
}

func TestGenerateResponseEmptyCandidates(t *testing.T) {
	client := newServerClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates": [], "usageMetadata": {}}`))
	})

	_, err := client.GenerateResponse(context.Background(), "p", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrEmptyResponse))
}

func TestGenerateResponseEmptyTextContent(t *testing.T) {
	client := newServerClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates": [{"content": {"role": "model", "parts": []}}]}`))
	})

	_, err := client.GenerateResponse(context.Background(), "p", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrEmptyResponse))
}

func TestGenerateResponseConcatenatesParts(t *testing.T) {
	client := newServerClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "Hello "}, {"text": "world"}]}}]
		}`))
	})

	resp, err := client.GenerateResponse(context.Background(), "p", nil)
	require.NoError(t, err)
	assert.Equal(t, "Hello world", resp.Content)
}

func TestGenerateResponseMissingAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")

	client := NewClient(ai.WithBaseURL("http://localhost:0"))
	_, err := client.GenerateResponse(context.Background(), "p", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key not configured")
}

func TestResolveAPIKeyPrecedence(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "from-gemini-env")
	t.Setenv("GOOGLE_API_KEY", "from-google-env")

	explicit := NewClient(ai.WithAPIKey("explicit"))
	assert.Equal(t, "explicit", explicit.ResolveAPIKey())

	fromEnv := NewClient()
	assert.Equal(t, "from-gemini-env", fromEnv.ResolveAPIKey())

	t.Setenv("GEMINI_API_KEY", "")
	assert.Equal(t, "from-google-env", fromEnv.ResolveAPIKey())
}

func TestResolveAPIKeyReadAtCallTime(t *testing.T) {
	client := NewClient()

	t.Setenv("GEMINI_API_KEY", "first-key")
	assert.Equal(t, "first-key", client.ResolveAPIKey())

	// Rotated keys apply without rebuilding the client
	t.Setenv("GEMINI_API_KEY", "rotated-key")
	assert.Equal(t, "rotated-key", client.ResolveAPIKey())
}

func TestApplyDefaults(t *testing.T) {
	client := NewClient(ai.WithModel("configured-model"))

	opts := client.ApplyDefaults(nil)
	assert.Equal(t, "configured-model", opts.Model)
	assert.Equal(t, float32(0.7), opts.Temperature)
	assert.Equal(t, 1000, opts.MaxTokens)

	opts = client.ApplyDefaults(&core.AIOptions{Model: "override", Temperature: 0.2, MaxTokens: 50})
	assert.Equal(t, "override", opts.Model)
	assert.Equal(t, float32(0.2), opts.Temperature)
	assert.Equal(t, 50, opts.MaxTokens)
}
