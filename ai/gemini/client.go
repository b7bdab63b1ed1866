// Package gemini implements core.AIClient against the native Gemini
// GenerateContent API. Calls are single-attempt: the storefront's failure
// policy is a deterministic fallback at the gateway, not retries here.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/freshroots/storefront/ai"
	"github.com/freshroots/storefront/core"
)

const (
	// DefaultBaseURL is the default Gemini API endpoint
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
)

// Client implements core.AIClient for Google Gemini
type Client struct {
	*ai.BaseClient
	apiKey  string
	baseURL string
}

// NewClient creates a Gemini client from options. An unset API key is
// resolved from the environment on every request, so rotated credentials
// take effect without restarting the process.
func NewClient(opts ...ai.Option) *Client {
	config := &ai.Config{
		Timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(config)
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = os.Getenv("GEMINI_BASE_URL")
		if baseURL == "" {
			baseURL = DefaultBaseURL
		}
	}

	base := ai.NewBaseClient(config.Timeout, config.Logger)
	base.DefaultModel = "gemini-3-flash-preview"
	if config.Model != "" {
		base.DefaultModel = config.Model
	}
	if config.Temperature > 0 {
		base.DefaultTemperature = config.Temperature
	}
	if config.MaxTokens > 0 {
		base.DefaultMaxTokens = config.MaxTokens
	}
	if config.Telemetry != nil {
		base.Telemetry = config.Telemetry
	}

	return &Client{
		BaseClient: base,
		apiKey:     config.APIKey,
		baseURL:    baseURL,
	}
}

// ResolveAPIKey returns the key to use for a request, preferring an
// explicitly configured key over GEMINI_API_KEY over GOOGLE_API_KEY.
func (c *Client) ResolveAPIKey() string {
	if c.apiKey != "" {
		return c.apiKey
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		return key
	}
	return os.Getenv("GOOGLE_API_KEY")
}

// GenerateResponse generates a response using Gemini's native
// GenerateContent API. When options carry a ResponseSchema the request
// declares it, with every required field mandatory, and constrains the
// reply MIME type.
func (c *Client) GenerateResponse(ctx context.Context, prompt string, options *core.AIOptions) (*core.AIResponse, error) {
	ctx, span := c.StartSpan(ctx, "ai.generate_response")
	defer span.End()

	span.SetAttribute("ai.provider", "gemini")
	span.SetAttribute("ai.prompt_length", len(prompt))

	apiKey := c.ResolveAPIKey()
	if apiKey == "" {
		err := fmt.Errorf("gemini API key not configured")
		c.Logger.Error("Gemini request failed - API key not configured", map[string]interface{}{
			"operation": "ai_request_error",
			"provider":  "gemini",
			"error":     "api_key_missing",
		})
		span.RecordError(err)
		return nil, err
	}

	options = c.ApplyDefaults(options)
	span.SetAttribute("ai.model", options.Model)

	c.LogRequest("gemini", options.Model, prompt)
	startTime := time.Now()

	reqBody := GeminiRequest{
		Contents: []Content{
			{
				Role:  "user",
				Parts: []Part{{Text: prompt}},
			},
		},
		GenerationConfig: &GenerationConfig{
			Temperature:      options.Temperature,
			MaxOutputTokens:  options.MaxTokens,
			ResponseMimeType: options.ResponseMIMEType,
			ResponseSchema:   toWireSchema(options.ResponseSchema),
		},
	}
	if options.SystemPrompt != "" {
		reqBody.SystemInstruction = &SystemInstruction{
			Parts: []Part{{Text: options.SystemPrompt}},
		}
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		c.Logger.Error("Gemini request failed - marshal error", map[string]interface{}{
			"operation": "ai_request_error",
			"provider":  "gemini",
			"error":     err.Error(),
			"phase":     "request_preparation",
		})
		span.RecordError(err)
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	// Format: /models/{model}:generateContent?key={api_key}
	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, options.Model, apiKey)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		c.Logger.Error("Gemini request failed - send error", map[string]interface{}{
			"operation": "ai_request_error",
			"provider":  "gemini",
			"error":     err.Error(),
			"phase":     "request_execution",
		})
		span.RecordError(err)
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.Logger.Error("Gemini request failed - API error", map[string]interface{}{
			"operation":   "ai_request_error",
			"provider":    "gemini",
			"status_code": resp.StatusCode,
			"phase":       "api_response",
		})
		apiErr := c.HandleError(resp.StatusCode, body, "Gemini")
		span.RecordError(apiErr)
		span.SetAttribute("http.status_code", resp.StatusCode)
		return nil, apiErr
	}

	var geminiResp GeminiResponse
	if err := json.Unmarshal(body, &geminiResp); err != nil {
		c.Logger.Error("Gemini request failed - parse response error", map[string]interface{}{
			"operation": "ai_request_error",
			"provider":  "gemini",
			"error":     err.Error(),
			"phase":     "response_parse",
		})
		span.RecordError(err)
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(geminiResp.Candidates) == 0 {
		noCandidatesErr := fmt.Errorf("%w: no candidates in Gemini response", core.ErrEmptyResponse)
		c.Logger.Error("Gemini request failed - no candidates", map[string]interface{}{
			"operation": "ai_request_error",
			"provider":  "gemini",
			"error":     "no_candidates_returned",
			"phase":     "response_validation",
		})
		span.RecordError(noCandidatesErr)
		return nil, noCandidatesErr
	}

	var content string
	for _, part := range geminiResp.Candidates[0].Content.Parts {
		content += part.Text
	}
	if content == "" {
		emptyErr := fmt.Errorf("%w: no text content in Gemini response", core.ErrEmptyResponse)
		span.RecordError(emptyErr)
		return nil, emptyErr
	}

	result := &core.AIResponse{
		Content: content,
		Model:   options.Model,
		Usage: core.TokenUsage{
			PromptTokens:     geminiResp.UsageMetadata.PromptTokenCount,
			CompletionTokens: geminiResp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      geminiResp.UsageMetadata.TotalTokenCount,
		},
	}

	span.SetAttribute("ai.prompt_tokens", result.Usage.PromptTokens)
	span.SetAttribute("ai.completion_tokens", result.Usage.CompletionTokens)
	span.SetAttribute("ai.total_tokens", result.Usage.TotalTokens)
	span.SetAttribute("ai.response_length", len(result.Content))

	c.LogResponse("gemini", result.Model, result.Usage, time.Since(startTime))

	return result, nil
}
