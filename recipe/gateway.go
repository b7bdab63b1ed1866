// Package recipe mediates all interaction with the generative-language
// service. Its contract is no-throw: every call resolves with a usable
// value, falling back to a deterministic, input-derived suggestion when the
// external service fails or returns an unusable payload.
package recipe

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/freshroots/storefront/ai"
	"github.com/freshroots/storefront/ai/gemini"
	"github.com/freshroots/storefront/core"
	"github.com/freshroots/storefront/store"
)

// Suggestion is the structured recipe returned to the UI. Transient:
// created per request, replaced or cleared per request, never persisted.
type Suggestion struct {
	RecipeName    string   `json:"recipeName"`
	Ingredients   []string `json:"ingredients"`
	Instructions  []string `json:"instructions"`
	EstimatedTime string   `json:"estimatedTime"`
	Tips          string   `json:"tips"`
}

// Result wraps a Suggestion with the path that produced it. Callers never
// see an error from the gateway; FellBack is the only trace of failure.
type Result struct {
	Suggestion Suggestion `json:"suggestion"`
	FellBack   bool       `json:"fellBack"`
}

const (
	fallbackRecipeName    = "Farm Fresh Medley"
	fallbackEstimatedTime = "15 mins"
	fallbackTips          = "Always use the freshest ingredients for the best results."

	emptyInsight    = "No insights found for this product."
	fallbackInsight = "Nutritional facts are currently unavailable."

	recipePrompt = `I have these groceries in my cart: %s.
Suggest a creative recipe I can cook using primarily these ingredients.
If I'm missing something important, mention it as a "pro tip".`

	insightPrompt = "Provide a very brief (2 sentences max) nutritional fun fact about %s."
)

var fallbackInstructions = []string{
	"Rinse all ingredients thoroughly.",
	"Sauté in cold-pressed oil until tender.",
	"Season with salt and pepper to taste.",
}

// ClientFactory builds the AI client used for one request. The gateway
// invokes it per call so credentials are re-resolved each time rather than
// cached for the process lifetime.
type ClientFactory func(model string) core.AIClient

// Gateway formats prompts, enforces the response schema and supplies the
// fallback path.
type Gateway struct {
	cfg       core.AIServiceConfig
	logger    core.Logger
	telemetry core.Telemetry
	memory    core.Memory
	ttl       time.Duration
	newClient ClientFactory
}

// GatewayOption configures a Gateway
type GatewayOption func(*Gateway)

// WithLogger sets the gateway logger
func WithLogger(logger core.Logger) GatewayOption {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// WithTelemetry sets the telemetry provider
func WithTelemetry(telemetry core.Telemetry) GatewayOption {
	return func(g *Gateway) {
		g.telemetry = telemetry
	}
}

// WithMemory sets the transient store used for the insight cache
func WithMemory(memory core.Memory, ttl time.Duration) GatewayOption {
	return func(g *Gateway) {
		g.memory = memory
		g.ttl = ttl
	}
}

// WithClientFactory overrides client construction (tests inject fakes here)
func WithClientFactory(factory ClientFactory) GatewayOption {
	return func(g *Gateway) {
		g.newClient = factory
	}
}

// NewGateway creates a recipe gateway for the given AI service config.
func NewGateway(cfg core.AIServiceConfig, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		cfg:       cfg,
		logger:    &core.NoOpLogger{},
		telemetry: &core.NoOpTelemetry{},
		memory:    core.NewMemoryStore(),
		ttl:       6 * time.Hour,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.newClient == nil {
		g.newClient = func(model string) core.AIClient {
			// A fresh client per call keeps API key resolution at call
			// time, so rotated keys apply without a restart.
			return gemini.NewClient(
				ai.WithBaseURL(cfg.BaseURL),
				ai.WithModel(model),
				ai.WithTimeout(cfg.Timeout),
				ai.WithTemperature(cfg.Temperature),
				ai.WithMaxTokens(cfg.MaxTokens),
				ai.WithLogger(g.logger),
				ai.WithTelemetry(g.telemetry),
			)
		}
	}
	return g
}

// suggestionSchema declares the strict output shape. All five fields are
// mandatory.
func suggestionSchema() *core.Schema {
	return &core.Schema{
		Type: "object",
		Properties: map[string]*core.Schema{
			"recipeName": {Type: "string"},
			"ingredients": {
				Type:  "array",
				Items: &core.Schema{Type: "string"},
			},
			"instructions": {
				Type:  "array",
				Items: &core.Schema{Type: "string"},
			},
			"estimatedTime": {Type: "string"},
			"tips":          {Type: "string"},
		},
		Required: []string{"recipeName", "ingredients", "instructions", "estimatedTime", "tips"},
	}
}

// SuggestRecipe takes a read-only snapshot of the cart and returns a
// recipe. It always returns a value: any failure (transport, quota, empty
// or schema-violating payload) is logged and answered with the fallback.
func (g *Gateway) SuggestRecipe(ctx context.Context, items []store.CartItem) Result {
	ctx, span := g.telemetry.StartSpan(ctx, "recipe.suggest")
	defer span.End()
	span.SetAttribute("cart.items", len(items))

	clauses := make([]string, len(items))
	for i, item := range items {
		clauses[i] = fmt.Sprintf("%dx %s", item.Quantity, item.Name)
	}
	prompt := fmt.Sprintf(recipePrompt, strings.Join(clauses, ", "))

	client := g.newClient(g.cfg.RecipeModel)
	resp, err := client.GenerateResponse(ctx, prompt, &core.AIOptions{
		Model:            g.cfg.RecipeModel,
		ResponseMIMEType: "application/json",
		ResponseSchema:   suggestionSchema(),
	})
	if err != nil {
		g.logFallback("recipe_generation", err)
		span.RecordError(err)
		return Result{Suggestion: g.fallback(items), FellBack: true}
	}

	suggestion, err := parseSuggestion(resp.Content)
	if err != nil {
		g.logFallback("recipe_parse", err)
		span.RecordError(err)
		return Result{Suggestion: g.fallback(items), FellBack: true}
	}

	span.SetAttribute("recipe.name", suggestion.RecipeName)
	return Result{Suggestion: suggestion}
}

// parseSuggestion decodes the model reply and checks every schema-required
// field is present and non-empty.
func parseSuggestion(content string) (Suggestion, error) {
	var s Suggestion
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &s); err != nil {
		return Suggestion{}, fmt.Errorf("%w: %v", core.ErrSchemaMismatch, err)
	}
	switch {
	case s.RecipeName == "":
		return Suggestion{}, fmt.Errorf("%w: missing recipeName", core.ErrSchemaMismatch)
	case len(s.Ingredients) == 0:
		return Suggestion{}, fmt.Errorf("%w: missing ingredients", core.ErrSchemaMismatch)
	case len(s.Instructions) == 0:
		return Suggestion{}, fmt.Errorf("%w: missing instructions", core.ErrSchemaMismatch)
	case s.EstimatedTime == "":
		return Suggestion{}, fmt.Errorf("%w: missing estimatedTime", core.ErrSchemaMismatch)
	case s.Tips == "":
		return Suggestion{}, fmt.Errorf("%w: missing tips", core.ErrSchemaMismatch)
	}
	return s, nil
}

// fallback derives a fixed suggestion from the input cart and static
// constants. It makes no external calls.
func (g *Gateway) fallback(items []store.CartItem) Suggestion {
	ingredients := make([]string, len(items))
	for i, item := range items {
		ingredients[i] = item.Name
	}
	return Suggestion{
		RecipeName:    fallbackRecipeName,
		Ingredients:   ingredients,
		Instructions:  append([]string(nil), fallbackInstructions...),
		EstimatedTime: fallbackEstimatedTime,
		Tips:          fallbackTips,
	}
}

// NutritionInsight returns a short fact about a product. Replies are
// cached with a TTL keyed by product name; any failure yields a fixed
// fallback string, never an error.
func (g *Gateway) NutritionInsight(ctx context.Context, productName string) string {
	ctx, span := g.telemetry.StartSpan(ctx, "recipe.nutrition_insight")
	defer span.End()
	span.SetAttribute("product.name", productName)

	cacheKey := "insight:" + strings.ToLower(productName)
	if cached, err := g.memory.Get(ctx, cacheKey); err == nil && cached != "" {
		return cached
	}

	client := g.newClient(g.cfg.InsightModel)
	resp, err := client.GenerateResponse(ctx, fmt.Sprintf(insightPrompt, productName), &core.AIOptions{
		Model: g.cfg.InsightModel,
	})
	if err != nil {
		g.logFallback("nutrition_insight", err)
		span.RecordError(err)
		return fallbackInsight
	}

	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return emptyInsight
	}

	if err := g.memory.Set(ctx, cacheKey, text, g.ttl); err != nil {
		g.logger.Warn("Insight cache write failed", map[string]interface{}{
			"operation": "insight_cache_set",
			"product":   productName,
			"error":     err.Error(),
		})
	}
	return text
}

// logFallback records a failure path. Logging is diagnostic only; it never
// blocks or alters the returned value.
func (g *Gateway) logFallback(operation string, err error) {
	g.logger.Error("Generative call failed, serving fallback", map[string]interface{}{
		"operation": operation,
		"error":     err.Error(),
		"fallback":  true,
	})
}
