package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freshroots/storefront/catalog"
	"github.com/freshroots/storefront/core"
	"github.com/freshroots/storefront/recipe"
	"github.com/freshroots/storefront/session"
	"github.com/freshroots/storefront/store"
)

// scriptedAI returns a fixed response or error for every generation call.
type scriptedAI struct {
	content string
	err     error
	calls   int
}

func (s *scriptedAI) GenerateResponse(ctx context.Context, prompt string, options *core.AIOptions) (*core.AIResponse, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &core.AIResponse{Content: s.content}, nil
}

func newTestServer(t *testing.T, client core.AIClient) *httptest.Server {
	t.Helper()

	cat, err := catalog.Load()
	require.NoError(t, err)

	if client == nil {
		client = &scriptedAI{err: errors.New("no ai configured")}
	}
	gateway := recipe.NewGateway(
		core.AIServiceConfig{RecipeModel: "recipe-model", InsightModel: "insight-model"},
		recipe.WithClientFactory(func(model string) core.AIClient {
			return client
		}),
	)

	h := NewHandler(cat, store.NewStore(), session.NewManager(), gateway, &core.NoOpLogger{})
	mux := http.NewServeMux()
	h.Routes(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body interface{}, out interface{}) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func createCart(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	var created struct {
		CartID string `json:"cartId"`
	}
	resp := doJSON(t, http.MethodPost, srv.URL+"/carts", nil, &created)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NotEmpty(t, created.CartID)
	return created.CartID
}

type cartResponse struct {
	CartID string `json:"cartId"`
	Items  []struct {
		ID       string  `json:"id"`
		Name     string  `json:"name"`
		Price    float64 `json:"price"`
		Quantity int     `json:"quantity"`
	} `json:"items"`
	TotalCount int     `json:"totalCount"`
	TotalPrice float64 `json:"totalPrice"`
}

func addItem(t *testing.T, srv *httptest.Server, cartID, productID string) cartResponse {
	t.Helper()
	var view cartResponse
	resp := doJSON(t, http.MethodPost, srv.URL+"/carts/"+cartID+"/items",
		map[string]string{"productId": productID}, &view)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return view
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, nil)

	var body map[string]string
	resp := doJSON(t, http.MethodGet, srv.URL+"/health", nil, &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])
}

func TestListProducts(t *testing.T) {
	srv := newTestServer(t, nil)

	var body struct {
		Products []catalog.Product `json:"products"`
		Count    int               `json:"count"`
	}
	resp := doJSON(t, http.MethodGet, srv.URL+"/products", nil, &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, len(body.Products), body.Count)
	assert.NotEmpty(t, body.Products)

	var filtered struct {
		Products []catalog.Product `json:"products"`
	}
	doJSON(t, http.MethodGet, srv.URL+"/products?category=fruits", nil, &filtered)
	require.NotEmpty(t, filtered.Products)
	for _, p := range filtered.Products {
		assert.Equal(t, "fruits", p.Category)
	}
}

func TestGetProduct(t *testing.T) {
	srv := newTestServer(t, nil)

	var p catalog.Product
	resp := doJSON(t, http.MethodGet, srv.URL+"/products/pantry-honey", nil, &p)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Honey", p.Name)

	resp = doJSON(t, http.MethodGet, srv.URL+"/products/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListCategories(t *testing.T) {
	srv := newTestServer(t, nil)

	var body struct {
		Categories []catalog.Category `json:"categories"`
	}
	resp := doJSON(t, http.MethodGet, srv.URL+"/categories", nil, &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body.Categories)
}

func TestCartLifecycle(t *testing.T) {
	srv := newTestServer(t, nil)
	cartID := createCart(t, srv)

	view := addItem(t, srv, cartID, "oil-coldpressed")
	assert.Equal(t, 1, view.TotalCount)

	// Same product twice merges rather than duplicating
	view = addItem(t, srv, cartID, "oil-coldpressed")
	require.Len(t, view.Items, 1)
	assert.Equal(t, 2, view.Items[0].Quantity)

	view = addItem(t, srv, cartID, "pantry-honey")
	assert.Equal(t, 3, view.TotalCount)
	assert.Equal(t, 33.00, view.TotalPrice)

	var totals struct {
		TotalCount int     `json:"totalCount"`
		TotalPrice float64 `json:"totalPrice"`
	}
	resp := doJSON(t, http.MethodGet, srv.URL+"/carts/"+cartID+"/totals", nil, &totals)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 3, totals.TotalCount)
	assert.Equal(t, 33.00, totals.TotalPrice)
}

func TestCartNotFound(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := doJSON(t, http.MethodGet, srv.URL+"/carts/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, srv.URL+"/carts/missing/items",
		map[string]string{"productId": "pantry-honey"}, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAddUnknownProduct(t *testing.T) {
	srv := newTestServer(t, nil)
	cartID := createCart(t, srv)

	resp := doJSON(t, http.MethodPost, srv.URL+"/carts/"+cartID+"/items",
		map[string]string{"productId": "not-a-product"}, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestChangeItemQuantity(t *testing.T) {
	srv := newTestServer(t, nil)
	cartID := createCart(t, srv)
	addItem(t, srv, cartID, "pantry-honey")
	addItem(t, srv, cartID, "pantry-honey")

	var view cartResponse
	resp := doJSON(t, http.MethodPatch, srv.URL+"/carts/"+cartID+"/items/pantry-honey",
		map[string]int{"delta": -1}, &view)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, view.Items, 1)
	assert.Equal(t, 1, view.Items[0].Quantity)

	// Decrement at quantity 1 removes the line entirely
	doJSON(t, http.MethodPatch, srv.URL+"/carts/"+cartID+"/items/pantry-honey",
		map[string]int{"delta": -1}, &view)
	assert.Empty(t, view.Items)
	assert.Equal(t, 0, view.TotalCount)

	// Unknown product id in the cart is a no-op, not an error
	addItem(t, srv, cartID, "pantry-honey")
	resp = doJSON(t, http.MethodPatch, srv.URL+"/carts/"+cartID+"/items/oil-coldpressed",
		map[string]int{"delta": 5}, &view)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, view.TotalCount)
}

func TestRemoveItem(t *testing.T) {
	srv := newTestServer(t, nil)
	cartID := createCart(t, srv)
	addItem(t, srv, cartID, "pantry-honey")
	addItem(t, srv, cartID, "pantry-honey")
	addItem(t, srv, cartID, "oil-coldpressed")

	var view cartResponse
	resp := doJSON(t, http.MethodDelete, srv.URL+"/carts/"+cartID+"/items/pantry-honey", nil, &view)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, view.Items, 1)
	assert.Equal(t, "oil-coldpressed", view.Items[0].ID)
}

const recipeJSON = `{
	"recipeName": "Honey Roast",
	"ingredients": ["1x Honey"],
	"instructions": ["Roast it."],
	"estimatedTime": "30 mins",
	"tips": "Low and slow."
}`

func TestSuggestRecipeSuccess(t *testing.T) {
	srv := newTestServer(t, &scriptedAI{content: recipeJSON})
	cartID := createCart(t, srv)
	addItem(t, srv, cartID, "pantry-honey")

	var state struct {
		State  string         `json:"state"`
		Result *recipe.Result `json:"result"`
	}
	resp := doJSON(t, http.MethodPost, srv.URL+"/carts/"+cartID+"/recipe", nil, &state)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "succeeded", state.State)
	require.NotNil(t, state.Result)
	assert.Equal(t, "Honey Roast", state.Result.Suggestion.RecipeName)
	assert.False(t, state.Result.FellBack)
}

func TestSuggestRecipeFallsBack(t *testing.T) {
	srv := newTestServer(t, &scriptedAI{err: errors.New("service down")})
	cartID := createCart(t, srv)
	addItem(t, srv, cartID, "pantry-honey")

	var state struct {
		State  string         `json:"state"`
		Result *recipe.Result `json:"result"`
	}
	resp := doJSON(t, http.MethodPost, srv.URL+"/carts/"+cartID+"/recipe", nil, &state)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "failures never surface as errors")
	assert.Equal(t, "fell_back", state.State)
	require.NotNil(t, state.Result)
	assert.True(t, state.Result.FellBack)
	assert.Equal(t, "Farm Fresh Medley", state.Result.Suggestion.RecipeName)
}

func TestSuggestRecipeEmptyCart(t *testing.T) {
	srv := newTestServer(t, &scriptedAI{content: recipeJSON})
	cartID := createCart(t, srv)

	resp := doJSON(t, http.MethodPost, srv.URL+"/carts/"+cartID+"/recipe", nil, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestRecipeStateAndDismiss(t *testing.T) {
	srv := newTestServer(t, &scriptedAI{content: recipeJSON})
	cartID := createCart(t, srv)
	addItem(t, srv, cartID, "pantry-honey")

	var state struct {
		State  string         `json:"state"`
		Result *recipe.Result `json:"result"`
	}
	doJSON(t, http.MethodGet, srv.URL+"/carts/"+cartID+"/recipe", nil, &state)
	assert.Equal(t, "idle", state.State)
	assert.Nil(t, state.Result)

	doJSON(t, http.MethodPost, srv.URL+"/carts/"+cartID+"/recipe", nil, nil)

	doJSON(t, http.MethodGet, srv.URL+"/carts/"+cartID+"/recipe", nil, &state)
	assert.Equal(t, "succeeded", state.State)

	resp := doJSON(t, http.MethodDelete, srv.URL+"/carts/"+cartID+"/recipe", nil, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	// Reset before decoding: "result" is omitted when nil, which would
	// otherwise leave the previous response's value in place.
	state.State, state.Result = "", nil
	doJSON(t, http.MethodGet, srv.URL+"/carts/"+cartID+"/recipe", nil, &state)
	assert.Equal(t, "idle", state.State)
	assert.Nil(t, state.Result)
}

func TestNutritionInsight(t *testing.T) {
	ai := &scriptedAI{content: "Honey is mostly sugar and trace enzymes."}
	srv := newTestServer(t, ai)

	var body map[string]string
	resp := doJSON(t, http.MethodGet, srv.URL+"/products/pantry-honey/insight", nil, &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pantry-honey", body["productId"])
	assert.Equal(t, "Honey is mostly sugar and trace enzymes.", body["insight"])

	// Cached on the second read
	doJSON(t, http.MethodGet, srv.URL+"/products/pantry-honey/insight", nil, &body)
	assert.Equal(t, 1, ai.calls)

	resp = doJSON(t, http.MethodGet, srv.URL+"/products/nope/insight", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestNutritionInsightFallback(t *testing.T) {
	srv := newTestServer(t, &scriptedAI{err: errors.New("down")})

	var body map[string]string
	resp := doJSON(t, http.MethodGet, srv.URL+"/products/pantry-honey/insight", nil, &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Nutritional facts are currently unavailable.", body["insight"])
}

func TestUIState(t *testing.T) {
	srv := newTestServer(t, nil)
	cartID := createCart(t, srv)

	var view session.View
	resp := doJSON(t, http.MethodGet, srv.URL+"/carts/"+cartID+"/ui", nil, &view)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "all", view.SelectedCategory)
	assert.False(t, view.CartOpen)

	open := true
	category := "dairy"
	resp = doJSON(t, http.MethodPatch, srv.URL+"/carts/"+cartID+"/ui",
		map[string]interface{}{"cartOpen": open, "selectedCategory": category}, &view)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, view.CartOpen)
	assert.Equal(t, "dairy", view.SelectedCategory)

	// Absent fields are untouched
	detail := "pantry-honey"
	doJSON(t, http.MethodPatch, srv.URL+"/carts/"+cartID+"/ui",
		map[string]interface{}{"productDetailId": detail}, &view)
	assert.True(t, view.CartOpen)
	assert.Equal(t, "pantry-honey", view.ProductDetailID)

	resp = doJSON(t, http.MethodPatch, srv.URL+"/carts/"+cartID+"/ui",
		map[string]interface{}{"selectedCategory": "bogus"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDismissRecipeClosesModal(t *testing.T) {
	srv := newTestServer(t, &scriptedAI{content: recipeJSON})
	cartID := createCart(t, srv)
	addItem(t, srv, cartID, "pantry-honey")

	doJSON(t, http.MethodPost, srv.URL+"/carts/"+cartID+"/recipe", nil, nil)

	var view session.View
	doJSON(t, http.MethodGet, srv.URL+"/carts/"+cartID+"/ui", nil, &view)
	assert.True(t, view.AIModalOpen, "requesting a recipe opens the modal")

	doJSON(t, http.MethodDelete, srv.URL+"/carts/"+cartID+"/recipe", nil, nil)
	doJSON(t, http.MethodGet, srv.URL+"/carts/"+cartID+"/ui", nil, &view)
	assert.False(t, view.AIModalOpen)
}

func TestCreateOrder(t *testing.T) {
	srv := newTestServer(t, nil)
	cartID := createCart(t, srv)
	addItem(t, srv, cartID, "oil-coldpressed")
	addItem(t, srv, cartID, "oil-coldpressed")
	addItem(t, srv, cartID, "pantry-honey")

	var order struct {
		ID           string  `json:"id"`
		CustomerName string  `json:"customerName"`
		Total        float64 `json:"total"`
	}
	resp := doJSON(t, http.MethodPost, srv.URL+"/orders",
		map[string]string{"cartId": cartID, "customerName": "Alex"}, &order)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Contains(t, order.ID, "order_")
	assert.Equal(t, "Alex", order.CustomerName)
	assert.Equal(t, 33.00, order.Total)
}

func TestCreateOrderEmptyCart(t *testing.T) {
	srv := newTestServer(t, nil)
	cartID := createCart(t, srv)

	resp := doJSON(t, http.MethodPost, srv.URL+"/orders",
		map[string]string{"cartId": cartID}, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}
