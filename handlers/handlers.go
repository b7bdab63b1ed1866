// Package handlers exposes the storefront over HTTP. The handlers are a
// thin shell: cart semantics live in store, recipe semantics in recipe,
// and UI state in session.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/freshroots/storefront/catalog"
	"github.com/freshroots/storefront/core"
	"github.com/freshroots/storefront/recipe"
	"github.com/freshroots/storefront/session"
	"github.com/freshroots/storefront/store"
)

// Handler carries the service dependencies for every route.
type Handler struct {
	Catalog  *catalog.Catalog
	Store    *store.Store
	Sessions *session.Manager
	Gateway  *recipe.Gateway
	Logger   core.Logger
}

// NewHandler wires a Handler.
func NewHandler(c *catalog.Catalog, s *store.Store, sm *session.Manager, g *recipe.Gateway, logger core.Logger) *Handler {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Handler{
		Catalog:  c,
		Store:    s,
		Sessions: sm,
		Gateway:  g,
		Logger:   logger,
	}
}

// Routes registers every endpoint on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.GetHealth)

	mux.HandleFunc("GET /products", h.ListProducts)
	mux.HandleFunc("GET /products/{productId}", h.GetProduct)
	mux.HandleFunc("GET /products/{productId}/insight", h.GetNutritionInsight)
	mux.HandleFunc("GET /categories", h.ListCategories)

	mux.HandleFunc("POST /carts", h.CreateCart)
	mux.HandleFunc("GET /carts/{cartId}", h.GetCart)
	mux.HandleFunc("GET /carts/{cartId}/totals", h.GetCartTotals)
	mux.HandleFunc("POST /carts/{cartId}/items", h.AddItemToCart)
	mux.HandleFunc("PATCH /carts/{cartId}/items/{productId}", h.ChangeItemQuantity)
	mux.HandleFunc("DELETE /carts/{cartId}/items/{productId}", h.RemoveItemFromCart)

	mux.HandleFunc("POST /carts/{cartId}/recipe", h.SuggestRecipe)
	mux.HandleFunc("GET /carts/{cartId}/recipe", h.GetRecipeState)
	mux.HandleFunc("DELETE /carts/{cartId}/recipe", h.DismissRecipe)

	mux.HandleFunc("GET /carts/{cartId}/ui", h.GetUIState)
	mux.HandleFunc("PATCH /carts/{cartId}/ui", h.UpdateUIState)

	mux.HandleFunc("POST /orders", h.CreateOrder)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// GetHealth reports liveness.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "storefront",
	})
}

// ListProducts returns the catalog, optionally filtered by ?category=.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	products := h.Catalog.Products(category)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"products": products,
		"count":    len(products),
	})
}

// GetProduct returns one product by id.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("productId")
	product, ok := h.Catalog.Product(id)
	if !ok {
		http.Error(w, core.ErrProductNotFound.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

// GetNutritionInsight returns a short generated fact about a product. The
// gateway guarantees a value; this endpoint cannot fail past the lookup.
func (h *Handler) GetNutritionInsight(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("productId")
	product, ok := h.Catalog.Product(id)
	if !ok {
		http.Error(w, core.ErrProductNotFound.Error(), http.StatusNotFound)
		return
	}

	insight := h.Gateway.NutritionInsight(r.Context(), product.Name)
	writeJSON(w, http.StatusOK, map[string]string{
		"productId": product.ID,
		"insight":   insight,
	})
}

// ListCategories returns the category list.
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"categories": h.Catalog.Categories(),
	})
}

// cartView is the response shape for cart reads: items in insertion order
// plus totals derived fresh from the collection.
type cartView struct {
	CartID     string           `json:"cartId"`
	Items      []store.CartItem `json:"items"`
	TotalCount int              `json:"totalCount"`
	TotalPrice float64          `json:"totalPrice"`
}

func viewOf(cartID string, c *store.Cart) cartView {
	return cartView{
		CartID:     cartID,
		Items:      c.Items(),
		TotalCount: c.TotalCount(),
		TotalPrice: c.TotalPrice(),
	}
}

// CreateCart creates an empty cart.
func (h *Handler) CreateCart(w http.ResponseWriter, r *http.Request) {
	cartID := h.Store.CreateCart()
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"created": true,
		"cartId":  cartID,
	})
}

// GetCart returns cart contents and totals.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	cartID := r.PathValue("cartId")
	cart, ok := h.Store.GetCart(cartID)
	if !ok {
		http.Error(w, core.ErrCartNotFound.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(cartID, cart))
}

// GetCartTotals returns just the derived totals.
func (h *Handler) GetCartTotals(w http.ResponseWriter, r *http.Request) {
	cartID := r.PathValue("cartId")
	cart, ok := h.Store.GetCart(cartID)
	if !ok {
		http.Error(w, core.ErrCartNotFound.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"totalCount": cart.TotalCount(),
		"totalPrice": cart.TotalPrice(),
	})
}

// AddItemToCart merges one unit of a product into the cart.
func (h *Handler) AddItemToCart(w http.ResponseWriter, r *http.Request) {
	cartID := r.PathValue("cartId")
	cart, ok := h.Store.GetCart(cartID)
	if !ok {
		http.Error(w, core.ErrCartNotFound.Error(), http.StatusNotFound)
		return
	}

	var req struct {
		ProductID string `json:"productId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	product, ok := h.Catalog.Product(req.ProductID)
	if !ok {
		http.Error(w, core.ErrProductNotFound.Error(), http.StatusNotFound)
		return
	}

	cart.AddItem(product)
	writeJSON(w, http.StatusOK, viewOf(cartID, cart))
}

// ChangeItemQuantity applies a signed delta to an item. An unknown product
// id inside the cart is a no-op, so the response is the (possibly
// unchanged) cart either way.
func (h *Handler) ChangeItemQuantity(w http.ResponseWriter, r *http.Request) {
	cartID := r.PathValue("cartId")
	productID := r.PathValue("productId")
	cart, ok := h.Store.GetCart(cartID)
	if !ok {
		http.Error(w, core.ErrCartNotFound.Error(), http.StatusNotFound)
		return
	}

	var req struct {
		Delta int `json:"delta"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	cart.ChangeQuantity(productID, req.Delta)
	writeJSON(w, http.StatusOK, viewOf(cartID, cart))
}

// RemoveItemFromCart drops an item regardless of quantity.
func (h *Handler) RemoveItemFromCart(w http.ResponseWriter, r *http.Request) {
	cartID := r.PathValue("cartId")
	productID := r.PathValue("productId")
	cart, ok := h.Store.GetCart(cartID)
	if !ok {
		http.Error(w, core.ErrCartNotFound.Error(), http.StatusNotFound)
		return
	}

	cart.RemoveItem(productID)
	writeJSON(w, http.StatusOK, viewOf(cartID, cart))
}

// recipeStateView is the flow snapshot returned to the UI.
type recipeStateView struct {
	State  session.FlowState `json:"state"`
	Result *recipe.Result    `json:"result,omitempty"`
}

// SuggestRecipe runs the recipe flow for the cart. The UI gates this call
// on a non-empty cart; the handler enforces the same gate with a 409 so the
// gateway never sees an empty snapshot from this path.
func (h *Handler) SuggestRecipe(w http.ResponseWriter, r *http.Request) {
	cartID := r.PathValue("cartId")
	cart, ok := h.Store.GetCart(cartID)
	if !ok {
		http.Error(w, core.ErrCartNotFound.Error(), http.StatusNotFound)
		return
	}

	items := cart.Items()
	if len(items) == 0 {
		http.Error(w, core.ErrCartEmpty.Error(), http.StatusConflict)
		return
	}

	sess := h.Sessions.Get(cartID)
	sess.UI.SetAIModalOpen(true)
	gen := sess.Recipe.Begin()

	result := h.Gateway.SuggestRecipe(r.Context(), items)

	if !sess.Recipe.Complete(gen, result) {
		// A newer request superseded this one, or the modal was
		// dismissed while the call was in flight. The settled value is
		// dropped; report whatever the flow holds now.
		h.Logger.Debug("Discarding stale recipe result", map[string]interface{}{
			"operation": "recipe_flow",
			"cart_id":   cartID,
		})
	}

	state, res := sess.Recipe.Snapshot()
	writeJSON(w, http.StatusOK, recipeStateView{State: state, Result: res})
}

// GetRecipeState returns the flow snapshot (pending or settled).
func (h *Handler) GetRecipeState(w http.ResponseWriter, r *http.Request) {
	cartID := r.PathValue("cartId")
	if _, ok := h.Store.GetCart(cartID); !ok {
		http.Error(w, core.ErrCartNotFound.Error(), http.StatusNotFound)
		return
	}

	state, res := h.Sessions.Get(cartID).Recipe.Snapshot()
	writeJSON(w, http.StatusOK, recipeStateView{State: state, Result: res})
}

// DismissRecipe discards the pending or completed recipe and closes the
// modal. An in-flight call settling after this point is a no-op.
func (h *Handler) DismissRecipe(w http.ResponseWriter, r *http.Request) {
	cartID := r.PathValue("cartId")
	if _, ok := h.Store.GetCart(cartID); !ok {
		http.Error(w, core.ErrCartNotFound.Error(), http.StatusNotFound)
		return
	}

	sess := h.Sessions.Get(cartID)
	sess.Recipe.Dismiss()
	sess.UI.SetAIModalOpen(false)
	w.WriteHeader(http.StatusNoContent)
}

// GetUIState returns the session UI flags.
func (h *Handler) GetUIState(w http.ResponseWriter, r *http.Request) {
	cartID := r.PathValue("cartId")
	if _, ok := h.Store.GetCart(cartID); !ok {
		http.Error(w, core.ErrCartNotFound.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, h.Sessions.Get(cartID).UI.Snapshot())
}

// UpdateUIState applies discrete UI events. Absent fields leave their flag
// untouched.
func (h *Handler) UpdateUIState(w http.ResponseWriter, r *http.Request) {
	cartID := r.PathValue("cartId")
	if _, ok := h.Store.GetCart(cartID); !ok {
		http.Error(w, core.ErrCartNotFound.Error(), http.StatusNotFound)
		return
	}

	var req struct {
		CartOpen         *bool   `json:"cartOpen"`
		AIModalOpen      *bool   `json:"aiModalOpen"`
		SelectedCategory *string `json:"selectedCategory"`
		ProductDetailID  *string `json:"productDetailId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	ui := h.Sessions.Get(cartID).UI
	if req.CartOpen != nil {
		ui.SetCartOpen(*req.CartOpen)
	}
	if req.AIModalOpen != nil {
		ui.SetAIModalOpen(*req.AIModalOpen)
	}
	if req.SelectedCategory != nil {
		if _, ok := h.findCategory(*req.SelectedCategory); !ok {
			http.Error(w, core.ErrCategoryNotFound.Error(), http.StatusBadRequest)
			return
		}
		ui.SelectCategory(*req.SelectedCategory)
	}
	if req.ProductDetailID != nil {
		ui.ShowProductDetail(*req.ProductDetailID)
	}

	writeJSON(w, http.StatusOK, ui.Snapshot())
}

func (h *Handler) findCategory(id string) (catalog.Category, bool) {
	for _, c := range h.Catalog.Categories() {
		if c.ID == id {
			return c, true
		}
	}
	return catalog.Category{}, false
}

// CreateOrder is the checkout affordance: it snapshots the cart into an
// order echo. Nothing is charged and nothing is stored; there is no order
// pipeline behind this endpoint.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CartID       string `json:"cartId"`
		CustomerName string `json:"customerName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	cart, ok := h.Store.GetCart(req.CartID)
	if !ok {
		http.Error(w, core.ErrCartNotFound.Error(), http.StatusNotFound)
		return
	}
	if cart.Len() == 0 {
		http.Error(w, core.ErrCartEmpty.Error(), http.StatusConflict)
		return
	}

	orderID := "order_" + uuid.New().String()[:8]
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":           orderID,
		"customerName": req.CustomerName,
		"items":        cart.Items(),
		"total":        cart.TotalPrice(),
	})
}
