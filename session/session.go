// Package session holds the per-session UI state: which panels are open,
// which category is selected, and the lifecycle of the current recipe
// request. State lives in memory for the session only.
package session

import (
	"sync"

	"github.com/freshroots/storefront/recipe"
)

// FlowState is the recipe request lifecycle state.
type FlowState string

const (
	StateIdle       FlowState = "idle"
	StateRequesting FlowState = "requesting"
	StateSucceeded  FlowState = "succeeded"
	StateFellBack   FlowState = "fell_back"
)

// RecipeFlow tracks one session's recipe request state machine:
// idle -> requesting -> succeeded | fell_back. A generation counter guards
// against stale results: a completion for a superseded or dismissed request
// is a no-op, so a late-arriving value can never resurrect the view.
type RecipeFlow struct {
	mu     sync.Mutex
	state  FlowState
	gen    uint64
	result *recipe.Result
}

// NewRecipeFlow returns a flow in the idle state.
func NewRecipeFlow() *RecipeFlow {
	return &RecipeFlow{state: StateIdle}
}

// Begin starts a new request, replacing any prior pending or completed
// result, and returns the generation token the caller must present on
// completion.
func (f *RecipeFlow) Begin() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.gen++
	f.state = StateRequesting
	f.result = nil
	return f.gen
}

// Complete applies a settled result. It reports false, leaving state
// untouched, when gen no longer matches the current request (a newer
// request began, or the view was dismissed while in flight).
func (f *RecipeFlow) Complete(gen uint64, res recipe.Result) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if gen != f.gen || f.state != StateRequesting {
		return false
	}

	r := res
	f.result = &r
	if res.FellBack {
		f.state = StateFellBack
	} else {
		f.state = StateSucceeded
	}
	return true
}

// Dismiss discards the pending or completed value and returns to idle.
// Outstanding generations are invalidated so in-flight results are dropped
// on arrival.
func (f *RecipeFlow) Dismiss() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.gen++
	f.state = StateIdle
	f.result = nil
}

// Snapshot returns the current state and result (nil while idle or
// requesting).
func (f *RecipeFlow) Snapshot() (FlowState, *recipe.Result) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.result == nil {
		return f.state, nil
	}
	r := *f.result
	return f.state, &r
}

// State is the ambient UI state: a small set of independent flags and
// selections mutated by discrete events.
type State struct {
	mu               sync.Mutex
	cartOpen         bool
	aiModalOpen      bool
	selectedCategory string
	productDetailID  string
}

// NewState returns the initial UI state (everything closed, all products).
func NewState() *State {
	return &State{selectedCategory: "all"}
}

// SetCartOpen toggles the cart drawer.
func (s *State) SetCartOpen(open bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cartOpen = open
}

// SetAIModalOpen toggles the recipe modal.
func (s *State) SetAIModalOpen(open bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aiModalOpen = open
}

// SelectCategory records the active catalog filter.
func (s *State) SelectCategory(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selectedCategory = id
}

// ShowProductDetail records the product open in the detail overlay
// ("" closes it).
func (s *State) ShowProductDetail(productID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.productDetailID = productID
}

// View is a read-only copy of the UI state for rendering.
type View struct {
	CartOpen         bool   `json:"cartOpen"`
	AIModalOpen      bool   `json:"aiModalOpen"`
	SelectedCategory string `json:"selectedCategory"`
	ProductDetailID  string `json:"productDetailId,omitempty"`
}

// Snapshot returns the current UI state.
func (s *State) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return View{
		CartOpen:         s.cartOpen,
		AIModalOpen:      s.aiModalOpen,
		SelectedCategory: s.selectedCategory,
		ProductDetailID:  s.productDetailID,
	}
}

// Session bundles the UI state and recipe flow for one cart.
type Session struct {
	UI     *State
	Recipe *RecipeFlow
}

// Manager hands out sessions keyed by cart id.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates an empty session manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// Get returns the session for a cart id, creating it on first use.
func (m *Manager) Get(cartID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[cartID]; ok {
		return s
	}
	s := &Session{
		UI:     NewState(),
		Recipe: NewRecipeFlow(),
	}
	m.sessions[cartID] = s
	return s
}

// Drop removes a cart's session.
func (m *Manager) Drop(cartID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, cartID)
}
