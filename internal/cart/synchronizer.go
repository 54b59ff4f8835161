package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"storefront-sync/internal/api"
	"storefront-sync/internal/domain"
	"storefront-sync/internal/observability"
)

// dedupResource is the guard key shared by every cart reader in the tab.
const dedupResource = "cart"

// API is the slice of the storefront client the synchronizer mutates
// through.
type API interface {
	GetCart(ctx context.Context) (*api.CartPayload, error)
	AddItem(ctx context.Context, productID string, quantity int, price float64) (*api.LinePayload, error)
	DeleteItem(ctx context.Context, lineID string) error
	UpdateQuantity(ctx context.Context, lineID string, quantity int) error
}

// Gate reports whether a valid session currently exists. Cart operations
// are refused without one.
type Gate interface {
	Valid() bool
}

// FetchGuard is the dedup guard consulted before authoritative reads.
type FetchGuard interface {
	Attempt(resourceKey string, window time.Duration) bool
}

// Synchronizer keeps a local mirror eventually identical to the server
// cart. The mirror is held twice: a quantity map keyed by product for fast
// membership checks, and an ordered detailed list for display. After any
// settled operation the two agree.
//
// Mutation policy is asymmetric: additive operations apply locally first
// and tolerate drift on failure; destructive operations touch the mirror
// only after the server confirmed. An incorrectly assumed deletion is
// worse than a transient overcount.
type Synchronizer struct {
	mu sync.Mutex

	api    API
	gate   Gate
	guard  FetchGuard
	window time.Duration

	header     *domain.CartHeader
	quantities map[string]int
	lines      []domain.CartLine
	versions   map[string]uint64
	loaded     bool
}

func NewSynchronizer(apiClient API, gate Gate, guard FetchGuard, window time.Duration) *Synchronizer {
	return &Synchronizer{
		api:        apiClient,
		gate:       gate,
		guard:      guard,
		window:     window,
		quantities: make(map[string]int),
		versions:   make(map[string]uint64),
	}
}

// Load fetches the authoritative cart and replaces the mirror wholesale.
// The server wins; there is no merge. "No cart yet" yields an empty
// mirror. A suppressed attempt (another caller fetched inside the dedup
// window) returns nil without touching anything. Network failures leave
// the previous mirror untouched.
func (s *Synchronizer) Load(ctx context.Context) error {
	if !s.gate.Valid() {
		return domain.ErrNoSession
	}

	if !s.guard.Attempt(dedupResource, s.window) {
		observability.FromContext(ctx).Debug("cart load suppressed by dedup guard")
		return nil
	}

	return s.load(ctx)
}

// load is the guard-free fetch used both by Load and by the recovery path
// of failed destructive operations.
func (s *Synchronizer) load(ctx context.Context) error {
	payload, err := s.api.GetCart(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// No cart yet: an empty mirror, not a failure.
			s.mu.Lock()
			s.replaceLocked(nil, nil)
			s.mu.Unlock()
			observability.CartLoadsTotal.WithLabelValues("empty").Inc()
			return nil
		}
		observability.CartLoadsTotal.WithLabelValues("failure").Inc()
		observability.FromContext(ctx).Warn("cart load failed, mirror unchanged", "error", err.Error())
		return err
	}

	header := &domain.CartHeader{CartID: payload.Cart.CartID, Status: payload.Cart.Status}

	s.mu.Lock()
	s.replaceLocked(header, payload.Cart.Lines)
	s.mu.Unlock()

	observability.CartLoadsTotal.WithLabelValues("success").Inc()
	return nil
}

// replaceLocked rebuilds both representations from the server lines.
func (s *Synchronizer) replaceLocked(header *domain.CartHeader, serverLines []domain.CartLine) {
	s.header = header
	s.lines = append([]domain.CartLine(nil), serverLines...)
	s.quantities = make(map[string]int, len(serverLines))
	for _, line := range serverLines {
		s.quantities[line.ProductID] = line.Quantity
	}
	s.loaded = true
}

// AddOrIncrement applies delta optimistically and sends the absolute
// target quantity to the server. On failure the drifted local value is
// deliberately left in place: additive mutations are near idempotent and
// responsiveness wins. The next full Load reconciles.
func (s *Synchronizer) AddOrIncrement(ctx context.Context, productID string, delta int, unitPrice float64) error {
	if productID == "" || delta < 1 {
		return fmt.Errorf("%w: productID and a positive delta are required", domain.ErrInvalidInput)
	}
	if !s.gate.Valid() {
		return domain.ErrNoSession
	}

	s.mu.Lock()
	target := s.quantities[productID] + delta
	s.quantities[productID] = target
	optimistic := domain.CartLine{
		LineID:    pendingLineID(productID),
		ProductID: productID,
		Quantity:  target,
		UnitPrice: unitPrice,
	}
	if existing, ok := s.findLineByProductLocked(productID); ok {
		// Keep the server identity of a line we already know.
		optimistic.LineID = existing.LineID
		optimistic.UnitPrice = existing.UnitPrice
	}
	s.applyLineLocked(optimistic)
	s.versions[productID]++
	version := s.versions[productID]
	s.mu.Unlock()

	payload, err := s.api.AddItem(ctx, productID, target, unitPrice)
	if err != nil {
		// Intentionally no rollback. Drift is bounded by the next Load.
		observability.CartMutationsTotal.WithLabelValues("add", "failure").Inc()
		observability.FromContext(ctx).Warn("optimistic add not confirmed, keeping local value",
			"product_id", productID, "target", target, "error", err.Error())
		return nil
	}

	s.mu.Lock()
	if s.versions[productID] == version {
		s.applyLineLocked(payload.Line)
		s.quantities[productID] = payload.Line.Quantity
		s.mu.Unlock()
		observability.CartMutationsTotal.WithLabelValues("add", "success").Inc()
		return nil
	}
	s.mu.Unlock()

	observability.FromContext(ctx).Debug("discarding stale add confirmation",
		"product_id", productID)
	observability.CartMutationsTotal.WithLabelValues("add", "stale").Inc()
	return nil
}

// Remove deletes a line pessimistically: the server delete is issued
// first and the mirror is mutated only on confirmed success. On failure
// the component re-loads the whole cart rather than guessing.
func (s *Synchronizer) Remove(ctx context.Context, lineID string) error {
	if lineID == "" {
		return fmt.Errorf("%w: lineID is required", domain.ErrInvalidInput)
	}
	if !s.gate.Valid() {
		return domain.ErrNoSession
	}

	s.mu.Lock()
	line, ok := s.findLineLocked(lineID)
	s.mu.Unlock()
	if !ok {
		return domain.ErrLineNotFound
	}

	if err := s.api.DeleteItem(ctx, lineID); err != nil {
		observability.CartMutationsTotal.WithLabelValues("remove", "failure").Inc()
		observability.FromContext(ctx).Warn("delete not confirmed, forcing reload",
			"line_id", lineID, "error", err.Error())
		if loadErr := s.load(ctx); loadErr != nil {
			observability.FromContext(ctx).Warn("recovery load failed", "error", loadErr.Error())
		}
		return err
	}

	s.mu.Lock()
	s.dropLineLocked(lineID)
	delete(s.quantities, line.ProductID)
	delete(s.versions, line.ProductID)
	s.mu.Unlock()

	observability.CartMutationsTotal.WithLabelValues("remove", "success").Inc()
	return nil
}

// SetQuantity updates a line to an exact quantity, server-confirmed
// before any local change. Zero delegates to Remove.
func (s *Synchronizer) SetQuantity(ctx context.Context, productID string, quantity int) error {
	if productID == "" || quantity < 0 {
		return fmt.Errorf("%w: productID and a non-negative quantity are required", domain.ErrInvalidInput)
	}
	if !s.gate.Valid() {
		return domain.ErrNoSession
	}

	s.mu.Lock()
	line, ok := s.findLineByProductLocked(productID)
	s.mu.Unlock()
	if !ok {
		return domain.ErrLineNotFound
	}

	if quantity == 0 {
		return s.Remove(ctx, line.LineID)
	}

	if err := s.api.UpdateQuantity(ctx, line.LineID, quantity); err != nil {
		observability.CartMutationsTotal.WithLabelValues("set_quantity", "failure").Inc()
		observability.FromContext(ctx).Warn("quantity update not confirmed, mirror unchanged",
			"line_id", line.LineID, "error", err.Error())
		return err
	}

	s.mu.Lock()
	s.versions[productID]++
	s.quantities[productID] = quantity
	line.Quantity = quantity
	s.applyLineLocked(line)
	s.mu.Unlock()

	observability.CartMutationsTotal.WithLabelValues("set_quantity", "success").Inc()
	return nil
}

// Clear empties the mirror. The session expiry cascade lands here.
func (s *Synchronizer) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.header = nil
	s.quantities = make(map[string]int)
	s.lines = nil
	s.versions = make(map[string]uint64)
	s.loaded = false
}

// Header returns the cart identity, or nil before the first load.
func (s *Synchronizer) Header() *domain.CartHeader {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.header == nil {
		return nil
	}
	header := *s.header
	return &header
}

// Quantities returns a copy of the quantity map.
func (s *Synchronizer) Quantities() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]int, len(s.quantities))
	for k, v := range s.quantities {
		out[k] = v
	}
	return out
}

// Lines returns a copy of the ordered detailed list.
func (s *Synchronizer) Lines() []domain.CartLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.CartLine(nil), s.lines...)
}

// Loaded reports whether the mirror has settled at least once.
func (s *Synchronizer) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// applyLineLocked updates the detailed list in place, appending when the
// product has no line yet. A server-settled line replaces a pending one.
func (s *Synchronizer) applyLineLocked(line domain.CartLine) {
	for i := range s.lines {
		if s.lines[i].ProductID == line.ProductID {
			s.lines[i] = line
			return
		}
	}
	s.lines = append(s.lines, line)
}

func (s *Synchronizer) dropLineLocked(lineID string) {
	for i := range s.lines {
		if s.lines[i].LineID == lineID {
			s.lines = append(s.lines[:i], s.lines[i+1:]...)
			return
		}
	}
}

func (s *Synchronizer) findLineLocked(lineID string) (domain.CartLine, bool) {
	for _, line := range s.lines {
		if line.LineID == lineID {
			return line, true
		}
	}
	return domain.CartLine{}, false
}

func (s *Synchronizer) findLineByProductLocked(productID string) (domain.CartLine, bool) {
	for _, line := range s.lines {
		if line.ProductID == productID {
			return line, true
		}
	}
	return domain.CartLine{}, false
}

// pendingLineID marks an optimistic line awaiting its server identity.
func pendingLineID(productID string) string {
	return "pending-" + productID
}
