package stubapi

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"storefront-sync/internal/domain"
)

// User is a seeded account the stub can authenticate.
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash []byte
}

type cart struct {
	CartID string
	Status domain.CartStatus
	Lines  []domain.CartLine
}

// Store is the in-memory state behind the stub storefront. All access is
// mutex guarded; handlers never hold references into the maps.
type Store struct {
	mu sync.Mutex

	usersByEmail map[string]*User
	usersByID    map[string]*User
	products     []domain.Product
	carts        map[string]*cart // keyed by user id
	signals      []domain.AbandonmentSignal

	// failures holds per-operation injected failure counts for tests
	failures map[string]int
}

// NewStore creates an empty store with the default catalog seeded.
func NewStore() *Store {
	s := &Store{
		usersByEmail: make(map[string]*User),
		usersByID:    make(map[string]*User),
		carts:        make(map[string]*cart),
		failures:     make(map[string]int),
	}
	s.products = defaultCatalog()
	return s
}

func defaultCatalog() []domain.Product {
	return []domain.Product{
		{ID: "prod_mug_01", Name: "Stoneware Mug", Price: 14.50},
		{ID: "prod_mug_02", Name: "Travel Mug", Price: 22.00},
		{ID: "prod_plate_01", Name: "Dinner Plate", Price: 9.75},
		{ID: "prod_plate_02", Name: "Side Plate", Price: 6.25},
		{ID: "prod_bowl_01", Name: "Cereal Bowl", Price: 8.00},
		{ID: "prod_cake_01", Name: "Carrot Cake", Price: 18.90},
		{ID: "prod_cake_02", Name: "Cheesecake Slice", Price: 4.80},
		{ID: "prod_glass_01", Name: "Highball Glass", Price: 5.40},
		{ID: "prod_glass_02", Name: "Wine Glass", Price: 7.90},
		{ID: "prod_teapot_01", Name: "Cast Iron Teapot", Price: 39.00},
		{ID: "prod_tray_01", Name: "Serving Tray", Price: 16.30},
		{ID: "prod_jug_01", Name: "Milk Jug", Price: 11.10},
	}
}

// SeedUser registers an account with a bcrypt-hashed password.
func (s *Store) SeedUser(email, name, password string) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &User{
		ID:           "usr_" + uuid.New().String()[:8],
		Email:        email,
		Name:         name,
		PasswordHash: hash,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.usersByEmail[email]; exists {
		return nil, fmt.Errorf("email already exists")
	}
	s.usersByEmail[email] = user
	s.usersByID[user.ID] = user
	return user, nil
}

// Authenticate verifies the email/password pair.
func (s *Store) Authenticate(email, password string) (*User, error) {
	s.mu.Lock()
	user, ok := s.usersByEmail[email]
	s.mu.Unlock()

	if !ok {
		return nil, domain.ErrAuth
	}
	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		return nil, domain.ErrAuth
	}
	return user, nil
}

// SeedProducts replaces the catalog.
func (s *Store) SeedProducts(products []domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products = append([]domain.Product(nil), products...)
}

// Cart returns a copy of the user's cart, or false if none exists yet.
func (s *Store) Cart(userID string) (domain.CartHeader, []domain.CartLine, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.carts[userID]
	if !ok {
		return domain.CartHeader{}, nil, false
	}
	return domain.CartHeader{CartID: c.CartID, Status: c.Status},
		append([]domain.CartLine(nil), c.Lines...), true
}

// UpsertLine sets the absolute quantity for a product, creating the cart
// and the line as needed. The settled line is returned.
func (s *Store) UpsertLine(userID, productID string, quantity int, price float64) (domain.CartLine, error) {
	if productID == "" || quantity < 1 {
		return domain.CartLine{}, domain.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.carts[userID]
	if !ok {
		c = &cart{
			CartID: "cart_" + uuid.New().String()[:8],
			Status: domain.CartActive,
		}
		s.carts[userID] = c
	}

	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			c.Lines[i].Quantity = quantity
			return c.Lines[i], nil
		}
	}

	line := domain.CartLine{
		LineID:    "line_" + uuid.New().String()[:8],
		ProductID: productID,
		Quantity:  quantity,
		UnitPrice: price,
	}
	c.Lines = append(c.Lines, line)
	return line, nil
}

// SetQuantity updates an existing line.
func (s *Store) SetQuantity(userID, lineID string, quantity int) error {
	if quantity < 1 {
		return domain.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.carts[userID]
	if !ok {
		return domain.ErrLineNotFound
	}
	for i := range c.Lines {
		if c.Lines[i].LineID == lineID {
			c.Lines[i].Quantity = quantity
			return nil
		}
	}
	return domain.ErrLineNotFound
}

// DeleteLine removes a line from the user's cart.
func (s *Store) DeleteLine(userID, lineID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.carts[userID]
	if !ok {
		return domain.ErrLineNotFound
	}
	for i := range c.Lines {
		if c.Lines[i].LineID == lineID {
			c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
			return nil
		}
	}
	return domain.ErrLineNotFound
}

// Search returns one page of catalog matches. An empty query matches the
// whole catalog.
func (s *Store) Search(query string, page, pageSize int) (products []domain.Product, totalPages int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	needle := strings.ToLower(strings.TrimSpace(query))
	var matches []domain.Product
	for _, p := range s.products {
		if needle == "" || strings.Contains(strings.ToLower(p.Name), needle) {
			matches = append(matches, p)
		}
	}

	totalPages = (len(matches) + pageSize - 1) / pageSize
	if totalPages < 1 {
		totalPages = 1
	}

	start := (page - 1) * pageSize
	if start >= len(matches) {
		return nil, totalPages
	}
	end := start + pageSize
	if end > len(matches) {
		end = len(matches)
	}
	return append([]domain.Product(nil), matches[start:end]...), totalPages
}

// RecordSignal stores an abandonment signal and marks the referenced cart
// as abandoning when it exists.
func (s *Store) RecordSignal(sig domain.AbandonmentSignal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.signals = append(s.signals, sig)
	for _, c := range s.carts {
		if c.CartID == sig.CartID {
			c.Status = domain.CartAbandoning
		}
	}
}

// Signals returns a copy of the recorded abandonment signals.
func (s *Store) Signals() []domain.AbandonmentSignal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.AbandonmentSignal(nil), s.signals...)
}

// FailNext makes the next n calls of the named operation fail with an
// injected error. Used by tests to exercise failure paths end to end.
func (s *Store) FailNext(operation string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[operation] = n
}

// takeFailure consumes one injected failure for the operation.
func (s *Store) takeFailure(operation string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures[operation] > 0 {
		s.failures[operation]--
		return true
	}
	return false
}
