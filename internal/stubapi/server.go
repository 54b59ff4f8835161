package stubapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"storefront-sync/internal/config"
	"storefront-sync/internal/domain"
	"storefront-sync/internal/middleware"
	"storefront-sync/internal/observability"
)

const searchPageSize = 5

// Server is the in-memory storefront backend. It implements the same HTTP
// contract the sync client consumes, so the client stack can be exercised
// end to end without a real storefront.
type Server struct {
	store    *Store
	secret   string
	tokenTTL time.Duration
	router   chi.Router
}

// NewServer wires the stub routes with the shared middleware stack.
func NewServer(store *Store, cfg *config.Config) *Server {
	s := &Server{
		store:    store,
		secret:   cfg.JWTSecret,
		tokenTTL: 24 * time.Hour,
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.CORS(middleware.ParseOrigins(cfg.AllowedOrigins)))
	r.Use(middleware.Metrics())

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", s.handleLogin)
		r.Get("/products", s.handleSearch)
		r.Post("/checkout/mark-abandoning", s.handleMarkAbandoning)
		r.Post("/checkout/mark-abandoning-beacon", s.handleMarkAbandoningBeacon)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWTSecret))

			r.Get("/cart", s.handleGetCart)
			r.Post("/cart/items", s.handleAddItem)
			r.Put("/cart/items/{id}", s.handleUpdateItem)
			r.Delete("/cart/items/{id}", s.handleDeleteItem)
		})
	})

	s.router = r
	return s
}

// Handler returns the stub's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// SetTokenTTL overrides the issued token lifetime. Tests use short TTLs to
// exercise expiry without waiting.
func (s *Server) SetTokenTTL(ttl time.Duration) {
	s.tokenTTL = ttl
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	user, err := s.store.Authenticate(req.Email, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	token, err := s.issueToken(user.ID)
	if err != nil {
		observability.Error("failed to issue token", "error", err.Error())
		writeError(w, http.StatusInternalServerError, "Failed to issue token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"token":   token,
		"user": domain.User{
			ID:    user.ID,
			Email: user.Email,
			Name:  user.Name,
		},
	})
}

func (s *Server) issueToken(userID string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.secret))
}

func (s *Server) handleGetCart(w http.ResponseWriter, r *http.Request) {
	if s.store.takeFailure("get_cart") {
		writeError(w, http.StatusInternalServerError, "Injected failure")
		return
	}

	userID, _ := middleware.GetUserID(r.Context())
	header, lines, ok := s.store.Cart(userID)
	if !ok {
		writeError(w, http.StatusNotFound, "No cart for user")
		return
	}

	if lines == nil {
		lines = []domain.CartLine{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"cart": map[string]any{
			"cart_id": header.CartID,
			"status":  header.Status,
			"lines":   lines,
		},
	})
}

type addItemRequest struct {
	ProductID string  `json:"productId"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

func (s *Server) handleAddItem(w http.ResponseWriter, r *http.Request) {
	if s.store.takeFailure("add_item") {
		writeError(w, http.StatusInternalServerError, "Injected failure")
		return
	}

	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	userID, _ := middleware.GetUserID(r.Context())
	line, err := s.store.UpsertLine(userID, req.ProductID, req.Quantity, req.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid product or quantity")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"line":    line,
	})
}

type updateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	if s.store.takeFailure("update_quantity") {
		writeError(w, http.StatusInternalServerError, "Injected failure")
		return
	}

	var req updateQuantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	userID, _ := middleware.GetUserID(r.Context())
	lineID := chi.URLParam(r, "id")

	switch err := s.store.SetQuantity(userID, lineID, req.Quantity); {
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "Quantity must be at least 1")
	case errors.Is(err, domain.ErrLineNotFound):
		writeError(w, http.StatusNotFound, "Line not found")
	default:
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	}
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	if s.store.takeFailure("delete_item") {
		writeError(w, http.StatusInternalServerError, "Injected failure")
		return
	}

	userID, _ := middleware.GetUserID(r.Context())
	lineID := chi.URLParam(r, "id")

	if err := s.store.DeleteLine(userID, lineID); err != nil {
		writeError(w, http.StatusNotFound, "Line not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.store.takeFailure("search") {
		writeError(w, http.StatusInternalServerError, "Injected failure")
		return
	}

	query := r.URL.Query().Get("q")
	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "Invalid page")
			return
		}
		page = parsed
	}

	products, totalPages := s.store.Search(query, page, searchPageSize)
	if products == nil {
		products = []domain.Product{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"products":    products,
		"page":        page,
		"total_pages": totalPages,
	})
}

func (s *Server) handleMarkAbandoning(w http.ResponseWriter, r *http.Request) {
	var sig domain.AbandonmentSignal
	if err := json.NewDecoder(r.Body).Decode(&sig); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !validSignal(sig) {
		writeError(w, http.StatusBadRequest, "Malformed signal")
		return
	}

	s.store.RecordSignal(sig)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleMarkAbandoningBeacon(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid form body")
		return
	}

	sig := domain.AbandonmentSignal{
		CheckoutID: r.PostFormValue("checkoutId"),
		CartID:     r.PostFormValue("cartId"),
		Reason:     domain.AbandonReason(r.PostFormValue("reason")),
	}
	if !validSignal(sig) {
		writeError(w, http.StatusBadRequest, "Malformed signal")
		return
	}

	s.store.RecordSignal(sig)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func validSignal(sig domain.AbandonmentSignal) bool {
	if sig.CheckoutID == "" || sig.CartID == "" {
		return false
	}
	return sig.Reason == domain.ReasonBrowserClosed || sig.Reason == domain.ReasonNavigationAway
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"error":   msg,
	})
}
