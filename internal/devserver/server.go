// Package devserver is a local stand-in for the store backend: the REST
// endpoints the console calls plus the websocket that relays status
// intents and broadcasts change notifications.
package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/nhle/order-console/internal/channel"
	"github.com/nhle/order-console/internal/logging"
	"github.com/nhle/order-console/internal/model"
)

const subsystem = "devserver"

// Config configures a dev server.
type Config struct {
	AdminEmail    string
	AdminPassword string

	// Secret signs session tokens. Random when empty.
	Secret []byte

	// EchoDelay holds back every broadcast notification, which makes the
	// echo window observable by hand.
	EchoDelay time.Duration

	// NoSeed starts with an empty order book.
	NoSeed bool
}

// Server serves the REST API under /api and the websocket under /ws.
type Server struct {
	store  *MemoryStore
	tokens *TokenIssuer
	hub    *Hub
	router *chi.Mux
}

// New builds a server from cfg.
func New(cfg Config) (*Server, error) {
	tokens, err := NewTokenIssuer(cfg.Secret)
	if err != nil {
		return nil, err
	}
	if cfg.AdminEmail == "" {
		cfg.AdminEmail = "admin@example.com"
	}
	if cfg.AdminPassword == "" {
		cfg.AdminPassword = "admin"
	}

	st := NewMemoryStore()
	if cfg.NoSeed {
		st.AddAccount(model.User{ID: "admin-1", Username: "admin", Email: cfg.AdminEmail, Role: "admin"}, cfg.AdminPassword)
	} else {
		st.Seed(cfg.AdminEmail, cfg.AdminPassword)
	}

	s := &Server{
		store:  st,
		tokens: tokens,
		hub:    newHub(st, cfg.EchoDelay),
	}
	s.router = s.routes()
	return s, nil
}

// Store returns the server's order book.
func (s *Server) Store() *MemoryStore { return s.store }

// Hub returns the websocket hub. Its Run loop must be started before
// consoles connect.
func (s *Server) Hub() *Hub { return s.hub }

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(requestLog)

	r.Get("/ws", s.handleWebSocket)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/logins", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Get("/auth/me", s.handleMe)
			r.Get("/order/all", s.handleListOrders)
			r.Get("/order/{id}", s.handleGetOrder)
			r.Patch("/order/{id}/status", s.handleUpdateStatus)
			r.Patch("/order/{id}/payment", s.handleUpdatePayment)
			r.Post("/dev/orders", s.handleCreateOrder)
		})
	})
	return r
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.hub.Run(ctx) })
	g.Go(func() error {
		logging.Info(subsystem, "listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving %s: %w", addr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logging.Debug(subsystem, "%s %s %d %s", r.Method, r.URL.Path, ww.Status(), time.Since(start))
	})
}

func writeData(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]any{"data": v}); err != nil {
		logging.Warn(subsystem, "encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": msg})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds model.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	user, err := s.store.authenticate(creds.Email, creds.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	tok, err := s.tokens.Issue(user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "issuing token")
		return
	}
	user.Token = tok
	writeData(w, http.StatusOK, user)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := s.store.userByID(userIDFrom(r.Context()))
	if !ok {
		writeError(w, http.StatusUnauthorized, "unknown user")
		return
	}
	writeData(w, http.StatusOK, user)
}

func (s *Server) handleListOrders(w http.ResponseWriter, _ *http.Request) {
	writeData(w, http.StatusOK, s.store.Summaries())
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	lines, err := s.store.Detail(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeData(w, http.StatusOK, lines)
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		OrderStatus model.OrderStatus `json:"orderStatus"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.store.SetOrderStatus(id, body.OrderStatus); err != nil {
		writeStoreError(w, err)
		return
	}
	s.hub.Notify(channel.EventOrderStatusUpdated, id)
	writeData(w, http.StatusOK, map[string]string{"id": id, "orderStatus": string(body.OrderStatus)})
}

func (s *Server) handleUpdatePayment(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PaymentStatus model.PaymentStatus `json:"paymentStatus"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.store.SetPaymentStatus(id, body.PaymentStatus); err != nil {
		writeStoreError(w, err)
		return
	}
	s.hub.Notify(channel.EventPaymentStatusUpdated, id)
	writeData(w, http.StatusOK, map[string]string{"id": id, "paymentStatus": string(body.PaymentStatus)})
}

// handleCreateOrder places a one-line order, so the console's new-order
// activity can be exercised.
func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var body struct {
		FirstName string  `json:"firstName"`
		LastName  string  `json:"lastName"`
		City      string  `json:"city"`
		Product   string  `json:"product"`
		Price     float64 `json:"price"`
		Quantity  int     `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Product == "" || body.Quantity <= 0 {
		writeError(w, http.StatusBadRequest, "product and a positive quantity are required")
		return
	}
	id := s.store.AddOrder(OrderSeed{
		FirstName: body.FirstName,
		LastName:  body.LastName,
		City:      body.City,
		UserID:    userIDFrom(r.Context()),
		Method:    model.PaymentMethodCOD,
		Products:  []model.Product{{Name: body.Product, Price: body.Price}},
		Quantity:  []int{body.Quantity},
	})
	writeData(w, http.StatusCreated, map[string]string{"id": id})
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errOrderNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, model.ErrInvalidValue):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
