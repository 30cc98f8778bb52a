package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/kjannette/stonks-backend/internal/ledger"
	"github.com/kjannette/stonks-backend/internal/metrics"
	"github.com/kjannette/stonks-backend/internal/portfolio"
	"github.com/kjannette/stonks-backend/internal/quote"
	"github.com/kjannette/stonks-backend/internal/ratelimit"
	"github.com/kjannette/stonks-backend/internal/repository"
	"github.com/kjannette/stonks-backend/internal/stream"
	"github.com/kjannette/stonks-backend/internal/watchlist"
)

const (
	maxQueryLimit = 1000
	maxBodyBytes  = 1 << 20
)

type QuoteSource interface {
	Get(ctx context.Context, symbol string) (quote.Quote, error)
}

// Deps are the services the HTTP surface exposes.
type Deps struct {
	Store       repository.Store
	Quotes      QuoteSource
	Ledger      *ledger.Engine
	Portfolio   *portfolio.Aggregator
	Watchlist   *watchlist.Service
	Stream      *stream.Poller
	Limiter     ratelimit.Limiter
	Providers   []string // quote provider names, in priority order
	InitialCash int64
	Log         zerolog.Logger
}

type Server struct {
	Deps
	httpServer *http.Server
	apiKey     string
	log        zerolog.Logger
}

func NewServer(deps Deps, port int, apiKey, corsOrigin string) *Server {
	if deps.Limiter == nil {
		deps.Limiter = ratelimit.Nop{}
	}
	s := &Server{
		Deps:   deps,
		apiKey: apiKey,
		log:    deps.Log.With().Str("component", "api").Logger(),
	}

	mux := http.NewServeMux()

	// Quotes
	mux.HandleFunc("GET /v1/quotes/{symbol}", s.handleQuote)

	// Users
	mux.HandleFunc("POST /v1/users", s.handleCreateUser)
	mux.HandleFunc("GET /v1/users/{id}", s.handleGetUser)

	// Trading
	mux.HandleFunc("POST /v1/users/{id}/buy", s.handleBuy)
	mux.HandleFunc("POST /v1/users/{id}/sell", s.handleSell)
	mux.HandleFunc("GET /v1/users/{id}/portfolio", s.handlePortfolio)
	mux.HandleFunc("GET /v1/users/{id}/history", s.handleHistory)

	// Watchlist
	mux.HandleFunc("GET /v1/users/{id}/watchlist", s.handleMarket)
	mux.HandleFunc("POST /v1/users/{id}/watchlist", s.handleWatch)
	mux.HandleFunc("DELETE /v1/users/{id}/watchlist/{symbol}", s.handleUnwatch)
	mux.HandleFunc("GET /v1/users/{id}/quotes", s.handleWatchlistQuotes)

	// Streaming
	mux.HandleFunc("GET /v1/users/{id}/stream", s.handleSSE)
	mux.HandleFunc("GET /v1/users/{id}/ws", s.handleWS)

	// Health check and metrics (no auth required)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())

	handler := corsMiddleware(s.authMiddleware(s.rateLimitMiddleware(noStoreMiddleware(mux))), corsOrigin)

	// request contexts derive from base, which Shutdown cancels so open
	// streams end instead of holding the drain until its deadline
	base, cancelBase := context.WithCancel(context.Background())
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return base },
	}
	s.httpServer.RegisterOnShutdown(cancelBase)

	return s
}

// Handler returns the fully wrapped router.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("REST API server started")
	if s.apiKey != "" {
		s.log.Info().Msg("authentication: enabled (Bearer token)")
	} else {
		s.log.Warn().Msg("authentication: disabled (no API_KEY configured)")
	}
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on l until Shutdown.
func (s *Server) Serve(l net.Listener) error {
	return s.httpServer.Serve(l)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// --- middleware ---

func isOpenPath(path string) bool {
	return path == "/health" || path == "/metrics"
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" || isOpenPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		auth := r.Header.Get("Authorization")
		if auth == "" {
			writeError(w, http.StatusUnauthorized, "missing Authorization header")
			return
		}

		token := strings.TrimPrefix(auth, "Bearer ")
		if token == auth || token != s.apiKey {
			writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isOpenPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		// errors already fail open inside the limiter
		ok, _ := s.Limiter.Allow(r.Context(), clientIP(r))
		if !ok {
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func noStoreMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(next http.Handler, allowOrigin string) http.Handler {
	if allowOrigin == "" {
		allowOrigin = "*"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// --- validation helpers ---

func parseLimit(r *http.Request, defaultLimit int) int {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return defaultLimit
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return defaultLimit
	}
	if n > maxQueryLimit {
		return maxQueryLimit
	}
	return n
}

func parseUserID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid user id %q", r.PathValue("id"))
	}
	return id, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// --- response helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeFailure maps domain errors onto status codes. Anything unrecognized
// is logged and reported as a 500.
func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	if rej, ok := ledger.AsRejection(err); ok {
		status := http.StatusUnprocessableEntity
		if rej.Kind == ledger.InvalidQuantity {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, map[string]string{"error": rej.Reason, "kind": string(rej.Kind)})
		return
	}

	switch {
	case errors.Is(err, repository.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "user not found")
	case errors.Is(err, repository.ErrUsernameTaken):
		writeError(w, http.StatusConflict, "username already taken")
	case errors.Is(err, quote.ErrInvalidSymbol):
		writeError(w, http.StatusUnprocessableEntity, "invalid symbol")
	default:
		s.log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
