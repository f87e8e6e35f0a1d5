package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/vitos/crypto_signal_trader/internal/config"
	"github.com/vitos/crypto_signal_trader/internal/domain"
	"go.uber.org/zap"
)

// signalExecutor is the slice of the dispatcher the web layer needs.
type signalExecutor interface {
	Execute(ctx context.Context, sig domain.Signal) *domain.OrderResult
	Check(ctx context.Context, sig domain.Signal) *domain.OrderResult
}

// exchangeAccounts is the registry as seen from the API handlers.
type exchangeAccounts interface {
	domain.GatewayResolver
	Names() []string
	Rebuild(ctx context.Context, store domain.CredentialStore) error
}

type Server struct {
	cfg        *config.Config
	dispatcher signalExecutor
	accounts   exchangeAccounts
	store      domain.CredentialStore
	logger     *zap.Logger
	httpServer *http.Server
}

func NewServer(cfg *config.Config, dispatcher signalExecutor, accounts exchangeAccounts, store domain.CredentialStore, logger *zap.Logger) *Server {
	s := &Server{
		cfg:        cfg,
		dispatcher: dispatcher,
		accounts:   accounts,
		store:      store,
		logger:     logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhook", s.handleWebhook)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/balance", s.handleBalance)
	mux.HandleFunc("GET /api/positions", s.handlePositions)
	mux.HandleFunc("GET /api/config", s.handleGetConfig)
	mux.HandleFunc("POST /api/config", s.handleUpdateConfig)
	mux.HandleFunc("POST /api/keys", s.handleSaveKeys)
	mux.HandleFunc("DELETE /api/keys/{exchange}", s.handleDeleteKeys)
	mux.HandleFunc("POST /api/test", s.handleTestSignal)

	view := cfg.View()
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", view.Server.Host, view.Server.Port),
		Handler: s.recovered(mux),
	}
	return s
}

func (s *Server) Start() error {
	s.logger.Info("http server listening", zap.String("addr", s.httpServer.Addr))
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// recovered turns a handler panic into a 500 without leaking internals
// to the caller.
func (s *Server) recovered(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("handler panic",
					zap.String("path", r.URL.Path),
					zap.Any("panic", rec))
				writeJSON(w, http.StatusInternalServerError, map[string]any{
					"success": false,
					"message": "internal server error",
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// clientIP returns the first hop of X-Forwarded-For when present, the
// connection's remote address otherwise.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
