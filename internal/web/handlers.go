package web

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/vitos/crypto_signal_trader/internal/config"
	"github.com/vitos/crypto_signal_trader/internal/domain"
	"go.uber.org/zap"
)

// defaultSymbol is assumed when an alert arrives without a ticker.
const defaultSymbol = "BTCUSDT"

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	view := s.cfg.View()
	if view.Security.RequireIPWhitelist {
		ip := clientIP(r)
		if !ipAllowed(ip, view.Security.AllowedIPs) {
			s.logger.Warn("webhook rejected by ip allowlist", zap.String("ip", ip))
			writeJSON(w, http.StatusForbidden, map[string]any{
				"success": false,
				"message": "ip address not allowed",
			})
			return
		}
	}

	var sig domain.Signal
	if err := json.NewDecoder(r.Body).Decode(&sig); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"message": "request body must be a JSON signal",
		})
		return
	}
	if sig.Action == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"message": "action is required",
		})
		return
	}
	if sig.Symbol == "" {
		sig.Symbol = defaultSymbol
	}

	result := s.dispatcher.Execute(r.Context(), sig)
	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":              "ok",
		"timestamp":           time.Now().UTC().Format(time.RFC3339),
		"trading_enabled":     s.cfg.TradingEnabled(),
		"connected_exchanges": s.accounts.Names(),
	})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	name, gw, ok := s.lookupExchange(w, r)
	if !ok {
		return
	}

	balances, err := gw.FetchBalance(r.Context())
	if err != nil {
		s.logger.Error("balance fetch failed", zap.String("exchange", name), zap.Error(err))
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": "failed to fetch balance"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"exchange": name,
		"balances": balances,
	})
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	name, gw, ok := s.lookupExchange(w, r)
	if !ok {
		return
	}

	positions, err := gw.GetPositions(r.Context(), "")
	if err != nil {
		s.logger.Error("position fetch failed", zap.String("exchange", name), zap.Error(err))
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": "failed to fetch positions"})
		return
	}
	if positions == nil {
		positions = []domain.Position{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"exchange":  name,
		"positions": positions,
	})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.View())
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	// Decode over the current snapshot so a partial body only changes
	// the keys it names.
	merged := s.cfg.View()
	if err := json.NewDecoder(r.Body).Decode(&merged); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "request body must be a JSON config"})
		return
	}

	if err := s.cfg.Update(func(snap *config.Snapshot) { *snap = merged }); err != nil {
		s.logger.Error("config update failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to persist config"})
		return
	}

	s.logger.Info("config updated",
		zap.Bool("trading_enabled", merged.Trading.EnableTrading),
		zap.String("default_exchange", merged.Trading.DefaultExchange))
	writeJSON(w, http.StatusOK, s.cfg.View())
}

func (s *Server) handleSaveKeys(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Exchange  string `json:"exchange"`
		APIKey    string `json:"api_key"`
		SecretKey string `json:"secret_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "request body must be JSON"})
		return
	}
	req.Exchange = strings.ToLower(strings.TrimSpace(req.Exchange))
	if req.Exchange == "" || req.APIKey == "" || req.SecretKey == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "exchange, api_key and secret_key are required"})
		return
	}

	creds := domain.Credentials{APIKey: req.APIKey, SecretKey: req.SecretKey}
	if err := s.store.Save(r.Context(), req.Exchange, creds); err != nil {
		s.logger.Error("credential save failed", zap.String("exchange", req.Exchange), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to save credentials"})
		return
	}
	if err := s.accounts.Rebuild(r.Context(), s.store); err != nil {
		s.logger.Error("account rebuild failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to reconnect exchanges"})
		return
	}

	s.logger.Info("credentials saved", zap.String("exchange", req.Exchange))
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "credentials saved for " + req.Exchange,
	})
}

func (s *Server) handleDeleteKeys(w http.ResponseWriter, r *http.Request) {
	name := strings.ToLower(r.PathValue("exchange"))

	if err := s.store.Delete(r.Context(), name); err != nil {
		s.logger.Error("credential delete failed", zap.String("exchange", name), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to delete credentials"})
		return
	}
	if err := s.accounts.Rebuild(r.Context(), s.store); err != nil {
		s.logger.Error("account rebuild failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to reconnect exchanges"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "credentials removed for " + name,
	})
}

// handleTestSignal runs a signal through validation only; nothing
// reaches an exchange.
func (s *Server) handleTestSignal(w http.ResponseWriter, r *http.Request) {
	var sig domain.Signal
	if err := json.NewDecoder(r.Body).Decode(&sig); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"message": "request body must be a JSON signal",
		})
		return
	}
	if sig.Symbol == "" {
		sig.Symbol = defaultSymbol
	}

	result := s.dispatcher.Check(r.Context(), sig)
	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, result)
}

// lookupExchange resolves the ?exchange= query parameter, falling back
// to the configured default venue.
func (s *Server) lookupExchange(w http.ResponseWriter, r *http.Request) (string, domain.Exchange, bool) {
	name := strings.ToLower(r.URL.Query().Get("exchange"))
	if name == "" {
		name = s.cfg.DefaultExchange()
	}
	gw, ok := s.accounts.Get(name)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "exchange " + name + " is not connected"})
		return name, nil, false
	}
	return name, gw, true
}

func ipAllowed(ip string, allowed []string) bool {
	for _, a := range allowed {
		if ip == a {
			return true
		}
	}
	return false
}
