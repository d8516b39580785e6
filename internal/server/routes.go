package server

import (
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/ldsbg/fundkeeper/internal/common"
)

// registerRoutes sets up all REST API routes on the mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	// System
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/version", s.handleVersion)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/shutdown", s.handleShutdown)

	// Funds (market data)
	mux.HandleFunc("/api/funds/", s.routeFunds)

	// Users (ledgers and dashboards)
	mux.HandleFunc("/api/users/", s.routeUsers)
	mux.HandleFunc("/api/users", s.handleUserList)
}

// routeFunds dispatches /api/funds/{code}/* to the appropriate handler.
func (s *Server) routeFunds(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/funds/")
	if path == "" {
		WriteError(w, http.StatusBadRequest, "fund code is required in path")
		return
	}

	parts := strings.SplitN(path, "/", 2)
	code := parts[0]
	subpath := ""
	if len(parts) > 1 {
		subpath = parts[1]
	}

	switch subpath {
	case "quote":
		s.handleFundQuote(w, r, code)
	case "history":
		s.handleFundHistory(w, r, code)
	default:
		WriteError(w, http.StatusNotFound, "Not found")
	}
}

// routeUsers dispatches /api/users/{user}/* to the appropriate handler.
func (s *Server) routeUsers(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/users/")
	if path == "" {
		s.handleUserList(w, r)
		return
	}

	parts := strings.SplitN(path, "/", 2)
	user := parts[0]
	subpath := ""
	if len(parts) > 1 {
		subpath = parts[1]
	}

	// /holdings/{fund}/liquidate
	if strings.HasPrefix(subpath, "holdings/") && strings.HasSuffix(subpath, "/liquidate") {
		fund := strings.TrimSuffix(strings.TrimPrefix(subpath, "holdings/"), "/liquidate")
		s.handleLiquidate(w, r, user, fund)
		return
	}

	switch subpath {
	case "portfolio":
		s.handlePortfolio(w, r, user)
	case "portfolio/history":
		s.handlePortfolioHistory(w, r, user)
	case "portfolio/chart.png":
		s.handlePortfolioChart(w, r, user)
	case "transactions":
		s.handleTransactions(w, r, user)
	case "buy":
		s.handleBuy(w, r, user)
	case "sell":
		s.handleSell(w, r, user)
	case "data":
		s.handlePurge(w, r, user)
	default:
		WriteError(w, http.StatusNotFound, "Not found")
	}
}

// handleHealth handles GET /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"version":        common.GetVersion(),
		"uptime_seconds": int(time.Since(s.app.StartupTime).Seconds()),
	})
}

// handleVersion handles GET /api/version.
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.GetVersion(),
		"build":   common.GetBuild(),
		"commit":  common.GetGitCommit(),
		"go":      runtime.Version(),
	})
}

// handleConfig handles GET /api/config.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	cfg := s.app.Config
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"environment":       cfg.Environment,
		"server_host":       cfg.Server.Host,
		"server_port":       cfg.Server.Port,
		"data_path":         cfg.Storage.Path,
		"users":             cfg.Users,
		"scheduler_enabled": cfg.Scheduler.Enabled,
		"refresh_interval":  cfg.Scheduler.GetInterval().String(),
	})
}

// handleShutdown handles POST /api/shutdown (dev mode only).
func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	if s.app.Config.IsProduction() {
		WriteError(w, http.StatusForbidden, "Shutdown endpoint disabled in production")
		return
	}

	s.logger.Info().Msg("Shutdown requested via HTTP endpoint")

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Shutting down gracefully...\n"))

	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}

	if s.shutdownChan != nil {
		go func() {
			time.Sleep(100 * time.Millisecond)
			s.shutdownChan <- struct{}{}
		}()
	}
}
