// Package server exposes the read-only status API: health, open
// positions, today's risk state, the current directive and the recent
// audit trail. It never mutates engine state.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"tradesentinel/src/gateway"
	"tradesentinel/src/ledger"
	"tradesentinel/src/repository"
	"tradesentinel/src/risk"
	"tradesentinel/src/settings"
)

const shutdownTimeout = 5 * time.Second

// Server is the status HTTP server.
type Server struct {
	gateway    *gateway.Service
	ledger     *ledger.Service
	risk       *risk.Manager
	runs       *repository.SentinelRunRepository
	directives *repository.DirectiveRepository
}

// New creates the status server.
func New(
	gw *gateway.Service,
	led *ledger.Service,
	riskMgr *risk.Manager,
	runs *repository.SentinelRunRepository,
	directives *repository.DirectiveRepository,
) *Server {
	return &Server{
		gateway:    gw,
		ledger:     led,
		risk:       riskMgr,
		runs:       runs,
		directives: directives,
	}
}

// Router builds the route table. Exposed separately so tests can drive
// handlers without a listening socket.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error("/healthcheck write error")
		}
	})
	r.Get("/positions", s.handlePositions)
	r.Get("/daily", s.handleDaily)
	r.Get("/directive", s.handleDirective)
	r.Get("/runs", s.handleRuns)
	r.Get("/trades", s.handleTrades)

	return r
}

// Start serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, port string) {
	addr := ":" + port
	srv := &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}

	go func() {
		logger.Infof("Status server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Status server crashed")
		}
	}()

	<-ctx.Done()

	logger.Info("Shutting down status server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Status server shutdown error")
	}
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	positions, err := s.ledger.OpenPositions(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	symbols := make([]string, 0, len(positions))
	for _, p := range positions {
		symbols = append(symbols, p.Symbol)
	}

	// Live tickers are best-effort; summaries degrade to PriceKnown
	// false when the exchange is unreachable.
	tickers, err := s.gateway.Tickers(ctx, symbols)
	if err != nil {
		tickers = map[string]*gateway.Ticker{}
	}

	summaries, err := s.ledger.OpenPositionSummaries(ctx, tickers)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, summaries)
}

func (s *Server) handleDaily(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	state, err := s.risk.Read(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	stats, err := s.ledger.DailyTradeStats(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	cfg, err := settings.Load()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	gate := risk.EvaluateGate(state, cfg)

	writeJSON(w, map[string]interface{}{
		"state": state,
		"stats": stats,
		"gate":  gate.Stage,
	})
}

func (s *Server) handleDirective(w http.ResponseWriter, r *http.Request) {
	directive, err := s.directives.GetCurrent(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if directive == nil {
		writeError(w, http.StatusNotFound, errors.New("no directive in force"))
		return
	}
	writeJSON(w, directive)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.runs.FindLatest(r.Context(), 20)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, runs)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := s.ledger.RecentTrades(r.Context(), 50)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, trades)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithError(err).Error("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(map[string]string{"error": err.Error()}); encErr != nil {
		logger.WithError(encErr).Error("Failed to encode error response")
	}
}
