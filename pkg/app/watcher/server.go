// Package watcher implements app.Runner for the watcher process.
package watcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lumenpay/credits-middleware/pkg/app"
	"github.com/lumenpay/credits-middleware/pkg/app/httpserver"
	"github.com/lumenpay/credits-middleware/pkg/chain"
	"github.com/lumenpay/credits-middleware/pkg/config"
	"github.com/lumenpay/credits-middleware/pkg/ledger"
	"github.com/lumenpay/credits-middleware/pkg/ledgerstore"
	"github.com/lumenpay/credits-middleware/pkg/pgutil"
	"github.com/lumenpay/credits-middleware/pkg/scanner"
	"github.com/lumenpay/credits-middleware/pkg/settlement"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultHTTPMiddlewareTimeout = 60 * time.Second
	defaultHTTPReadTimeout       = 15 * time.Second
	defaultHTTPWriteTimeout      = 15 * time.Second
	defaultHTTPIdleTimeout       = 60 * time.Second

	defaultListLimit = 100
)

// ledgerReader is the read-only store surface the HTTP API needs.
type ledgerReader interface {
	ListDeposits(ctx context.Context, limit int) ([]*ledger.Deposit, error)
	ListPayments(ctx context.Context, limit int) ([]*ledger.Payment, error)
	GetUser(ctx context.Context, id string) (*ledger.User, error)
	ListEntries(ctx context.Context, userID string) ([]*ledger.Entry, error)
}

// Server holds configuration for the watcher process.
type Server struct {
	cfg *config.Config
}

var _ app.Runner = (*Server)(nil)

// NewServer initializes a new watcher Server.
func NewServer(cfg *config.Config) *Server {
	return &Server{cfg: cfg}
}

// Run starts the deposit scanner and the operational HTTP server.
// It blocks until an OS shutdown signal is received or a fatal server error occurs.
func (s *Server) Run() error {
	if s.cfg == nil {
		return fmt.Errorf("nil config")
	}
	cfg := s.cfg

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting Deposit Watcher")

	db, err := pgutil.ConnectDB(&cfg.Database)
	if err != nil {
		return fmt.Errorf("connect watcher db: %w", err)
	}
	defer func() { _ = db.Close() }()
	logger.Info("Database connection established")

	store := ledgerstore.NewStore(db)

	chainClient, err := chain.NewClient(cfg.Chain.RPCURL, cfg.Chain.ChainID,
		chain.Options{MaxLogRange: cfg.Chain.MaxLogRange}, logger)
	if err != nil {
		return fmt.Errorf("initialize chain client: %w", err)
	}
	defer chainClient.Close()

	depositRate, err := decimal.NewFromString(cfg.Payments.DepositRate)
	if err != nil {
		return fmt.Errorf("parse deposit rate %q: %w", cfg.Payments.DepositRate, err)
	}

	svc, err := settlement.NewService(settlement.Config{
		CardProvider:               cfg.Payments.CardProvider,
		StablecoinProvider:         cfg.Payments.Stablecoin.Provider,
		StablecoinMinConfirmations: cfg.Payments.Stablecoin.MinConfirmations,
		StablecoinRate:             cfg.Payments.Stablecoin.Rate,
		DepositRate:                depositRate,
	}, store, logger)
	if err != nil {
		return fmt.Errorf("initialize settlement service: %w", err)
	}

	engine, err := scanner.NewEngine(scannerConfig(&cfg.Chain), chainClient, store, logger)
	if err != nil {
		return fmt.Errorf("initialize scanner engine: %w", err)
	}
	engine.SetConfirmHook(svc.HandleDepositConfirmed)

	engine.Start(ctx)
	defer engine.Stop()

	router := s.newRouter(store, engine, svc, logger)

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := newHTTPServer(serverAddr, router)

	return httpserver.ServeAndWait(ctx, logger, httpServer, cfg.Shutdown.Timeout)
}

func scannerConfig(cfg *config.ChainConfig) scanner.Config {
	tokens := make([]scanner.TrackedToken, 0, len(cfg.Tokens))
	for _, t := range cfg.Tokens {
		tokens = append(tokens, scanner.TrackedToken{
			Address:  t.Address,
			Symbol:   t.Symbol,
			Decimals: t.Decimals,
		})
	}
	return scanner.Config{
		ChainID:          cfg.ChainID,
		Network:          cfg.Network,
		ReceiverAddress:  cfg.ReceiverAddress,
		Tokens:           tokens,
		MinConfirmations: cfg.MinConfirmations,
		PollInterval:     cfg.PollInterval,
		StartBlock:       cfg.StartBlock,
		RPCTimeout:       cfg.RPCTimeout,
	}
}

func (s *Server) newRouter(store ledgerReader, engine *scanner.Engine, svc *settlement.Service, logger *zap.Logger) http.Handler {
	cfg := s.cfg

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(defaultHTTPMiddlewareTimeout))

	// NOTE: chi's middleware.Logger logs to stdlib.
	// Keep it temporarily if access logs are useful; replace with zap-based middleware later.
	r.Use(middleware.Logger)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Get("/ready", func(w http.ResponseWriter, _ *http.Request) {
		if !engine.IsReady() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("NOT_READY"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("READY"))
	})

	if cfg.Monitoring.Enabled {
		r.Handle("/metrics", promhttp.Handler())
		logger.Info("Metrics enabled", zap.String("path", "/metrics"))
	}

	cardVerifier := settlement.NewStripeVerifier(cfg.Payments.CardWebhookSecret)
	r.Route("/webhooks", func(r chi.Router) {
		r.Post("/card", settlement.CardWebhookHandler(svc, cardVerifier, logger))
		r.Post("/stablecoin", settlement.StablecoinWebhookHandler(svc, []byte(cfg.Payments.Stablecoin.WebhookSecret), logger))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/deposits", handleListDeposits(store, logger))
		r.Get("/payments", handleListPayments(store, logger))
		r.Get("/users/{id}", handleGetUser(store, logger))
		r.Get("/users/{id}/ledger", handleListEntries(store, logger))
	})

	return r
}

func newHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  defaultHTTPReadTimeout,
		WriteTimeout: defaultHTTPWriteTimeout,
		IdleTimeout:  defaultHTTPIdleTimeout,
	}
}

func handleListDeposits(store ledgerReader, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deposits, err := store.ListDeposits(r.Context(), defaultListLimit)
		if err != nil {
			logger.Error("Failed to list deposits", zap.Error(err))
			http.Error(w, "failed to list deposits", http.StatusInternalServerError)
			return
		}

		writeJSON(w, logger, map[string]any{"deposits": deposits})
	}
}

func handleListPayments(store ledgerReader, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payments, err := store.ListPayments(r.Context(), defaultListLimit)
		if err != nil {
			logger.Error("Failed to list payments", zap.Error(err))
			http.Error(w, "failed to list payments", http.StatusInternalServerError)
			return
		}

		writeJSON(w, logger, map[string]any{"payments": payments})
	}
}

func handleGetUser(store ledgerReader, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		usr, err := store.GetUser(r.Context(), id)
		if err != nil {
			logger.Error("Failed to get user", zap.Error(err), zap.String("id", id))
			http.Error(w, "user not found", http.StatusNotFound)
			return
		}

		writeJSON(w, logger, usr)
	}
}

func handleListEntries(store ledgerReader, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		entries, err := store.ListEntries(r.Context(), id)
		if err != nil {
			logger.Error("Failed to list ledger entries", zap.Error(err), zap.String("user_id", id))
			http.Error(w, "failed to list ledger entries", http.StatusInternalServerError)
			return
		}

		writeJSON(w, logger, map[string]any{"entries": entries})
	}
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", zap.Error(err))
	}
}
