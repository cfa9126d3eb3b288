package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"premium-collections/internal/channel"
	"premium-collections/internal/clock"
	"premium-collections/internal/config"
	"premium-collections/internal/credential"
	"premium-collections/internal/domain"
	"premium-collections/internal/gateway"
	"premium-collections/internal/handler"
	"premium-collections/internal/metrics"
	"premium-collections/internal/notifier"
	"premium-collections/internal/repository"
	"premium-collections/internal/service"
)

// Server represents the HTTP server
type Server struct {
	router   *mux.Router
	server   *http.Server
	payments *service.PaymentService
	logger   *slog.Logger
	port     string

	db    *sql.DB
	redis *redis.Client
	bolt  *repository.BoltLedger
}

// NewServer wires the registry, ledger, channel and upstream clients selected
// by cfg and registers the HTTP routes.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	s := &Server{logger: logger}
	clk := clock.RealClock{}
	m := metrics.New()

	repo, err := s.openRegistry(cfg)
	if err != nil {
		s.closeStores()
		return nil, err
	}

	ledger, err := s.openLedger(cfg, clk)
	if err != nil {
		s.closeStores()
		return nil, err
	}

	adapter, err := newChannelAdapter(cfg, clk, logger)
	if err != nil {
		s.closeStores()
		return nil, err
	}

	upstreamHTTP := &http.Client{Timeout: cfg.NotifierTimeout}
	authenticator := credential.NewClientCredentials(
		cfg.AuthTokenURL, cfg.AuthClientID, cfg.AuthClientSecret, cfg.AuthScope, upstreamHTTP, clk, logger)
	credentials := credential.NewCache(authenticator, clk, cfg.TokenBuffer, logger, m)
	settlement := notifier.NewClient(cfg.NotifierURL, cfg.NotifierChannelTag, credentials, upstreamHTTP, logger, m)

	registry := service.NewRegistry(repo, cfg.AmountRules, clk, logger)
	s.payments = service.NewPaymentService(
		registry,
		gateway.NewRouter(cfg.RouterRules()),
		adapter,
		settlement,
		ledger,
		credentials,
		service.PaymentServiceConfig{
			LedgerTTL:      cfg.LedgerTTL,
			ChannelTimeout: cfg.ChannelTimeout,
		},
		clk,
		m,
		logger,
	)

	// Initialize handlers
	paymentHandler := handler.NewPaymentHandler(s.payments)
	webhookHandler := handler.NewWebhookHandler(s.payments)
	maintenanceHandler := handler.NewMaintenanceHandler(s.payments)

	// Setup router
	router := mux.NewRouter()
	router.Use(correlationMiddleware)
	router.Use(loggingMiddleware(logger, m))

	// Payment routes
	router.HandleFunc("/payments", paymentHandler.Initiate).Methods("POST")
	router.HandleFunc("/payments/{transaction_id}", paymentHandler.GetPayment).Methods("GET")

	// Aggregator callbacks
	router.HandleFunc("/webhooks/deliveries", webhookHandler.HandleDelivery).Methods("POST")

	// Maintenance, triggered by an external scheduler
	router.HandleFunc("/maintenance/sweep", maintenanceHandler.Sweep).Methods("POST")

	router.Handle("/metrics", m.Handler()).Methods("GET")
	router.HandleFunc("/health", s.health).Methods("GET")

	s.router = router
	return s, nil
}

func (s *Server) openRegistry(cfg *config.Config) (domain.TransactionRepository, error) {
	switch cfg.RegistryBackend {
	case config.BackendMemory:
		return repository.NewMemoryTransactionRepository(s.logger), nil
	case config.BackendPostgres:
		db, err := sql.Open("postgres", cfg.GetDBConnectionString())
		if err != nil {
			return nil, err
		}

		// Configure connection pool for better performance
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.Ping(); err != nil {
			db.Close()
			return nil, err
		}
		s.db = db
		s.logger.Info("Successfully connected to database")

		return repository.NewStore(db, s.logger).Transaction(), nil
	default:
		return nil, fmt.Errorf("unknown registry backend %q", cfg.RegistryBackend)
	}
}

func (s *Server) openLedger(cfg *config.Config, clk clock.Clock) (domain.IdempotencyLedger, error) {
	switch cfg.LedgerBackend {
	case config.BackendMemory:
		return repository.NewMemoryLedger(clk, s.logger), nil
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, err
		}
		s.redis = client
		s.logger.Info("Successfully connected to redis", "addr", cfg.RedisAddr)

		return repository.NewRedisLedger(client, clk, s.logger), nil
	case config.BackendBolt:
		ledger, err := repository.NewBoltLedger(cfg.BoltPath, clk, s.logger)
		if err != nil {
			return nil, err
		}
		s.bolt = ledger
		s.logger.Info("Opened bolt ledger", "path", cfg.BoltPath)

		return ledger, nil
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.LedgerBackend)
	}
}

func newChannelAdapter(cfg *config.Config, clk clock.Clock, logger *slog.Logger) (channel.Adapter, error) {
	switch cfg.ChannelMode {
	case config.ChannelModeSimulated:
		return channel.NewSimulator(cfg.SimulatorLatency, clk, logger), nil
	case config.ChannelModeAggregator:
		return channel.NewAggregatorClient(cfg.AggregatorBaseURL, cfg.AggregatorAPIKey, cfg.CallbackURL,
			&http.Client{Timeout: cfg.ChannelTimeout}, logger), nil
	default:
		return nil, fmt.Errorf("unknown channel mode %q", cfg.ChannelMode)
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if s.db != nil {
		if err := s.db.PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy", "error": "database unavailable"})
			return
		}
	}
	if s.redis != nil {
		if err := s.redis.Ping(r.Context()).Err(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy", "error": "redis unavailable"})
			return
		}
	}

	json.NewEncoder(w).Encode(map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Start starts the HTTP server on the specified port
func (s *Server) Start(port string) (string, error) {
	// Create listener first to get actual port
	listener, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return "", err
	}

	// Get the actual port being used
	addr := listener.Addr().(*net.TCPAddr)
	s.port = strconv.Itoa(addr.Port)

	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Starting server", "port", s.port)

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Server failed to start", "error", err)
		}
	}()

	return s.port, nil
}

// Stop drains HTTP traffic and in-flight channel dispatches, then closes the stores.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down server")

	var err error
	if s.server != nil {
		err = s.server.Shutdown(ctx)
	}

	if s.payments != nil {
		done := make(chan struct{})
		go func() {
			s.payments.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			s.logger.Warn("Channel dispatches still running at shutdown")
		}
	}

	s.closeStores()
	return err
}

func (s *Server) closeStores() {
	if s.db != nil {
		s.db.Close()
	}
	if s.redis != nil {
		s.redis.Close()
	}
	if s.bolt != nil {
		s.bolt.Close()
	}
}

// Payments exposes the orchestrator, e.g. for a maintenance scheduler.
func (s *Server) Payments() *service.PaymentService {
	return s.payments
}

// GetPort returns the port the server is listening on
func (s *Server) GetPort() string {
	return s.port
}

// GetBaseURL returns the base URL for the server
func (s *Server) GetBaseURL() string {
	return "http://localhost:" + s.port
}

// GetRouter returns the router for testing purposes
func (s *Server) GetRouter() *mux.Router {
	return s.router
}

// StartServer starts the server with the given configuration
func StartServer(cfg *config.Config) (*Server, string, error) {
	var logger *slog.Logger
	if cfg.ServerPort == "0" {
		// Test environment - use discard logger
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	} else {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}

	server, err := NewServer(cfg, logger)
	if err != nil {
		return nil, "", err
	}

	port, err := server.Start(cfg.ServerPort)
	if err != nil {
		server.closeStores()
		return nil, "", err
	}

	return server, port, nil
}
