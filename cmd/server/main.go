package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/atmx/clamm-engine/internal/auth"
	"github.com/atmx/clamm-engine/internal/config"
	"github.com/atmx/clamm-engine/internal/engine"
	"github.com/atmx/clamm-engine/internal/exchange"
	"github.com/atmx/clamm-engine/internal/ledger"
	"github.com/atmx/clamm-engine/internal/metrics"
	"github.com/atmx/clamm-engine/internal/store"
)

func main() {
	root := &cobra.Command{
		Use:          "clamm",
		Short:        "Concentrated liquidity AMM engine",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP and websocket API",
		RunE:  runServe,
	}

	serveCmd.Flags().String("http-addr", ":8080", "HTTP listen address")
	serveCmd.Flags().String("database-url", "", "Postgres DSN; empty keeps state in memory")
	serveCmd.Flags().String("redis-url", "", "Redis URL for the receipt cache")
	serveCmd.Flags().Duration("cache-ttl", 30*time.Second, "receipt cache TTL")
	serveCmd.Flags().String("admin", "", "admin address")
	serveCmd.Flags().String("vault", "", "vault address holding pool reserves")
	serveCmd.Flags().String("protocol-fee", "", "initial protocol fee, raw (1e12 is 100%)")
	serveCmd.Flags().String("gauge-schedule", "@every 15s", "cron spec for pool gauge refresh")
	serveCmd.Flags().Int("max-retries", 5, "maximum connection attempts")
	serveCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")

	root.AddCommand(serveCmd)

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the Postgres schema",
		RunE:  runMigrate,
	}

	migrateCmd.Flags().String("database-url", "", "Postgres DSN")
	migrateCmd.Flags().Int("max-retries", 5, "maximum connection attempts")
	migrateCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")

	root.AddCommand(migrateCmd)

	tokenCmd := &cobra.Command{
		Use:   "token <address>",
		Short: "Issue an API token for an account",
		Args:  cobra.ExactArgs(1),
		RunE:  runToken,
	}

	tokenCmd.Flags().Duration("token-ttl", 24*time.Hour, "token lifetime")

	root.AddCommand(tokenCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func load(cmd *cobra.Command) (config.Config, *zap.Logger, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := load(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()
	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	if cfg.DatabaseURL != "" {
		pool, err := connectPostgres(ctx, cfg)
		if err != nil {
			return err
		}
		cleanup = append(cleanup, pool.Close)
		pg := store.NewPostgresStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		st = pg
		logger.Info("connected to postgres")

		// Wrap with Redis read-through cache if configured.
		if cfg.RedisURL != "" {
			rdb, err := connectRedis(ctx, cfg)
			if err != nil {
				return err
			}
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, cfg.CacheTTL)
			logger.Info("redis receipt cache enabled", zap.Duration("ttl", cfg.CacheTTL))
		}
	} else {
		logger.Warn("database-url not set, using in-memory store (state will not persist)")
		st = store.NewMemoryStore()
	}

	// --- Engine ---
	book := ledger.New(cfg.Vault)
	state, err := engine.New(engine.Config{Admin: cfg.Admin, ProtocolFee: cfg.ProtocolFee},
		engine.WithEnv(engine.SystemEnv{}),
		engine.WithBank(book),
	)
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}

	hub := exchange.NewHub(logger.Named("ws"))
	go hub.Run(ctx)

	svc := exchange.NewService(state, book, st, hub, logger.Named("exchange"))
	if err := svc.Load(ctx); err != nil {
		return err
	}

	// --- Pool gauges ---
	c := cron.New()
	if err := c.AddFunc(cfg.GaugeSchedule, svc.RefreshGauges); err != nil {
		return fmt.Errorf("gauge-schedule: %w", err)
	}
	svc.RefreshGauges()
	c.Start()
	defer c.Stop()

	// --- HTTP router ---
	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"clamm-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Websocket feed of committed changes; outside the timeout.
		r.Get("/ws", hub.HandleWS)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			svc.Routes(r, issuer)
		})
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("clamm-engine listening",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("admin", cfg.Admin.Hex()),
			zap.String("vault", cfg.Vault.Hex()),
			zap.String("protocol_fee", state.ProtocolFee().String()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	// Graceful shutdown.
	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	logger.Info("shutting down clamm-engine")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
	return nil
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := load(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.DatabaseURL == "" {
		return fmt.Errorf("database-url is required")
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := connectPostgres(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := store.NewPostgresStore(pool).Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	logger.Info("schema up to date")
	return nil
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, logger, err := load(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if !common.IsHexAddress(args[0]) {
		return fmt.Errorf("%q is not a hex address", args[0])
	}
	account := common.HexToAddress(args[0])
	token, expires, err := auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL).Issue(account)
	if err != nil {
		return err
	}
	logger.Info("token issued", zap.String("account", account.Hex()), zap.Time("expires", expires))
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

func connectPostgres(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres config: %w", err)
	}
	if err := withRetry(ctx, cfg.MaxRetries, cfg.RetryBackoff, pool.Ping); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: %w", err)
	}
	return pool, nil
}

func connectRedis(ctx context.Context, cfg config.Config) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis-url: %w", err)
	}
	rdb := redis.NewClient(opt)
	ping := func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	if err := withRetry(ctx, cfg.MaxRetries, cfg.RetryBackoff, ping); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis: %w", err)
	}
	return rdb, nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
