package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/samie105/broker-engine/internal/catalog"
	"github.com/samie105/broker-engine/internal/config"
	"github.com/samie105/broker-engine/internal/metrics"
	"github.com/samie105/broker-engine/internal/notify"
	"github.com/samie105/broker-engine/internal/store"
	"github.com/samie105/broker-engine/internal/workflow"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)

		pg := store.NewPostgresStore(pool)
		if err := pg.EnsureSchema(context.Background()); err != nil {
			slog.Error("schema migration failed", "err", err)
			os.Exit(1)
		}
		st = pg
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis snapshot cache if configured.
		if cfg.RedisURL != "" {
			opt, err := redis.ParseURL(cfg.RedisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, cfg.CacheTTL)
			slog.Info("Redis snapshot cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Event publisher ---
	var publisher workflow.Publisher
	if cfg.NatsURL != "" {
		nc, err := nats.Connect(cfg.NatsURL)
		if err != nil {
			slog.Error("NATS connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, nc.Close)

		js, err := jetstream.New(nc)
		if err != nil {
			slog.Error("JetStream init failed", "err", err)
			os.Exit(1)
		}
		if err := notify.EnsureStream(context.Background(), js); err != nil {
			slog.Error("stream setup failed", "err", err)
			os.Exit(1)
		}
		publisher = notify.NewPublisher(js)
		slog.Info("ledger event publishing enabled")
	}

	// --- Admin authorization ---
	adminIDs := cfg.AdminIDs
	if len(adminIDs) == 0 {
		slog.Warn("ADMIN_IDS not set, defaulting to single 'admin' identity")
		adminIDs = []string{"admin"}
	}
	auth := workflow.NewAllowList(adminIDs...)

	// --- Plan catalog ---
	cat := catalog.NewCatalog()
	seedPlans(cat)

	// --- Admin live feed ---
	hub := workflow.NewHub()
	go hub.Run()

	// --- Workflow service ---
	svc := workflow.NewService(st, auth, cat, hub, publisher)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(metrics.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"broker-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for the admin live feed.
		r.Get("/admin/feed", hub.HandleWS)

		svc.Routes(r)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  cfg.RequestTimeout,
		WriteTimeout: cfg.RequestTimeout,
		IdleTimeout:  cfg.RequestTimeout * 2,
	}

	go func() {
		slog.Info("broker-engine listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	slog.Info("shutting down broker-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("broker-engine stopped")
}

// seedPlans loads the default product catalog. In production these come
// from the admin configuration surface; the defaults keep dev usable.
func seedPlans(cat *catalog.Catalog) {
	cat.PutStakingPlan(catalog.StakingPlan{
		ID:           "stake-btc-flex",
		Name:         "BTC Flexible",
		APY:          decimal.NewFromFloat(4.5),
		MinAmount:    decimal.NewFromInt(100),
		MaxAmount:    decimal.NewFromInt(250000),
		DurationDays: 30,
		Status:       catalog.PlanActive,
	})
	cat.PutStakingPlan(catalog.StakingPlan{
		ID:           "stake-eth-90",
		Name:         "ETH 90-Day Lock",
		APY:          decimal.NewFromFloat(7.25),
		MinAmount:    decimal.NewFromInt(250),
		MaxAmount:    decimal.NewFromInt(500000),
		DurationDays: 90,
		Status:       catalog.PlanActive,
	})
	cat.PutInvestmentPlan(catalog.InvestmentPlan{
		ID:           "invest-starter",
		Name:         "Starter Portfolio",
		ROI:          decimal.NewFromFloat(12),
		MinAmount:    decimal.NewFromInt(500),
		MaxAmount:    decimal.NewFromInt(50000),
		DurationDays: 180,
		Status:       catalog.PlanActive,
	})
}
