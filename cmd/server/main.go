package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"trivigil/internal/bot"
	"trivigil/internal/bot/telegram"
	"trivigil/internal/broadcast"
	"trivigil/internal/platform/config"
	"trivigil/internal/platform/httpserver"
	"trivigil/internal/platform/logger"
	"trivigil/internal/platform/metrics"
	platformredis "trivigil/internal/platform/redis"
	"trivigil/internal/ratelimit"
	"trivigil/internal/token/auth"
	"trivigil/internal/token/handler"
	"trivigil/internal/token/issuer"
	"trivigil/internal/token/store"
	"trivigil/internal/verify"
	"trivigil/internal/verify/session"
)

// main wires the token issuer, the verification bot, and their shared
// stores. Business logic lives in the internal packages; everything
// here is composition and lifecycle.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	records, healthCheckers, cleanup, err := newRecordStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	redisClient, err := platformredis.New(cfg.Redis())
	if err != nil {
		return err
	}

	var sessions session.Store
	var memSessions *session.InMemoryStore
	if redisClient != nil {
		defer redisClient.Close()
		healthCheckers = append(healthCheckers, redisClient)
		sessions = session.NewRedisStore(redisClient.Client, cfg.SessionTTL)
		log.Info("using redis session store")
	} else {
		memSessions = session.NewInMemoryStore(cfg.SessionTTL)
		sessions = memSessions
		log.Info("using in-memory session store")
	}

	tg, err := telegram.New(cfg.BotToken, cfg.TelegramAPIBase, cfg.PollTimeout+10*time.Second)
	if err != nil {
		return err
	}

	tokenIssuer, err := issuer.New(records, log, cfg.DownloadLink, cfg.DefaultProduct)
	if err != nil {
		return err
	}

	verifyService, err := verify.New(records, sessions, tg, m, log, cfg.AdminChatID,
		verify.WithListLimit(cfg.ListPageSize))
	if err != nil {
		return err
	}

	broadcaster, err := broadcast.New(records, tg, m, log, cfg.BroadcastDelay)
	if err != nil {
		return err
	}

	limiter := ratelimit.New(cfg.RateLimit, cfg.RateWindow, ratelimit.WithExempt(cfg.AdminChatID))
	router := bot.NewRouter(verifyService, broadcaster, tg, limiter, m, log)
	poller := bot.NewPoller(tg, router, log, cfg.PollTimeout)

	jwtService := auth.NewJWTService(cfg.IssuerKey, "trivigil", "storefront")
	tokenHandler := handler.New(tokenIssuer, log, m, jwtService, cfg.IssuerKeyHash, registry, healthCheckers...)

	mux := chi.NewRouter()
	tokenHandler.Register(mux)
	srv := httpserver.New(cfg.Addr, mux)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		log.Info("starting update poller", "timeout", cfg.PollTimeout)
		if err := poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	if memSessions != nil {
		g.Go(func() error {
			memSessions.RunSweeper(ctx, cfg.SessionTTL)
			return nil
		})
	}

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("shutdown complete")
	return nil
}

// newRecordStore opens the Postgres-backed token store when a DSN is
// configured and falls back to the in-memory store otherwise. The
// fallback loses all records on restart and exists for development.
func newRecordStore(ctx context.Context, cfg config.Config, log *slog.Logger) (store.Store, []handler.HealthChecker, func(), error) {
	if cfg.PostgresDSN == "" {
		log.Warn("no postgres DSN configured, using in-memory token store")
		st := store.NewInMemoryStore()
		return st, []handler.HealthChecker{st}, func() {}, nil
	}

	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, nil, err
	}

	st := store.NewPostgres(db)
	if err := st.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, nil, err
	}
	log.Info("using postgres token store")
	return st, []handler.HealthChecker{st}, func() { db.Close() }, nil
}
