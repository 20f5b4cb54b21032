// cmd/server/main.go
package main

import (
	"context"
	"net/http"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/dpayne5/skatevs/internal/auth"
	"github.com/dpayne5/skatevs/internal/clips"
	"github.com/dpayne5/skatevs/internal/config"
	"github.com/dpayne5/skatevs/internal/handlers"
	"github.com/dpayne5/skatevs/internal/middleware"
	"github.com/dpayne5/skatevs/internal/notify"
	"github.com/dpayne5/skatevs/internal/scheduler"
	"github.com/dpayne5/skatevs/internal/store"
)

func main() {
	logger := logrus.New()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(lvl)
	}

	auth.Init()

	ctx := context.Background()

	var st store.Store
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatalf("postgres: %v", err)
		}
		defer pg.Close()
		if err := pg.Migrate(ctx); err != nil {
			logger.Fatalf("migrate: %v", err)
		}
		st = pg
	} else {
		logger.Warn("DATABASE_URL unset, using in-memory store")
		st = store.NewMemoryStore()
	}

	var notifier *notify.Notifier
	if cfg.RedisAddr != "" {
		notifier, err = notify.New(cfg.RedisAddr, cfg.RedisDB, cfg.PushQueue, logger)
		if err != nil {
			logger.Fatalf("redis: %v", err)
		}
		defer notifier.Close()
	} else {
		logger.Warn("REDIS_ADDR unset, push notifications disabled")
	}

	var resolver clips.Resolver
	if cfg.ClipBucket != "" {
		resolver, err = clips.NewS3Resolver(ctx, clips.S3Config{
			Endpoint:        cfg.ClipEndpoint,
			Region:          cfg.ClipRegion,
			Bucket:          cfg.ClipBucket,
			AccessKeyID:     cfg.ClipAccessKey,
			AccessKeySecret: cfg.ClipAccessSecret,
			URLTTL:          cfg.ClipURLTTL,
		})
		if err != nil {
			logger.Fatalf("clip resolver: %v", err)
		}
	} else {
		resolver = &clips.StaticResolver{BaseURL: cfg.ClipCDNBaseURL}
	}

	srv := handlers.NewServer(st, resolver, notifier, cfg.HeartbeatSweepInterval, logger)

	sched, err := scheduler.New(logger)
	if err != nil {
		logger.Fatalf("scheduler: %v", err)
	}
	jobs := []struct {
		name     string
		interval time.Duration
		fn       func()
	}{
		{"deadline-sweep", cfg.DeadlineSweepInterval, func() { srv.SweepDeadlines(ctx, time.Now()) }},
		{"health-sweep", cfg.HeartbeatSweepInterval, func() { srv.SweepHealth(time.Now()) }},
		{"grace-sweep", cfg.GraceSweepInterval, func() { srv.SweepGrace(ctx, time.Now()) }},
	}
	for _, j := range jobs {
		if err := sched.Every(j.interval, j.name, j.fn); err != nil {
			logger.Fatalf("schedule %s: %v", j.name, err)
		}
	}
	sched.Start()
	defer sched.Stop()

	mux := http.NewServeMux()
	mux.Handle("/ws", middleware.LogMiddleware(logger)(handlers.WSHandler(srv)))
	mux.HandleFunc("/healthz", srv.HealthzHandler())

	logger.Infof("Running on %s", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, mux); err != nil {
		logger.Fatalf("server exited: %v", err)
	}
}
