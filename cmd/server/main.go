package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"campus_shuttle/internal/backend/memory"
	"campus_shuttle/internal/config"
	"campus_shuttle/internal/controllers"
	"campus_shuttle/internal/geo"
	"campus_shuttle/internal/logger"
	"campus_shuttle/internal/middleware"
	"campus_shuttle/internal/realtime"
	"campus_shuttle/internal/routes"
	"campus_shuttle/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Invalid configuration")
	}

	// Initialize structured logging to file
	logWriter := logger.Setup(cfg.Logging)
	log := logger.Component("server")

	tokens, err := middleware.NewTokens(cfg.Server.JWTSecret, cfg.Server.TokenTTL)
	if err != nil {
		log.WithError(err).Fatal("JWT_SECRET must be set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := realtime.NewHub(logger.Component("hub"))
	defer hub.Close()

	var (
		rows     controllers.Rows
		accounts controllers.AccountStore
	)
	switch cfg.Server.Store {
	case "postgres":
		db, err := config.InitDB(cfg.Database, logger.GormLogger())
		if err != nil {
			log.WithError(err).Fatal("Database setup failed")
		}
		rows = store.NewPostgres(db)
		accounts = store.NewAccounts(db)
		go func() {
			err := realtime.ListenPostgres(ctx, cfg.Database.DSN(), config.ChangeChannel, hub, logger.Component("listener"))
			if err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Error("Change listener stopped")
			}
		}()
	case "memory":
		mem := memory.New()
		stopForward, err := realtime.Forward(ctx, mem, config.NotifiedTables, hub)
		if err != nil {
			log.WithError(err).Fatal("Change forwarding failed")
		}
		defer stopForward()
		rows = mem
		accounts = store.NewMemoryAccounts()
		log.Warn("Running on the in-memory store; data is lost on exit")
	default:
		log.WithField("store", cfg.Server.Store).Fatal("SERVER_STORE must be postgres or memory")
	}

	r := routes.SetupRouter(routes.Handlers{
		Auth:     controllers.NewAuthController(accounts, tokens, logger.Component("auth")),
		Rest:     controllers.NewRestController(rows, logger.Component("rest")),
		Shuttles: controllers.NewShuttleController(rows, geo.CampusRegion, logger.Component("shuttles")),
		Realtime: controllers.NewRealtimeController(hub, cfg.Server.AllowedOrigins, logger.Component("realtime")),
		Tokens:   tokens,
	}, logWriter)

	// Wrap with CORS
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           middleware.EnableCORS(cfg.Server.AllowedOrigins, r),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.Server.Addr).Info("Server running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Server failed")
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Graceful shutdown failed")
	}
}
