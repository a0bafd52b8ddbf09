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

	"github.com/rs/zerolog"

	"kila/internal/config"
	"kila/internal/pipeline"
	"kila/internal/remote"
	"kila/internal/server"
	"kila/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)
	must(cfg.Require("JWT_SECRET", cfg.JWTSecret))

	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	svc := pipeline.NewValidationService(db, cfg, remote.NewClient(cfg), log)
	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      server.New(cfg, db, svc, log).Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", cfg.ServerAddr).Msg("listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		must(err)
	}
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
