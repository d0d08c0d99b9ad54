// Package main is the entry point for the HTTP gateway. It opens one database
// handle from DB_* environment variables and serves it on /v1.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"dbhandle/internal/api"
	"dbhandle/internal/config"
	"dbhandle/internal/handle"
	"dbhandle/internal/middleware"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if err := config.LoadDotEnv(".env"); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger := config.NewLogger(cfg.LogFormat, cfg.SlogLevel())
	for _, w := range cfg.Warnings {
		logger.Warn(w)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	hcfg, err := cfg.Database.Handle(logger)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	h, err := handle.Open(ctx, hcfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() {
		if err := h.Close(); err != nil {
			logger.Error("close database", "error", err)
		}
	}()
	logger.Info("database handle opened", "handle_id", h.ID(), "driver", h.Driver(), "autocommit", h.Autocommit())

	var auth *middleware.HS256Validator
	if cfg.JWTSecret != "" {
		auth, err = middleware.NewHS256Validator(cfg.JWTSecret)
		if err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}

	router := api.NewRouter(ctx, api.NewHandler(h, logger), api.RouterOptions{
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimit: middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimitRPS,
			Burst:             cfg.RateLimitBurst,
		},
		Auth: auth,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("gateway listening", "addr", cfg.ListenAddr,
			"try", fmt.Sprintf("curl -X POST -d '{\"sql\":\"SELECT 1\"}' http://%s/v1/fetch-one", curlHostForListenAddr(cfg.ListenAddr)))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down gateway")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// curlHostForListenAddr turns a listen address into a host:port usable from
// the local machine.
func curlHostForListenAddr(listenAddr string) string {
	addr := strings.TrimSpace(listenAddr)
	if addr == "" {
		return "localhost:8080"
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "localhost"
	}
	return net.JoinHostPort(host, port)
}
