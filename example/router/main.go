// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Example WAMP router serving WebSocket clients
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	wamprouter "github.com/destiny/wamprouter"
	"github.com/destiny/wamprouter/config"
	"github.com/destiny/wamprouter/logging"
	"github.com/destiny/wamprouter/transport/websocket"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML configuration file")
	statsEvery := flag.Duration("stats", time.Minute, "interval between stats reports (0 disables)")
	flag.Parse()

	if err := run(*configPath, *statsEvery); err != nil {
		fmt.Fprintf(os.Stderr, "router: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, statsEvery time.Duration) error {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return err
		}
	}
	logger, err := cfg.Logger(os.Stderr)
	if err != nil {
		return err
	}
	logger.Debug("configuration: %s", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := cfg.OpenRetention(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	opts := cfg.RouterOptions()
	opts.Logger = logger
	opts.Retention = store

	reg := prometheus.NewRegistry()
	if cfg.Metrics.Enabled {
		m, err := wamprouter.NewMetrics(reg, cfg.Metrics.Namespace)
		if err != nil {
			return err
		}
		opts.Metrics = m
	}

	router := wamprouter.New(wamprouter.WithOptions(opts))
	if err := router.Start(); err != nil {
		return err
	}
	defer router.Stop()

	ws := websocket.NewServer(router, websocket.Config{
		Path:         cfg.Listen.Path,
		Subprotocols: cfg.Listen.Serializers,
		ReadLimit:    cfg.Listen.ReadLimit,
		PingInterval: cfg.Listen.PingInterval,
		WriteTimeout: cfg.Listen.WriteTimeout,
	}, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ws.ListenAndServe(gctx, cfg.Listen.Addr) })
	if cfg.Metrics.Enabled {
		g.Go(func() error { return serveMetrics(gctx, cfg.Metrics, reg, logger) })
	}
	if statsEvery > 0 {
		g.Go(func() error {
			reportStats(gctx, router, statsEvery, logger)
			return nil
		})
	}

	err = g.Wait()
	logger.Info("shutting down")
	return err
}

func serveMetrics(ctx context.Context, cfg config.MetricsConfig, reg *prometheus.Registry, logger *logging.Logger) error {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: cfg.Addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	logger.Info("metrics on %s%s", cfg.Addr, cfg.Path)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics: %w", err)
	}
	return nil
}

func reportStats(ctx context.Context, router *wamprouter.Router, every time.Duration, logger *logging.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logger.Info("stats: %v", router.Stats())
		}
	}
}
