// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

// Package main starts the live-match server: websocket transport,
// matchmaking queue, session registry, and outcome finalization wired
// over a sqlite durable store.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/AccelByte/livematch/pkg/config"
	"github.com/AccelByte/livematch/pkg/envelope"
	"github.com/AccelByte/livematch/pkg/metrics"
	"github.com/AccelByte/livematch/pkg/outcome"
	"github.com/AccelByte/livematch/pkg/party"
	"github.com/AccelByte/livematch/pkg/queue"
	"github.com/AccelByte/livematch/pkg/session"
	"github.com/AccelByte/livematch/pkg/storage/sqlite"
	"github.com/AccelByte/livematch/pkg/transport"
	"github.com/AccelByte/livematch/pkg/transport/wshub"
)

func main() {
	logger := logrus.StandardLogger()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.FromEnv()
	if err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scope := envelope.NewRootScope(ctx, "livematch.main", "")
	defer scope.Finish()

	store, err := sqlite.Open(cfg.DatabasePath)
	if err != nil {
		logger.WithError(err).Fatal("failed to open durable store")
	}
	defer store.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	liveMetrics := metrics.NewMetrics(registry)

	hub := wshub.NewHub(logger)
	parties := party.NewManager(cfg, hub)
	finalizer := outcome.NewFinalizer(cfg, store, hub, liveMetrics)
	sessions := session.NewRegistry(cfg, store, finalizer, hub, liveMetrics)
	matchQueue := queue.New(cfg, store, parties, sessions, hub, liveMetrics)
	transport.NewDispatcher(hub, store, parties, matchQueue, sessions)

	sessions.Start(ctx, scope)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWS)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}

	go func() {
		scope.Log.WithField("addr", cfg.ListenAddr).Info("live-match server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	scope.Log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("server shutdown failed")
	}
	hub.Close()
}
