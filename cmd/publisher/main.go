package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/downfa11-org/go-streams/pkg/config"
	"github.com/downfa11-org/go-streams/pkg/metrics"
	"github.com/downfa11-org/go-streams/pkg/publisher"
	"github.com/downfa11-org/go-streams/pkg/stream"
	"github.com/downfa11-org/go-streams/util"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	cfg, err := config.Load("publisher", os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	logger := cfg.NewLogger(os.Stderr).With("service", "publisher")
	util.SetLogger(logger)
	util.Info("starting publisher service", "addr", cfg.RedisAddr(), "stream", cfg.StreamName)

	log := stream.NewRedisLog(stream.NewRedisClient(cfg.ClientOptions(logger)))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if cfg.EnableExporter {
		srv := metrics.StartMetricsServer(cfg.ExporterPort, reg)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
	}

	p := publisher.New(log, publisher.Options{
		Stream:      cfg.StreamName,
		Compression: cfg.Compression,
		Logger:      logger,
		Metrics:     metrics.NewPublisherMetrics(reg, cfg.StreamName),
	})

	if err := p.Start(context.Background(), cfg.PublisherInterval()); err != nil {
		util.Fatal("failed to start publisher", "error", err)
	}
	util.Info("publisher service started", "interval", cfg.PublisherInterval())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	util.Info("received signal, shutting down", "signal", sig.String())

	p.Stop()
	if err := log.Close(); err != nil {
		util.Error("error closing redis client", "error", err)
	}
	util.Info("publisher closed gracefully", "published", p.Published())
}
