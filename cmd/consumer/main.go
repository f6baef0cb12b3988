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
	"github.com/downfa11-org/go-streams/pkg/consumer"
	"github.com/downfa11-org/go-streams/pkg/metrics"
	"github.com/downfa11-org/go-streams/pkg/stream"
	"github.com/downfa11-org/go-streams/util"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const shutdownGrace = 5 * time.Second

func main() {
	cfg, err := config.Load("consumer", os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	logger := cfg.NewLogger(os.Stderr).With("service", "consumer")
	util.SetLogger(logger)
	util.Info("starting consumer service", "addr", cfg.RedisAddr(), "stream", cfg.StreamName, "group", cfg.ConsumerGroup)

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

	c := consumer.New(log, consumer.Options{
		Stream:      cfg.StreamName,
		Group:       cfg.ConsumerGroup,
		ConsumerID:  cfg.ConsumerID,
		BatchSize:   int64(cfg.ConsumerBatchSize),
		Block:       cfg.ConsumerBlock(),
		ProcessTime: cfg.ConsumerProcessTime(),
		Logger:      logger,
		Metrics:     metrics.NewConsumerMetrics(reg, cfg.StreamName, cfg.ConsumerGroup, cfg.ConsumerID),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case sig := <-sigCh:
		util.Info("received signal, shutting down", "signal", sig.String())
		c.Stop()
		select {
		case <-c.Done():
		case <-time.After(cfg.ConsumerBlock() + shutdownGrace):
			util.Warn("consumer did not stop in time, canceling")
			cancel()
			<-c.Done()
		}
	case err := <-errCh:
		if err != nil {
			util.Error("consumer failed", "error", err)
			exitCode = 1
		}
	}

	if err := log.Close(); err != nil {
		util.Error("error closing redis client", "error", err)
	}
	util.Info("consumer closed", "processed", c.Processed())
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}
