package stream

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/downfa11-org/go-streams/util"
	"github.com/redis/go-redis/v9"
)

const (
	minRetryBackoff = 100 * time.Millisecond
	maxRetryBackoff = 3 * time.Second
)

type ClientOptions struct {
	Addr       string
	Password   string
	DB         int
	MaxRetries int
	Logger     *slog.Logger
}

// NewRedisClient builds the process-wide client. Failed commands are retried
// with a backoff growing from 100ms to 3s; connects and dial failures are logged.
func NewRedisClient(opts ClientOptions) *redis.Client {
	logger := util.ResolveLogger(opts.Logger)

	client := redis.NewClient(&redis.Options{
		Addr:            opts.Addr,
		Password:        opts.Password,
		DB:              opts.DB,
		MaxRetries:      opts.MaxRetries,
		MinRetryBackoff: minRetryBackoff,
		MaxRetryBackoff: maxRetryBackoff,
		OnConnect: func(ctx context.Context, cn *redis.Conn) error {
			logger.Info("connected to redis", "addr", opts.Addr)
			return nil
		},
	})
	client.AddHook(connHook{logger: logger, addr: opts.Addr})
	return client
}

type connHook struct {
	logger *slog.Logger
	addr   string
}

func (h connHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := next(ctx, network, addr)
		if err != nil {
			h.logger.Error("redis dial failed", "addr", addr, "error", err)
		}
		return conn, err
	}
}

func (h connHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		if err != nil && !errors.Is(err, redis.Nil) && isConnError(err) {
			h.logger.Warn("redis connection error", "addr", h.addr, "command", cmd.Name(), "error", err)
		}
		return err
	}
}

func (h connHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func isConnError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) || errors.Is(err, redis.ErrClosed)
}
