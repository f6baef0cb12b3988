package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/downfa11-org/go-streams/pkg/codec"
	"github.com/downfa11-org/go-streams/pkg/metrics"
	"github.com/downfa11-org/go-streams/pkg/stream"
	"github.com/downfa11-org/go-streams/pkg/types"
	"github.com/downfa11-org/go-streams/util"
	"github.com/google/uuid"
)

var ErrInvalidInterval = errors.New("publish interval must be positive")

type Options struct {
	Stream      string
	Compression util.Compression
	// Host is stamped into every payload as data.publisher. Defaults to the
	// host identity.
	Host    string
	Logger  *slog.Logger
	Metrics *metrics.PublisherMetrics
}

// Publisher appends generated messages to a stream, either on demand or on a
// fixed interval.
type Publisher struct {
	log    stream.Log
	opts   Options
	logger *slog.Logger

	publishMu sync.Mutex
	published atomic.Uint64
	state     atomic.Int32

	runMu    sync.Mutex
	stopCh   chan struct{}
	loopDone chan struct{}

	now func() time.Time
}

func New(log stream.Log, opts Options) *Publisher {
	if opts.Host == "" {
		opts.Host = util.HostIdentity()
	}
	if opts.Compression == "" {
		opts.Compression = util.CompressionNone
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewPublisherMetrics(nil, opts.Stream)
	}
	return &Publisher{
		log:    log,
		opts:   opts,
		logger: util.ResolveLogger(opts.Logger).With("component", "publisher", "stream", opts.Stream),
		now:    time.Now,
	}
}

// PublishOne appends a single message and returns the id the broker assigned.
func (p *Publisher) PublishOne(ctx context.Context) (string, error) {
	p.publishMu.Lock()
	defer p.publishMu.Unlock()

	payload := types.MessagePayload{
		ID:        uuid.NewString(),
		Timestamp: p.now().UnixMilli(),
		Content:   fmt.Sprintf("Message #%d", p.published.Load()+1),
		Data: map[string]any{
			"random":    rand.Float64(),
			"publisher": p.opts.Host,
		},
	}

	fields, err := codec.EncodeFields(payload, p.opts.Compression)
	if err != nil {
		p.opts.Metrics.Failures.Inc()
		return "", err
	}

	start := time.Now()
	id, err := p.log.Append(ctx, p.opts.Stream, fields)
	p.opts.Metrics.Latency.Observe(time.Since(start).Seconds())
	if err != nil {
		p.opts.Metrics.Failures.Inc()
		return "", fmt.Errorf("publish %s: %w", payload.ID, err)
	}

	p.published.Add(1)
	p.opts.Metrics.Published.Inc()
	p.logger.Debug("message published", "entry_id", id, "message_id", payload.ID, "content", payload.Content)
	return id, nil
}

// PublishBatch publishes n messages one after another. On failure it returns
// the ids appended so far together with the error; nothing is rolled back.
func (p *Publisher) PublishBatch(ctx context.Context, n int) ([]string, error) {
	ids := make([]string, 0, max(n, 0))
	for i := 0; i < n; i++ {
		id, err := p.PublishOne(ctx)
		if err != nil {
			return ids, fmt.Errorf("batch stopped after %d of %d: %w", len(ids), n, err)
		}
		ids = append(ids, id)
	}
	p.logger.Info("batch published", "count", len(ids))
	return ids, nil
}

// Start publishes one message per interval until Stop is called or ctx ends.
// Calling Start while already publishing has no effect.
func (p *Publisher) Start(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidInterval, interval)
	}

	p.runMu.Lock()
	defer p.runMu.Unlock()

	if p.stopCh != nil {
		p.logger.Warn("publisher already running")
		return nil
	}

	stopCh := make(chan struct{})
	done := make(chan struct{})
	p.stopCh, p.loopDone = stopCh, done
	p.state.Store(int32(types.PublisherStatePublishing))

	p.logger.Info("publisher started", "interval", interval)
	go p.loop(ctx, interval, stopCh, done)
	return nil
}

func (p *Publisher) loop(ctx context.Context, interval time.Duration, stopCh, done chan struct{}) {
	ticker := time.NewTicker(interval)
	defer func() {
		ticker.Stop()
		p.runMu.Lock()
		if p.loopDone == done {
			p.stopCh, p.loopDone = nil, nil
		}
		p.state.Store(int32(types.PublisherStateIdle))
		p.runMu.Unlock()
		close(done)
	}()

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			p.logger.Info("publisher context done", "error", ctx.Err())
			return
		case <-ticker.C:
			if _, err := p.PublishOne(ctx); err != nil {
				p.logger.Error("scheduled publish failed", "error", err)
			}
		}
	}
}

// Stop ends the interval loop and waits for an in-flight publish to finish.
func (p *Publisher) Stop() {
	p.runMu.Lock()
	stopCh, done := p.stopCh, p.loopDone
	p.stopCh, p.loopDone = nil, nil
	p.runMu.Unlock()

	if stopCh == nil {
		return
	}
	close(stopCh)
	<-done
	p.logger.Info("publisher stopped", "published", p.Published())
}

func (p *Publisher) Published() uint64 {
	return p.published.Load()
}

func (p *Publisher) State() types.PublisherState {
	return types.PublisherState(p.state.Load())
}

func (p *Publisher) StreamInfo(ctx context.Context) (types.StreamInfo, error) {
	return p.log.Info(ctx, p.opts.Stream)
}
