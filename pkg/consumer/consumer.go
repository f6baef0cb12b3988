package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/downfa11-org/go-streams/pkg/codec"
	"github.com/downfa11-org/go-streams/pkg/metrics"
	"github.com/downfa11-org/go-streams/pkg/stream"
	"github.com/downfa11-org/go-streams/pkg/types"
	"github.com/downfa11-org/go-streams/util"
)

const (
	DefaultBatchSize    = 10
	DefaultBlock        = 5 * time.Second
	DefaultReclaimIdle  = 10 * time.Second
	DefaultClaimMinIdle = 5 * time.Second
	DefaultErrorBackoff = time.Second
)

// Handler is invoked for every decoded message. Returning an error leaves the
// entry pending so it is delivered again later.
type Handler func(ctx context.Context, entryID string, msg types.MessagePayload) error

type Options struct {
	Stream     string
	Group      string
	ConsumerID string
	BatchSize  int64
	Block      time.Duration
	// ProcessTime is waited before the handler runs for each message.
	ProcessTime time.Duration
	// ReclaimIdle is how long an entry owned by this consumer may sit pending
	// before the consumer retries it.
	ReclaimIdle time.Duration
	// ClaimMinIdle is passed to the broker on claim so an entry another
	// consumer is actively working on is left alone.
	ClaimMinIdle time.Duration
	ErrorBackoff time.Duration
	Handler      Handler
	Logger       *slog.Logger
	Metrics      *metrics.ConsumerMetrics
}

func (o *Options) setDefaults() {
	if o.ConsumerID == "" {
		o.ConsumerID = util.GenerateConsumerID()
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.Block <= 0 {
		o.Block = DefaultBlock
	}
	if o.ProcessTime < 0 {
		o.ProcessTime = 0
	}
	if o.ReclaimIdle <= 0 {
		o.ReclaimIdle = DefaultReclaimIdle
	}
	if o.ClaimMinIdle <= 0 {
		o.ClaimMinIdle = DefaultClaimMinIdle
	}
	if o.ErrorBackoff <= 0 {
		o.ErrorBackoff = DefaultErrorBackoff
	}
}

// Consumer is a single member of a consumer group. It alternates between
// recovering pending entries and reading new ones until stopped.
type Consumer struct {
	log     stream.Log
	opts    Options
	logger  *slog.Logger
	metrics *metrics.ConsumerMetrics

	running   atomic.Bool
	state     atomic.Int32
	processed atomic.Uint64

	runMu      sync.Mutex
	done       chan struct{}
	doneClosed bool
}

func New(log stream.Log, opts Options) *Consumer {
	opts.setDefaults()
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewConsumerMetrics(nil, opts.Stream, opts.Group, opts.ConsumerID)
	}
	return &Consumer{
		log:  log,
		opts: opts,
		logger: util.ResolveLogger(opts.Logger).With(
			"component", "consumer",
			"stream", opts.Stream,
			"group", opts.Group,
			"consumer", opts.ConsumerID,
		),
		metrics: opts.Metrics,
		done:    make(chan struct{}),
	}
}

// Run initializes the group and processes entries until Stop is called or ctx
// is canceled. It returns an error only when the group cannot be set up.
func (c *Consumer) Run(ctx context.Context) error {
	c.runMu.Lock()
	if types.ConsumerState(c.state.Load()) != types.ConsumerStateStopped {
		c.runMu.Unlock()
		c.logger.Warn("consumer already running")
		return nil
	}
	if c.doneClosed {
		c.done = make(chan struct{})
		c.doneClosed = false
	}
	done := c.done
	c.state.Store(int32(types.ConsumerStateInitializing))
	c.running.Store(true)
	c.runMu.Unlock()

	defer func() {
		c.runMu.Lock()
		c.running.Store(false)
		c.state.Store(int32(types.ConsumerStateStopped))
		close(done)
		c.doneClosed = true
		c.runMu.Unlock()
	}()

	if err := c.initGroup(ctx); err != nil {
		return err
	}

	c.state.Store(int32(types.ConsumerStateRunning))
	c.logger.Info("consumer started", "batch_size", c.opts.BatchSize, "block", c.opts.Block)

	for c.running.Load() && ctx.Err() == nil {
		c.recoverPending(ctx)

		if !c.running.Load() {
			break
		}
		c.readNew(ctx)
	}

	c.logger.Info("consumer stopped", "processed", c.Processed())
	return nil
}

func (c *Consumer) initGroup(ctx context.Context) error {
	err := c.log.CreateGroup(ctx, c.opts.Stream, c.opts.Group, stream.StartLatest, true)
	switch {
	case err == nil:
		c.logger.Info("consumer group created")
		return nil
	case errors.Is(err, stream.ErrGroupExists):
		c.logger.Info("consumer group already exists")
		return nil
	default:
		c.logger.Error("failed to initialize consumer group", "error", err)
		return fmt.Errorf("init consumer group %s: %w", c.opts.Group, err)
	}
}

// recoverPending claims entries left pending by other consumers, or by this
// one for longer than ReclaimIdle, and processes them.
func (c *Consumer) recoverPending(ctx context.Context) {
	pending, err := c.log.ListPending(ctx, c.opts.Stream, c.opts.Group, stream.RangeMin, stream.RangeMax, c.opts.BatchSize)
	if err != nil {
		c.loopError(ctx, "failed to list pending entries", err)
		return
	}

	for _, p := range pending {
		if p.Consumer == c.opts.ConsumerID && p.Idle <= c.opts.ReclaimIdle {
			continue
		}

		claimed, err := c.log.Claim(ctx, c.opts.Stream, c.opts.Group, c.opts.ConsumerID, c.opts.ClaimMinIdle, p.ID)
		if err != nil {
			c.loopError(ctx, "failed to claim pending entry", err, "entry_id", p.ID)
			return
		}
		if len(claimed) == 0 {
			continue
		}

		c.metrics.Claimed.Add(float64(len(claimed)))
		c.logger.Info("claimed pending entry",
			"entry_id", p.ID,
			"previous_owner", p.Consumer,
			"idle", p.Idle,
			"deliveries", p.DeliveryCount,
		)
		for _, e := range claimed {
			c.process(ctx, e)
		}
	}
}

func (c *Consumer) readNew(ctx context.Context) {
	batches, err := c.log.ReadGroup(ctx, stream.ReadGroupArgs{
		Stream:   c.opts.Stream,
		Group:    c.opts.Group,
		Consumer: c.opts.ConsumerID,
		Count:    c.opts.BatchSize,
		Block:    c.opts.Block,
		Start:    stream.StartNew,
	})
	if errors.Is(err, stream.ErrUnexpectedResponse) {
		c.logger.Warn("discarding unexpected read response", "error", err)
		return
	}
	if err != nil {
		c.loopError(ctx, "failed to read new entries", err)
		return
	}
	if len(batches) == 0 {
		return
	}
	if len(batches) != 1 || batches[0].Stream != c.opts.Stream {
		c.logger.Warn("discarding unexpected read response", "batches", len(batches))
		return
	}

	for _, e := range batches[0].Entries {
		c.process(ctx, e)
	}
}

func (c *Consumer) process(ctx context.Context, e types.Entry) {
	start := time.Now()

	msg, err := codec.DecodeFields(e.Values)
	if errors.Is(err, codec.ErrEmptyPayload) {
		c.logger.Warn("entry has no payload, acknowledging", "entry_id", e.ID)
		c.metrics.Empty.Inc()
		c.ack(ctx, e.ID)
		return
	}
	if err != nil {
		raw := e.Payload()
		var mErr *codec.MalformedPayloadError
		if errors.As(err, &mErr) {
			raw = mErr.Raw
		}
		c.logger.Error("failed to decode payload", "entry_id", e.ID, "error", err, "raw_payload", raw)
		c.logger.Warn("acknowledging malformed entry", "entry_id", e.ID)
		c.metrics.Malformed.Inc()
		c.ack(ctx, e.ID)
		return
	}

	sleepCtx(ctx, c.opts.ProcessTime)
	if ctx.Err() != nil {
		// canceled mid-processing; the entry stays pending for a later reclaim
		return
	}

	if c.opts.Handler != nil {
		if err := c.opts.Handler(ctx, e.ID, msg); err != nil {
			c.logger.Error("handler failed, entry left pending", "entry_id", e.ID, "message_id", msg.ID, "error", err)
			c.metrics.Failed.Inc()
			return
		}
	}

	n := c.processed.Add(1)
	c.metrics.Processed.Inc()
	c.metrics.Latency.Observe(time.Since(start).Seconds())
	c.logger.Info("message processed",
		"entry_id", e.ID,
		"message_id", msg.ID,
		"content", msg.Content,
		"processed", n,
	)
	c.ack(ctx, e.ID)
}

func (c *Consumer) ack(ctx context.Context, id string) {
	if _, err := c.log.Ack(ctx, c.opts.Stream, c.opts.Group, id); err != nil {
		c.logger.Error("failed to acknowledge entry", "entry_id", id, "error", err)
		return
	}
	c.metrics.Acked.Inc()
}

func (c *Consumer) loopError(ctx context.Context, msg string, err error, args ...any) {
	if ctx.Err() != nil {
		return
	}
	c.metrics.ReadErrors.Inc()
	c.logger.Error(msg, append(args, "error", err)...)
	sleepCtx(ctx, c.opts.ErrorBackoff)
}

// Stop asks Run to return. It is observed between steps and never cuts a
// blocking read or a fetched batch short.
func (c *Consumer) Stop() {
	if c.running.CompareAndSwap(true, false) {
		c.logger.Info("stopping consumer")
	}
}

// Done is closed when the current Run returns.
func (c *Consumer) Done() <-chan struct{} {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	return c.done
}

func (c *Consumer) Processed() uint64 {
	return c.processed.Load()
}

func (c *Consumer) State() types.ConsumerState {
	return types.ConsumerState(c.state.Load())
}

func (c *Consumer) ID() string {
	return c.opts.ConsumerID
}

// GroupInfo returns the broker's view of the consumed stream.
func (c *Consumer) GroupInfo(ctx context.Context) (types.StreamInfo, error) {
	return c.log.Info(ctx, c.opts.Stream)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
