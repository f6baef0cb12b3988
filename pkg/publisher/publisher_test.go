package publisher_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/downfa11-org/go-streams/pkg/codec"
	"github.com/downfa11-org/go-streams/pkg/metrics"
	"github.com/downfa11-org/go-streams/pkg/publisher"
	"github.com/downfa11-org/go-streams/pkg/stream"
	"github.com/downfa11-org/go-streams/pkg/stream/streamtest"
	"github.com/downfa11-org/go-streams/pkg/types"
	"github.com/downfa11-org/go-streams/util"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	_ = c.Write(m)
	return m.GetCounter().GetValue()
}

func newPublisher(l stream.Log, opts publisher.Options) *publisher.Publisher {
	if opts.Stream == "" {
		opts.Stream = "my_stream"
	}
	opts.Logger = util.Discard()
	return publisher.New(l, opts)
}

func TestPublishOne(t *testing.T) {
	l := streamtest.New()
	p := newPublisher(l, publisher.Options{Host: "pub-1"})

	id, err := p.PublishOne(context.Background())
	require.NoError(t, err)

	entries := l.Entries("my_stream")
	require.Len(t, entries, 1)
	assert.Equal(t, id, entries[0].ID)

	msg, err := codec.DecodeFields(entries[0].Values)
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, "Message #1", msg.Content)
	assert.Equal(t, "pub-1", msg.Data["publisher"])
	assert.IsType(t, float64(0), msg.Data["random"])
	assert.InDelta(t, time.Now().UnixMilli(), msg.Timestamp, float64(5*time.Second/time.Millisecond))
	assert.Equal(t, uint64(1), p.Published())
}

func TestPublishBatch_OrderedIDs(t *testing.T) {
	l := streamtest.New()
	p := newPublisher(l, publisher.Options{})

	ids, err := p.PublishBatch(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, ids, 5)

	prev := stream.ID{}
	for i, raw := range ids {
		id, err := stream.ParseID(raw)
		require.NoError(t, err)
		assert.Equal(t, 1, id.Compare(prev), "id %d must sort after the previous one", i)
		prev = id
	}

	entries := l.Entries("my_stream")
	require.Len(t, entries, 5)
	seen := map[string]bool{}
	for i, e := range entries {
		assert.Equal(t, ids[i], e.ID)
		msg, err := codec.DecodeFields(e.Values)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("Message #%d", i+1), msg.Content)
		assert.False(t, seen[msg.ID], "payload ids must be unique")
		seen[msg.ID] = true
	}
	assert.Equal(t, uint64(5), p.Published())
}

func TestPublishBatch_NonPositive(t *testing.T) {
	l := streamtest.New()
	p := newPublisher(l, publisher.Options{})

	ids, err := p.PublishBatch(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Equal(t, 0, l.Calls(streamtest.OpAppend))
}

func TestPublishBatch_StopsOnFailure(t *testing.T) {
	l := streamtest.New()
	m := metrics.NewPublisherMetrics(nil, "my_stream")
	p := newPublisher(l, publisher.Options{Metrics: m})
	boom := errors.New("connection refused")

	l.FailNext(streamtest.OpAppend, nil)
	l.FailNext(streamtest.OpAppend, nil)
	l.FailNext(streamtest.OpAppend, boom)

	ids, err := p.PublishBatch(context.Background(), 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, ids, 2)
	assert.Equal(t, 2, l.Len("my_stream"), "appended entries are not rolled back")
	assert.Equal(t, 3, l.Calls(streamtest.OpAppend))
	assert.Equal(t, uint64(2), p.Published())
	assert.Equal(t, float64(1), counterValue(m.Failures))
	assert.Equal(t, float64(2), counterValue(m.Published))
}

func TestPublishOne_Compressed(t *testing.T) {
	l := streamtest.New()
	p := newPublisher(l, publisher.Options{Compression: util.CompressionSnappy})

	_, err := p.PublishOne(context.Background())
	require.NoError(t, err)

	entry := l.Entries("my_stream")[0]
	assert.Equal(t, "snappy", entry.Values[types.FieldEncoding])

	msg, err := codec.DecodeFields(entry.Values)
	require.NoError(t, err)
	assert.Equal(t, "Message #1", msg.Content)
}

func TestStart_InvalidInterval(t *testing.T) {
	p := newPublisher(streamtest.New(), publisher.Options{})

	assert.ErrorIs(t, p.Start(context.Background(), 0), publisher.ErrInvalidInterval)
	assert.ErrorIs(t, p.Start(context.Background(), -time.Second), publisher.ErrInvalidInterval)
	assert.Equal(t, types.PublisherStateIdle, p.State())
}

func TestStart_TwiceKeepsOneCadence(t *testing.T) {
	l := streamtest.New()
	p := newPublisher(l, publisher.Options{})
	ctx := context.Background()

	require.NoError(t, p.Start(ctx, 25*time.Millisecond))
	require.NoError(t, p.Start(ctx, 25*time.Millisecond))
	assert.Equal(t, types.PublisherStatePublishing, p.State())

	time.Sleep(260 * time.Millisecond)
	p.Stop()

	// one ticker yields about 10 messages here; a second timer would double it
	n := l.Len("my_stream")
	assert.GreaterOrEqual(t, n, 3)
	assert.LessOrEqual(t, n, 14)
	assert.Equal(t, types.PublisherStateIdle, p.State())
}

func TestStart_TickFailureContinues(t *testing.T) {
	l := streamtest.New()
	p := newPublisher(l, publisher.Options{})
	l.FailNext(streamtest.OpAppend, errors.New("timeout"))

	require.NoError(t, p.Start(context.Background(), 10*time.Millisecond))
	defer p.Stop()

	require.Eventually(t, func() bool { return p.Published() >= 2 }, 2*time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, l.Calls(streamtest.OpAppend), 3)
}

func TestStop_Idempotent(t *testing.T) {
	l := streamtest.New()
	p := newPublisher(l, publisher.Options{})

	p.Stop()

	require.NoError(t, p.Start(context.Background(), 10*time.Millisecond))
	require.Eventually(t, func() bool { return p.Published() >= 1 }, 2*time.Second, 5*time.Millisecond)
	p.Stop()
	p.Stop()

	n := l.Len("my_stream")
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, n, l.Len("my_stream"), "no publishes after Stop returns")

	require.NoError(t, p.Start(context.Background(), 10*time.Millisecond))
	assert.Equal(t, types.PublisherStatePublishing, p.State())
	p.Stop()
}

func TestStart_ContextCancelEndsLoop(t *testing.T) {
	p := newPublisher(streamtest.New(), publisher.Options{})
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, p.Start(ctx, 10*time.Millisecond))
	cancel()

	require.Eventually(t, func() bool { return p.State() == types.PublisherStateIdle }, time.Second, 5*time.Millisecond)
	p.Stop()
}

func TestStreamInfo(t *testing.T) {
	l := streamtest.New()
	p := newPublisher(l, publisher.Options{})

	_, err := p.PublishBatch(context.Background(), 3)
	require.NoError(t, err)

	info, err := p.StreamInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), info["length"])
}
