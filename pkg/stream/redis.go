package stream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/downfa11-org/go-streams/pkg/types"
	"github.com/redis/go-redis/v9"
)

// RedisLog implements Log on top of Redis Streams.
type RedisLog struct {
	client redis.UniversalClient
}

func NewRedisLog(client redis.UniversalClient) *RedisLog {
	return &RedisLog{client: client}
}

func (l *RedisLog) CreateGroup(ctx context.Context, stream, group, start string, mkstream bool) error {
	var err error
	if mkstream {
		err = l.client.XGroupCreateMkStream(ctx, stream, group, start).Err()
	} else {
		err = l.client.XGroupCreate(ctx, stream, group, start).Err()
	}
	if err != nil {
		if strings.HasPrefix(err.Error(), "BUSYGROUP") {
			return ErrGroupExists
		}
		return fmt.Errorf("create group %s on %s: %w", group, stream, err)
	}
	return nil
}

func (l *RedisLog) Append(ctx context.Context, stream string, values map[string]any) (string, error) {
	id, err := l.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		ID:     AutoID,
		Values: values,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("append to %s: %w", stream, err)
	}
	return id, nil
}

func (l *RedisLog) ReadGroup(ctx context.Context, args ReadGroupArgs) ([]types.StreamBatch, error) {
	start := args.Start
	if start == "" {
		start = StartNew
	}

	res, err := l.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    args.Group,
		Consumer: args.Consumer,
		Streams:  []string{args.Stream, start},
		Count:    args.Count,
		Block:    args.Block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read group %s on %s: %w", args.Group, args.Stream, err)
	}

	batches := make([]types.StreamBatch, 0, len(res))
	for _, xs := range res {
		entries, err := toEntries(xs.Messages)
		if err != nil {
			return nil, err
		}
		batches = append(batches, types.StreamBatch{Stream: xs.Stream, Entries: entries})
	}
	return batches, nil
}

func (l *RedisLog) ListPending(ctx context.Context, stream, group, start, end string, count int64) ([]types.PendingEntry, error) {
	res, err := l.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: stream,
		Group:  group,
		Start:  start,
		End:    end,
		Count:  count,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list pending %s on %s: %w", group, stream, err)
	}

	pending := make([]types.PendingEntry, 0, len(res))
	for _, p := range res {
		pending = append(pending, types.PendingEntry{
			ID:            p.ID,
			Consumer:      p.Consumer,
			Idle:          p.Idle,
			DeliveryCount: p.RetryCount,
		})
	}
	return pending, nil
}

func (l *RedisLog) Claim(ctx context.Context, stream, group, consumer string, minIdle time.Duration, ids ...string) ([]types.Entry, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	res, err := l.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   stream,
		Group:    group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Messages: ids,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim %v on %s: %w", ids, stream, err)
	}
	return toEntries(res)
}

func (l *RedisLog) Ack(ctx context.Context, stream, group string, ids ...string) (int64, error) {
	n, err := l.client.XAck(ctx, stream, group, ids...).Result()
	if err != nil {
		return 0, fmt.Errorf("ack %v on %s: %w", ids, stream, err)
	}
	return n, nil
}

func (l *RedisLog) Info(ctx context.Context, stream string) (types.StreamInfo, error) {
	res, err := l.client.XInfoStream(ctx, stream).Result()
	if err != nil {
		return nil, fmt.Errorf("stream info %s: %w", stream, err)
	}

	info := types.StreamInfo{
		"length":            res.Length,
		"radix-tree-keys":   res.RadixTreeKeys,
		"radix-tree-nodes":  res.RadixTreeNodes,
		"groups":            res.Groups,
		"last-generated-id": res.LastGeneratedID,
	}
	if res.FirstEntry.ID != "" {
		info["first-entry"] = entryInfo(res.FirstEntry)
	}
	if res.LastEntry.ID != "" {
		info["last-entry"] = entryInfo(res.LastEntry)
	}
	return info, nil
}

func (l *RedisLog) Groups(ctx context.Context, stream string) ([]types.GroupInfo, error) {
	res, err := l.client.XInfoGroups(ctx, stream).Result()
	if err != nil {
		return nil, fmt.Errorf("group info %s: %w", stream, err)
	}

	groups := make([]types.GroupInfo, 0, len(res))
	for _, g := range res {
		groups = append(groups, types.GroupInfo{
			Name:            g.Name,
			Consumers:       g.Consumers,
			Pending:         g.Pending,
			LastDeliveredID: g.LastDeliveredID,
		})
	}
	return groups, nil
}

func (l *RedisLog) Close() error {
	return l.client.Close()
}

func toEntries(msgs []redis.XMessage) ([]types.Entry, error) {
	entries := make([]types.Entry, 0, len(msgs))
	for _, m := range msgs {
		values := make(map[string]string, len(m.Values))
		for k, v := range m.Values {
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("%w: entry %s field %q has type %T", ErrUnexpectedResponse, m.ID, k, v)
			}
			values[k] = s
		}
		entries = append(entries, types.Entry{ID: m.ID, Values: values})
	}
	return entries, nil
}

func entryInfo(m redis.XMessage) map[string]any {
	return map[string]any{"id": m.ID, "values": m.Values}
}

var _ Log = (*RedisLog)(nil)
