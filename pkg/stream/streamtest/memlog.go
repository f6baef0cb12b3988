// Package streamtest provides an in-memory stream.Log with a manual clock for
// exercising consumer group behaviour without a broker.
package streamtest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/downfa11-org/go-streams/pkg/stream"
	"github.com/downfa11-org/go-streams/pkg/types"
)

var ErrClosed = errors.New("streamtest: log closed")

// Operation names accepted by FailNext and Calls.
const (
	OpCreateGroup = "create_group"
	OpAppend      = "append"
	OpReadGroup   = "read_group"
	OpListPending = "list_pending"
	OpClaim       = "claim"
	OpAck         = "ack"
	OpInfo        = "info"
	OpGroups      = "groups"
)

type pendingEntry struct {
	consumer    string
	deliveredAt time.Time
	count       int64
}

type group struct {
	lastDelivered stream.ID
	pel           map[string]*pendingEntry
	consumers     map[string]struct{}
}

type memStream struct {
	entries []types.Entry
	ids     []stream.ID
	lastID  stream.ID
	groups  map[string]*group
}

// Log is a stream.Log kept entirely in memory. Entry ids and idle times come
// from a manual clock that only moves on Advance; ReadGroup blocking uses real
// time so tests can bound how long a consumer waits.
type Log struct {
	mu       sync.Mutex
	now      time.Time
	streams  map[string]*memStream
	appended chan struct{}
	failures map[string][]error
	injected [][]types.StreamBatch
	calls    map[string]int
	closed   bool
}

func New() *Log {
	return &Log{
		now:      time.UnixMilli(1_700_000_000_000),
		streams:  make(map[string]*memStream),
		appended: make(chan struct{}),
		failures: make(map[string][]error),
		calls:    make(map[string]int),
	}
}

// Now returns the manual clock's current time.
func (l *Log) Now() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.now
}

// Advance moves the manual clock forward, ageing every pending entry.
func (l *Log) Advance(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = l.now.Add(d)
}

// FailNext makes the next call of op return err. Calls queue up in order and
// a nil err lets that call through.
func (l *Log) FailNext(op string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures[op] = append(l.failures[op], err)
}

// InjectRead makes the next ReadGroup return batches verbatim.
func (l *Log) InjectRead(batches []types.StreamBatch) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.injected = append(l.injected, batches)
}

// Calls reports how many times op was invoked.
func (l *Log) Calls(op string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[op]
}

// AppendRaw appends an entry with string fields, bypassing the codec.
func (l *Log) AppendRaw(streamName string, values map[string]string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.appendLocked(l.streamLocked(streamName), values)
}

// Len returns the number of entries in the stream.
func (l *Log) Len(streamName string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok := l.streams[streamName]; ok {
		return len(s.entries)
	}
	return 0
}

// Entries returns a copy of the stream in append order.
func (l *Log) Entries(streamName string) []types.Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.streams[streamName]
	if !ok {
		return nil
	}
	out := make([]types.Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Pending returns the group's pending entries ordered by id.
func (l *Log) Pending(streamName, groupName string) []types.PendingEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.streams[streamName]
	if !ok {
		return nil
	}
	g, ok := s.groups[groupName]
	if !ok {
		return nil
	}
	return l.pendingLocked(g, stream.RangeMin, stream.RangeMax, -1)
}

func (l *Log) CreateGroup(ctx context.Context, streamName, groupName, start string, mkstream bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enterLocked(OpCreateGroup); err != nil {
		return err
	}

	s, ok := l.streams[streamName]
	if !ok {
		if !mkstream {
			return fmt.Errorf("streamtest: no such stream %s", streamName)
		}
		s = l.streamLocked(streamName)
	}
	if _, ok := s.groups[groupName]; ok {
		return stream.ErrGroupExists
	}

	var last stream.ID
	switch start {
	case stream.StartLatest:
		last = s.lastID
	case "0", "0-0":
	default:
		id, err := stream.ParseID(start)
		if err != nil {
			return err
		}
		last = id
	}

	s.groups[groupName] = &group{
		lastDelivered: last,
		pel:           make(map[string]*pendingEntry),
		consumers:     make(map[string]struct{}),
	}
	return nil
}

func (l *Log) Append(ctx context.Context, streamName string, values map[string]any) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enterLocked(OpAppend); err != nil {
		return "", err
	}

	fields := make(map[string]string, len(values))
	for k, v := range values {
		switch tv := v.(type) {
		case string:
			fields[k] = tv
		case []byte:
			fields[k] = string(tv)
		default:
			fields[k] = fmt.Sprint(tv)
		}
	}
	return l.appendLocked(l.streamLocked(streamName), fields), nil
}

func (l *Log) ReadGroup(ctx context.Context, args stream.ReadGroupArgs) ([]types.StreamBatch, error) {
	var deadline <-chan time.Time
	if args.Block > 0 {
		timer := time.NewTimer(args.Block)
		defer timer.Stop()
		deadline = timer.C
	}

	first := true
	for {
		l.mu.Lock()
		if first {
			if err := l.enterLocked(OpReadGroup); err != nil {
				l.mu.Unlock()
				return nil, err
			}
			if len(l.injected) > 0 {
				batches := l.injected[0]
				l.injected = l.injected[1:]
				l.mu.Unlock()
				return batches, nil
			}
			first = false
		}

		batches, err := l.readLocked(args)
		wait := l.appended
		l.mu.Unlock()

		if err != nil || len(batches) > 0 || deadline == nil {
			return batches, err
		}

		select {
		case <-wait:
		case <-deadline:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (l *Log) ListPending(ctx context.Context, streamName, groupName, start, end string, count int64) ([]types.PendingEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enterLocked(OpListPending); err != nil {
		return nil, err
	}

	g, err := l.groupLocked(streamName, groupName)
	if err != nil {
		return nil, err
	}
	return l.pendingLocked(g, start, end, count), nil
}

func (l *Log) Claim(ctx context.Context, streamName, groupName, consumer string, minIdle time.Duration, ids ...string) ([]types.Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enterLocked(OpClaim); err != nil {
		return nil, err
	}

	g, err := l.groupLocked(streamName, groupName)
	if err != nil {
		return nil, err
	}
	s := l.streams[streamName]

	var claimed []types.Entry
	for _, id := range ids {
		p, ok := g.pel[id]
		if !ok || l.now.Sub(p.deliveredAt) < minIdle {
			continue
		}
		entry, ok := s.lookup(id)
		if !ok {
			delete(g.pel, id)
			continue
		}
		p.consumer = consumer
		p.deliveredAt = l.now
		p.count++
		g.consumers[consumer] = struct{}{}
		claimed = append(claimed, entry)
	}
	return claimed, nil
}

func (l *Log) Ack(ctx context.Context, streamName, groupName string, ids ...string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enterLocked(OpAck); err != nil {
		return 0, err
	}

	g, err := l.groupLocked(streamName, groupName)
	if err != nil {
		return 0, err
	}

	var n int64
	for _, id := range ids {
		if _, ok := g.pel[id]; ok {
			delete(g.pel, id)
			n++
		}
	}
	return n, nil
}

func (l *Log) Info(ctx context.Context, streamName string) (types.StreamInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enterLocked(OpInfo); err != nil {
		return nil, err
	}

	s, ok := l.streams[streamName]
	if !ok {
		return nil, fmt.Errorf("streamtest: no such stream %s", streamName)
	}
	info := types.StreamInfo{
		"length":            int64(len(s.entries)),
		"groups":            int64(len(s.groups)),
		"last-generated-id": s.lastID.String(),
	}
	if len(s.entries) > 0 {
		info["first-entry"] = s.entries[0].ID
		info["last-entry"] = s.entries[len(s.entries)-1].ID
	}
	return info, nil
}

func (l *Log) Groups(ctx context.Context, streamName string) ([]types.GroupInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enterLocked(OpGroups); err != nil {
		return nil, err
	}

	s, ok := l.streams[streamName]
	if !ok {
		return nil, fmt.Errorf("streamtest: no such stream %s", streamName)
	}
	out := make([]types.GroupInfo, 0, len(s.groups))
	for name, g := range s.groups {
		out = append(out, types.GroupInfo{
			Name:            name,
			Consumers:       int64(len(g.consumers)),
			Pending:         int64(len(g.pel)),
			LastDeliveredID: g.lastDelivered.String(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

func (l *Log) enterLocked(op string) error {
	l.calls[op]++
	if l.closed {
		return ErrClosed
	}
	if errs := l.failures[op]; len(errs) > 0 {
		l.failures[op] = errs[1:]
		return errs[0]
	}
	return nil
}

func (l *Log) streamLocked(name string) *memStream {
	s, ok := l.streams[name]
	if !ok {
		s = &memStream{groups: make(map[string]*group)}
		l.streams[name] = s
	}
	return s
}

func (l *Log) groupLocked(streamName, groupName string) (*group, error) {
	s, ok := l.streams[streamName]
	if !ok {
		return nil, fmt.Errorf("streamtest: no such stream %s", streamName)
	}
	g, ok := s.groups[groupName]
	if !ok {
		return nil, fmt.Errorf("streamtest: no such group %s on %s", groupName, streamName)
	}
	return g, nil
}

func (l *Log) appendLocked(s *memStream, values map[string]string) string {
	ms := uint64(l.now.UnixMilli())
	id := stream.ID{Ms: ms}
	if ms <= s.lastID.Ms {
		id = stream.ID{Ms: s.lastID.Ms, Seq: s.lastID.Seq + 1}
	}
	s.lastID = id
	s.ids = append(s.ids, id)
	s.entries = append(s.entries, types.Entry{ID: id.String(), Values: values})

	close(l.appended)
	l.appended = make(chan struct{})
	return id.String()
}

func (l *Log) readLocked(args stream.ReadGroupArgs) ([]types.StreamBatch, error) {
	g, err := l.groupLocked(args.Stream, args.Group)
	if err != nil {
		return nil, err
	}
	s := l.streams[args.Stream]
	g.consumers[args.Consumer] = struct{}{}

	var entries []types.Entry
	if args.Start == "" || args.Start == stream.StartNew {
		for i, id := range s.ids {
			if args.Count > 0 && int64(len(entries)) >= args.Count {
				break
			}
			if id.Compare(g.lastDelivered) <= 0 {
				continue
			}
			g.lastDelivered = id
			g.pel[id.String()] = &pendingEntry{consumer: args.Consumer, deliveredAt: l.now, count: 1}
			entries = append(entries, s.entries[i])
		}
	} else {
		after, err := stream.ParseID(args.Start)
		if err != nil {
			return nil, err
		}
		for _, p := range l.pendingLocked(g, stream.RangeMin, stream.RangeMax, -1) {
			if args.Count > 0 && int64(len(entries)) >= args.Count {
				break
			}
			id, _ := stream.ParseID(p.ID)
			if p.Consumer != args.Consumer || id.Compare(after) <= 0 {
				continue
			}
			if e, ok := s.lookup(p.ID); ok {
				entries = append(entries, e)
			}
		}
		return []types.StreamBatch{{Stream: args.Stream, Entries: entries}}, nil
	}

	if len(entries) == 0 {
		return nil, nil
	}
	return []types.StreamBatch{{Stream: args.Stream, Entries: entries}}, nil
}

func (l *Log) pendingLocked(g *group, start, end string, count int64) []types.PendingEntry {
	lo, hi := stream.ID{}, stream.ID{Ms: ^uint64(0), Seq: ^uint64(0)}
	if start != stream.RangeMin {
		if id, err := stream.ParseID(start); err == nil {
			lo = id
		}
	}
	if end != stream.RangeMax {
		if id, err := stream.ParseID(end); err == nil {
			hi = id
		}
	}

	type row struct {
		id stream.ID
		pe types.PendingEntry
	}
	rows := make([]row, 0, len(g.pel))
	for key, p := range g.pel {
		id, err := stream.ParseID(key)
		if err != nil || id.Compare(lo) < 0 || id.Compare(hi) > 0 {
			continue
		}
		rows = append(rows, row{id: id, pe: types.PendingEntry{
			ID:            key,
			Consumer:      p.consumer,
			Idle:          l.now.Sub(p.deliveredAt),
			DeliveryCount: p.count,
		}})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].id.Compare(rows[j].id) < 0 })

	out := make([]types.PendingEntry, 0, len(rows))
	for _, r := range rows {
		if count >= 0 && int64(len(out)) >= count {
			break
		}
		out = append(out, r.pe)
	}
	return out
}

func (s *memStream) lookup(id string) (types.Entry, bool) {
	for _, e := range s.entries {
		if e.ID == id {
			return e, true
		}
	}
	return types.Entry{}, false
}

var _ stream.Log = (*Log)(nil)
