package stream

import (
	"context"
	"errors"
	"time"

	"github.com/downfa11-org/go-streams/pkg/types"
)

var (
	// ErrGroupExists is returned by CreateGroup when the group is already registered.
	ErrGroupExists = errors.New("consumer group already exists")
	// ErrUnexpectedResponse marks a broker reply that does not have the expected shape.
	ErrUnexpectedResponse = errors.New("unexpected broker response")
)

// Position markers understood by the log.
const (
	StartNew    = ">" // ReadGroup: entries never delivered to the group
	StartLatest = "$" // CreateGroup: only entries appended after creation
	RangeMin    = "-"
	RangeMax    = "+"
	AutoID      = "*"
)

type ReadGroupArgs struct {
	Stream   string
	Group    string
	Consumer string
	Count    int64
	Block    time.Duration
	Start    string
}

// Log is an append-only, ordered stream with consumer groups. Entries stay
// pending for their consumer until acknowledged and can be claimed by another
// consumer once they have been idle long enough.
type Log interface {
	CreateGroup(ctx context.Context, stream, group, start string, mkstream bool) error
	Append(ctx context.Context, stream string, values map[string]any) (string, error)
	// ReadGroup returns nil, nil when Block elapses without new entries.
	ReadGroup(ctx context.Context, args ReadGroupArgs) ([]types.StreamBatch, error)
	ListPending(ctx context.Context, stream, group, start, end string, count int64) ([]types.PendingEntry, error)
	// Claim transfers ownership of the ids idle for at least minIdle and
	// returns the entries actually claimed.
	Claim(ctx context.Context, stream, group, consumer string, minIdle time.Duration, ids ...string) ([]types.Entry, error)
	Ack(ctx context.Context, stream, group string, ids ...string) (int64, error)
	Info(ctx context.Context, stream string) (types.StreamInfo, error)
	Groups(ctx context.Context, stream string) ([]types.GroupInfo, error)
	Close() error
}
