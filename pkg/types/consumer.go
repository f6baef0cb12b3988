package types

import "time"

// PendingEntry is a delivered-but-unacknowledged entry in a group's pending list.
type PendingEntry struct {
	ID            string
	Consumer      string
	Idle          time.Duration
	DeliveryCount int64
}

type ConsumerState int32

const (
	ConsumerStateStopped ConsumerState = iota
	ConsumerStateInitializing
	ConsumerStateRunning
)

func (s ConsumerState) String() string {
	switch s {
	case ConsumerStateStopped:
		return "stopped"
	case ConsumerStateInitializing:
		return "initializing"
	case ConsumerStateRunning:
		return "running"
	default:
		return "unknown"
	}
}

type PublisherState int32

const (
	PublisherStateIdle PublisherState = iota
	PublisherStatePublishing
)

func (s PublisherState) String() string {
	switch s {
	case PublisherStateIdle:
		return "idle"
	case PublisherStatePublishing:
		return "publishing"
	default:
		return "unknown"
	}
}
