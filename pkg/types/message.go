package types

// Entry field names used on the stream.
const (
	FieldPayload  = "payload"
	FieldEncoding = "encoding"
)

// MessagePayload is the JSON document carried in an entry's payload field.
type MessagePayload struct {
	ID        string         `json:"id"`
	Timestamp int64          `json:"timestamp"` // ms since epoch
	Content   string         `json:"content"`
	Data      map[string]any `json:"data"`
}

func (m MessagePayload) String() string {
	return m.Content
}

// Entry is a single stream entry as returned by the broker.
type Entry struct {
	ID     string
	Values map[string]string
}

// Payload returns the raw payload field, or "" when the entry has none.
func (e Entry) Payload() string {
	return e.Values[FieldPayload]
}

// StreamBatch is one stream's slice of a group read.
type StreamBatch struct {
	Stream  string
	Entries []Entry
}

// StreamInfo is broker-reported stream metadata, kept opaque.
type StreamInfo map[string]any

// GroupInfo summarizes a consumer group on a stream.
type GroupInfo struct {
	Name            string `yaml:"name" json:"name"`
	Consumers       int64  `yaml:"consumers" json:"consumers"`
	Pending         int64  `yaml:"pending" json:"pending"`
	LastDeliveredID string `yaml:"last_delivered_id" json:"last_delivered_id"`
}
