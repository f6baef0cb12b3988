package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/downfa11-org/go-streams/pkg/types"
	"github.com/downfa11-org/go-streams/util"
)

var (
	// ErrEmptyPayload marks an entry with no payload to decode.
	ErrEmptyPayload = errors.New("empty payload")
	// ErrMalformedPayload marks a payload that is not a JSON object.
	ErrMalformedPayload = errors.New("malformed payload")
)

// MalformedPayloadError keeps the raw text of a payload that failed to decode.
type MalformedPayloadError struct {
	Raw string
	Err error
}

func (e *MalformedPayloadError) Error() string {
	if e.Err == nil {
		return ErrMalformedPayload.Error()
	}
	return fmt.Sprintf("%s: %v", ErrMalformedPayload, e.Err)
}

func (e *MalformedPayloadError) Unwrap() error { return e.Err }

func (e *MalformedPayloadError) Is(target error) bool {
	return target == ErrMalformedPayload
}

// Encode serializes p as JSON.
func Encode(p types.MessagePayload) (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode payload %s: %w", p.ID, err)
	}
	return string(b), nil
}

// Decode parses a JSON payload. Only syntactically invalid JSON, or JSON that
// is not an object, is malformed. No field is required and known fields are
// read leniently: a value of the wrong type is coerced where it can be and
// left zero otherwise. Unknown keys are ignored and nested data passes
// through untouched.
func Decode(raw string) (types.MessagePayload, error) {
	var p types.MessagePayload

	if raw == "" {
		return p, ErrEmptyPayload
	}
	trimmed := strings.TrimSpace(raw)
	if trimmed == "null" {
		return p, ErrEmptyPayload
	}
	if !strings.HasPrefix(trimmed, "{") {
		return p, &MalformedPayloadError{Raw: raw, Err: errors.New("payload is not a JSON object")}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &fields); err != nil {
		return p, &MalformedPayloadError{Raw: raw, Err: err}
	}

	p.ID = stringField(fields["id"])
	p.Timestamp = timestampField(fields["timestamp"])
	p.Content = stringField(fields["content"])
	p.Data = dataField(fields["data"])
	return p, nil
}

// stringField returns a JSON string as is and any other non-null value as its
// JSON text, so {"id":123} decodes to "123".
func stringField(v json.RawMessage) string {
	if len(v) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	return string(v)
}

// timestampField accepts integers, floats and numeric strings. Anything else
// yields 0.
func timestampField(v json.RawMessage) int64 {
	if len(v) == 0 {
		return 0
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err != nil {
		return 0
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return int64(f)
	}
	return 0
}

// dataField keeps data only when it is an object.
func dataField(v json.RawMessage) map[string]any {
	if len(v) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(v, &m); err != nil {
		return nil
	}
	return m
}

// EncodeFields builds the entry fields for p. The encoding field is only
// written for compressed payloads so plain readers keep working.
func EncodeFields(p types.MessagePayload, c util.Compression) (map[string]any, error) {
	raw, err := Encode(p)
	if err != nil {
		return nil, err
	}

	if c == "" || c == util.CompressionNone {
		return map[string]any{types.FieldPayload: raw}, nil
	}

	compressed, err := util.Compress([]byte(raw), c)
	if err != nil {
		return nil, fmt.Errorf("compress payload %s: %w", p.ID, err)
	}
	return map[string]any{
		types.FieldPayload:  string(compressed),
		types.FieldEncoding: c.String(),
	}, nil
}

// DecodeFields reverses EncodeFields on an entry's values.
func DecodeFields(values map[string]string) (types.MessagePayload, error) {
	raw := values[types.FieldPayload]
	if raw == "" {
		return types.MessagePayload{}, ErrEmptyPayload
	}

	enc, ok := values[types.FieldEncoding]
	if !ok || enc == "" {
		return Decode(raw)
	}

	c, err := util.ParseCompression(enc)
	if err != nil {
		return types.MessagePayload{}, &MalformedPayloadError{Raw: raw, Err: err}
	}
	plain, err := util.Decompress([]byte(raw), c)
	if err != nil {
		return types.MessagePayload{}, &MalformedPayloadError{Raw: raw, Err: fmt.Errorf("decompress %s: %w", c, err)}
	}
	return Decode(string(plain))
}
