package stream_test

import (
	"testing"

	"github.com/downfa11-org/go-streams/pkg/stream"
)

func TestParseID(t *testing.T) {
	tests := []struct {
		input   string
		want    stream.ID
		wantErr bool
	}{
		{"1700000000000-0", stream.ID{Ms: 1700000000000, Seq: 0}, false},
		{"5-12", stream.ID{Ms: 5, Seq: 12}, false},
		{"0-0", stream.ID{}, false},
		{"12345", stream.ID{}, true},
		{"a-1", stream.ID{}, true},
		{"1-b", stream.ID{}, true},
		{"", stream.ID{}, true},
	}

	for _, tt := range tests {
		got, err := stream.ParseID(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseID(%q) error = %v; wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if !tt.wantErr {
			if got != tt.want {
				t.Errorf("ParseID(%q) = %+v; want %+v", tt.input, got, tt.want)
			}
			if got.String() != tt.input {
				t.Errorf("String() = %q; want %q", got.String(), tt.input)
			}
		}
	}
}

func TestIDCompare(t *testing.T) {
	a := stream.ID{Ms: 10, Seq: 0}
	b := stream.ID{Ms: 10, Seq: 1}
	c := stream.ID{Ms: 11, Seq: 0}

	if a.Compare(b) != -1 || b.Compare(a) != 1 {
		t.Errorf("sequence ordering broken")
	}
	if b.Compare(c) != -1 || c.Compare(b) != 1 {
		t.Errorf("millisecond ordering broken")
	}
	if a.Compare(a) != 0 {
		t.Errorf("expected equal ids to compare 0")
	}
	if !(stream.ID{}).IsZero() || a.IsZero() {
		t.Errorf("IsZero mismatch")
	}
}
