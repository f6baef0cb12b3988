package stream

import (
	"fmt"
	"strconv"
	"strings"
)

// ID is a stream entry id of the form <ms>-<seq>.
type ID struct {
	Ms  uint64
	Seq uint64
}

func ParseID(s string) (ID, error) {
	msPart, seqPart, ok := strings.Cut(s, "-")
	if !ok {
		return ID{}, fmt.Errorf("invalid entry id %q", s)
	}
	ms, err := strconv.ParseUint(msPart, 10, 64)
	if err != nil {
		return ID{}, fmt.Errorf("invalid entry id %q: %w", s, err)
	}
	seq, err := strconv.ParseUint(seqPart, 10, 64)
	if err != nil {
		return ID{}, fmt.Errorf("invalid entry id %q: %w", s, err)
	}
	return ID{Ms: ms, Seq: seq}, nil
}

func (id ID) String() string {
	return strconv.FormatUint(id.Ms, 10) + "-" + strconv.FormatUint(id.Seq, 10)
}

// Compare returns -1, 0 or 1 as id sorts before, equal to or after other.
func (id ID) Compare(other ID) int {
	switch {
	case id.Ms < other.Ms:
		return -1
	case id.Ms > other.Ms:
		return 1
	case id.Seq < other.Seq:
		return -1
	case id.Seq > other.Seq:
		return 1
	default:
		return 0
	}
}

func (id ID) IsZero() bool { return id.Ms == 0 && id.Seq == 0 }
