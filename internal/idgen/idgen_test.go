package idgen

import (
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
)

func TestSourceProducesMonotonicIDs(t *testing.T) {
	t.Parallel()

	s := NewSource()
	now := time.Now()

	var prev ulid.ULID
	for i := 0; i < 50; i++ {
		id := s.New(now)
		if i > 0 && id.Compare(prev) <= 0 {
			t.Fatalf("id %d (%s) is not greater than its predecessor (%s)", i, id, prev)
		}
		prev = id
	}
}

func TestZeroIsMinimum(t *testing.T) {
	t.Parallel()

	s := NewSource()
	id := s.New(time.Now())
	if id.Compare(Zero) <= 0 {
		t.Fatalf("a freshly generated id should sort after Zero")
	}
}

func TestMaxIsAllOnes(t *testing.T) {
	t.Parallel()

	for i, b := range Max {
		if b != 0xFF {
			t.Fatalf("Max[%d] = %x, want 0xFF", i, b)
		}
	}
}

func TestParseRoundTrip(t *testing.T) {
	t.Parallel()

	s := NewSource()
	id := s.New(time.Now())

	parsed, err := Parse(id.String())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed != id {
		t.Fatalf("Parse round trip: got %v, want %v", parsed, id)
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	t.Parallel()

	if _, err := Parse("not-a-ulid"); err == nil {
		t.Fatalf("expected an error for a malformed ULID string")
	}
}
