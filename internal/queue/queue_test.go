package queue

import (
	"testing"

	"github.com/oklog/ulid/v2"

	"banchod/internal/idgen"
)

func TestOutboundFIFOAndDrain(t *testing.T) {
	t.Parallel()

	o := NewOutbound()
	o.Enqueue([]byte("a"))
	o.Enqueue([]byte("b"))
	o.EnqueueAll([]byte("c"), []byte("d"))

	got := o.Drain()
	if string(got) != "abcd" {
		t.Fatalf("expected FIFO order abcd, got %q", got)
	}
	if o.Len() != 0 {
		t.Fatalf("expected empty buffer after drain, got %d bytes", o.Len())
	}

	again := o.Drain()
	if len(again) != 0 {
		t.Fatalf("expected empty drain on idle queue, got %d bytes", len(again))
	}
}

func TestNotifyDeliveredAtMostOncePerReader(t *testing.T) {
	t.Parallel()

	n := NewNotify()
	n.Push([]byte("hello"), nil)

	payloads, cursor1, ok := n.Receive(1, ulid.ULID{}, 0)
	if !ok || len(payloads) != 1 {
		t.Fatalf("expected one message on first receive, got %d ok=%v", len(payloads), ok)
	}

	_, _, ok = n.Receive(1, ulid.ULID{}, 0)
	if ok {
		t.Fatalf("expected no messages on second receive from cursor zero (same reader)")
	}

	_, _, ok = n.Receive(1, cursor1, 0)
	if ok {
		t.Fatalf("expected no messages past the advanced cursor")
	}
}

func TestNotifyReceivePastLastKeyReturnsFalse(t *testing.T) {
	t.Parallel()

	n := NewNotify()
	n.Push([]byte("only"), nil)
	_, _, ok := n.Receive(1, idgen.Max, 0)
	if ok {
		t.Fatalf("receive from a cursor past the last key should see nothing")
	}
}

func TestNotifyRemoveBeforeGC(t *testing.T) {
	t.Parallel()

	n := NewNotify()
	var ids []ulid.ULID
	for i := 0; i < 100; i++ {
		ids = append(ids, n.Push([]byte("x"), nil))
	}
	mid := ids[49]
	n.RemoveBefore(mid)
	if n.Len() != 50 {
		t.Fatalf("expected 50 messages remaining, got %d", n.Len())
	}
}

func TestNotifyCollectInvalid(t *testing.T) {
	t.Parallel()

	n := NewNotify()
	valid := true
	id := n.Push([]byte("x"), func() bool { return valid })
	if invalid := n.CollectInvalid(); len(invalid) != 0 {
		t.Fatalf("expected no invalid messages yet, got %d", len(invalid))
	}
	valid = false
	invalid := n.CollectInvalid()
	if len(invalid) != 1 || invalid[0] != id {
		t.Fatalf("expected message %v to be collected invalid, got %+v", id, invalid)
	}
	n.Remove(invalid)
	if n.Len() != 0 {
		t.Fatalf("expected message removed, len=%d", n.Len())
	}
}

func TestNotifyPushExcludesSender(t *testing.T) {
	t.Parallel()

	n := NewNotify()
	n.PushExcludes([]byte("presence"), []int32{99}, nil)
	_, _, ok := n.Receive(99, ulid.ULID{}, 0)
	if ok {
		t.Fatalf("excluded reader should never observe the message")
	}
	payloads, _, ok := n.Receive(1, ulid.ULID{}, 0)
	if !ok || len(payloads) != 1 {
		t.Fatalf("non-excluded reader should observe the message")
	}
}

func TestNotifyReceiveRespectsMax(t *testing.T) {
	t.Parallel()

	n := NewNotify()
	for i := 0; i < 10; i++ {
		n.Push([]byte("x"), nil)
	}
	payloads, _, ok := n.Receive(1, ulid.ULID{}, 3)
	if !ok || len(payloads) != 3 {
		t.Fatalf("expected exactly 3 payloads, got %d", len(payloads))
	}
}
