package ws

import (
	"errors"
	"sync"
	"testing"
)

type fakeConn struct {
	room string
	fail bool

	mu     sync.Mutex
	frames [][]byte
}

func (c *fakeConn) SendRaw(data []byte) error {
	if c.fail {
		return errors.New("connection closed")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, data)
	return nil
}

func (c *fakeConn) RoomCode() string { return c.room }

func (c *fakeConn) received() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func TestHub_BroadcastScopedToRoom(t *testing.T) {
	h := NewHub()
	a1 := &fakeConn{room: "alpha"}
	a2 := &fakeConn{room: "alpha"}
	b := &fakeConn{room: "bravo"}
	h.Add(a1)
	h.Add(a2)
	h.Add(b)

	h.BroadcastRaw("alpha", []byte(`{"type":"SYSTEM"}`))

	if a1.received() != 1 || a2.received() != 1 {
		t.Fatalf("alpha members should each get one frame, got %d and %d", a1.received(), a2.received())
	}
	if b.received() != 0 {
		t.Fatalf("bravo member got %d frames from another room", b.received())
	}
}

func TestHub_RemoveReportsEmpty(t *testing.T) {
	h := NewHub()
	a1 := &fakeConn{room: "alpha"}
	a2 := &fakeConn{room: "alpha"}
	h.Add(a1)
	h.Add(a2)

	if empty := h.Remove(a1); empty {
		t.Fatal("room still has a member, Remove reported empty")
	}
	if empty := h.Remove(a2); !empty {
		t.Fatal("last member left, Remove should report empty")
	}
	if !h.IsEmpty("alpha") {
		t.Fatal("room should be empty")
	}

	// removing again is a no-op and must not report empty a second time
	if empty := h.Remove(a2); empty {
		t.Fatal("duplicate Remove reported empty again")
	}
}

func TestHub_BroadcastSurvivesFailingConn(t *testing.T) {
	h := NewHub()
	bad := &fakeConn{room: "alpha", fail: true}
	good := &fakeConn{room: "alpha"}
	h.Add(bad)
	h.Add(good)

	h.BroadcastRaw("alpha", []byte(`{}`))

	if good.received() != 1 {
		t.Fatalf("healthy member should still receive, got %d", good.received())
	}
}
