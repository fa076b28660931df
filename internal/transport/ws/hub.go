package ws

import (
	"sync"
)

type Conn interface {
	SendRaw(data []byte) error
	RoomCode() string
}

// Hub maps room codes to their live connection sets. It is the fanout
// substrate for broadcasts; it does not notify anyone of membership changes.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[Conn]struct{} // roomCode -> set of connections
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[Conn]struct{})}
}

func (h *Hub) Add(c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rs, ok := h.rooms[c.RoomCode()]
	if !ok {
		rs = make(map[Conn]struct{})
		h.rooms[c.RoomCode()] = rs
	}
	rs[c] = struct{}{}
}

// Remove takes a connection out of its room and reports whether the room is
// now empty; the caller tears the room's scheduler down on true. Removing an
// absent connection is a no-op.
func (h *Hub) Remove(c Conn) (empty bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rs, ok := h.rooms[c.RoomCode()]
	if !ok {
		return false
	}
	delete(rs, c)
	if len(rs) == 0 {
		delete(h.rooms, c.RoomCode())
		return true
	}
	return false
}

func (h *Hub) IsEmpty(roomCode string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.rooms[roomCode]) == 0
}

// BroadcastRaw delivers one pre-serialized payload to every connection of the
// room. Send errors mean the recipient is going away; its own read loop
// cleans up.
func (h *Hub) BroadcastRaw(roomCode string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.rooms[roomCode] {
		_ = c.SendRaw(data) // best-effort
	}
}
