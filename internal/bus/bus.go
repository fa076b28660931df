package bus

import "encoding/json"

// Fanout delivers a pre-serialized payload to the local connections of a
// room. The ws hub implements it.
type Fanout interface {
	BroadcastRaw(roomCode string, data []byte)
}

// LocalBus is the single-instance bus: payloads are marshalled once and
// handed straight to the in-process hub.
type LocalBus struct {
	fanout Fanout
}

func NewLocalBus(f Fanout) *LocalBus {
	return &LocalBus{fanout: f}
}

func (b *LocalBus) Publish(roomCode string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	b.fanout.BroadcastRaw(roomCode, data)
	return nil
}
