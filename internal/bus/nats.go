package bus

import (
	"encoding/base32"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const subjectPrefix = "room."

var subjectEnc = base32.StdEncoding.WithPadding(base32.NoPadding)

// subjectFor maps a room code to a valid NATS subject. Codes are free text
// (only trimmed and lowercased), so they are encoded rather than spliced in;
// a space or a wildcard character would make the subject unpublishable.
func subjectFor(roomCode string) string {
	return subjectPrefix + subjectEnc.EncodeToString([]byte(roomCode))
}

// envelope carries a room payload between instances. Origin lets a
// subscriber drop its own publishes, which were already fanned out locally.
type envelope struct {
	Origin string          `json:"origin"`
	Room   string          `json:"room"`
	Data   json.RawMessage `json:"data"`
}

// NatsBus mirrors room broadcasts across instances over per-room NATS
// subjects. Local delivery happens synchronously on Publish; remote
// envelopes arrive through the subscription and are routed by the room code
// inside the envelope.
type NatsBus struct {
	conn     *nats.Conn
	fanout   Fanout
	instance string
	sub      *nats.Subscription
}

func NewNatsBus(url string, f Fanout) (*NatsBus, error) {
	nc, err := nats.Connect(url, nats.Name("sim-service"))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	b := &NatsBus{
		conn:     nc,
		fanout:   f,
		instance: uuid.NewString(),
	}
	sub, err := nc.Subscribe(subjectPrefix+">", b.handle)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("nats subscribe: %w", err)
	}
	b.sub = sub
	return b, nil
}

func (b *NatsBus) Publish(roomCode string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	b.fanout.BroadcastRaw(roomCode, data)

	env, err := json.Marshal(envelope{Origin: b.instance, Room: roomCode, Data: data})
	if err != nil {
		return err
	}
	return b.conn.Publish(subjectFor(roomCode), env)
}

func (b *NatsBus) handle(msg *nats.Msg) {
	var env envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		slog.Warn("bus: bad envelope", "subject", msg.Subject, "err", err)
		return
	}
	if env.Origin == b.instance {
		return // our own publish, already delivered locally
	}
	b.fanout.BroadcastRaw(env.Room, env.Data)
}

func (b *NatsBus) Close() {
	if b.sub != nil {
		_ = b.sub.Unsubscribe()
	}
	b.conn.Close()
}
