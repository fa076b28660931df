package ws

import "time"

// Frame types on the wire, both directions.
const (
	TypeWelcome       = "WELCOME"        // unicast join ack, first frame to a session
	TypeSystem        = "SYSTEM"         // join/leave notices
	TypeChat          = "CHAT"           // chat message (both directions)
	TypeEvent         = "EVENT"          // crisis event pushed to the room
	TypeEventDispatch = "EVENT_DISPATCH" // facilitator-only event injection
)

// InboundFrame is the union of every client frame, decoded once at the
// boundary. Unknown types parse fine and are dropped by the dispatcher.
type InboundFrame struct {
	Type        string `json:"type"`
	Content     string `json:"content,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Severity    int    `json:"severity,omitempty"`
}

type WelcomeFrame struct {
	Type          string `json:"type"`
	ParticipantID string `json:"participantId"`
	RoomCode      string `json:"roomCode"`
}

type SystemFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type ChatFrame struct {
	Type      string    `json:"type"`
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

type EventFrame struct {
	Type        string `json:"type"`
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Severity    int    `json:"severity"`
	Auto        bool   `json:"auto,omitempty"`
}
