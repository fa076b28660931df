package domain

import "time"

// MessageTypeText is the only message kind for now.
const MessageTypeText = "TEXT"

type ChatMessage struct {
	ID        string    `db:"id"`
	RoomID    string    `db:"room_id"`
	Sender    string    `db:"sender"`
	Content   string    `db:"content"`
	Type      string    `db:"type"`
	CreatedAt time.Time `db:"created_at"`
}
