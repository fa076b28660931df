package domain

import "time"

// Room is an isolated simulation session identified by a short code.
// Rooms are created lazily on first join and never mutated afterwards.
type Room struct {
	ID        string    `db:"id"`
	Code      string    `db:"code"`
	CreatedAt time.Time `db:"created_at"`
}
