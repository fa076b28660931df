package domain

import "time"

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Participant is one joined identity within a room. A record is created per
// connection; a reconnect produces a new participant, not a resumed one.
type Participant struct {
	ID       string    `db:"id"`
	RoomID   string    `db:"room_id"`
	Name     string    `db:"name"`
	Role     Role      `db:"role"`
	JoinedAt time.Time `db:"joined_at"`
}
