package domain

import "time"

// CrisisEvent is a structured alert pushed to a room, either dispatched by a
// facilitator or generated by the room's scheduler. Auto records the origin;
// it plays no part in delivery.
type CrisisEvent struct {
	ID          string    `db:"id"`
	RoomID      string    `db:"room_id"`
	Title       string    `db:"title"`
	Description string    `db:"description"`
	Severity    int       `db:"severity"`
	Auto        bool      `db:"auto"`
	CreatedAt   time.Time `db:"created_at"`
}
