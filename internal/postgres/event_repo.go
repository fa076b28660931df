package postgres

import (
	"context"
	"fmt"

	"github.com/crisis-lab/sim-service/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

type EventRepository struct {
	db *pgxpool.Pool
}

func NewEventRepository(db *pgxpool.Pool) *EventRepository {
	return &EventRepository{db: db}
}

func (r *EventRepository) Save(ctx context.Context, roomID, title, description string, severity int, auto bool) (*domain.CrisisEvent, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO crisis_events (room_id, title, description, severity, auto)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, room_id, title, description, severity, auto, created_at
	`, roomID, title, description, severity, auto)

	var ev domain.CrisisEvent
	if err := row.Scan(&ev.ID, &ev.RoomID, &ev.Title, &ev.Description, &ev.Severity, &ev.Auto, &ev.CreatedAt); err != nil {
		return nil, err
	}
	return &ev, nil
}

// History returns room events with cursor pagination (created_at,id DESC).
func (r *EventRepository) History(ctx context.Context, roomID, after string, limit int) ([]domain.CrisisEvent, string, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	cur, err := DecodeCursor(after)
	if err != nil {
		return nil, "", fmt.Errorf("decode cursor: %w", err)
	}
	const baseQuery = `
		SELECT id, room_id, title, description, severity, auto, created_at
		FROM crisis_events
		WHERE room_id = $1
		  AND (
		    $2::timestamptz IS NULL
		    OR created_at < $2
		    OR (created_at = $2 AND id < $3)
		  )
		ORDER BY created_at DESC, id DESC
		LIMIT $4
	`

	var createdAt any
	var id any
	if cur != nil {
		createdAt = cur.CreatedAt
		id = cur.ID
	}

	rows, err := r.db.Query(ctx, baseQuery, roomID, createdAt, id, limit)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	var out []domain.CrisisEvent
	for rows.Next() {
		var ev domain.CrisisEvent
		if err := rows.Scan(&ev.ID, &ev.RoomID, &ev.Title, &ev.Description, &ev.Severity, &ev.Auto, &ev.CreatedAt); err != nil {
			return nil, "", err
		}
		out = append(out, ev)
	}

	var next string
	if len(out) == limit {
		last := out[len(out)-1]
		if c, e := EncodeCursor(Cursor{CreatedAt: last.CreatedAt, ID: last.ID}); e == nil {
			next = c
		}
	}
	return out, next, rows.Err()
}
