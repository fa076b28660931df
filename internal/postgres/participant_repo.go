package postgres

import (
	"context"

	"github.com/crisis-lab/sim-service/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

type ParticipantRepository struct {
	db *pgxpool.Pool
}

func NewParticipantRepository(db *pgxpool.Pool) *ParticipantRepository {
	return &ParticipantRepository{db: db}
}

func (r *ParticipantRepository) Create(ctx context.Context, roomID, name string, role domain.Role) (*domain.Participant, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO participants (room_id, name, role)
		VALUES ($1, $2, $3)
		RETURNING id, room_id, name, role, joined_at
	`, roomID, name, role)

	var p domain.Participant
	if err := row.Scan(&p.ID, &p.RoomID, &p.Name, &p.Role, &p.JoinedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ParticipantRepository) ListByRoom(ctx context.Context, roomID string) ([]domain.Participant, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, room_id, name, role, joined_at FROM participants WHERE room_id=$1 ORDER BY joined_at ASC`,
		roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []domain.Participant
	for rows.Next() {
		var p domain.Participant
		if err := rows.Scan(&p.ID, &p.RoomID, &p.Name, &p.Role, &p.JoinedAt); err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}
