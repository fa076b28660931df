package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/crisis-lab/sim-service/internal/domain"
)

type RoomStore interface {
	Create(ctx context.Context, code string) (*domain.Room, error)
	GetByCode(ctx context.Context, code string) (*domain.Room, error)
	List(ctx context.Context, limit int, cursor string) ([]domain.Room, string, error)
}

type RoomService struct {
	roomStore RoomStore
}

func NewRoomService(roomStore RoomStore) *RoomService {
	return &RoomService{roomStore: roomStore}
}

// NormalizeCode is the canonical form of a room code: trimmed, lower-cased.
func NormalizeCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

// EnsureRoom resolves a room by code, creating it on first join.
func (s *RoomService) EnsureRoom(ctx context.Context, code string) (*domain.Room, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, domain.ErrEmptyCode
	}

	room, err := s.roomStore.GetByCode(ctx, code)
	if err == nil {
		return room, nil
	}
	if !errors.Is(err, domain.ErrRoomNotFound) {
		return nil, fmt.Errorf("roomStore.GetByCode: %w", err)
	}

	room, err = s.roomStore.Create(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("roomStore.Create: %w", err)
	}
	return room, nil
}

// GetRoomByCode returns an existing room; it never creates one.
func (s *RoomService) GetRoomByCode(ctx context.Context, code string) (*domain.Room, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, domain.ErrRoomNotFound
	}
	return s.roomStore.GetByCode(ctx, code)
}

// ListRooms returns rooms newest first with cursor pagination.
func (s *RoomService) ListRooms(ctx context.Context, limit int, cursor string) ([]domain.Room, string, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 50 {
		limit = 50
	}

	rooms, nextCursor, err := s.roomStore.List(ctx, limit, cursor)
	if err != nil {
		return nil, "", err
	}
	return rooms, nextCursor, nil
}
