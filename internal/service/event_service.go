package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/crisis-lab/sim-service/internal/domain"
)

type EventStore interface {
	Save(ctx context.Context, roomID, title, description string, severity int, auto bool) (*domain.CrisisEvent, error)
	History(ctx context.Context, roomID, after string, limit int) ([]domain.CrisisEvent, string, error)
}

type EventService struct {
	eventStore EventStore
}

func NewEventService(eventStore EventStore) *EventService {
	return &EventService{eventStore: eventStore}
}

// Create persists one crisis event. Severity outside 1..3 falls back to 1,
// matching how a dispatch frame with a missing severity is treated.
func (s *EventService) Create(ctx context.Context, roomID, title, description string, severity int, auto bool) (*domain.CrisisEvent, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, domain.ErrEmptyTitle
	}
	if severity < 1 || severity > 3 {
		severity = 1
	}

	ev, err := s.eventStore.Save(ctx, roomID, title, description, severity, auto)
	if err != nil {
		return nil, fmt.Errorf("eventStore.Save: %w", err)
	}
	return ev, nil
}

func (s *EventService) History(ctx context.Context, roomID, after string, limit int) ([]domain.CrisisEvent, string, error) {
	return s.eventStore.History(ctx, roomID, after, limit)
}
