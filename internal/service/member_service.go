package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/crisis-lab/sim-service/internal/domain"
)

type ParticipantStore interface {
	Create(ctx context.Context, roomID, name string, role domain.Role) (*domain.Participant, error)
	ListByRoom(ctx context.Context, roomID string) ([]domain.Participant, error)
}

type MemberService struct {
	participantStore ParticipantStore
}

func NewMemberService(participantStore ParticipantStore) *MemberService {
	return &MemberService{participantStore: participantStore}
}

// Register records one joined identity for a connection. Display names are
// not unique; a blank one gets a placeholder.
func (s *MemberService) Register(ctx context.Context, roomID, name string, role domain.Role) (*domain.Participant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "Anonymous"
	}
	if role != domain.RoleAdmin {
		role = domain.RoleUser
	}

	p, err := s.participantStore.Create(ctx, roomID, name, role)
	if err != nil {
		return nil, fmt.Errorf("participantStore.Create: %w", err)
	}
	return p, nil
}

func (s *MemberService) ListParticipants(ctx context.Context, roomID string) ([]domain.Participant, error) {
	return s.participantStore.ListByRoom(ctx, roomID)
}
