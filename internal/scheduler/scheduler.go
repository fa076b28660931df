package scheduler

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/crisis-lab/sim-service/internal/domain"
	"github.com/crisis-lab/sim-service/internal/transport/ws"
)

// EventStore persists scheduler-generated events before they are broadcast.
type EventStore interface {
	Create(ctx context.Context, roomID, title, description string, severity int, auto bool) (*domain.CrisisEvent, error)
}

type Bus interface {
	Publish(roomCode string, payload any) error
}

// Occupancy reports whether a room currently has live connections. The ws
// hub implements it.
type Occupancy interface {
	IsEmpty(roomCode string) bool
}

var titles = []string{
	"Network incident",
	"Power loss",
	"Media influx",
	"Witness call",
	"Security alert",
}

const autoDescription = "Automatically generated simulation event."

// Scheduler runs one tick loop per occupied room and probabilistically
// injects crisis events into it. Loops start on a room's first connection
// and stop on its last disconnect.
type Scheduler struct {
	eventSvc EventStore
	bus      Bus
	occ      Occupancy

	minInterval time.Duration
	maxInterval time.Duration
	probability float64

	mu    sync.Mutex
	rooms map[string]context.CancelFunc // roomCode -> running tick loop
}

func New(eventSvc EventStore, bus Bus, occ Occupancy, minInterval, maxInterval time.Duration, probability float64) *Scheduler {
	if minInterval <= 0 {
		minInterval = 15 * time.Second
	}
	if maxInterval < minInterval {
		maxInterval = minInterval
	}
	if probability <= 0 || probability > 1 {
		probability = 0.3
	}
	return &Scheduler{
		eventSvc:    eventSvc,
		bus:         bus,
		occ:         occ,
		minInterval: minInterval,
		maxInterval: maxInterval,
		probability: probability,
		rooms:       make(map[string]context.CancelFunc),
	}
}

// Start launches the tick loop for a room. Idempotent: a room that already
// has a running loop keeps it, so concurrent first joins still end up with
// exactly one scheduler.
func (s *Scheduler) Start(roomCode, roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[roomCode]; ok {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.rooms[roomCode] = cancel
	go s.run(ctx, roomCode, roomID)
	slog.Debug("scheduler started", "room", roomCode)
}

// Stop cancels a room's loop. Stopping a room without one is a no-op.
//
// The occupancy re-check under the mutex is what keeps this safe against a
// join racing the last disconnect: a new connection lands in the hub before
// its Start call, so a Stop that still sees members keeps the loop, and a
// Stop that cancelled first leaves Start a clean slate for a fresh one.
func (s *Scheduler) Stop(roomCode string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cancel, ok := s.rooms[roomCode]
	if !ok {
		return
	}
	if s.occ != nil && !s.occ.IsEmpty(roomCode) {
		return
	}
	cancel()
	delete(s.rooms, roomCode)
	slog.Debug("scheduler stopped", "room", roomCode)
}

func (s *Scheduler) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for roomCode, cancel := range s.rooms {
		cancel()
		delete(s.rooms, roomCode)
	}
}

func (s *Scheduler) Running(roomCode string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.rooms[roomCode]
	return ok
}

func (s *Scheduler) run(ctx context.Context, roomCode, roomID string) {
	timer := time.NewTimer(s.nextInterval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if rand.Float64() < s.probability {
				s.emit(roomCode, roomID)
			}
			timer.Reset(s.nextInterval())
		}
	}
}

// nextInterval draws the pause before the next tick, uniform over the
// configured range, fresh per tick.
func (s *Scheduler) nextInterval() time.Duration {
	if s.maxInterval <= s.minInterval {
		return s.minInterval
	}
	return s.minInterval + rand.N(s.maxInterval-s.minInterval)
}

func (s *Scheduler) emit(roomCode, roomID string) {
	title := titles[rand.IntN(len(titles))]
	severity := rand.IntN(3) + 1

	// Background context: stopping the room must not abort a write already
	// in flight.
	ev, err := s.eventSvc.Create(context.Background(), roomID, title, autoDescription, severity, true)
	if err != nil {
		slog.Error("scheduler: persist event failed", "room", roomCode, "err", err)
		return // never broadcast unpersisted content
	}

	if err := s.bus.Publish(roomCode, ws.EventFrame{
		Type:        ws.TypeEvent,
		ID:          ev.ID,
		Title:       ev.Title,
		Description: ev.Description,
		Severity:    ev.Severity,
		Auto:        true,
	}); err != nil {
		slog.Error("scheduler: broadcast event failed", "room", roomCode, "err", err)
	}
}
