package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/crisis-lab/sim-service/internal/domain"
	"github.com/crisis-lab/sim-service/internal/service"

	"github.com/gorilla/websocket"
)

type RoomSvc interface {
	EnsureRoom(ctx context.Context, code string) (*domain.Room, error)
}

type MemberSvc interface {
	Register(ctx context.Context, roomID, name string, role domain.Role) (*domain.Participant, error)
}

type ChatSvc interface {
	Save(ctx context.Context, roomID, sender, content string) (*domain.ChatMessage, error)
}

type EventSvc interface {
	Create(ctx context.Context, roomID, title, description string, severity int, auto bool) (*domain.CrisisEvent, error)
}

// Bus is the only path by which payloads reach a room's sessions.
type Bus interface {
	Publish(roomCode string, payload any) error
}

type Scheduler interface {
	Start(roomCode, roomID string)
	Stop(roomCode string)
}

type Server struct {
	upgrader  websocket.Upgrader
	hub       *Hub
	roomSvc   RoomSvc
	memberSvc MemberSvc
	chatSvc   ChatSvc
	eventSvc  EventSvc
	bus       Bus
	sched     Scheduler

	adminSecret string
	pingEvery   time.Duration
}

func NewServer(hub *Hub, room RoomSvc, member MemberSvc, chat ChatSvc, event EventSvc, bus Bus, sched Scheduler, adminSecret string) *Server {
	return &Server{
		hub:       hub,
		roomSvc:   room,
		memberSvc: member,
		chatSvc:   chat,
		eventSvc:  event,
		bus:       bus,
		sched:     sched,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		adminSecret: adminSecret,
		pingEvery:   15 * time.Second,
	}
}

// WS endpoint: GET /ws?room=CODE&name=NAME[&admin=SECRET]
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	roomCode := service.NormalizeCode(q.Get("room"))
	name := strings.TrimSpace(q.Get("name"))

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "err", err)
		return
	}

	if roomCode == "" {
		// policy rejection before any frame; no room, no participant
		closeWith(conn, websocket.ClosePolicyViolation, "room code required")
		return
	}

	role := domain.RoleUser
	if s.adminSecret != "" && q.Get("admin") == s.adminSecret {
		role = domain.RoleAdmin
	}

	room, err := s.roomSvc.EnsureRoom(r.Context(), roomCode)
	if err != nil {
		slog.Error("ws admission: ensure room", "room", roomCode, "err", err)
		closeWith(conn, websocket.CloseInternalServerErr, "admission failed")
		return
	}
	participant, err := s.memberSvc.Register(r.Context(), room.ID, name, role)
	if err != nil {
		slog.Error("ws admission: register participant", "room", roomCode, "err", err)
		closeWith(conn, websocket.CloseInternalServerErr, "admission failed")
		return
	}

	c := newWsConn(conn, roomCode, room.ID, participant)
	s.hub.Add(c)
	s.sched.Start(roomCode, room.ID)

	// WELCOME goes to the joiner only, strictly before the join notice hits
	// the room, so a client can tell its own ack from room chatter.
	if err := c.Send(WelcomeFrame{Type: TypeWelcome, ParticipantID: participant.ID, RoomCode: roomCode}); err != nil {
		slog.Warn("ws welcome send failed", "room", roomCode, "participant", participant.ID, "err", err)
	}
	s.publishSystem(roomCode, participant.Name+" joined the room.")

	go s.writeLoop(c)
	s.readLoop(c)

	empty := s.hub.Remove(c)
	s.publishSystem(roomCode, participant.Name+" left the room.")
	if empty {
		// Stop re-checks occupancy itself; a join that raced this
		// teardown keeps the loop alive.
		s.sched.Stop(roomCode)
	}

	if err := c.Close(); err != nil {
		slog.Debug("ws close failed", "room", roomCode, "participant", participant.ID, "err", err)
	}
}

func (s *Server) publishSystem(roomCode, message string) {
	if err := s.bus.Publish(roomCode, SystemFrame{Type: TypeSystem, Message: message}); err != nil {
		slog.Warn("ws system broadcast failed", "room", roomCode, "err", err)
	}
}

func (s *Server) readLoop(c *wsConn) {
	defer func() { _ = c.Close() }()

	c.conn.SetReadLimit(1 << 20)
	c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var frame InboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			slog.Debug("ws malformed frame", "room", c.roomCode, "participant", c.participant.ID, "err", err)
			continue
		}
		s.dispatch(c, frame)
	}
}

func (s *Server) dispatch(c *wsConn, frame InboundFrame) {
	// Writes in flight outlive the connection; they complete or fail on
	// their own.
	ctx := context.Background()

	switch frame.Type {
	case TypeChat:
		msg, err := s.chatSvc.Save(ctx, c.roomID, c.participant.Name, frame.Content)
		if err != nil {
			if !errors.Is(err, domain.ErrEmptyMessage) && !errors.Is(err, domain.ErrMessageTooLong) {
				slog.Error("ws chat save failed", "room", c.roomCode, "participant", c.participant.ID, "err", err)
			}
			return // never broadcast unpersisted content
		}
		if err := s.bus.Publish(c.roomCode, ChatFrame{
			Type:      TypeChat,
			ID:        msg.ID,
			Sender:    msg.Sender,
			Content:   msg.Content,
			CreatedAt: msg.CreatedAt,
		}); err != nil {
			slog.Warn("ws chat broadcast failed", "room", c.roomCode, "err", err)
		}

	case TypeEventDispatch:
		if c.participant.Role != domain.RoleAdmin {
			return // soft denial: no error frame back
		}
		ev, err := s.eventSvc.Create(ctx, c.roomID, frame.Title, frame.Description, frame.Severity, false)
		if err != nil {
			slog.Error("ws event dispatch failed", "room", c.roomCode, "participant", c.participant.ID, "err", err)
			return
		}
		if err := s.bus.Publish(c.roomCode, EventFrame{
			Type:        TypeEvent,
			ID:          ev.ID,
			Title:       ev.Title,
			Description: ev.Description,
			Severity:    ev.Severity,
		}); err != nil {
			slog.Warn("ws event broadcast failed", "room", c.roomCode, "err", err)
		}

	default:
		// unknown frame kinds are deliberately ignored
	}
}

func (s *Server) writeLoop(c *wsConn) {
	ticker := time.NewTicker(s.pingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
		case <-c.closed:
			return
		}
	}
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_ = conn.Close()
}

// --- connection ---

var errConnClosed = errors.New("connection closed")

type wsConn struct {
	conn        *websocket.Conn
	roomCode    string
	roomID      string
	participant *domain.Participant
	sendMu      chan struct{}
	closed      chan struct{}
	closeOnce   sync.Once
}

func newWsConn(c *websocket.Conn, roomCode, roomID string, p *domain.Participant) *wsConn {
	return &wsConn{
		conn:        c,
		roomCode:    roomCode,
		roomID:      roomID,
		participant: p,
		sendMu:      make(chan struct{}, 1),
		closed:      make(chan struct{}),
	}
}

func (c *wsConn) Send(payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.SendRaw(data)
}

// SendRaw writes one frame; writers are serialized. A closed connection is
// skipped, not an error worth surfacing.
func (c *wsConn) SendRaw(data []byte) error {
	select {
	case <-c.closed:
		return errConnClosed
	default:
	}

	c.sendMu <- struct{}{}
	defer func() { <-c.sendMu }()
	c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))

	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return c.conn.Close()
}

func (c *wsConn) RoomCode() string { return c.roomCode }
