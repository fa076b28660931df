package ws_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/crisis-lab/sim-service/internal/bus"
	"github.com/crisis-lab/sim-service/internal/domain"
	"github.com/crisis-lab/sim-service/internal/scheduler"
	"github.com/crisis-lab/sim-service/internal/transport/ws"
)

// memStores backs every service interface the socket server needs, in memory.
type memStores struct {
	mu           sync.Mutex
	nextID       int
	rooms        map[string]*domain.Room
	participants []domain.Participant
	messages     []domain.ChatMessage
	events       []domain.CrisisEvent
}

func newMemStores() *memStores {
	return &memStores{rooms: map[string]*domain.Room{}}
}

func (m *memStores) id(prefix string) string {
	m.nextID++
	return fmt.Sprintf("%s-%d", prefix, m.nextID)
}

func (m *memStores) EnsureRoom(_ context.Context, code string) (*domain.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if code == "" {
		return nil, domain.ErrEmptyCode
	}
	if r, ok := m.rooms[code]; ok {
		return r, nil
	}
	r := &domain.Room{ID: m.id("room"), Code: code, CreatedAt: time.Now()}
	m.rooms[code] = r
	return r, nil
}

func (m *memStores) Register(_ context.Context, roomID, name string, role domain.Role) (*domain.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := domain.Participant{ID: m.id("p"), RoomID: roomID, Name: name, Role: role, JoinedAt: time.Now()}
	m.participants = append(m.participants, p)
	return &p, nil
}

func (m *memStores) Save(_ context.Context, roomID, sender, content string) (*domain.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, domain.ErrEmptyMessage
	}
	msg := domain.ChatMessage{ID: m.id("m"), RoomID: roomID, Sender: sender, Content: content, Type: domain.MessageTypeText, CreatedAt: time.Now()}
	m.messages = append(m.messages, msg)
	return &msg, nil
}

func (m *memStores) Create(_ context.Context, roomID, title, description string, severity int, auto bool) (*domain.CrisisEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, domain.ErrEmptyTitle
	}
	if severity < 1 || severity > 3 {
		severity = 1
	}
	ev := domain.CrisisEvent{ID: m.id("ev"), RoomID: roomID, Title: title, Description: description, Severity: severity, Auto: auto, CreatedAt: time.Now()}
	m.events = append(m.events, ev)
	return &ev, nil
}

func (m *memStores) roomCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms)
}

func (m *memStores) participantCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.participants)
}

func (m *memStores) eventCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func (m *memStores) lastEvent() domain.CrisisEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events[len(m.events)-1]
}

type recordSched struct {
	mu     sync.Mutex
	starts map[string]int
	stops  map[string]int
}

func newRecordSched() *recordSched {
	return &recordSched{starts: map[string]int{}, stops: map[string]int{}}
}

func (s *recordSched) Start(roomCode, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts[roomCode]++
}

func (s *recordSched) Stop(roomCode string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops[roomCode]++
}

func (s *recordSched) stopCount(roomCode string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops[roomCode]
}

func newTestServer(t *testing.T, adminSecret string) (*httptest.Server, *memStores, *recordSched) {
	t.Helper()
	hub := ws.NewHub()
	stores := newMemStores()
	sched := newRecordSched()
	srv := ws.NewServer(hub, stores, stores, stores, stores, bus.NewLocalBus(hub), sched, adminSecret)
	ts := httptest.NewServer(http.HandlerFunc(srv.HandleWS))
	t.Cleanup(ts.Close)
	return ts, stores, sched
}

func dial(t *testing.T, ts *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(ts.URL, "http") + "?" + query
	c, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", query, err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func readFrame(t *testing.T, c *websocket.Conn) map[string]any {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("frame is not JSON: %v (%s)", err, data)
	}
	return m
}

func expectType(t *testing.T, c *websocket.Conn, want string) map[string]any {
	t.Helper()
	f := readFrame(t, c)
	if f["type"] != want {
		t.Fatalf("expected %s frame, got %v", want, f)
	}
	return f
}

func TestAdmission_MissingRoomRejected(t *testing.T) {
	ts, stores, _ := newTestServer(t, "")

	c := dial(t, ts, "name=Alice")
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := c.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("expected close 1008, got %v", err)
	}

	if stores.roomCount() != 0 || stores.participantCount() != 0 {
		t.Fatal("rejected admission must leave no room or participant behind")
	}
}

func TestAdmission_WelcomeIsPrivateAndFirst(t *testing.T) {
	ts, _, _ := newTestServer(t, "")

	alice := dial(t, ts, "room=ALPHA&name=Alice")
	w := expectType(t, alice, "WELCOME")
	if w["roomCode"] != "alpha" {
		t.Fatalf("room code should be normalized, got %v", w["roomCode"])
	}
	if w["participantId"] == "" || w["participantId"] == nil {
		t.Fatalf("welcome carries no participant id: %v", w)
	}
	j := expectType(t, alice, "SYSTEM")
	if j["message"] != "Alice joined the room." {
		t.Fatalf("join notice: %v", j)
	}

	bob := dial(t, ts, "room=alpha&name=Bob")
	bw := expectType(t, bob, "WELCOME")
	if bw["participantId"] == w["participantId"] {
		t.Fatal("participants must get distinct ids")
	}
	expectType(t, bob, "SYSTEM")

	// alice sees bob's join notice only, never his welcome
	aj := expectType(t, alice, "SYSTEM")
	if aj["message"] != "Bob joined the room." {
		t.Fatalf("join notice for bob: %v", aj)
	}
}

func TestChat_RoundTripAndRoomIsolation(t *testing.T) {
	ts, _, _ := newTestServer(t, "")

	alice := dial(t, ts, "room=alpha&name=Alice")
	expectType(t, alice, "WELCOME")
	expectType(t, alice, "SYSTEM")
	bob := dial(t, ts, "room=alpha&name=Bob")
	expectType(t, bob, "WELCOME")
	expectType(t, bob, "SYSTEM")
	expectType(t, alice, "SYSTEM")

	carol := dial(t, ts, "room=bravo&name=Carol")
	expectType(t, carol, "WELCOME")
	expectType(t, carol, "SYSTEM")

	if err := alice.WriteJSON(map[string]any{"type": "CHAT", "content": "hello"}); err != nil {
		t.Fatalf("write chat: %v", err)
	}

	for _, c := range []*websocket.Conn{alice, bob} {
		f := expectType(t, c, "CHAT")
		if f["sender"] != "Alice" || f["content"] != "hello" {
			t.Fatalf("chat frame: %v", f)
		}
		if f["id"] == "" || f["id"] == nil {
			t.Fatalf("chat frame has no persisted id: %v", f)
		}
	}

	// carol is in another room and must hear nothing
	_ = carol.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, _, err := carol.ReadMessage(); err == nil {
		t.Fatal("chat leaked across rooms")
	}
}

func TestEventDispatch_RoleGate(t *testing.T) {
	ts, stores, _ := newTestServer(t, "s3cr3t")

	user := dial(t, ts, "room=alpha&name=Eve")
	expectType(t, user, "WELCOME")
	expectType(t, user, "SYSTEM")
	admin := dial(t, ts, "room=alpha&name=Fay&admin=s3cr3t")
	expectType(t, admin, "WELCOME")
	expectType(t, admin, "SYSTEM")
	expectType(t, user, "SYSTEM")

	// a plain participant's dispatch is silently dropped
	if err := user.WriteJSON(map[string]any{"type": "EVENT_DISPATCH", "title": "Intrusion"}); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		if stores.eventCount() != 0 {
			t.Fatal("non-admin dispatch reached the store")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// the admin's goes through; it is the next frame everyone sees
	if err := admin.WriteJSON(map[string]any{"type": "EVENT_DISPATCH", "title": "Fire drill", "severity": 2}); err != nil {
		t.Fatal(err)
	}
	for _, c := range []*websocket.Conn{user, admin} {
		f := expectType(t, c, "EVENT")
		if f["title"] != "Fire drill" || f["severity"] != float64(2) {
			t.Fatalf("event frame: %v", f)
		}
		if _, ok := f["auto"]; ok {
			t.Fatalf("manual event must not be flagged auto: %v", f)
		}
	}
	if stores.eventCount() != 1 {
		t.Fatalf("expected exactly one event, got %d", stores.eventCount())
	}
	if ev := stores.lastEvent(); ev.Auto {
		t.Fatal("manual event persisted as auto")
	}
}

// slowDepartureBus stretches the window between a session's hub removal and
// its scheduler stop by delaying the departure notice.
type slowDepartureBus struct {
	inner ws.Bus
}

func (b *slowDepartureBus) Publish(roomCode string, payload any) error {
	if f, ok := payload.(ws.SystemFrame); ok && strings.Contains(f.Message, "left") {
		time.Sleep(250 * time.Millisecond)
	}
	return b.inner.Publish(roomCode, payload)
}

func TestJoinDuringTeardown_KeepsScheduler(t *testing.T) {
	hub := ws.NewHub()
	stores := newMemStores()
	sched := scheduler.New(stores, bus.NewLocalBus(hub), hub, time.Hour, time.Hour, 1)
	defer sched.StopAll()
	srv := ws.NewServer(hub, stores, stores, stores, stores, &slowDepartureBus{inner: bus.NewLocalBus(hub)}, sched, "")
	ts := httptest.NewServer(http.HandlerFunc(srv.HandleWS))
	t.Cleanup(ts.Close)

	alice := dial(t, ts, "room=alpha&name=Alice")
	expectType(t, alice, "WELCOME")
	expectType(t, alice, "SYSTEM")
	if !sched.Running("alpha") {
		t.Fatal("scheduler should run after the first join")
	}

	// alice's teardown is now stuck in the delayed departure notice;
	// bob joins inside that window
	_ = alice.Close()
	time.Sleep(50 * time.Millisecond)
	bob := dial(t, ts, "room=alpha&name=Bob")
	expectType(t, bob, "WELCOME")

	// teardown finishes; the room is occupied and must keep its loop
	time.Sleep(400 * time.Millisecond)
	if !sched.Running("alpha") {
		t.Fatal("occupied room lost its scheduler to a stale teardown")
	}
}

func TestDisconnect_DepartureNoticeAndSchedulerStop(t *testing.T) {
	ts, _, sched := newTestServer(t, "")

	alice := dial(t, ts, "room=alpha&name=Alice")
	expectType(t, alice, "WELCOME")
	expectType(t, alice, "SYSTEM")
	bob := dial(t, ts, "room=alpha&name=Bob")
	expectType(t, bob, "WELCOME")
	expectType(t, bob, "SYSTEM")
	expectType(t, alice, "SYSTEM")

	_ = bob.Close()
	f := expectType(t, alice, "SYSTEM")
	if f["message"] != "Bob left the room." {
		t.Fatalf("departure notice: %v", f)
	}
	if sched.stopCount("alpha") != 0 {
		t.Fatal("scheduler stopped while the room was still occupied")
	}

	_ = alice.Close()
	deadline := time.Now().Add(2 * time.Second)
	for sched.stopCount("alpha") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("scheduler never stopped after the last disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if n := sched.stopCount("alpha"); n != 1 {
		t.Fatalf("expected one stop, got %d", n)
	}
}
