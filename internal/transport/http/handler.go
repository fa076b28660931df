package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/crisis-lab/sim-service/internal/domain"
	"github.com/crisis-lab/sim-service/internal/postgres"
	"github.com/crisis-lab/sim-service/internal/transport/ws"

	"github.com/go-chi/chi/v5"
)

type RoomSvc interface {
	GetRoomByCode(ctx context.Context, code string) (*domain.Room, error)
	ListRooms(ctx context.Context, limit int, cursor string) ([]domain.Room, string, error)
}

type ChatSvc interface {
	History(ctx context.Context, roomID, after string, limit int) ([]domain.ChatMessage, string, error)
}

type EventSvc interface {
	Create(ctx context.Context, roomID, title, description string, severity int, auto bool) (*domain.CrisisEvent, error)
	History(ctx context.Context, roomID, after string, limit int) ([]domain.CrisisEvent, string, error)
}

type Bus interface {
	Publish(roomCode string, payload any) error
}

type Handler struct {
	roomSvc  RoomSvc
	chatSvc  ChatSvc
	eventSvc EventSvc
	bus      Bus
}

func NewHandler(room RoomSvc, chat ChatSvc, event EventSvc, bus Bus) *Handler {
	return &Handler{
		roomSvc:  room,
		chatSvc:  chat,
		eventSvc: event,
		bus:      bus,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func queryLimit(r *http.Request, def int) int {
	limit := def
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			limit = n
		}
	}
	return limit
}

// GET /admin/rooms?limit=&cursor=
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	cursor := r.URL.Query().Get("cursor")

	rooms, next, err := h.roomSvc.ListRooms(r.Context(), queryLimit(r, 20), cursor)
	if err != nil {
		if errors.Is(err, postgres.ErrInvalidCursor) {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid_cursor"})
			return
		}
		slog.Error("handler.ListRooms:", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	resp := RoomsListResponse{Items: make([]RoomItem, 0, len(rooms)), NextCursor: next}
	for _, rm := range rooms {
		resp.Items = append(resp.Items, RoomItem{
			ID:        rm.ID,
			Code:      rm.Code,
			CreatedAt: rm.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// POST /rooms/{code}/events
//
// Injects one crisis event into a room. The event reaches connected clients
// exactly like a socket dispatch: persisted first, then pushed through the
// bus.
func (h *Handler) InjectEvent(w http.ResponseWriter, r *http.Request) {
	var req InjectEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "missing title"})
		return
	}

	room, err := h.roomSvc.GetRoomByCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "room not found"})
			return
		}
		slog.Error("handler.InjectEvent:", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	ev, err := h.eventSvc.Create(r.Context(), room.ID, req.Title, req.Description, req.Severity, false)
	if err != nil {
		slog.Error("handler.InjectEvent:", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	if err := h.bus.Publish(room.Code, ws.EventFrame{
		Type:        ws.TypeEvent,
		ID:          ev.ID,
		Title:       ev.Title,
		Description: ev.Description,
		Severity:    ev.Severity,
	}); err != nil {
		slog.Warn("handler.InjectEvent: broadcast failed", slog.Any("err", err))
	}

	writeJSON(w, http.StatusOK, InjectEventResponse{OK: true, ID: ev.ID})
}

// GET /rooms/{code}/chat?after=&limit=
func (h *Handler) GetChatHistory(w http.ResponseWriter, r *http.Request) {
	room, err := h.roomSvc.GetRoomByCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "room not found"})
			return
		}
		slog.Error("handler.GetChatHistory:", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	items, next, err := h.chatSvc.History(r.Context(), room.ID, r.URL.Query().Get("after"), queryLimit(r, 50))
	if err != nil {
		slog.Error("handler.GetChatHistory:", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	resp := ChatHistoryResponse{Items: make([]ChatMessageItem, 0, len(items)), NextCursor: next}
	for _, m := range items {
		resp.Items = append(resp.Items, ChatMessageItem{
			ID:        m.ID,
			Sender:    m.Sender,
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// GET /rooms/{code}/events?after=&limit=
func (h *Handler) GetEventHistory(w http.ResponseWriter, r *http.Request) {
	room, err := h.roomSvc.GetRoomByCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "room not found"})
			return
		}
		slog.Error("handler.GetEventHistory:", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	items, next, err := h.eventSvc.History(r.Context(), room.ID, r.URL.Query().Get("after"), queryLimit(r, 50))
	if err != nil {
		slog.Error("handler.GetEventHistory:", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	resp := EventsHistoryResponse{Items: make([]EventItem, 0, len(items)), NextCursor: next}
	for _, ev := range items {
		resp.Items = append(resp.Items, EventItem{
			ID:          ev.ID,
			Title:       ev.Title,
			Description: ev.Description,
			Severity:    ev.Severity,
			Auto:        ev.Auto,
			CreatedAt:   ev.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
