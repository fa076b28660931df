package http

import "time"

type ErrorResponse struct {
	Error string `json:"error"`
}

type RoomItem struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"created_at"`
}

type RoomsListResponse struct {
	Items      []RoomItem `json:"items"`
	NextCursor string     `json:"next_cursor,omitempty"`
}

type InjectEventRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Severity    int    `json:"severity"`
}

type InjectEventResponse struct {
	OK bool   `json:"ok"`
	ID string `json:"id"`
}

type ChatMessageItem struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type ChatHistoryResponse struct {
	Items      []ChatMessageItem `json:"items"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

type EventItem struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Severity    int       `json:"severity"`
	Auto        bool      `json:"auto"`
	CreatedAt   time.Time `json:"created_at"`
}

type EventsHistoryResponse struct {
	Items      []EventItem `json:"items"`
	NextCursor string      `json:"next_cursor,omitempty"`
}
