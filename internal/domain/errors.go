package domain

import "errors"

var (
	ErrRoomNotFound   = errors.New("room not found")
	ErrEmptyCode      = errors.New("room code is required")
	ErrEmptyMessage   = errors.New("empty message")
	ErrMessageTooLong = errors.New("message too long")
	ErrEmptyTitle     = errors.New("event title is required")
)
