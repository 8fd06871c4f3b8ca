package domain

import "errors"

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrRoomFull        = errors.New("room is full")
	ErrNotInRoom       = errors.New("user not in the room")
	ErrNotWaiting      = errors.New("user is not waiting for admission")
	ErrUnauthorized    = errors.New("action requires host role")
	ErrFeatureDisabled = errors.New("feature disabled for this session")
	ErrManagerClosed   = errors.New("session manager closed")
	ErrInvalidMessage  = errors.New("invalid message")
	ErrUserNotFound    = errors.New("user not found")
)
