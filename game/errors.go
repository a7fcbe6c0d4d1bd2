package game

import "errors"

var (
	ErrRoomNotFound   = errors.New("room-not-found")
	ErrRoomFull       = errors.New("room-full")
	ErrNotCreator     = errors.New("not-creator")
	ErrMemberNotFound = errors.New("member-not-found")
)

var ErrSendBufferFull = errors.New("send-buffer-full")
