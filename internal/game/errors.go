package game

import "errors"

var (
	ErrRoomNotFound           = errors.New("room not found")
	ErrRoomNotJoinable        = errors.New("room not joinable")
	ErrRoomFull               = errors.New("room full")
	ErrDuplicateCode          = errors.New("room code already in use")
	ErrInvalidRequiredPlayers = errors.New("required players out of range")
	ErrInvalidNickname        = errors.New("nickname must not be empty")
	ErrNotInRoom              = errors.New("connection is not a player in this room")
)
