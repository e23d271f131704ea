package room

import "errors"

var (
	ErrRoomNotFound             = errors.New("room not found")
	ErrParticipantNotFound      = errors.New("participant not found")
	ErrParticipantAlreadyExists = errors.New("participant already exists")
	ErrVideoNotFound            = errors.New("video not found")
	ErrVideoAlreadyExists       = errors.New("video already exists")
)
