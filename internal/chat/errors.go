package chat

import "errors"

// The room service recovers every failure into one of these stable errors so
// callers can distinguish "you're not in this room" from "this room doesn't
// exist" from "invalid file". Anything else is surfaced opaquely.
var (
	ErrRoomNotFound      = errors.New("room not found")
	ErrUserNotFound      = errors.New("user not found")
	ErrNotParticipant    = errors.New("not an active participant of this room")
	ErrSelfTarget        = errors.New("cannot start a chat with yourself")
	ErrPrivateRoomRename = errors.New("private rooms cannot be renamed")
	ErrEmptyRoomName     = errors.New("room name cannot be empty")
	ErrNoUsersToAdd      = errors.New("no users to add")
	ErrEmptyMessage      = errors.New("message content is empty")
	ErrFileTooLarge      = errors.New("file exceeds the maximum allowed size")
	ErrFileType          = errors.New("file type is not allowed")
	ErrUnsupportedKind   = errors.New("unsupported message kind")
)
