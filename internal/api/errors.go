package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sitechat/sitechat/internal/chat"
)

type ApiError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Err        error  `json:"-"`
}

func (e *ApiError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}

	return e.Message
}

func (e *ApiError) Unwrap() error {
	return e.Err
}

func lower(s string) string {
	return strings.ToLower(s)
}

func NewBadRequestError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusBadRequest,
		Message:    lower(http.StatusText(http.StatusBadRequest)),
	}
}

func NewNotFoundError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusNotFound,
		Message:    lower(http.StatusText(http.StatusNotFound)),
	}
}

func NewInternalServerError(err error) *ApiError {
	return &ApiError{
		StatusCode: http.StatusInternalServerError,
		Message:    lower(http.StatusText(http.StatusInternalServerError)),
		Err:        err,
	}
}

func NewUnauthorizedError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusUnauthorized,
		Message:    lower(http.StatusText(http.StatusUnauthorized)),
	}
}

func NewForbiddenError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusForbidden,
		Message:    lower(http.StatusText(http.StatusForbidden)),
	}
}

func NewMethodNotAllowedError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusMethodNotAllowed,
		Message:    lower(http.StatusText(http.StatusMethodNotAllowed)),
	}
}

// NewChatError maps a chat service error onto an HTTP response. Validation
// failures carry the service's message so the client can show it.
func NewChatError(err error) *ApiError {
	switch {
	case errors.Is(err, chat.ErrRoomNotFound), errors.Is(err, chat.ErrUserNotFound):
		return &ApiError{StatusCode: http.StatusNotFound, Message: err.Error(), Err: err}
	case errors.Is(err, chat.ErrNotParticipant):
		return &ApiError{StatusCode: http.StatusForbidden, Message: err.Error(), Err: err}
	case errors.Is(err, chat.ErrSelfTarget),
		errors.Is(err, chat.ErrPrivateRoomRename),
		errors.Is(err, chat.ErrEmptyRoomName),
		errors.Is(err, chat.ErrNoUsersToAdd),
		errors.Is(err, chat.ErrEmptyMessage),
		errors.Is(err, chat.ErrFileTooLarge),
		errors.Is(err, chat.ErrFileType),
		errors.Is(err, chat.ErrUnsupportedKind):
		return &ApiError{StatusCode: http.StatusBadRequest, Message: err.Error(), Err: err}
	default:
		return NewInternalServerError(err)
	}
}
