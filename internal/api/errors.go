package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/onlinex/onlinex/internal/database"
	"github.com/onlinex/onlinex/internal/rooms"
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

func NewBadRequestError(message string) *ApiError {
	if message == "" {
		message = lower(http.StatusText(http.StatusBadRequest))
	}
	return &ApiError{
		StatusCode: http.StatusBadRequest,
		Message:    message,
	}
}

func NewNotFoundError(message string) *ApiError {
	if message == "" {
		message = lower(http.StatusText(http.StatusNotFound))
	}
	return &ApiError{
		StatusCode: http.StatusNotFound,
		Message:    message,
	}
}

func NewForbiddenError(message string) *ApiError {
	if message == "" {
		message = lower(http.StatusText(http.StatusForbidden))
	}
	return &ApiError{
		StatusCode: http.StatusForbidden,
		Message:    message,
	}
}

func NewGoneError(message string) *ApiError {
	if message == "" {
		message = lower(http.StatusText(http.StatusGone))
	}
	return &ApiError{
		StatusCode: http.StatusGone,
		Message:    message,
	}
}

func NewUnauthorizedError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusUnauthorized,
		Message:    lower(http.StatusText(http.StatusUnauthorized)),
	}
}

func NewInternalServerError(err error) *ApiError {
	return &ApiError{
		StatusCode: http.StatusInternalServerError,
		Message:    lower(http.StatusText(http.StatusInternalServerError)),
		Err:        err,
	}
}

// roomError maps the membership state machine's sentinels to the status codes
// external callers depend on.
func roomError(err error) *ApiError {
	switch {
	case errors.Is(err, database.ErrRoomNotFound):
		return NewNotFoundError("Room not found")
	case errors.Is(err, database.ErrRoomClosed):
		return NewForbiddenError("Room is closed or expired")
	case errors.Is(err, database.ErrRoomFull):
		return NewForbiddenError("Room is full")
	case errors.Is(err, database.ErrAlreadyMember):
		return NewBadRequestError("Already a member of this room")
	case errors.Is(err, database.ErrAlreadyElsewhere):
		return NewBadRequestError("Already active in another room")
	case errors.Is(err, database.ErrNotAMember):
		return NewBadRequestError("Not a member of this room")
	case errors.Is(err, rooms.ErrAboutToExpire):
		return NewGoneError("Room is about to expire")
	default:
		return NewInternalServerError(err)
	}
}
