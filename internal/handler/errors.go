package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/stemsi/exstem-runtime/internal/backend"
	"github.com/stemsi/exstem-runtime/internal/response"
	"github.com/stemsi/exstem-runtime/internal/service"
	"github.com/stemsi/exstem-runtime/internal/session"
)

var errorCodes = []struct {
	err    error
	status int
	code   response.ErrCode
}{
	{session.ErrInvalidAnswer, http.StatusBadRequest, response.ErrInvalidAnswer},
	{session.ErrInvalidPosition, http.StatusBadRequest, response.ErrInvalidPosition},
	{session.ErrInvalidDialog, http.StatusBadRequest, response.ErrInvalidDialog},
	{session.ErrInvalidMode, http.StatusBadRequest, response.ErrInvalidMode},
	{session.ErrUnknownItem, http.StatusNotFound, response.ErrUnknownItem},
	{session.ErrUnknownAction, http.StatusNotFound, response.ErrUnknownAction},
	{session.ErrNotExercise, http.StatusConflict, response.ErrNotExercise},
	{session.ErrStepLocked, http.StatusConflict, response.ErrStepLocked},
	{session.ErrEmptyPool, http.StatusUnprocessableEntity, response.ErrEmptyPool},
	{session.ErrSubmissionInFlight, http.StatusConflict, response.ErrSubmissionInFlight},
	{session.ErrAlreadySubmitted, http.StatusConflict, response.ErrAlreadySubmitted},
	{session.ErrSessionClosed, http.StatusConflict, response.ErrSessionClosed},
	{service.ErrSessionActive, http.StatusConflict, response.ErrSessionActive},
	{service.ErrSessionNotFound, http.StatusNotFound, response.ErrSessionNotFound},
	{service.ErrShuttingDown, http.StatusServiceUnavailable, response.ErrSessionClosed},
	{backend.ErrNotFound, http.StatusNotFound, response.ErrExamNotFound},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, response.ErrBackendUnavailable},
}

// errorCode maps a domain error to an HTTP status and API code.
func errorCode(err error) (int, response.ErrCode) {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.status, e.code
		}
	}
	var se *backend.StatusError
	if errors.As(err, &se) {
		return http.StatusBadGateway, response.ErrBackendUnavailable
	}
	return http.StatusInternalServerError, response.ErrInternal
}
