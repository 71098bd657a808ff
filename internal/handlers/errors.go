package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"dj-requests/internal/status"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/router"
)

// apiError maps service errors onto PocketBase API errors.
func apiError(err error) error {
	var terr *status.TransitionError
	switch {
	case errors.As(err, &terr):
		// Built directly: NewApiError would sentenize the reason.
		return &router.ApiError{
			Status:  http.StatusBadRequest,
			Message: terr.Reason,
			Data:    map[string]any{"reason": terr.Reason},
		}
	case errors.Is(err, status.ErrEventNotFound),
		errors.Is(err, status.ErrRequestNotFound):
		return apis.NewNotFoundError(err.Error(), nil)
	case errors.Is(err, status.ErrInvalidPin),
		errors.Is(err, status.ErrRequestsClosed):
		return apis.NewForbiddenError(err.Error(), nil)
	case errors.Is(err, status.ErrRequestLimit):
		return apis.NewTooManyRequestsError(err.Error(), nil)
	case errors.Is(err, status.ErrRequestNotActive):
		return apis.NewApiError(http.StatusConflict, err.Error(), nil)
	case errors.Is(err, status.ErrInvalidStatus),
		errors.Is(err, status.ErrInvalidRequest),
		errors.Is(err, status.ErrInvalidInterval),
		errors.Is(err, status.ErrNoCandidates),
		errors.Is(err, status.ErrInvalidCommand),
		errors.Is(err, status.ErrNotConnected):
		return apis.NewBadRequestError(err.Error(), nil)
	}

	slog.Error("Unhandled API error", "error", err)
	return apis.NewApiError(http.StatusInternalServerError, "Something went wrong", nil)
}

// hostID returns the authenticated host; the host's user id doubles as the
// tenant id.
func hostID(e *core.RequestEvent) (string, error) {
	if e.Auth == nil {
		return "", apis.NewUnauthorizedError("Unauthorized", nil)
	}
	return e.Auth.Id, nil
}
