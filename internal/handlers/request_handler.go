package handlers

import (
	"net/http"
	"strconv"

	"dj-requests/internal/services"
	"dj-requests/models"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

const maxListLimit = 200

type RequestHandler struct {
	requests *services.RequestService
}

func NewRequestHandler(requests *services.RequestService) *RequestHandler {
	return &RequestHandler{requests: requests}
}

// Submit is the guest endpoint; the party is addressed by its host's id.
func (h *RequestHandler) Submit(e *core.RequestEvent) error {
	var in services.SubmitRequestInput
	if err := e.BindBody(&in); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	req, err := h.requests.Submit(e.Request.Context(), e.Request.PathValue("userId"), in)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusCreated, req)
}

func (h *RequestHandler) List(e *core.RequestEvent) error {
	userID, err := hostID(e)
	if err != nil {
		return err
	}

	q := e.Request.URL.Query()
	st := models.RequestStatus(q.Get("status"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	requests, err := h.requests.List(e.Request.Context(), userID, st, limit, offset)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, map[string]any{"items": requests})
}

// RandomPick draws one of the posted candidates as an approved request.
func (h *RequestHandler) RandomPick(e *core.RequestEvent) error {
	userID, err := hostID(e)
	if err != nil {
		return err
	}

	var in services.RandomPickInput
	if err := e.BindBody(&in); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	req, err := h.requests.RandomPick(e.Request.Context(), userID, in)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusCreated, req)
}

func (h *RequestHandler) Approve(e *core.RequestEvent) error {
	userID, err := hostID(e)
	if err != nil {
		return err
	}

	req, err := h.requests.Approve(e.Request.Context(), userID, e.Request.PathValue("requestId"))
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, req)
}

func (h *RequestHandler) Reject(e *core.RequestEvent) error {
	userID, err := hostID(e)
	if err != nil {
		return err
	}

	req, err := h.requests.Reject(e.Request.Context(), userID, e.Request.PathValue("requestId"))
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, req)
}
