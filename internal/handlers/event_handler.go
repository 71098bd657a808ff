package handlers

import (
	"net/http"

	"dj-requests/internal/services"
	"dj-requests/models"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type EventHandler struct {
	events *services.EventService
}

func NewEventHandler(events *services.EventService) *EventHandler {
	return &EventHandler{events: events}
}

// GetMyEvent returns the host's own event.
func (h *EventHandler) GetMyEvent(e *core.RequestEvent) error {
	userID, err := hostID(e)
	if err != nil {
		return err
	}

	ev, err := h.events.GetEvent(e.Request.Context(), userID)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, services.NewEventView(ev))
}

// StartEvent creates the host's event. The PIN is only ever returned here.
func (h *EventHandler) StartEvent(e *core.RequestEvent) error {
	userID, err := hostID(e)
	if err != nil {
		return err
	}

	ev, pin, err := h.events.StartEvent(e.Request.Context(), userID)
	if err != nil {
		return apiError(err)
	}

	resp := map[string]any{"event": services.NewEventView(ev)}
	if pin != "" {
		resp["pin"] = pin
	}
	return e.JSON(http.StatusOK, resp)
}

func (h *EventHandler) UpdateStatus(e *core.RequestEvent) error {
	userID, err := hostID(e)
	if err != nil {
		return err
	}

	var req struct {
		Status       models.EventStatus   `json:"status"`
		PagesEnabled *models.PagesEnabled `json:"pages_enabled"`
		Config       *models.EventConfig  `json:"config"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	ev, err := h.events.UpdateStatus(e.Request.Context(), userID, services.StateChange{
		Status:       req.Status,
		PagesEnabled: req.PagesEnabled,
		Config:       req.Config,
	})
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, services.NewEventView(ev))
}

func (h *EventHandler) SetPin(e *core.RequestEvent) error {
	userID, err := hostID(e)
	if err != nil {
		return err
	}

	var req struct {
		Pin string `json:"pin"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	if err := h.events.SetPin(e.Request.Context(), userID, req.Pin); err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, map[string]any{"message": "PIN updated"})
}

// GetParty is the public view guests and display screens poll on load.
func (h *EventHandler) GetParty(e *core.RequestEvent) error {
	ev, err := h.events.GetEvent(e.Request.Context(), e.Request.PathValue("userId"))
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, services.NewEventView(ev))
}
