package handlers

import (
	"crypto/subtle"
	"net/http"
	"time"

	"dj-requests/internal/services"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

const watcherTokenHeader = "X-Watcher-Token"

// WatcherHandler is the operational surface of the playback watcher. Callers
// must be a superuser or present the control token.
type WatcherHandler struct {
	watcher       *services.WatcherService
	controlToken  string
	interval      time.Duration
	queueInterval time.Duration
}

func NewWatcherHandler(watcher *services.WatcherService, controlToken string, interval, queueInterval time.Duration) *WatcherHandler {
	return &WatcherHandler{
		watcher:       watcher,
		controlToken:  controlToken,
		interval:      interval,
		queueInterval: queueInterval,
	}
}

func (h *WatcherHandler) authorize(e *core.RequestEvent) error {
	if e.HasSuperuserAuth() {
		return nil
	}
	token := e.Request.Header.Get(watcherTokenHeader)
	if h.controlToken != "" && subtle.ConstantTimeCompare([]byte(token), []byte(h.controlToken)) == 1 {
		return nil
	}
	return apis.NewUnauthorizedError("Watcher control requires a superuser or control token", nil)
}

func (h *WatcherHandler) Start(e *core.RequestEvent) error {
	if err := h.authorize(e); err != nil {
		return err
	}

	var req struct {
		IntervalMs      int64 `json:"interval_ms"`
		QueueIntervalMs int64 `json:"queue_interval_ms"`
	}
	if e.Request.ContentLength > 0 {
		if err := e.BindBody(&req); err != nil {
			return apis.NewBadRequestError("Invalid request", err)
		}
	}

	interval := h.interval
	if req.IntervalMs > 0 {
		interval = time.Duration(req.IntervalMs) * time.Millisecond
	}
	queueInterval := h.queueInterval
	if req.QueueIntervalMs > 0 {
		queueInterval = time.Duration(req.QueueIntervalMs) * time.Millisecond
	}

	if err := h.watcher.Start(interval, queueInterval); err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, h.watcher.Status())
}

func (h *WatcherHandler) Stop(e *core.RequestEvent) error {
	if err := h.authorize(e); err != nil {
		return err
	}

	stopped := h.watcher.Stop()
	return e.JSON(http.StatusOK, map[string]any{
		"stopped": stopped,
		"status":  h.watcher.Status(),
	})
}

func (h *WatcherHandler) Status(e *core.RequestEvent) error {
	if err := h.authorize(e); err != nil {
		return err
	}
	return e.JSON(http.StatusOK, h.watcher.Status())
}
