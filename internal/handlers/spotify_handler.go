package handlers

import (
	"context"
	"net/http"

	"dj-requests/internal/spotify"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

// PlayerController sends host commands to the tenant's active Spotify device.
type PlayerController interface {
	Control(ctx context.Context, tenantID string, action spotify.PlayerAction) error
	AddToQueue(ctx context.Context, tenantID, trackURI string) error
}

type SpotifyHandler struct {
	spotify *spotify.Client
	player  PlayerController
}

func NewSpotifyHandler(client *spotify.Client) *SpotifyHandler {
	return &SpotifyHandler{spotify: client, player: client}
}

// Connect returns the consent URL the host's browser should open.
func (h *SpotifyHandler) Connect(e *core.RequestEvent) error {
	userID, err := hostID(e)
	if err != nil {
		return err
	}

	url, err := h.spotify.BeginAuth(e.Request.Context(), userID)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, map[string]string{"url": url})
}

// Callback is hit by Spotify after consent. The state parameter identifies
// the host, so no session is needed here.
func (h *SpotifyHandler) Callback(e *core.RequestEvent) error {
	q := e.Request.URL.Query()
	if errMsg := q.Get("error"); errMsg != "" {
		return apis.NewBadRequestError("Spotify authorization was declined", map[string]string{"error": errMsg})
	}

	state, code := q.Get("state"), q.Get("code")
	if state == "" || code == "" {
		return apis.NewBadRequestError("Missing state or code", nil)
	}

	userID, err := h.spotify.CompleteAuth(e.Request.Context(), state, code)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, map[string]any{"connected": true, "user_id": userID})
}

func (h *SpotifyHandler) Disconnect(e *core.RequestEvent) error {
	userID, err := hostID(e)
	if err != nil {
		return err
	}

	if err := h.spotify.Disconnect(e.Request.Context(), userID); err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, map[string]any{"connected": false})
}

func (h *SpotifyHandler) Status(e *core.RequestEvent) error {
	userID, err := hostID(e)
	if err != nil {
		return err
	}

	connected, err := h.spotify.IsConnected(e.Request.Context(), userID)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, map[string]any{"connected": connected})
}

// Player handles play, pause and next for the host's device.
func (h *SpotifyHandler) Player(e *core.RequestEvent) error {
	userID, err := hostID(e)
	if err != nil {
		return err
	}

	action := spotify.PlayerAction(e.Request.PathValue("action"))
	if err := h.player.Control(e.Request.Context(), userID, action); err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, map[string]any{"action": action})
}

func (h *SpotifyHandler) Queue(e *core.RequestEvent) error {
	userID, err := hostID(e)
	if err != nil {
		return err
	}

	var body struct {
		TrackURI string `json:"track_uri"`
	}
	if err := e.BindBody(&body); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	if err := h.player.AddToQueue(e.Request.Context(), userID, body.TrackURI); err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusAccepted, map[string]any{"queued": body.TrackURI})
}
