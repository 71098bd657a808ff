package spotify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"dj-requests/internal/status"
	"dj-requests/models"
	"dj-requests/utils"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
)

// Client is the watcher's view of Spotify: one API client per call, built
// from the tenant's stored credentials.
type Client struct {
	auth    *spotifyauth.Authenticator
	tokens  *TokenStore
	options []spotify.ClientOption
}

func NewAuthenticator(clientID, clientSecret, redirectURL string) *spotifyauth.Authenticator {
	return spotifyauth.New(
		spotifyauth.WithClientID(clientID),
		spotifyauth.WithClientSecret(clientSecret),
		spotifyauth.WithRedirectURL(redirectURL),
		spotifyauth.WithScopes(
			spotifyauth.ScopeUserReadPlaybackState,
			spotifyauth.ScopeUserModifyPlaybackState,
			spotifyauth.ScopeUserReadCurrentlyPlaying,
		),
	)
}

func NewClient(auth *spotifyauth.Authenticator, tokens *TokenStore, opts ...spotify.ClientOption) *Client {
	return &Client{auth: auth, tokens: tokens, options: opts}
}

// BeginAuth starts an OAuth flow for tenantID and returns the consent URL.
func (c *Client) BeginAuth(ctx context.Context, tenantID string) (string, error) {
	state, err := utils.GenerateState(16)
	if err != nil {
		return "", fmt.Errorf("generate oauth state: %w", err)
	}
	if err := c.tokens.SaveState(ctx, state, tenantID); err != nil {
		return "", fmt.Errorf("save oauth state: %w", err)
	}
	return c.auth.AuthURL(state), nil
}

// CompleteAuth resolves the tenant that owns state and connects it.
func (c *Client) CompleteAuth(ctx context.Context, state, code string) (string, error) {
	tenantID, err := c.tokens.ConsumeState(ctx, state)
	if err != nil {
		return "", err
	}
	if err := c.Connect(ctx, tenantID, code); err != nil {
		return "", err
	}
	return tenantID, nil
}

// Connect exchanges an authorization code and stores the tenant's token.
func (c *Client) Connect(ctx context.Context, tenantID, code string) error {
	tok, err := c.auth.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("exchange code: %w", err)
	}
	if err := c.tokens.Save(ctx, tenantID, tok); err != nil {
		return err
	}
	slog.Info("Spotify connected", "tenantID", tenantID)
	return nil
}

func (c *Client) Disconnect(ctx context.Context, tenantID string) error {
	return c.tokens.Remove(ctx, tenantID)
}

func (c *Client) ConnectedTenants(ctx context.Context) ([]string, error) {
	return c.tokens.ConnectedTenants(ctx)
}

func (c *Client) IsConnected(ctx context.Context, tenantID string) (bool, error) {
	return c.tokens.IsConnected(ctx, tenantID)
}

func (c *Client) CurrentPlayback(ctx context.Context, tenantID string) (*models.PlaybackState, error) {
	api, err := c.api(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	state, err := api.PlayerState(ctx)
	if err != nil {
		return nil, fmt.Errorf("player state: %w", err)
	}
	return playbackFromSpotify(state), nil
}

func (c *Client) Queue(ctx context.Context, tenantID string) ([]models.Track, error) {
	api, err := c.api(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	q, err := api.GetQueue(ctx)
	if err != nil {
		return nil, fmt.Errorf("queue: %w", err)
	}
	if q == nil {
		return nil, nil
	}

	tracks := make([]models.Track, 0, len(q.Items))
	for _, item := range q.Items {
		tracks = append(tracks, trackFromSpotify(item))
	}
	return tracks, nil
}

// PlayerAction is a host command sent to the tenant's active device.
type PlayerAction string

const (
	ActionPlay  PlayerAction = "play"
	ActionPause PlayerAction = "pause"
	ActionNext  PlayerAction = "next"
)

func (c *Client) Control(ctx context.Context, tenantID string, action PlayerAction) error {
	var send func(*spotify.Client, context.Context) error
	switch action {
	case ActionPlay:
		send = (*spotify.Client).Play
	case ActionPause:
		send = (*spotify.Client).Pause
	case ActionNext:
		send = (*spotify.Client).Next
	default:
		return fmt.Errorf("%w: unknown action %q", status.ErrInvalidCommand, action)
	}

	api, err := c.api(ctx, tenantID)
	if err != nil {
		return err
	}
	if err := send(api, ctx); err != nil {
		return fmt.Errorf("player %s: %w", action, err)
	}

	slog.Info("Player command sent", "tenantID", tenantID, "action", action)
	return nil
}

// AddToQueue appends a track to the end of the tenant's Spotify queue.
func (c *Client) AddToQueue(ctx context.Context, tenantID, trackURI string) error {
	id, ok := trackIDFromURI(trackURI)
	if !ok {
		return fmt.Errorf("%w: not a track uri: %q", status.ErrInvalidCommand, trackURI)
	}

	api, err := c.api(ctx, tenantID)
	if err != nil {
		return err
	}
	if err := api.QueueSong(ctx, spotify.ID(id)); err != nil {
		return fmt.Errorf("queue track: %w", err)
	}

	slog.Info("Track added to queue", "tenantID", tenantID, "trackURI", trackURI)
	return nil
}

// trackIDFromURI accepts "spotify:track:<id>" or a bare id.
func trackIDFromURI(uri string) (string, bool) {
	uri = strings.TrimSpace(uri)
	if id, found := strings.CutPrefix(uri, "spotify:track:"); found {
		uri = id
	}
	if uri == "" || strings.Contains(uri, ":") {
		return "", false
	}
	return uri, true
}

// api builds a client for tenantID, refreshing and persisting the token
// first when it has expired.
func (c *Client) api(ctx context.Context, tenantID string) (*spotify.Client, error) {
	tok, err := c.tokens.Load(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	if !tok.Valid() && tok.RefreshToken != "" {
		tok, err = c.refresh(ctx, tenantID, tok)
		if err != nil {
			return nil, err
		}
	}

	return spotify.New(c.auth.Client(ctx, tok), c.options...), nil
}

func (c *Client) refresh(ctx context.Context, tenantID string, tok *oauth2.Token) (*oauth2.Token, error) {
	fresh, err := c.auth.RefreshToken(ctx, tok)
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = tok.RefreshToken
	}
	if err := c.tokens.Save(ctx, tenantID, fresh); err != nil {
		return nil, err
	}
	return fresh, nil
}

// playbackFromSpotify maps a player state onto the internal model. A state
// without a track or a device means nothing is active.
func playbackFromSpotify(state *spotify.PlayerState) *models.PlaybackState {
	if state == nil || (state.Item == nil && state.Device.ID == "") {
		return nil
	}

	ps := &models.PlaybackState{
		IsPlaying:  state.Playing,
		ProgressMs: int(state.Progress),
	}
	if state.Device.ID != "" {
		ps.Device = &models.Device{
			ID:            string(state.Device.ID),
			Name:          state.Device.Name,
			Type:          state.Device.Type,
			VolumePercent: int(state.Device.Volume),
		}
	}
	if state.Item != nil {
		track := trackFromSpotify(*state.Item)
		ps.Item = &track
	}
	return ps
}

func trackFromSpotify(t spotify.FullTrack) models.Track {
	track := models.Track{
		ID:         string(t.ID),
		Name:       t.Name,
		URI:        string(t.URI),
		DurationMs: int(t.Duration),
		Album: models.Album{
			ID:   string(t.Album.ID),
			Name: t.Album.Name,
		},
	}
	for _, a := range t.Artists {
		track.Artists = append(track.Artists, models.Artist{ID: string(a.ID), Name: a.Name})
	}
	for _, img := range t.Album.Images {
		track.Album.Images = append(track.Album.Images, models.Image{
			URL:    img.URL,
			Height: int(img.Height),
			Width:  int(img.Width),
		})
	}
	return track
}
