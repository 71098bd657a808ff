package spotify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"dj-requests/internal/status"

	"github.com/benbjohnson/clock"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
)

const (
	connectedKey = "spotify:connected"
	stateTTL     = 10 * time.Minute
)

func tokenKey(tenantID string) string {
	return fmt.Sprintf("spotify:token:%s", tenantID)
}

func stateKey(state string) string {
	return fmt.Sprintf("spotify:state:%s", state)
}

// TokenStore keeps each tenant's Spotify credentials in a Redis hash and the
// set of connected tenants in spotify:connected.
type TokenStore struct {
	Redis *redis.Client
	clock clock.Clock
}

func NewTokenStore(redisClient *redis.Client, clk clock.Clock) *TokenStore {
	if clk == nil {
		clk = clock.New()
	}
	return &TokenStore{Redis: redisClient, clock: clk}
}

func (s *TokenStore) Save(ctx context.Context, tenantID string, tok *oauth2.Token) error {
	key := tokenKey(tenantID)
	err := s.Redis.HSet(ctx, key,
		"access_token", tok.AccessToken,
		"refresh_token", tok.RefreshToken,
		"token_type", tok.TokenType,
		"expires_at", tok.Expiry.Unix(),
	).Err()
	if err != nil {
		return fmt.Errorf("save token: %w", err)
	}

	if err := s.Redis.SAdd(ctx, connectedKey, tenantID).Err(); err != nil {
		return fmt.Errorf("mark connected: %w", err)
	}
	return nil
}

func (s *TokenStore) Load(ctx context.Context, tenantID string) (*oauth2.Token, error) {
	data, err := s.Redis.HGetAll(ctx, tokenKey(tenantID)).Result()
	if err != nil {
		return nil, fmt.Errorf("load token: %w", err)
	}
	if len(data) == 0 || data["access_token"] == "" {
		return nil, status.ErrNotConnected
	}

	tok := &oauth2.Token{
		AccessToken:  data["access_token"],
		RefreshToken: data["refresh_token"],
		TokenType:    data["token_type"],
	}
	if expiresAt, err := strconv.ParseInt(data["expires_at"], 10, 64); err == nil {
		tok.Expiry = time.Unix(expiresAt, 0)
	}
	return tok, nil
}

func (s *TokenStore) Remove(ctx context.Context, tenantID string) error {
	if err := s.Redis.Del(ctx, tokenKey(tenantID)).Err(); err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	if err := s.Redis.SRem(ctx, connectedKey, tenantID).Err(); err != nil {
		return fmt.Errorf("unmark connected: %w", err)
	}
	return nil
}

// usable reports whether tok can be used now or renewed without the host.
func (s *TokenStore) usable(tok *oauth2.Token) bool {
	if tok.RefreshToken != "" {
		return true
	}
	return tok.Expiry.After(s.clock.Now())
}

func (s *TokenStore) IsConnected(ctx context.Context, tenantID string) (bool, error) {
	tok, err := s.Load(ctx, tenantID)
	if errors.Is(err, status.ErrNotConnected) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return s.usable(tok), nil
}

// ConnectedTenants lists tenants whose credentials are usable. Failing to
// read the set is an error; a single unreadable tenant is only skipped.
func (s *TokenStore) ConnectedTenants(ctx context.Context) ([]string, error) {
	members, err := s.Redis.SMembers(ctx, connectedKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list connected tenants: %w", err)
	}

	tenants := make([]string, 0, len(members))
	for _, tenantID := range members {
		ok, err := s.IsConnected(ctx, tenantID)
		if err != nil {
			slog.Warn("Failed to check Spotify connection", "tenantID", tenantID, "error", err)
			continue
		}
		if ok {
			tenants = append(tenants, tenantID)
		}
	}
	return tenants, nil
}

// SaveState remembers which tenant started an OAuth flow.
func (s *TokenStore) SaveState(ctx context.Context, state, tenantID string) error {
	return s.Redis.Set(ctx, stateKey(state), tenantID, stateTTL).Err()
}

// ConsumeState returns the tenant for state and forgets it.
func (s *TokenStore) ConsumeState(ctx context.Context, state string) (string, error) {
	tenantID, err := s.Redis.GetDel(ctx, stateKey(state)).Result()
	if err == redis.Nil {
		return "", status.ErrNotConnected
	}
	if err != nil {
		return "", fmt.Errorf("consume oauth state: %w", err)
	}
	return tenantID, nil
}
