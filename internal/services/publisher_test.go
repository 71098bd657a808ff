package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	pubnub "github.com/pubnub/go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type publishRecorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *publishRecorder) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.paths) == 0 {
		return ""
	}
	return r.paths[len(r.paths)-1]
}

func setupTestPubNubPublisher(t *testing.T) (*PubNubPublisher, *publishRecorder) {
	t.Helper()
	rec := &publishRecorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.mu.Lock()
		rec.paths = append(rec.paths, r.URL.EscapedPath())
		rec.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[1,"Sent","17000000000000000"]`))
	}))
	t.Cleanup(srv.Close)

	cfg := pubnub.NewConfigWithUserId(pubnub.UserId("watcher-test"))
	cfg.PublishKey = "pub-key"
	cfg.SubscribeKey = "sub-key"
	cfg.Origin = strings.TrimPrefix(srv.URL, "http://")
	cfg.Secure = false
	cfg.MaxWorkers = 0
	return NewPubNubPublisher(pubnub.NewPubNub(cfg), nil), rec
}

func TestPubNubPublisher_Publish(t *testing.T) {
	pub, rec := setupTestPubNubPublisher(t)

	err := pub.Publish(context.Background(), TenantChannel("dj-1"), EventStatsUpdate, map[string]int{"pending": 2})

	require.NoError(t, err)
	path := rec.last()
	assert.Contains(t, path, "/publish/pub-key/sub-key/")
	assert.Contains(t, path, "/party-dj-1/")

	raw, err := url.PathUnescape(path[strings.LastIndex(path, "/")+1:])
	require.NoError(t, err)
	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(raw), &env))
	assert.Equal(t, EventStatsUpdate, env.Type)
	assert.NotEmpty(t, env.ID)
}

func TestPubNubPublisher_CancelledContext(t *testing.T) {
	pub, rec := setupTestPubNubPublisher(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := pub.Publish(ctx, TenantChannel("dj-1"), EventPlaybackUpdate, nil)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, rec.last())
}
