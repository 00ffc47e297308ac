package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castmir/vaultmesh/internal/common"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWSJoiner_ProbeSucceedsAgainstLiveTracker(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		// Hold the socket open until the probe hangs up.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	j := NewWSJoiner(Config{
		AppID:        "test",
		TrackerURLs:  []string{wsURL(srv)},
		ProbeTimeout: 2 * time.Second,
	}, nil)

	assert.NoError(t, j.Probe(context.Background()))
}

func TestWSJoiner_ProbeFailsFastWhenUnreachable(t *testing.T) {
	j := NewWSJoiner(Config{
		AppID:        "test",
		TrackerURLs:  []string{"ws://127.0.0.1:1"}, // nothing listens here
		ProbeTimeout: 500 * time.Millisecond,
	}, nil)

	start := time.Now()
	err := j.Probe(context.Background())
	assert.ErrorIs(t, err, common.ErrTrackerUnreachable)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestWSJoiner_ProbeFallsBackToSecondTracker(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = conn.Close()
	}))
	defer srv.Close()

	j := NewWSJoiner(Config{
		AppID:        "test",
		TrackerURLs:  []string{"ws://127.0.0.1:1", wsURL(srv)},
		ProbeTimeout: time.Second,
	}, nil)

	assert.NoError(t, j.Probe(context.Background()))
}

func TestWSJoiner_NoTrackersConfigured(t *testing.T) {
	j := NewWSJoiner(Config{AppID: "test"}, nil)
	assert.ErrorIs(t, j.Probe(context.Background()), common.ErrNoTrackers)

	_, err := j.Join(context.Background(), "room-1")
	assert.ErrorIs(t, err, common.ErrNoTrackers)
}

func TestWSJoiner_SelfIDStable(t *testing.T) {
	j := NewWSJoiner(Config{AppID: "test"}, nil)
	require.NotEmpty(t, j.SelfID())
	assert.Equal(t, j.SelfID(), j.SelfID())
}
