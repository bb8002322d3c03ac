package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/leavend/genstudio/internal/relay"
)

func TestHubDeliversToConnectedUser(t *testing.T) {
	hub := NewHub(zerolog.Nop(), nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, r.URL.Query().Get("user"))
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=u1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Connected("u1") }, time.Second, 5*time.Millisecond)

	local := relay.NewLocal()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = hub.Run(ctx, local) }()
	require.Eventually(t, func() bool { return local.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	other, _ := relay.NewEvent(relay.EventNotification, "u2", map[string]string{"title": "not yours"})
	require.NoError(t, local.Publish(context.Background(), other))
	mine, _ := relay.NewEvent(relay.EventJobUpdate, "u1", JobUpdate{JobID: "j1", Progress: 90})
	require.NoError(t, local.Publish(context.Background(), mine))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var got struct {
		Type string    `json:"type"`
		Data JobUpdate `json:"data"`
	}
	require.NoError(t, json.Unmarshal(data, &got))
	require.Equal(t, relay.EventJobUpdate, got.Type)
	require.Equal(t, "j1", got.Data.JobID)
	require.Equal(t, 90, got.Data.Progress)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Connections() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHubDropsWhenBufferFull(t *testing.T) {
	hub := NewHub(zerolog.Nop(), nil)
	c := &client{userID: "u1", send: make(chan []byte, sendBuffer)}
	hub.register(c)

	evt, _ := relay.NewEvent(relay.EventJobUpdate, "u1", JobUpdate{JobID: "j"})
	for i := 0; i < sendBuffer+5; i++ {
		hub.Deliver(evt)
	}
	require.Len(t, c.send, sendBuffer)

	hub.unregister(c)
	require.False(t, hub.Connected("u1"))
}

func TestHubChecksOrigin(t *testing.T) {
	hub := NewHub(zerolog.Nop(), []string{"https://app.example.com"})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, "u1")
	}))
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	cases := []struct {
		origin string
		ok     bool
	}{
		{origin: "", ok: true},
		{origin: "https://app.example.com", ok: true},
		{origin: srv.URL, ok: true},
		{origin: "https://evil.example.com", ok: false},
	}
	for _, tc := range cases {
		header := http.Header{}
		if tc.origin != "" {
			header.Set("Origin", tc.origin)
		}
		conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
		if tc.ok {
			require.NoError(t, err, "origin %q", tc.origin)
			conn.Close()
			continue
		}
		require.Error(t, err, "origin %q", tc.origin)
		require.NotNil(t, resp)
		require.Equal(t, http.StatusForbidden, resp.StatusCode)
	}
}
