package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebSocketURL(t *testing.T) {
	assert.Equal(t, "ws://office:8080/api/ws", WebSocketURL("http://office:8080/"))
	assert.Equal(t, "wss://pos.example.com/api/ws", WebSocketURL("https://pos.example.com"))
}

func TestHubDeliversEvents(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()
	defer hub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan Event, 4)
	errc := make(chan error, 1)
	go func() {
		errc <- Subscribe(ctx, WebSocketURL(srv.URL), "k", func(ev Event) { events <- ev })
	}()

	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)
	hub.Notify([]string{"products", "transactions"})

	select {
	case ev := <-events:
		assert.Equal(t, EventChanged, ev.Type)
		assert.Equal(t, []string{"products", "transactions"}, ev.Collections)
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
	}

	cancel()
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("subscribe did not return after cancel")
	}
	require.Eventually(t, func() bool { return hub.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestNotifyWithoutSubscribers(t *testing.T) {
	hub := NewHub(nil)
	hub.Notify([]string{"products"})
	hub.Close()
	hub.Close()
}
