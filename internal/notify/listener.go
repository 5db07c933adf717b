package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketURL turns the back-office base URL into its notification
// endpoint, e.g. http://host:8080 -> ws://host:8080/api/ws.
func WebSocketURL(baseURL string) string {
	u := strings.TrimRight(baseURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/api/ws"
}

// Subscribe connects once and calls onEvent for every event until the
// connection drops or ctx ends.
func Subscribe(ctx context.Context, url, apiKey string, onEvent func(Event)) error {
	header := http.Header{}
	header.Set("x-api-key", apiKey)
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return fmt.Errorf("dial %s: %w", url, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		var ev Event
		if json.Unmarshal(raw, &ev) != nil {
			continue
		}
		onEvent(ev)
	}
}

// Listen keeps a subscription alive, redialling after retry whenever it
// drops. It returns when ctx ends.
func Listen(ctx context.Context, url, apiKey string, retry time.Duration, log *slog.Logger, onEvent func(Event)) {
	for {
		err := Subscribe(ctx, url, apiKey, onEvent)
		if ctx.Err() != nil {
			return
		}
		log.Debug("notification channel closed", "err", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(retry):
		}
	}
}
