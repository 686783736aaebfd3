package media

import (
	"context"

	"github.com/gorilla/websocket"
)

// ListenConn reads selection messages from a websocket connection and
// feeds them to the hub until the connection closes or ctx is
// cancelled. This is the broadcast-channel transport, used when the
// picker runs in a separate tab rather than a popup.
func (h *Hub) ListenConn(ctx context.Context, conn *websocket.Conn) error {
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		h.Deliver(raw)
	}
}

// ListenBroadcast dials the named broadcast channel endpoint and
// consumes selection messages from it.
func (h *Hub) ListenBroadcast(ctx context.Context, wsURL string) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()
	return h.ListenConn(ctx, conn)
}
