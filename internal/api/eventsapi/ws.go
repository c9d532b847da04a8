package eventsapi

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultRole  = "client"
	writeTimeout = 5 * time.Second
	maxFrameSize = 4 << 10

	upgraderBufSize = 1024
)

// CheckOrigin пропускает всех: канал отдаёт только адресованные пользователю
// события, аутентификация — забота внешнего периметра.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  upgraderBufSize,
	WriteBufferSize: upgraderBufSize,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// handleEvents upgrades the connection, registers a handle in the hub and
// acknowledges with a synchronous `connected` frame before any queued event.
func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseUint(r.URL.Query().Get("userId"), 10, 64)
	if err != nil || userID == 0 {
		http.Error(w, "userId query param is required", http.StatusBadRequest)
		return
	}
	role := r.URL.Query().Get("role")
	if role == "" {
		role = defaultRole
	}

	if a.limiter != nil {
		key := fmt.Sprintf("events:handshake:%d", userID)
		ok, _, err := a.limiter.Allow(r.Context(), key, a.opts.HandshakeLimit, a.opts.HandshakeWindow)
		if err != nil {
			// лимитер недоступен — пропускаем, канал важнее
			slog.Warn("handshake rate limiter unavailable", "err", err)
		} else if !ok {
			http.Error(w, "too many connection attempts", http.StatusTooManyRequests)
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "err", err, "userId", userID)
		return
	}

	hd := a.hub.Register(userID, role)
	a.dispatcher.SendConnected(hd)
	slog.Info("event channel opened", "userId", userID, "role", role, "handle", hd.ID())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range hd.Events() {
			b, err := ev.Encode()
			if err != nil {
				slog.Error("event encode failed", "err", err)
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		}
	}()

	// Read loop exists only to track liveness: every inbound frame or pong
	// refreshes the handle. Payloads from clients are ignored.
	conn.SetReadLimit(maxFrameSize)
	conn.SetPongHandler(func(string) error {
		hd.Touch(time.Now().UTC())
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
		hd.Touch(time.Now().UTC())
	}

	a.hub.Unregister(hd)
	_ = conn.Close()
	<-done
	slog.Info("event channel closed", "userId", userID, "handle", hd.ID())
}
