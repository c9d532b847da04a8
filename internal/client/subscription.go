// Package client implements the receiving side of the event channel: one
// logical connection per authenticated session, automatic reconnection and
// de-duplicated routing to local cache invalidation.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/OrionPixel/orion-pixel-cargo-sub003/internal/events"
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateOpen         State = "open"
)

// DefaultHost — известная пара host:port, когда окружение не дало адрес.
const DefaultHost = "127.0.0.1:8080"

const DefaultReconnectDelay = 3 * time.Second

// Conn is one open transport connection delivering whole frames.
type Conn interface {
	ReadMessage() ([]byte, error)
	Close() error
}

// Dialer opens the event channel. The websocket implementation lives in
// wsdialer.go; tests substitute their own.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

type Listener func(ev events.Event)

type Config struct {
	Host           string // empty => DefaultHost
	Path           string // empty => /events
	UserID         uint64
	Role           string
	ReconnectDelay time.Duration // <=0 => DefaultReconnectDelay
}

// Subscription is the single logical connection of a session. Callers share
// one instance per authenticated user; a second Connect while the state is
// Connecting or Open is a no-op.
type Subscription struct {
	cfg    Config
	dialer Dialer
	url    string

	mu        sync.Mutex
	state     State
	conn      Conn
	reconnect *time.Timer
	closed    bool
	listeners map[events.Type][]Listener
}

func NewSubscription(cfg Config, dialer Dialer) *Subscription {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Path == "" {
		cfg.Path = "/events"
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	return &Subscription{
		cfg:       cfg,
		dialer:    dialer,
		url:       fmt.Sprintf("ws://%s%s?userId=%d&role=%s", cfg.Host, cfg.Path, cfg.UserID, cfg.Role),
		state:     StateDisconnected,
		listeners: map[events.Type][]Listener{},
	}
}

// On registers a listener for the event type. Routing happens on the read
// goroutine; listeners must not block.
func (s *Subscription) On(t events.Type, fn Listener) {
	s.mu.Lock()
	s.listeners[t] = append(s.listeners[t], fn)
	s.mu.Unlock()
}

func (s *Subscription) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect starts the connection attempt. No-op when already Connecting or
// Open, error only after Disconnect.
func (s *Subscription) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("subscription is closed")
	}
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return nil
	}
	s.state = StateConnecting
	s.clearTimerLocked()
	s.mu.Unlock()

	go s.dial(ctx)
	return nil
}

func (s *Subscription) dial(ctx context.Context) {
	conn, err := s.dialer.Dial(ctx, s.url)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		slog.Warn("event channel dial failed", "err", err, "url", s.url)
		s.state = StateDisconnected
		s.scheduleReconnectLocked(ctx)
		s.mu.Unlock()
		return
	}
	s.conn = conn
	s.state = StateOpen
	s.clearTimerLocked()
	s.mu.Unlock()

	go s.readLoop(ctx, conn)
}

func (s *Subscription) readLoop(ctx context.Context, conn Conn) {
	for {
		b, err := conn.ReadMessage()
		if err != nil {
			s.onDisconnect(ctx, conn)
			return
		}
		ev, err := events.Decode(b)
		if err != nil {
			// Битый кадр не валит цикл чтения и не рвёт соединение.
			slog.Warn("dropping malformed event frame", "err", err)
			continue
		}
		s.route(ev)
	}
}

func (s *Subscription) route(ev events.Event) {
	s.mu.Lock()
	fns := append([]Listener(nil), s.listeners[ev.Type]...)
	s.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (s *Subscription) onDisconnect(ctx context.Context, conn Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != conn {
		// устаревшее уведомление от уже заменённого соединения
		return
	}
	_ = conn.Close()
	s.conn = nil
	s.state = StateDisconnected
	if s.closed {
		return
	}
	s.scheduleReconnectLocked(ctx)
}

// scheduleReconnectLocked arms exactly one timer: repeated disconnect
// signals while one is pending must not stack attempts.
func (s *Subscription) scheduleReconnectLocked(ctx context.Context) {
	if s.reconnect != nil {
		return
	}
	s.reconnect = time.AfterFunc(s.cfg.ReconnectDelay, func() {
		s.mu.Lock()
		s.reconnect = nil
		if s.closed || s.state != StateDisconnected {
			s.mu.Unlock()
			return
		}
		s.state = StateConnecting
		s.mu.Unlock()
		s.dial(ctx)
	})
}

func (s *Subscription) clearTimerLocked() {
	if s.reconnect != nil {
		s.reconnect.Stop()
		s.reconnect = nil
	}
}

// Disconnect synchronously stops reconnection and closes the connection.
// The subscription cannot be reused afterwards.
func (s *Subscription) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.clearTimerLocked()
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.state = StateDisconnected
}
