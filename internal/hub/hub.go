// Package hub holds the server-side table of live client event channels.
// All mutation goes through one lock; delivery fans out to every handle
// registered for a target user or role.
package hub

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/OrionPixel/orion-pixel-cargo-sub003/internal/events"
)

const handleBuffer = 16

// Handle represents one live client connection. Ephemeral, never persisted.
type Handle struct {
	id        uint64
	UserID    uint64
	Role      string
	CreatedAt time.Time

	lastSeen atomic.Int64 // unix nano

	ch      chan events.Event
	closeMu sync.Once
}

func (h *Handle) ID() uint64 { return h.id }

// Events is the delivery channel the transport writer pumps to the socket.
// It is closed on unregister.
func (h *Handle) Events() <-chan events.Event { return h.ch }

// Send enqueues without blocking. A full buffer drops the event: the
// client self-heals by refetching after reconnect, not via a durable queue.
func (h *Handle) Send(ev events.Event) bool {
	select {
	case h.ch <- ev:
		return true
	default:
		return false
	}
}

// Touch records a liveness signal (handshake, pong, any inbound frame).
func (h *Handle) Touch(now time.Time) {
	h.lastSeen.Store(now.UnixNano())
}

func (h *Handle) LastSeen() time.Time {
	return time.Unix(0, h.lastSeen.Load())
}

func (h *Handle) close() {
	h.closeMu.Do(func() { close(h.ch) })
}

type Hub struct {
	mu      sync.RWMutex
	nextID  uint64
	handles map[uint64]*Handle
	byUser  map[uint64]map[uint64]*Handle
	byRole  map[string]map[uint64]*Handle

	staleAfter time.Duration
	sweepEvery time.Duration

	totalRegistered atomic.Int64
	totalEvicted    atomic.Int64
}

func New(staleAfter, sweepEvery time.Duration) *Hub {
	if staleAfter <= 0 {
		staleAfter = 90 * time.Second
	}
	if sweepEvery <= 0 {
		sweepEvery = 30 * time.Second
	}
	return &Hub{
		handles:    map[uint64]*Handle{},
		byUser:     map[uint64]map[uint64]*Handle{},
		byRole:     map[string]map[uint64]*Handle{},
		staleAfter: staleAfter,
		sweepEvery: sweepEvery,
	}
}

// Register creates a handle for the user. Several concurrent handles per
// user are allowed (multiple tabs); delivery fans out to all of them.
func (h *Hub) Register(userID uint64, role string) *Handle {
	now := time.Now().UTC()
	hd := &Handle{
		UserID:    userID,
		Role:      role,
		CreatedAt: now,
		ch:        make(chan events.Event, handleBuffer),
	}
	hd.Touch(now)

	h.mu.Lock()
	h.nextID++
	hd.id = h.nextID
	h.handles[hd.id] = hd
	if h.byUser[userID] == nil {
		h.byUser[userID] = map[uint64]*Handle{}
	}
	h.byUser[userID][hd.id] = hd
	if h.byRole[role] == nil {
		h.byRole[role] = map[uint64]*Handle{}
	}
	h.byRole[role][hd.id] = hd
	h.mu.Unlock()

	h.totalRegistered.Add(1)
	return hd
}

// Unregister removes the handle and closes its channel.
// Unregistering an already-removed handle is a no-op.
func (h *Hub) Unregister(hd *Handle) {
	if hd == nil {
		return
	}
	h.mu.Lock()
	_, ok := h.handles[hd.id]
	if ok {
		delete(h.handles, hd.id)
		if m := h.byUser[hd.UserID]; m != nil {
			delete(m, hd.id)
			if len(m) == 0 {
				delete(h.byUser, hd.UserID)
			}
		}
		if m := h.byRole[hd.Role]; m != nil {
			delete(m, hd.id)
			if len(m) == 0 {
				delete(h.byRole, hd.Role)
			}
		}
	}
	h.mu.Unlock()
	if ok {
		hd.close()
	}
}

func (h *Hub) ForEachUser(userID uint64, fn func(*Handle)) {
	h.mu.RLock()
	hds := make([]*Handle, 0, len(h.byUser[userID]))
	for _, hd := range h.byUser[userID] {
		hds = append(hds, hd)
	}
	h.mu.RUnlock()
	for _, hd := range hds {
		fn(hd)
	}
}

func (h *Hub) ForEachRole(role string, fn func(*Handle)) {
	h.mu.RLock()
	hds := make([]*Handle, 0, len(h.byRole[role]))
	for _, hd := range h.byRole[role] {
		hds = append(hds, hd)
	}
	h.mu.RUnlock()
	for _, hd := range hds {
		fn(hd)
	}
}

func (h *Hub) Size() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.handles)
}

// EvictIfStale unregisters the handle when its last liveness signal is
// older than the stale window. Used by delivery for lazy eviction.
func (h *Hub) EvictIfStale(hd *Handle, now time.Time) bool {
	if now.Sub(hd.LastSeen()) <= h.staleAfter {
		return false
	}
	h.Unregister(hd)
	h.totalEvicted.Add(1)
	return true
}

// Sweep evicts handles without a liveness signal within the stale window.
func (h *Hub) Sweep(now time.Time) int {
	h.mu.RLock()
	var stale []*Handle
	for _, hd := range h.handles {
		if now.Sub(hd.LastSeen()) > h.staleAfter {
			stale = append(stale, hd)
		}
	}
	h.mu.RUnlock()

	for _, hd := range stale {
		h.Unregister(hd)
	}
	if n := len(stale); n > 0 {
		h.totalEvicted.Add(int64(n))
	}
	return len(stale)
}

// Run sweeps periodically until the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	t := time.NewTicker(h.sweepEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := h.Sweep(now.UTC()); n > 0 {
				slog.Info("evicted stale event handles", "count", n)
			}
		}
	}
}

type Stats struct {
	Live            int   `json:"live"`
	TotalRegistered int64 `json:"totalRegistered"`
	TotalEvicted    int64 `json:"totalEvicted"`
}

func (h *Hub) Stats() Stats {
	return Stats{
		Live:            h.Size(),
		TotalRegistered: h.totalRegistered.Load(),
		TotalEvicted:    h.totalEvicted.Load(),
	}
}
