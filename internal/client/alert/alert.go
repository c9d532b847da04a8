// Package alert decides when an incoming inbox change deserves an audible
// cue and picks the first working strategy to produce it.
package alert

import (
	"context"
	"log/slog"
	"sync"

	"github.com/OrionPixel/orion-pixel-cargo-sub003/internal/cache"
)

const muteKey = "alerts:muted"

// Strategy is one way of producing the cue. Available reports whether the
// strategy can run right now; Play is attempted at most once per alert.
type Strategy interface {
	Name() string
	Available() bool
	Play() error
}

// Arbiter fires a cue only when an unread count grows. Each channel is
// tracked against its own last observed value: reads, deletions and count
// corrections shrink or hold the counts and stay silent, but new arrivals
// in one channel are not masked by reads in the other.
type Arbiter struct {
	mu         sync.Mutex
	prevNotif  int
	prevMsg    int
	primed     bool
	muted      bool
	store      cache.Store
	strategies []Strategy
}

// New builds an arbiter with the given fallback chain, tried in order.
// Alerts start muted until Unmute is called, matching a fresh session.
func New(store cache.Store, strategies ...Strategy) *Arbiter {
	a := &Arbiter{
		muted:      true,
		store:      store,
		strategies: strategies,
	}
	a.restoreMute()
	return a
}

func (a *Arbiter) restoreMute() {
	if a.store == nil {
		return
	}
	b, ok, err := a.store.Get(context.Background(), muteKey)
	if err != nil || !ok {
		return
	}
	a.muted = string(b) == "1"
}

func (a *Arbiter) persistMute() {
	if a.store == nil {
		return
	}
	v := "0"
	if a.muted {
		v = "1"
	}
	if err := a.store.Set(context.Background(), muteKey, []byte(v), 0); err != nil {
		slog.Warn("mute state not persisted", "err", err)
	}
}

func (a *Arbiter) Mute() {
	a.mu.Lock()
	a.muted = true
	a.persistMute()
	a.mu.Unlock()
}

func (a *Arbiter) Unmute() {
	a.mu.Lock()
	a.muted = false
	a.persistMute()
	a.mu.Unlock()
}

func (a *Arbiter) Muted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.muted
}

// Observe feeds the current authoritative unread counts. The first call
// only primes the baselines; after that a strictly larger count in either
// channel triggers one cue attempt.
func (a *Arbiter) Observe(notifUnread, msgUnread int) {
	a.mu.Lock()
	grew := notifUnread > a.prevNotif || msgUnread > a.prevMsg
	fire := a.primed && grew && !a.muted
	a.primed = true
	a.prevNotif = notifUnread
	a.prevMsg = msgUnread
	a.mu.Unlock()

	if fire {
		a.play()
	}
}

// play attempts the first available strategy. Exactly one tier is tried;
// its failure is logged and swallowed, there is no retry down the chain.
func (a *Arbiter) play() {
	for _, s := range a.strategies {
		if !s.Available() {
			continue
		}
		if err := s.Play(); err != nil {
			slog.Warn("alert cue failed", "strategy", s.Name(), "err", err)
		}
		return
	}
}
