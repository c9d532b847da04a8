// Package dispatch routes typed domain events to live client channels.
// Emission never blocks the caller; a single goroutine drains the queue, so
// events for one target leave in emission order.
package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/OrionPixel/orion-pixel-cargo-sub003/internal/broker/messages"
	"github.com/OrionPixel/orion-pixel-cargo-sub003/internal/events"
	"github.com/OrionPixel/orion-pixel-cargo-sub003/internal/hub"
	"github.com/pkg/errors"
)

const queueSize = 256

// Target is either one user or a broadcast to every handle with a role.
type Target struct {
	UserID uint64
	Role   string
}

func User(id uint64) Target   { return Target{UserID: id} }
func Role(role string) Target { return Target{Role: role} }

type Producer interface {
	Publish(ctx context.Context, key, value []byte) error
}

type queued struct {
	ev     events.Event
	target Target
}

type Dispatcher struct {
	hub      *hub.Hub
	producer Producer // nil => local-only delivery
	queue    chan queued

	emitted   atomic.Int64
	delivered atomic.Int64
	dropped   atomic.Int64
}

func New(h *hub.Hub) *Dispatcher {
	return &Dispatcher{
		hub:   h,
		queue: make(chan queued, queueSize),
	}
}

// WithProducer routes emissions through the broker instead of the local
// registry; every node's consumer bridge then calls Deliver. Needed when
// more than one API node holds connection registries.
func (d *Dispatcher) WithProducer(p Producer) *Dispatcher {
	d.producer = p
	return d
}

// Emit hands the event off and returns immediately. A full queue drops the
// event: delivery is best-effort, clients reconcile by refetching.
func (d *Dispatcher) Emit(ev events.Event, target Target) {
	select {
	case d.queue <- queued{ev: ev, target: target}:
		d.emitted.Add(1)
	default:
		d.dropped.Add(1)
		slog.Warn("event queue full, dropping", "type", ev.Type, "userId", target.UserID, "role", target.Role)
	}
}

// SendConnected acknowledges a fresh handshake, synchronously and outside
// the queue: it must be the first frame the client sees.
func (d *Dispatcher) SendConnected(hd *hub.Handle) {
	hd.Send(events.Connected())
}

// Run drains the emit queue until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case q := <-d.queue:
			if d.producer != nil {
				d.publish(ctx, q)
				continue
			}
			d.Deliver(q.ev, q.target)
		}
	}
}

func (d *Dispatcher) publish(ctx context.Context, q queued) {
	env := messages.EventPublished{
		Event:        q.ev,
		TargetUserID: q.target.UserID,
		TargetRole:   q.target.Role,
		EmittedAt:    time.Now().UTC(),
	}
	b, err := json.Marshal(env)
	if err != nil {
		slog.Error("marshal event envelope", "err", err)
		return
	}
	if err := d.producer.Publish(ctx, env.PartitionKey(), b); err != nil {
		// Потеря события допустима: клиент дочитает состояние по REST.
		slog.Error("publish event", "err", err, "type", q.ev.Type)
		d.dropped.Add(1)
	}
}

// Deliver fans the event out to every live handle of the target. No live
// handle means the event is dropped, not queued.
func (d *Dispatcher) Deliver(ev events.Event, target Target) {
	now := time.Now().UTC()
	send := func(hd *hub.Handle) {
		if d.hub.EvictIfStale(hd, now) {
			return
		}
		if hd.Send(ev) {
			d.delivered.Add(1)
		} else {
			d.dropped.Add(1)
		}
	}
	if target.Role != "" {
		d.hub.ForEachRole(target.Role, send)
		return
	}
	if ev.UserID == 0 {
		ev.UserID = target.UserID
	}
	d.hub.ForEachUser(target.UserID, send)
}

// HandleBrokerMessage is the consumer-bridge entry: decode the envelope,
// deliver to the local registry. Malformed envelopes are dropped with an
// error so the consumer can decide whether to stop.
func (d *Dispatcher) HandleBrokerMessage(_key, value []byte) error {
	var env messages.EventPublished
	if err := json.Unmarshal(value, &env); err != nil {
		return errors.Wrap(err, "decode event envelope")
	}
	if !env.Event.Type.Valid() {
		return errors.Errorf("unknown event type %q", env.Event.Type)
	}
	d.Deliver(env.Event, Target{UserID: env.TargetUserID, Role: env.TargetRole})
	return nil
}

type Stats struct {
	Emitted   int64 `json:"emitted"`
	Delivered int64 `json:"delivered"`
	Dropped   int64 `json:"dropped"`
}

func (d *Dispatcher) Stats() Stats {
	return Stats{
		Emitted:   d.emitted.Load(),
		Delivered: d.delivered.Load(),
		Dropped:   d.dropped.Load(),
	}
}
