// Package feeder periodically pulls vehicle positions from the GPS feed,
// persists them and emits gps/vehicle events for live dashboards.
package feeder

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/OrionPixel/orion-pixel-cargo-sub003/internal/dispatch"
	"github.com/OrionPixel/orion-pixel-cargo-sub003/internal/events"
	"github.com/OrionPixel/orion-pixel-cargo-sub003/internal/integrations/gpsfeed"
	"github.com/OrionPixel/orion-pixel-cargo-sub003/internal/models"
)

// trackingRole получает gps-broadcast: диспетчерские дашборды.
const trackingRole = "admin"

type Repository interface {
	ListVehicles(ctx context.Context) ([]*models.Vehicle, error)
	ApplyVehiclePositions(ctx context.Context, positions []models.VehiclePosition) error
}

type Emitter interface {
	Emit(ev events.Event, target dispatch.Target)
}

type Feeder struct {
	repo    Repository
	feed    gpsfeed.Client
	emitter Emitter

	interval  time.Duration
	triggerCh chan struct{}

	totalCycles    atomic.Int64
	totalPositions atomic.Int64
	totalErrors    atomic.Int64
	lastErrorMu    sync.Mutex
	lastError      string
}

func New(repo Repository, feed gpsfeed.Client, emitter Emitter) *Feeder {
	return &Feeder{
		repo:      repo,
		feed:      feed,
		emitter:   emitter,
		interval:  15 * time.Second,
		triggerCh: make(chan struct{}, 1),
	}
}

func (f *Feeder) WithInterval(d time.Duration) *Feeder {
	if d > 0 {
		f.interval = d
	}
	return f
}

// Trigger forces an immediate cycle (best-effort, non-blocking).
func (f *Feeder) Trigger() {
	select {
	case f.triggerCh <- struct{}{}:
	default:
	}
}

func (f *Feeder) Run(ctx context.Context) error {
	t := time.NewTicker(f.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		case <-f.triggerCh:
		}
		if err := f.runCycle(ctx); err != nil {
			f.totalErrors.Add(1)
			f.lastErrorMu.Lock()
			f.lastError = err.Error()
			f.lastErrorMu.Unlock()
			slog.Error("gps feed cycle failed", "err", err)
		}
	}
}

func (f *Feeder) runCycle(ctx context.Context) error {
	f.totalCycles.Add(1)

	vehicles, err := f.repo.ListVehicles(ctx)
	if err != nil {
		return err
	}
	if len(vehicles) == 0 {
		return nil
	}

	ids := make([]uint64, 0, len(vehicles))
	for _, v := range vehicles {
		ids = append(ids, v.ID)
	}

	positions, err := f.feed.Positions(ctx, ids)
	if err != nil {
		return err
	}
	if err := f.repo.ApplyVehiclePositions(ctx, positions); err != nil {
		return err
	}
	f.totalPositions.Add(int64(len(positions)))

	if f.emitter == nil {
		return nil
	}
	for _, p := range positions {
		ev, err := events.New(events.TypeGPS, events.ActionUpdate, map[string]any{
			"vehicleId": p.VehicleID,
			"lat":       p.Lat,
			"lng":       p.Lng,
			"at":        p.At,
		})
		if err != nil {
			slog.Error("build gps event", "err", err, "vehicleId", p.VehicleID)
			continue
		}
		f.emitter.Emit(ev, dispatch.Role(trackingRole))
	}
	// одно батчевое событие на пересборку списка машин
	if ev, err := events.New(events.TypeVehicle, events.ActionUpdate, nil); err == nil {
		f.emitter.Emit(ev, dispatch.Role(trackingRole))
	}
	return nil
}

type Stats struct {
	TotalCycles    int64  `json:"totalCycles"`
	TotalPositions int64  `json:"totalPositions"`
	TotalErrors    int64  `json:"totalErrors"`
	LastError      string `json:"lastError,omitempty"`
}

func (f *Feeder) Stats() Stats {
	f.lastErrorMu.Lock()
	lastErr := f.lastError
	f.lastErrorMu.Unlock()
	return Stats{
		TotalCycles:    f.totalCycles.Load(),
		TotalPositions: f.totalPositions.Load(),
		TotalErrors:    f.totalErrors.Load(),
		LastError:      lastErr,
	}
}
