package fake

import (
	"context"
	"hash/fnv"
	"math"
	"time"

	"github.com/OrionPixel/orion-pixel-cargo-sub003/internal/models"
)

// FakeClient — детерминированная заглушка GPS-провайдера: каждая машина
// ходит по своей окружности, позиция — функция от (id, время).
type FakeClient struct {
	now func() time.Time
}

func New() *FakeClient { return &FakeClient{now: time.Now} }

func (f *FakeClient) Positions(ctx context.Context, vehicleIDs []uint64) ([]models.VehiclePosition, error) {
	now := f.now().UTC()
	out := make([]models.VehiclePosition, 0, len(vehicleIDs))
	for _, id := range vehicleIDs {
		h := fnv.New32a()
		var b [8]byte
		for i := 0; i < 8; i++ {
			b[i] = byte(id >> (8 * i))
		}
		_, _ = h.Write(b[:])
		seed := float64(h.Sum32() % 360)

		// один оборот в час
		angle := seed + float64(now.Unix()%3600)/3600*360
		rad := angle * math.Pi / 180
		out = append(out, models.VehiclePosition{
			VehicleID: id,
			Lat:       50 + 0.05*math.Sin(rad),
			Lng:       30 + 0.05*math.Cos(rad),
			At:        now,
		})
	}
	return out, nil
}
