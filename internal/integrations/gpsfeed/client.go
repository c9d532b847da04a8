package gpsfeed

import (
	"context"

	"github.com/OrionPixel/orion-pixel-cargo-sub003/internal/models"
)

// Client abstracts the GPS provider. The subsystem only consumes periodic
// position updates; the hardware side lives elsewhere.
type Client interface {
	Positions(ctx context.Context, vehicleIDs []uint64) ([]models.VehiclePosition, error)
}
