package pgbooking

import (
	"context"
	"time"

	"github.com/OrionPixel/orion-pixel-cargo-sub003/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

func (s *Storage) CreateVehicle(ctx context.Context, label string) (*models.Vehicle, error) {
	now := time.Now().UTC()
	var v models.Vehicle
	err := s.db.QueryRow(ctx, `
INSERT INTO vehicles (label, updated_at)
VALUES ($1,$2)
ON CONFLICT (label) DO UPDATE SET label = vehicles.label
RETURNING id, label, lat, lng, updated_at
`, label, now).Scan(&v.ID, &v.Label, &v.Lat, &v.Lng, &v.UpdatedAt)
	if err != nil {
		return nil, errors.Wrap(err, "insert vehicle")
	}
	return &v, nil
}

func (s *Storage) ListVehicles(ctx context.Context) ([]*models.Vehicle, error) {
	rows, err := s.db.Query(ctx, `
SELECT id, label, lat, lng, updated_at FROM vehicles ORDER BY id
`)
	if err != nil {
		return nil, errors.Wrap(err, "select vehicles")
	}
	defer rows.Close()

	var out []*models.Vehicle
	for rows.Next() {
		var v models.Vehicle
		if err := rows.Scan(&v.ID, &v.Label, &v.Lat, &v.Lng, &v.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "scan vehicle")
		}
		out = append(out, &v)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// ApplyVehiclePositions пишет пачку позиций из GPS-фида одной транзакцией.
func (s *Storage) ApplyVehiclePositions(ctx context.Context, positions []models.VehiclePosition) error {
	if len(positions) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, p := range positions {
		_, err := tx.Exec(ctx, `
UPDATE vehicles SET lat = $2, lng = $3, updated_at = $4 WHERE id = $1
`, p.VehicleID, p.Lat, p.Lng, p.At.UTC())
		if err != nil {
			return errors.Wrap(err, "update vehicle position")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit tx")
	}
	return nil
}
