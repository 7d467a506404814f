package repo

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
)

// TrialDeviceRepositoryPG implements domain.TrialDeviceRepository.
type TrialDeviceRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewTrialDeviceRepository creates a trial device repository backed by PostgreSQL.
func NewTrialDeviceRepository(pool *pgxpool.Pool) *TrialDeviceRepositoryPG {
	return &TrialDeviceRepositoryPG{pool: pool}
}

// HasUsedTrial reports whether the device already claimed its trial.
func (r *TrialDeviceRepositoryPG) HasUsedTrial(ctx context.Context, deviceID string) (bool, error) {
	row := r.pool.QueryRow(ctx, `
SELECT EXISTS (SELECT 1 FROM trial_devices WHERE device_id = $1);
`, deviceID)

	var used bool
	if err := row.Scan(&used); err != nil {
		return false, storageErr("trial_devices.exists", err)
	}
	return used, nil
}

// Register marks the device as having used its trial. Registering the same
// device twice is reported as ErrTrialAlreadyUsed.
func (r *TrialDeviceRepositoryPG) Register(ctx context.Context, deviceID, userID string) error {
	tag, err := r.pool.Exec(ctx, `
INSERT INTO trial_devices (device_id, user_id)
VALUES ($1, $2)
ON CONFLICT (device_id) DO NOTHING;
`, deviceID, userID)
	if err != nil {
		return storageErr("trial_devices.insert", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTrialAlreadyUsed
	}
	return nil
}
