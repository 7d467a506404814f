package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
)

// ScanRecordRepositoryPG implements domain.ScanRecordRepository.
type ScanRecordRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewScanRecordRepository creates a scan history repository backed by PostgreSQL.
func NewScanRecordRepository(pool *pgxpool.Pool) *ScanRecordRepositoryPG {
	return &ScanRecordRepositoryPG{pool: pool}
}

// Create inserts a new scan record.
func (r *ScanRecordRepositoryPG) Create(ctx context.Context, rec *domain.ScanRecord) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO scan_records (id, user_id, medication_name, confidence, analysis)
VALUES ($1, $2, $3, $4, $5);
`, rec.ID, rec.UserID, rec.MedicationName, rec.Confidence, nullableBytes(rec.AnalysisJSON))
	if err != nil {
		return storageErr("scan_records.insert", err)
	}
	return nil
}

// ListByUser returns the user's scan history, newest first.
func (r *ScanRecordRepositoryPG) ListByUser(ctx context.Context, userID string, limit, offset int) ([]domain.ScanRecord, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, user_id, medication_name, confidence, analysis, created_at
FROM scan_records
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3;
`, userID, limit, offset)
	if err != nil {
		return nil, storageErr("scan_records.list", err)
	}
	defer rows.Close()

	var records []domain.ScanRecord
	for rows.Next() {
		var rec domain.ScanRecord
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.MedicationName, &rec.Confidence, &rec.AnalysisJSON, &rec.CreatedAt); err != nil {
			return nil, storageErr("scan_records.scan", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("scan_records.rows", err)
	}
	return records, nil
}

// GetByID fetches one record, scoped to its owner.
func (r *ScanRecordRepositoryPG) GetByID(ctx context.Context, id, userID string) (*domain.ScanRecord, error) {
	row := r.pool.QueryRow(ctx, `
SELECT id, user_id, medication_name, confidence, analysis, created_at
FROM scan_records
WHERE id = $1 AND user_id = $2;
`, id, userID)

	var rec domain.ScanRecord
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.MedicationName, &rec.Confidence, &rec.AnalysisJSON, &rec.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, storageErr("scan_records.get", err)
	}
	return &rec, nil
}

// Delete removes a record owned by the user.
func (r *ScanRecordRepositoryPG) Delete(ctx context.Context, id, userID string) error {
	tag, err := r.pool.Exec(ctx, `
DELETE FROM scan_records
WHERE id = $1 AND user_id = $2;
`, id, userID)
	if err != nil {
		return storageErr("scan_records.delete", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func nullableBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}
