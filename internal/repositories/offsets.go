package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/desertthunder/lyrx/internal/models"
)

// OffsetRepository persists offset records for the offset store.
type OffsetRepository struct {
	db *sql.DB
}

// NewOffsetRepository creates a new OffsetRepository with the given database connection
func NewOffsetRepository(db *sql.DB) *OffsetRepository {
	return &OffsetRepository{db: db}
}

// LoadOffsetRecords returns every record with its anchors in ascending order.
func (r *OffsetRepository) LoadOffsetRecords(ctx context.Context) ([]*models.TrackOffsetRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT track_id, global_correction, last_modified
		FROM offset_records
		ORDER BY track_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query offset records: %w", err)
	}

	var records []*models.TrackOffsetRecord
	byID := make(map[string]*models.TrackOffsetRecord)
	for rows.Next() {
		rec := models.NewTrackOffsetRecord("")
		if err := rows.Scan(&rec.TrackID, &rec.GlobalCorrection, &rec.LastModified); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan offset record: %w", err)
		}
		records = append(records, rec)
		byID[rec.TrackID] = rec
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	anchors, err := r.db.QueryContext(ctx, `
		SELECT track_id, timestamp_ms, correction_ms
		FROM offset_anchors
		ORDER BY track_id, timestamp_ms
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query offset anchors: %w", err)
	}
	defer anchors.Close()

	for anchors.Next() {
		var trackID string
		var a models.OffsetAnchor
		if err := anchors.Scan(&trackID, &a.Timestamp, &a.Correction); err != nil {
			return nil, fmt.Errorf("failed to scan offset anchor: %w", err)
		}
		if rec, ok := byID[trackID]; ok {
			rec.Anchors = append(rec.Anchors, a)
		}
	}
	return records, anchors.Err()
}

// SaveOffsetRecords replaces the stored set with records in one transaction.
func (r *OffsetRepository) SaveOffsetRecords(ctx context.Context, records []*models.TrackOffsetRecord) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM offset_anchors`); err != nil {
			return fmt.Errorf("failed to clear offset anchors: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM offset_records`); err != nil {
			return fmt.Errorf("failed to clear offset records: %w", err)
		}

		insertRecord, err := tx.PrepareContext(ctx, `
			INSERT INTO offset_records (track_id, global_correction, last_modified) VALUES (?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer insertRecord.Close()

		insertAnchor, err := tx.PrepareContext(ctx, `
			INSERT INTO offset_anchors (track_id, timestamp_ms, correction_ms) VALUES (?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer insertAnchor.Close()

		for _, rec := range records {
			if _, err := insertRecord.ExecContext(ctx, rec.TrackID, rec.GlobalCorrection, rec.LastModified.UTC()); err != nil {
				return fmt.Errorf("failed to insert offset record %q: %w", rec.TrackID, err)
			}
			for _, a := range rec.Anchors {
				if _, err := insertAnchor.ExecContext(ctx, rec.TrackID, a.Timestamp, a.Correction); err != nil {
					return fmt.Errorf("failed to insert offset anchor %q@%d: %w", rec.TrackID, a.Timestamp, err)
				}
			}
		}
		return nil
	})
}
