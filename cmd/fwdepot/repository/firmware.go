package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/fleetware/fwdepot/cmd/fwdepot/models"
	"github.com/fleetware/fwdepot/common/db"
)

// FirmwareRepository handles database operations for firmware records.
//
// Expected schema:
//
//	CREATE TABLE fws (
//	    fw_id    TEXT PRIMARY KEY,
//	    file_url TEXT,
//	    deltas   JSONB
//	);
type FirmwareRepository struct {
	db *db.DB
}

// NewFirmwareRepository creates a new firmware repository
func NewFirmwareRepository(db *db.DB) *FirmwareRepository {
	return &FirmwareRepository{db: db}
}

// Create inserts a new firmware record. Upload admission never creates
// records; this serves the registration flow and test seeding.
func (r *FirmwareRepository) Create(ctx context.Context, fw *models.Firmware) error {
	deltas, err := fw.Deltas.Encode()
	if err != nil {
		return err
	}

	query := `
		INSERT INTO fws (fw_id, file_url, deltas)
		VALUES ($1, $2, $3)
	`

	if _, err := r.db.Exec(ctx, query, fw.FwID, fw.FileURL, deltas); err != nil {
		return fmt.Errorf("failed to create firmware: %w", err)
	}

	return nil
}

// Get retrieves a firmware record by identity
func (r *FirmwareRepository) Get(ctx context.Context, fwID string) (*models.Firmware, error) {
	query := `
		SELECT fw_id, file_url, deltas
		FROM fws
		WHERE fw_id = $1
	`

	fw := &models.Firmware{}
	var deltas []byte
	err := r.db.QueryRow(ctx, query, fwID).Scan(&fw.FwID, &fw.FileURL, &deltas)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get firmware: %w", err)
	}

	fw.Deltas, err = models.DecodeDeltaHistory(deltas)
	if err != nil {
		return nil, err
	}

	return fw, nil
}

// Exists reports whether a firmware record exists for the identity
func (r *FirmwareRepository) Exists(ctx context.Context, fwID string) (bool, error) {
	query := `
		SELECT 1
		FROM fws
		WHERE fw_id = $1
	`

	var one int
	err := r.db.QueryRow(ctx, query, fwID).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check firmware existence: %w", err)
	}

	return true, nil
}

// SetMainArtifact rewrites the record's main artifact URL
func (r *FirmwareRepository) SetMainArtifact(ctx context.Context, fwID, fileURL string) error {
	query := `
		UPDATE fws
		SET file_url = $2
		WHERE fw_id = $1
	`

	tag, err := r.db.Exec(ctx, query, fwID, fileURL)
	if err != nil {
		return fmt.Errorf("failed to set main artifact: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// GetDeltaHistory returns the record's serialized delta history.
// A record with no history yet yields nil, not an error.
func (r *FirmwareRepository) GetDeltaHistory(ctx context.Context, fwID string) ([]byte, error) {
	query := `
		SELECT deltas
		FROM fws
		WHERE fw_id = $1
	`

	var deltas []byte
	err := r.db.QueryRow(ctx, query, fwID).Scan(&deltas)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get delta history: %w", err)
	}

	return deltas, nil
}

// SetDeltaHistory rewrites the record's serialized delta history as a
// single field update
func (r *FirmwareRepository) SetDeltaHistory(ctx context.Context, fwID string, deltas []byte) error {
	query := `
		UPDATE fws
		SET deltas = $2
		WHERE fw_id = $1
	`

	tag, err := r.db.Exec(ctx, query, fwID, deltas)
	if err != nil {
		return fmt.Errorf("failed to set delta history: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}
