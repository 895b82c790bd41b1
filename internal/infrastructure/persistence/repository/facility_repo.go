package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/haulwise/rebate-claims/internal/application/port"
	"github.com/haulwise/rebate-claims/internal/domain/entity"
	"github.com/haulwise/rebate-claims/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// FacilityRepository implements port.FacilityRegistry
type FacilityRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewFacilityRepository creates a new facility registry reader
func NewFacilityRepository(db *sql.DB, logger *zap.Logger) *FacilityRepository {
	return &FacilityRepository{
		db:     db,
		logger: logger,
	}
}

// ListAll returns every registry entry, approved or not, ordered by id
func (r *FacilityRepository) ListAll(ctx context.Context) ([]*entity.ApprovedFacility, error) {
	query := `
		SELECT id, name, address, facility_type, approved
		FROM approved_facilities
		ORDER BY id
	`

	rows, err := sqlite.ExecutorFor(ctx, r.db).QueryContext(ctx, query)
	if err != nil {
		r.logger.Error("Failed to list facilities", zap.Error(err))
		return nil, fmt.Errorf("failed to list facilities: %w", err)
	}
	defer rows.Close()

	var facilities []*entity.ApprovedFacility
	for rows.Next() {
		var f entity.ApprovedFacility
		if err := rows.Scan(&f.ID, &f.Name, &f.Address, &f.FacilityType, &f.Approved); err != nil {
			return nil, fmt.Errorf("failed to scan facility: %w", err)
		}
		facilities = append(facilities, &f)
	}
	return facilities, rows.Err()
}

// Create adds a registry entry and sets its ID
func (r *FacilityRepository) Create(ctx context.Context, f *entity.ApprovedFacility) error {
	query := `
		INSERT INTO approved_facilities (name, address, facility_type, approved)
		VALUES (?, ?, ?, ?)
	`

	result, err := sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx, query, f.Name, f.Address, f.FacilityType, f.Approved)
	if err != nil {
		r.logger.Error("Failed to create facility", zap.String("name", f.Name), zap.Error(err))
		return fmt.Errorf("failed to create facility: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	f.ID = id
	return nil
}

var _ port.FacilityRegistry = (*FacilityRepository)(nil)
