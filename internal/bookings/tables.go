package bookings

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/mesa-backend/pkg/db"
	"github.com/angelmondragon/mesa-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/mesa-backend/pkg/errors"
)

func (s *service) ListTables(ctx context.Context, activeOnly bool) ([]TableDTO, error) {
	rows, err := s.repo.ListTables(ctx, activeOnly)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list tables")
	}
	out := make([]TableDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, TableFromModel(row))
	}
	return out, nil
}

func (s *service) CreateTable(ctx context.Context, input CreateTableInput) (*TableDTO, error) {
	table := &models.RestaurantTable{
		Label:    strings.TrimSpace(input.Label),
		Capacity: input.Capacity,
		IsActive: true,
	}
	if input.IsActive != nil {
		table.IsActive = *input.IsActive
	}
	if err := validateTable(table); err != nil {
		return nil, err
	}
	if err := s.repo.CreateTable(ctx, table); err != nil {
		return nil, mapTableWriteError(err, table.Label)
	}
	dto := TableFromModel(*table)
	return &dto, nil
}

func (s *service) UpdateTable(ctx context.Context, id uuid.UUID, input UpdateTableInput) (*TableDTO, error) {
	table, err := s.repo.FindTable(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, tableNotFound(id)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load table")
	}
	if input.Label != nil {
		table.Label = strings.TrimSpace(*input.Label)
	}
	if input.Capacity != nil {
		table.Capacity = *input.Capacity
	}
	if input.IsActive != nil {
		table.IsActive = *input.IsActive
	}
	if err := validateTable(table); err != nil {
		return nil, err
	}
	if err := s.repo.SaveTable(ctx, table); err != nil {
		return nil, mapTableWriteError(err, table.Label)
	}
	dto := TableFromModel(*table)
	return &dto, nil
}

// DeleteTable refuses while upcoming bookings still hold the table; those
// should be reassigned, or the table deactivated instead.
func (s *service) DeleteTable(ctx context.Context, id uuid.UUID) error {
	now := s.now().UTC()
	holding, err := s.repo.ListHolding(ctx, now, now.Add(s.cfg.Window))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check table bookings")
	}
	for _, b := range holding {
		if b.TableID != nil && *b.TableID == id {
			return pkgerrors.New(pkgerrors.CodeConflict, "table has upcoming bookings").
				WithDetails(map[string]any{"booking_id": b.ID})
		}
	}

	deleted, err := s.repo.DeleteTable(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete table")
	}
	if !deleted {
		return tableNotFound(id)
	}
	return nil
}

func validateTable(table *models.RestaurantTable) error {
	if table.Label == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "label is required")
	}
	if table.Capacity < 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "capacity must be at least 1")
	}
	return nil
}

func mapTableWriteError(err error, label string) error {
	if db.IsUniqueViolation(err, "") {
		return pkgerrors.Newf(pkgerrors.CodeConflict, "table %q already exists", label)
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save table")
}
