package restaurant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/mesa-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/mesa-backend/pkg/errors"
	"github.com/angelmondragon/mesa-backend/pkg/types"
)

// Service reads and replaces the venue profile.
type Service interface {
	Get(ctx context.Context) (*ProfileDTO, error)
	Upsert(ctx context.Context, input UpsertInput) (*ProfileDTO, error)
	// Schedule returns the opening hours and their timezone. Without a
	// profile the venue is treated as always open, in UTC.
	Schedule(ctx context.Context) (types.OpeningHours, *time.Location, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("restaurant repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Get(ctx context.Context) (*ProfileDTO, error) {
	profile, err := s.repo.Get(ctx)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "restaurant profile not configured")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load restaurant profile")
	}
	dto := FromModel(*profile)
	return &dto, nil
}

func (s *service) Upsert(ctx context.Context, input UpsertInput) (*ProfileDTO, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	tz := strings.TrimSpace(input.Timezone)
	if tz == "" {
		tz = "UTC"
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown timezone %q", tz)
	}
	hours := normalizeHours(input.OpeningHours)
	if err := hours.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error())
	}

	profile, err := s.repo.Get(ctx)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load restaurant profile")
		}
		profile = &models.RestaurantProfile{}
	}

	profile.Name = name
	profile.Description = input.Description
	profile.Phone = input.Phone
	profile.Email = input.Email
	profile.Address = input.Address
	profile.Timezone = tz
	profile.OpeningHours = hours

	if err := s.repo.Save(ctx, profile); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save restaurant profile")
	}
	dto := FromModel(*profile)
	return &dto, nil
}

func (s *service) Schedule(ctx context.Context) (types.OpeningHours, *time.Location, error) {
	profile, err := s.repo.Get(ctx)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, time.UTC, nil
		}
		return nil, nil, err
	}
	loc, err := time.LoadLocation(profile.Timezone)
	if err != nil {
		loc = time.UTC
	}
	return profile.OpeningHours, loc, nil
}

func normalizeHours(in types.OpeningHours) types.OpeningHours {
	out := make(types.OpeningHours, len(in))
	for day, hours := range in {
		hours.Open = strings.TrimSpace(hours.Open)
		hours.Close = strings.TrimSpace(hours.Close)
		out[strings.ToLower(strings.TrimSpace(day))] = hours
	}
	return out
}
