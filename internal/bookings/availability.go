package bookings

import (
	"context"
	"strings"
	"time"

	"github.com/angelmondragon/mesa-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/mesa-backend/pkg/errors"
)

const dateLayout = "2006-01-02"

// Availability lists start times on date (venue timezone) at which at least
// one active table fits the party. Slots step by the configured interval
// across the day's opening window, or across the whole day when no hours are
// configured. Slots inside the minimum lead time are omitted.
func (s *service) Availability(ctx context.Context, date string, partySize int) ([]Slot, error) {
	if partySize < 1 || partySize > s.cfg.MaxPartySize {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "party_size must be between 1 and %d", s.cfg.MaxPartySize)
	}
	hours, loc, err := s.schedule.Schedule(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load opening hours")
	}
	day, err := time.ParseInLocation(dateLayout, strings.TrimSpace(date), loc)
	if err != nil {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "date must be %s", dateLayout)
	}

	open, close := day, day.AddDate(0, 0, 1)
	if len(hours) > 0 {
		var ok bool
		open, close, ok = hours.Window(day)
		if !ok {
			return []Slot{}, nil
		}
	}

	tables, err := s.repo.ListTables(ctx, true)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list tables")
	}
	fitting := tables[:0]
	for _, t := range tables {
		if t.Capacity >= partySize {
			fitting = append(fitting, t)
		}
	}
	if len(fitting) == 0 {
		return []Slot{}, nil
	}

	holding, err := s.repo.ListHolding(ctx, open, close)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list bookings")
	}

	now := s.now().UTC()
	earliest := now.Add(s.cfg.MinLeadTime)
	latest := now.Add(s.cfg.Window)
	duration := s.cfg.SlotDuration()
	step := time.Duration(s.cfg.SlotStepMinute) * time.Minute

	slots := []Slot{}
	for start := open; !start.Add(duration).After(close); start = start.Add(step) {
		if start.Before(earliest) {
			continue
		}
		if s.cfg.Window > 0 && start.After(latest) {
			break
		}
		end := start.Add(duration)
		free := countFree(fitting, holding, start, end)
		if free == 0 {
			continue
		}
		slots = append(slots, Slot{StartsAt: start, EndsAt: end, TablesFree: free})
	}
	return slots, nil
}

func countFree(tables []models.RestaurantTable, holding []models.Booking, start, end time.Time) int {
	busy := map[string]struct{}{}
	for _, b := range holding {
		if b.TableID == nil {
			continue
		}
		if b.ReservedFor.Before(end) && b.EndsAt().After(start) {
			busy[b.TableID.String()] = struct{}{}
		}
	}
	free := 0
	for _, t := range tables {
		if _, taken := busy[t.ID.String()]; !taken {
			free++
		}
	}
	return free
}
