// Package pricing computes nightly prices and stay quotes. Precedence per
// night is override, then special period, then season, then the room base price.
package pricing

import (
	"sort"

	"cloud.google.com/go/civil"

	"github.com/casaolivo/bnb-server/internal/models"
)

// Source names the tier that priced a night.
type Source string

const (
	SourceBase     Source = "base"
	SourceSeason   Source = "season"
	SourceSpecial  Source = "special"
	SourceOverride Source = "override"
)

// Rules is every pricing rule that may apply to a room over some range.
type Rules struct {
	Seasons        []models.Season
	SpecialPeriods []models.SpecialPeriod
	Overrides      []models.PriceOverride
}

// scoped sorts room-specific rules before all-rooms rules.
func scoped(roomIDs []string) int {
	if len(roomIDs) > 0 {
		return 0
	}
	return 1
}

// Normalize orders every tier so "first match" is deterministic regardless of
// how the rules were loaded: room-specific before all-rooms, higher priority
// first, later start first, then ID.
func (r Rules) Normalize() Rules {
	seasons := append([]models.Season(nil), r.Seasons...)
	sort.SliceStable(seasons, func(i, j int) bool {
		a, b := seasons[i], seasons[j]
		if scoped(a.RoomIDs) != scoped(b.RoomIDs) {
			return scoped(a.RoomIDs) < scoped(b.RoomIDs)
		}
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if a.StartMonthDay != b.StartMonthDay {
			return a.StartMonthDay > b.StartMonthDay
		}
		return a.ID < b.ID
	})

	specials := append([]models.SpecialPeriod(nil), r.SpecialPeriods...)
	sort.SliceStable(specials, func(i, j int) bool {
		a, b := specials[i], specials[j]
		if scoped(a.RoomIDs) != scoped(b.RoomIDs) {
			return scoped(a.RoomIDs) < scoped(b.RoomIDs)
		}
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if a.StartDate != b.StartDate {
			return a.StartDate.After(b.StartDate)
		}
		return a.ID < b.ID
	})

	overrides := append([]models.PriceOverride(nil), r.Overrides...)
	sort.SliceStable(overrides, func(i, j int) bool {
		a, b := overrides[i], overrides[j]
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return a.ID < b.ID
	})

	return Rules{Seasons: seasons, SpecialPeriods: specials, Overrides: overrides}
}

func (r Rules) season(roomID string, d civil.Date) *models.Season {
	for i := range r.Seasons {
		s := &r.Seasons[i]
		if models.AppliesToRoom(s.RoomIDs, roomID) && s.Contains(d) {
			return s
		}
	}
	return nil
}

func (r Rules) special(roomID string, d civil.Date) *models.SpecialPeriod {
	for i := range r.SpecialPeriods {
		p := &r.SpecialPeriods[i]
		if models.AppliesToRoom(p.RoomIDs, roomID) && p.Contains(d) {
			return p
		}
	}
	return nil
}

func (r Rules) override(roomID string, d civil.Date) *models.PriceOverride {
	for i := range r.Overrides {
		o := &r.Overrides[i]
		if o.RoomID == roomID && o.Date == d {
			return o
		}
	}
	return nil
}

// ClosedDates returns the dates closed for arrivals for roomID.
func (r Rules) ClosedDates(roomID string) map[civil.Date]bool {
	closed := make(map[civil.Date]bool)
	for _, o := range r.Normalize().Overrides {
		if o.RoomID != roomID {
			continue
		}
		if _, seen := closed[o.Date]; !seen {
			closed[o.Date] = o.Closed
		}
	}
	for d, c := range closed {
		if !c {
			delete(closed, d)
		}
	}
	return closed
}
