package storage

import (
	"context"
	"fmt"

	"cloud.google.com/go/civil"

	"github.com/casaolivo/bnb-server/internal/models"
	"github.com/casaolivo/bnb-server/internal/pricing"
)

// LoadRules gathers the pricing rules that can price roomID in [from, to).
func LoadRules(ctx context.Context, s PricingStore, roomID string, from, to civil.Date) (pricing.Rules, error) {
	var rules pricing.Rules

	seasons, err := s.ListSeasons(ctx)
	if err != nil {
		return rules, fmt.Errorf("failed to list seasons: %w", err)
	}
	for _, season := range seasons {
		if models.AppliesToRoom(season.RoomIDs, roomID) {
			rules.Seasons = append(rules.Seasons, season)
		}
	}

	periods, err := s.ListSpecialPeriods(ctx)
	if err != nil {
		return rules, fmt.Errorf("failed to list special periods: %w", err)
	}
	for _, p := range periods {
		if !models.AppliesToRoom(p.RoomIDs, roomID) {
			continue
		}
		// Inclusive end date: the period touches [from, to) unless it ends before from or starts at/after to.
		if p.EndDate.Before(from) || !p.StartDate.Before(to) {
			continue
		}
		rules.SpecialPeriods = append(rules.SpecialPeriods, p)
	}

	overrides, err := s.ListOverrides(ctx, roomID, from, to)
	if err != nil {
		return rules, fmt.Errorf("failed to list price overrides: %w", err)
	}
	rules.Overrides = overrides

	return rules, nil
}
