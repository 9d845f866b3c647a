package firestoredb

import (
	"context"
	"time"

	"cloud.google.com/go/civil"
	"cloud.google.com/go/firestore"
	"github.com/google/uuid"

	"github.com/casaolivo/bnb-server/internal/models"
)

func (s *Store) ListSeasons(ctx context.Context) ([]models.Season, error) {
	var out []models.Season
	err := each(ctx, s.client.Collection(colSeasons).OrderBy("priority", firestore.Asc), func(id string, d *seasonDoc) error {
		out = append(out, models.Season{
			ID: id, Name: d.Name, RoomIDs: d.RoomIDs,
			StartMonthDay: d.StartMonthDay, EndMonthDay: d.EndMonthDay,
			NightlyPrice: d.NightlyPrice, MinNights: d.MinNights, Priority: d.Priority,
		})
		return nil
	})
	return out, err
}

func (s *Store) SaveSeason(ctx context.Context, season *models.Season) error {
	if season.ID == "" {
		season.ID = uuid.NewString()
	}
	return s.set(ctx, colSeasons, season.ID, seasonDoc{
		Name: season.Name, RoomIDs: season.RoomIDs,
		StartMonthDay: season.StartMonthDay, EndMonthDay: season.EndMonthDay,
		NightlyPrice: season.NightlyPrice, MinNights: season.MinNights, Priority: season.Priority,
	})
}

func (s *Store) DeleteSeason(ctx context.Context, id string) error {
	return s.delete(ctx, colSeasons, id)
}

func (s *Store) ListSpecialPeriods(ctx context.Context) ([]models.SpecialPeriod, error) {
	var out []models.SpecialPeriod
	err := each(ctx, s.client.Collection(colSpecialPeriods).OrderBy("start_date", firestore.Asc), func(id string, d *specialPeriodDoc) error {
		out = append(out, models.SpecialPeriod{
			ID: id, Name: d.Name, RoomIDs: d.RoomIDs,
			StartDate: parseDate(d.StartDate), EndDate: parseDate(d.EndDate),
			NightlyPrice: d.NightlyPrice, PercentAdjust: d.PercentAdjust,
			MinNights: d.MinNights, Priority: d.Priority,
		})
		return nil
	})
	return out, err
}

func (s *Store) SaveSpecialPeriod(ctx context.Context, p *models.SpecialPeriod) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return s.set(ctx, colSpecialPeriods, p.ID, specialPeriodDoc{
		Name: p.Name, RoomIDs: p.RoomIDs,
		StartDate: dateString(p.StartDate), EndDate: dateString(p.EndDate),
		NightlyPrice: p.NightlyPrice, PercentAdjust: p.PercentAdjust,
		MinNights: p.MinNights, Priority: p.Priority,
	})
}

func (s *Store) DeleteSpecialPeriod(ctx context.Context, id string) error {
	return s.delete(ctx, colSpecialPeriods, id)
}

func (s *Store) ListOverrides(ctx context.Context, roomID string, from, to civil.Date) ([]models.PriceOverride, error) {
	q := s.client.Collection(colOverrides).
		Where("date", ">=", dateString(from)).
		Where("date", "<", dateString(to))
	if roomID != "" {
		q = q.Where("room_id", "==", roomID)
	}
	var out []models.PriceOverride
	err := each(ctx, q.OrderBy("date", firestore.Asc), func(id string, d *overrideDoc) error {
		out = append(out, models.PriceOverride{
			ID: id, RoomID: d.RoomID, Date: parseDate(d.Date), Price: d.Price,
			Closed: d.Closed, MinNights: d.MinNights, UpdatedAt: d.UpdatedAt,
		})
		return nil
	})
	return out, err
}

func (s *Store) SaveOverride(ctx context.Context, o *models.PriceOverride) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	o.UpdatedAt = time.Now()
	return s.set(ctx, colOverrides, o.ID, overrideDoc{
		RoomID: o.RoomID, Date: dateString(o.Date), Price: o.Price,
		Closed: o.Closed, MinNights: o.MinNights, UpdatedAt: o.UpdatedAt,
	})
}

func (s *Store) DeleteOverride(ctx context.Context, id string) error {
	return s.delete(ctx, colOverrides, id)
}
