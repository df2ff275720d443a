package services

import (
	"context"
	"errors"
	"time"

	"atelier-backend/models"

	"gorm.io/gorm"
)

// SuggestWarranty returns SAR when entry falls on or before the end of the grace window
// that opens with the previous completed repair. Dates are compared by calendar day.
func SuggestWarranty(previousEnd *time.Time, entry time.Time, graceMonths int) models.Warranty {
	if previousEnd == nil || previousEnd.IsZero() {
		return models.WarrantyNone
	}
	limit := addMonths(dateOnly(*previousEnd), graceMonths)
	if dateOnly(entry.In(previousEnd.Location())).After(limit) {
		return models.WarrantyNone
	}
	return models.WarrantySAR
}

// ResolveWarranty applies a suggestion to the current value. A manual SAV stays unless the unit changed.
func ResolveWarranty(current models.Warranty, unitChanged bool, suggested models.Warranty) models.Warranty {
	if current == models.WarrantySAV && !unitChanged {
		return current
	}
	return suggested
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// addMonths clamps to the last day of the target month (Nov 30 + 3 months is Feb 28/29).
func addMonths(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	if last := first.AddDate(0, 1, -1).Day(); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

type WarrantyService struct {
	*Deps
}

func NewWarrantyService(d *Deps) *WarrantyService { return &WarrantyService{Deps: d} }

// PreviousRepair is the latest completed repair on the unit, excluding excludeID.
func (s *WarrantyService) PreviousRepair(ctx context.Context, unitID, excludeID uint) (*models.RepairOrder, error) {
	var prev models.RepairOrder
	err := s.conn(ctx).
		Where("unit_id = ? AND state = ? AND id <> ? AND end_date IS NOT NULL", unitID, models.StateDone, excludeID).
		Order("end_date DESC").
		First(&prev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &prev, nil
}

// Suggest computes the suggestion for an intake of unitID at entry.
func (s *WarrantyService) Suggest(ctx context.Context, unitID, excludeID uint, entry time.Time) (models.Warranty, *models.RepairOrder, error) {
	prev, err := s.PreviousRepair(ctx, unitID, excludeID)
	if err != nil || prev == nil {
		return models.WarrantyNone, nil, err
	}
	return SuggestWarranty(prev.EndDate, entry, s.sarMonths(ctx)), prev, nil
}

// apply recomputes o.Warranty in place.
func (s *WarrantyService) apply(ctx context.Context, o *models.RepairOrder, unitChanged bool) error {
	suggested := models.WarrantyNone
	if o.UnitID != nil {
		var err error
		suggested, _, err = s.Suggest(ctx, *o.UnitID, o.ID, o.EntryDate)
		if err != nil {
			return err
		}
	}
	o.Warranty = ResolveWarranty(o.Warranty, unitChanged, suggested)
	return nil
}
