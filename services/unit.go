package services

import (
	"context"

	"atelier-backend/models"
)

// FunctionalState derives a unit's condition from its repair history.
func FunctionalState(orders []models.RepairOrder) models.FunctionalState {
	var last *models.RepairOrder
	for i := range orders {
		o := &orders[i]
		if o.State == models.StateConfirmed || o.State == models.StateUnderRepair {
			return models.FunctionalFixing
		}
		if o.EndDate == nil {
			continue
		}
		if last == nil || o.EndDate.After(*last.EndDate) {
			last = o
		}
	}
	if last != nil && last.State == models.StateDone {
		return models.FunctionalWorking
	}
	return models.FunctionalBroken
}

// CheckUnitConsistency enforces that the order describes the unit it is linked to.
func CheckUnitConsistency(o *models.RepairOrder, u *models.DeviceUnit) error {
	if u == nil {
		return nil
	}
	if o.DeviceID == nil || *o.DeviceID != u.DeviceID {
		return &ValidationError{Message: "inconsistent device: the order and the unit reference different models", Records: []string{o.Name}}
	}
	if u.VariantID != nil && (o.VariantID == nil || *o.VariantID != *u.VariantID) {
		return &ValidationError{Message: "inconsistent variant: the order variant differs from the unit variant", Records: []string{o.Name}}
	}
	if u.Serial() != "" && o.SerialNumber != u.Serial() {
		return &ValidationError{Message: "inconsistent serial number: the order serial differs from the unit serial", Records: []string{o.Name}}
	}
	return nil
}

func (d *Deps) refreshUnitState(ctx context.Context, unitID *uint) error {
	if unitID == nil {
		return nil
	}
	var orders []models.RepairOrder
	if err := d.conn(ctx).Select("id", "state", "end_date").Where("unit_id = ?", *unitID).Find(&orders).Error; err != nil {
		return err
	}
	return d.conn(ctx).Model(&models.DeviceUnit{}).Where("id = ?", *unitID).
		Update("functional_state", FunctionalState(orders)).Error
}
