package services

import (
	"testing"

	"atelier-backend/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFunctionalState(t *testing.T) {
	jan, mar := day(2024, 1, 5), day(2024, 3, 5)

	assert.Equal(t, models.FunctionalBroken, FunctionalState(nil))
	assert.Equal(t, models.FunctionalFixing, FunctionalState([]models.RepairOrder{
		{State: models.StateDone, EndDate: &jan},
		{State: models.StateUnderRepair},
	}))
	assert.Equal(t, models.FunctionalWorking, FunctionalState([]models.RepairOrder{
		{State: models.StateIrreparable, EndDate: &jan},
		{State: models.StateDone, EndDate: &mar},
	}))
	assert.Equal(t, models.FunctionalBroken, FunctionalState([]models.RepairOrder{
		{State: models.StateDone, EndDate: &jan},
		{State: models.StateIrreparable, EndDate: &mar},
	}))
	assert.Equal(t, models.FunctionalBroken, FunctionalState([]models.RepairOrder{
		{State: models.StateDraft},
	}))
}

func TestCheckUnitConsistency(t *testing.T) {
	dev, otherDev, variant := uint(1), uint(2), uint(7)
	unit := &models.DeviceUnit{DeviceID: dev, VariantID: &variant, SerialNumber: ptr("SN-9")}

	ok := &models.RepairOrder{Name: "RO/1", DeviceID: &dev, VariantID: &variant, SerialNumber: "SN-9"}
	assert.NoError(t, CheckUnitConsistency(ok, unit))
	assert.NoError(t, CheckUnitConsistency(&models.RepairOrder{}, nil))

	var verr *ValidationError
	err := CheckUnitConsistency(&models.RepairOrder{Name: "RO/2", DeviceID: &otherDev, VariantID: &variant, SerialNumber: "SN-9"}, unit)
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Message, "device")
	assert.Equal(t, []string{"RO/2"}, verr.Records)

	err = CheckUnitConsistency(&models.RepairOrder{Name: "RO/3", DeviceID: &dev, SerialNumber: "SN-9"}, unit)
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Message, "variant")

	err = CheckUnitConsistency(&models.RepairOrder{Name: "RO/4", DeviceID: &dev, VariantID: &variant, SerialNumber: "SN-10"}, unit)
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Message, "serial")
}

func TestRefreshUnitState(t *testing.T) {
	f := newFixture(t)
	unit := models.DeviceUnit{DeviceID: f.device.ID, PartnerID: &f.partner.ID}
	require.NoError(t, f.db.Create(&unit).Error)
	f.order(t, models.StateConfirmed, func(o *models.RepairOrder) { o.UnitID = &unit.ID })

	require.NoError(t, f.deps.refreshUnitState(f.ctx, &unit.ID))
	require.NoError(t, f.db.First(&unit, unit.ID).Error)
	assert.Equal(t, models.FunctionalFixing, unit.FunctionalState)
	assert.NoError(t, f.deps.refreshUnitState(f.ctx, nil))
}
