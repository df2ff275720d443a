package services

import (
	"testing"

	"atelier-backend/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultAbandonLocation(t *testing.T) {
	assert.Equal(t, models.LocationStockCode, DefaultAbandonLocation(models.StateDone, models.FunctionalWorking))
	assert.Equal(t, models.LocationCollectionCode, DefaultAbandonLocation(models.StateDone, models.FunctionalBroken))
	assert.Equal(t, models.LocationCollectionCode, DefaultAbandonLocation(models.StateIrreparable, models.FunctionalWorking))
}

func abandonedUnit(t *testing.T, f *fixture, state models.RepairState, functional models.FunctionalState) (models.RepairOrder, models.DeviceUnit) {
	t.Helper()
	unit := models.DeviceUnit{DeviceID: f.device.ID, PartnerID: &f.partner.ID, FunctionalState: functional, StockState: models.StockClient}
	require.NoError(t, f.db.Create(&unit).Error)
	o := f.order(t, state, func(o *models.RepairOrder) {
		o.UnitID = &unit.ID
		o.EndDate = ptr(f.now)
	})
	return o, unit
}

func TestAbandonToStock(t *testing.T) {
	f := newFixture(t)
	svc := NewStockService(f.deps)
	o, unit := abandonedUnit(t, f, models.StateDone, models.FunctionalWorking)
	require.NoError(t, f.deps.Tasks.Schedule(f.ctx, OrderRef(o.ID), TaskSpec{Type: models.ActivityReadyPickup, UserID: f.manager.UserID}))

	move, err := svc.Abandon(f.ctx, f.manager, o.ID, AbandonInput{Note: " left since March "})
	require.NoError(t, err)
	assert.Equal(t, "MOVE/00001", move.Reference)
	assert.Equal(t, "left since March", move.Note)

	var dest models.StockLocation
	require.NoError(t, f.db.First(&dest, move.LocationDestID).Error)
	assert.Equal(t, models.LocationStockCode, dest.Code)

	require.NoError(t, f.db.First(&unit, unit.ID).Error)
	assert.Equal(t, models.StockInStock, unit.StockState)
	assert.Nil(t, unit.PartnerID)

	assert.Equal(t, models.DeliveryAbandoned, f.reload(t, o.ID).DeliveryState)
	assert.Zero(t, f.openTasks(t, o.ID, models.ActivityReadyPickup))
	assert.Contains(t, f.messages(t, o.ID), "Device abandoned by the customer, moved to Shop stock (MOVE/00001).")

	_, err = svc.Abandon(f.ctx, f.manager, o.ID, AbandonInput{})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestAbandonToCollection(t *testing.T) {
	f := newFixture(t)
	svc := NewStockService(f.deps)
	broken, _ := abandonedUnit(t, f, models.StateIrreparable, models.FunctionalBroken)
	working, _ := abandonedUnit(t, f, models.StateDone, models.FunctionalWorking)

	for _, tc := range []struct {
		order models.RepairOrder
		in    AbandonInput
	}{
		{broken, AbandonInput{}},
		{working, AbandonInput{LocationCode: models.LocationCollectionCode}},
	} {
		move, err := svc.Abandon(f.ctx, f.manager, tc.order.ID, tc.in)
		require.NoError(t, err)
		var dest models.StockLocation
		require.NoError(t, f.db.First(&dest, move.LocationDestID).Error)
		assert.Equal(t, models.LocationCollectionCode, dest.Code)
	}
}

func TestAbandonGuards(t *testing.T) {
	f := newFixture(t)
	svc := NewStockService(f.deps)
	o, _ := abandonedUnit(t, f, models.StateDone, models.FunctionalWorking)

	_, err := svc.Abandon(f.ctx, f.tech, o.ID, AbandonInput{})
	var perr *PermissionError
	require.ErrorAs(t, err, &perr)

	var verr *ValidationError
	busy, _ := abandonedUnit(t, f, models.StateUnderRepair, models.FunctionalFixing)
	_, err = svc.Abandon(f.ctx, f.manager, busy.ID, AbandonInput{})
	require.ErrorAs(t, err, &verr)

	noUnit := f.order(t, models.StateDone)
	_, err = svc.Abandon(f.ctx, f.manager, noUnit.ID, AbandonInput{})
	require.ErrorAs(t, err, &verr)

	var moves int64
	require.NoError(t, f.db.Model(&models.StockMove{}).Count(&moves).Error)
	assert.Zero(t, moves)
}

func unitMessages(t *testing.T, f *fixture, model string, id uint) []string {
	t.Helper()
	var bodies []string
	require.NoError(t, f.db.Model(&models.Message{}).Where("res_model = ? AND res_id = ?", model, id).Order("id").Pluck("body", &bodies).Error)
	return bodies
}

func TestReceiveUnit(t *testing.T) {
	f := newFixture(t)
	svc := NewStockService(f.deps)
	unit := models.DeviceUnit{DeviceID: f.device.ID, SerialNumber: ptr("SN1"), PartnerID: &f.partner.ID, FunctionalState: models.FunctionalWorking, StockState: models.StockClient, Notes: "Bought in 2019"}
	require.NoError(t, f.db.Create(&unit).Error)

	_, err := svc.Receive(f.ctx, f.tech, unit.ID, ReceiveInput{})
	var perr *PermissionError
	require.ErrorAs(t, err, &perr)

	move, err := svc.Receive(f.ctx, f.manager, unit.ID, ReceiveInput{Note: " shelf B "})
	require.NoError(t, err)
	assert.Equal(t, "MOVE/00001", move.Reference)
	assert.Equal(t, "shelf B", move.Note)
	assert.Nil(t, move.RepairOrderID)

	var src, dest models.StockLocation
	require.NoError(t, f.db.First(&src, move.LocationID).Error)
	require.NoError(t, f.db.First(&dest, move.LocationDestID).Error)
	assert.Equal(t, models.LocationCustomerCode, src.Code)
	assert.Equal(t, models.LocationStockCode, dest.Code)

	require.NoError(t, f.db.First(&unit, unit.ID).Error)
	assert.Equal(t, models.StockInStock, unit.StockState)
	require.NotNil(t, unit.PartnerID)
	assert.Equal(t, f.partner.ID, *unit.PartnerID)
	assert.Equal(t, "Bought in 2019\n[09/04/2024] Stock entry, location: Shop stock. shelf B", unit.Notes)
	assert.Equal(t, []string{"Taken into Shop stock (MOVE/00001)."}, unitMessages(t, f, ModelDeviceUnit, unit.ID))

	_, err = svc.Receive(f.ctx, f.manager, unit.ID, ReceiveInput{})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestReceiveUnitGuardsAndDefaults(t *testing.T) {
	f := newFixture(t)
	svc := NewStockService(f.deps)

	noSerial := models.DeviceUnit{DeviceID: f.device.ID, StockState: models.StockClient, FunctionalState: models.FunctionalBroken}
	require.NoError(t, f.db.Create(&noSerial).Error)
	_, err := svc.Receive(f.ctx, f.manager, noSerial.ID, ReceiveInput{})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	broken := models.DeviceUnit{DeviceID: f.device.ID, SerialNumber: ptr("SN2"), StockState: models.StockClient, FunctionalState: models.FunctionalBroken}
	require.NoError(t, f.db.Create(&broken).Error)
	move, err := svc.Receive(f.ctx, f.manager, broken.ID, ReceiveInput{})
	require.NoError(t, err)
	var dest models.StockLocation
	require.NoError(t, f.db.First(&dest, move.LocationDestID).Error)
	assert.Equal(t, models.LocationCollectionCode, dest.Code)

	_, err = svc.Receive(f.ctx, f.manager, 999, ReceiveInput{})
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, models.LocationStockCode, DefaultReceiveLocation(models.FunctionalWorking))
	assert.Equal(t, models.LocationCollectionCode, DefaultReceiveLocation(models.FunctionalFixing))
}

func TestSellUnitFromStock(t *testing.T) {
	f := newFixture(t)
	svc := NewStockService(f.deps)
	so := models.SaleOrder{Name: "QUO/T1", State: models.DocumentDraft, PartnerID: &f.other.ID, AmountUntaxed: 10, AmountTotal: 12}
	require.NoError(t, f.db.Create(&so).Error)
	unit := models.DeviceUnit{DeviceID: f.device.ID, SerialNumber: ptr("S1"), StockState: models.StockInStock, FunctionalState: models.FunctionalWorking}
	require.NoError(t, f.db.Create(&unit).Error)

	line, err := svc.SellUnit(f.ctx, f.manager, so.ID, SellUnitInput{UnitID: &unit.ID, PriceUnit: 249.999})
	require.NoError(t, err)
	assert.Equal(t, "Marantz PM6006 (S1)", line.Name)
	assert.Equal(t, 250.0, line.PriceUnit)
	assert.Equal(t, 1, line.Sequence)
	require.NotNil(t, line.DeviceUnitID)
	assert.Equal(t, unit.ID, *line.DeviceUnitID)

	require.NoError(t, f.db.First(&unit, unit.ID).Error)
	assert.Equal(t, models.StockSold, unit.StockState)
	require.NotNil(t, unit.PartnerID)
	assert.Equal(t, f.other.ID, *unit.PartnerID)

	require.NoError(t, f.db.First(&so, so.ID).Error)
	assert.Equal(t, 260.0, so.AmountUntaxed)
	assert.Equal(t, 262.0, so.AmountTotal)

	var move models.StockMove
	require.NoError(t, f.db.Where("sale_order_id = ?", so.ID).First(&move).Error)
	assert.Equal(t, unit.ID, move.UnitID)
	var src, dest models.StockLocation
	require.NoError(t, f.db.First(&src, move.LocationID).Error)
	require.NoError(t, f.db.First(&dest, move.LocationDestID).Error)
	assert.Equal(t, models.LocationStockCode, src.Code)
	assert.Equal(t, models.LocationCustomerCode, dest.Code)
	assert.Equal(t, []string{"Device Marantz PM6006 (S1) sold from stock (MOVE/00001)."}, unitMessages(t, f, ModelSaleOrder, so.ID))

	_, err = svc.SellUnit(f.ctx, f.manager, so.ID, SellUnitInput{UnitID: &unit.ID, PriceUnit: 10})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestSellNewUnit(t *testing.T) {
	f := newFixture(t)
	svc := NewStockService(f.deps)
	so := models.SaleOrder{Name: "QUO/T2", State: models.DocumentDraft, PartnerID: &f.partner.ID}
	require.NoError(t, f.db.Create(&so).Error)

	line, err := svc.SellUnit(f.ctx, f.manager, so.ID, SellUnitInput{DeviceID: f.device.ID, VariantID: &f.variant.ID, SerialNumber: ptr(" S2 "), PriceUnit: 100})
	require.NoError(t, err)
	assert.Equal(t, "Marantz PM6006 (S2)", line.Name)

	var unit models.DeviceUnit
	require.NoError(t, f.db.First(&unit, *line.DeviceUnitID).Error)
	assert.Equal(t, "S2", unit.Serial())
	assert.Equal(t, models.StockSold, unit.StockState)

	second, err := svc.SellUnit(f.ctx, f.manager, so.ID, SellUnitInput{DeviceID: f.device.ID, PriceUnit: 50})
	require.NoError(t, err)
	assert.Equal(t, 2, second.Sequence)
	assert.Equal(t, "Marantz PM6006", second.Name)

	var verr *ValidationError
	_, err = svc.SellUnit(f.ctx, f.manager, so.ID, SellUnitInput{PriceUnit: 5})
	require.ErrorAs(t, err, &verr)

	require.NoError(t, f.db.Model(&so).Update("state", "sale").Error)
	_, err = svc.SellUnit(f.ctx, f.manager, so.ID, SellUnitInput{DeviceID: f.device.ID, PriceUnit: 5})
	require.ErrorAs(t, err, &verr)

	var lines int64
	require.NoError(t, f.db.Model(&models.SaleOrderLine{}).Where("sale_order_id = ?", so.ID).Count(&lines).Error)
	assert.EqualValues(t, 2, lines)
}
