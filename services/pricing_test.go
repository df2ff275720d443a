package services

import (
	"testing"

	"atelier-backend/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestAllocate(t *testing.T) {
	shares, err := Allocate(70, []float64{25, 75})
	require.NoError(t, err)
	assert.Equal(t, []float64{17.5, 52.5}, shares)

	shares, err = Allocate(100, []float64{1, 1, 1})
	require.NoError(t, err)
	assert.Equal(t, []float64{33.33, 33.33, 33.34}, shares)

	shares, err = Allocate(0.01, []float64{1, 1, 0})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0.01, 0}, shares)

	_, err = Allocate(100, []float64{0, 0})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "the pricing template must have weights greater than zero", verr.Message)
}

func TestBuildLines(t *testing.T) {
	fuse := uint(3)
	plan := PricingPlan{
		Header:    HeaderLabel("Marantz PM6006", "SN-1"),
		Target:    100,
		PartsMode: models.PartsIncluded,
		Parts:     []DocLine{{ProductID: &fuse, Name: "Fuse", Quantity: 1, PriceUnit: 30}},
		Labor: []LaborLine{
			{ProductID: 1, Name: "Diagnosis", Weight: 25},
			{ProductID: 2, Name: "Repair", Weight: 75},
		},
	}
	lines, err := BuildLines(plan)
	require.NoError(t, err)
	require.Len(t, lines, 4)
	assert.Equal(t, models.LineSection, lines[0].DisplayType)
	assert.Equal(t, "Repair: Marantz PM6006 (S/N: SN-1)", lines[0].Name)
	assert.Equal(t, 17.5, lines[2].PriceUnit)
	assert.Equal(t, 52.5, lines[3].PriceUnit)

	var total float64
	for _, l := range lines {
		total += l.Subtotal()
	}
	assert.InDelta(t, 100, total, 0.001)

	plan.Details = "  Replaced the fuse  "
	lines, err = BuildLines(plan)
	require.NoError(t, err)
	require.Len(t, lines, 6)
	assert.Equal(t, DetailsSectionName, lines[4].Name)
	assert.Equal(t, models.LineNote, lines[5].DisplayType)
	assert.Equal(t, "Replaced the fuse", lines[5].Name)

	plan.PartsMode = models.PartsAdded
	lines, err = BuildLines(plan)
	require.NoError(t, err)
	assert.Equal(t, 25.0, lines[2].PriceUnit)
	assert.Equal(t, 75.0, lines[3].PriceUnit)
}

func TestBuildLinesPartsAboveTarget(t *testing.T) {
	_, err := BuildLines(PricingPlan{
		Target:    100,
		PartsMode: models.PartsIncluded,
		Parts:     []DocLine{{Name: "Transformer", Quantity: 1, PriceUnit: 130}},
		Labor:     []LaborLine{{ProductID: 1, Name: "Labour", Weight: 1}},
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Message, "130.00")
}

func TestHeaderLabel(t *testing.T) {
	assert.Equal(t, "Repair: Unknown device", HeaderLabel("", ""))
	assert.Equal(t, "Repair: Revox B77", HeaderLabel("Revox B77", ""))
}

func TestMapTaxes(t *testing.T) {
	ten := uint(10)
	fp := &models.FiscalPosition{TaxMaps: []models.FiscalPositionTax{
		{TaxSrcID: 1, TaxDestID: &ten},
		{TaxSrcID: 2},
	}}
	assert.Equal(t, []uint{10, 3}, MapTaxes(fp, []uint{1, 2, 3}))
	assert.Equal(t, []uint{1, 2}, MapTaxes(nil, []uint{1, 2}))
}

type pricingFixture struct {
	*fixture
	pricing *PricingService
	vat     models.Tax
	labour  models.Product
	fuse    models.Product
}

func newPricingFixture(t *testing.T) *pricingFixture {
	t.Helper()
	p := &pricingFixture{fixture: newFixture(t)}
	p.pricing = NewPricingService(p.deps)
	p.vat = models.Tax{Name: "VAT 20%", Amount: 20}
	require.NoError(t, p.db.Create(&p.vat).Error)
	p.labour = models.Product{Name: "Labour", DefaultCode: models.DefaultServiceCode, Type: models.ProductService, Taxes: []models.Tax{p.vat}}
	require.NoError(t, p.db.Create(&p.labour).Error)
	p.fuse = models.Product{Name: "Fuse T2A", Type: models.ProductConsumable, ListPrice: 30, Taxes: []models.Tax{p.vat}}
	require.NoError(t, p.db.Create(&p.fuse).Error)
	return p
}

func (p *pricingFixture) invoice(t *testing.T, id uint) models.Invoice {
	t.Helper()
	var inv models.Invoice
	require.NoError(t, p.db.Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("sequence") }).First(&inv, id).Error)
	return inv
}

func TestPricingSingleOrderInvoice(t *testing.T) {
	p := newPricingFixture(t)
	o := p.order(t, models.StateDone, func(o *models.RepairOrder) {
		o.SerialNumber = "SN-1"
		o.InternalNotes = "Replaced the mains fuse."
	})

	session, err := p.pricing.Start(p.ctx, p.manager, StartPricingInput{OrderID: o.ID, GenerationType: models.PricingInvoice})
	require.NoError(t, err)
	assert.Equal(t, 1, session.StepCount)
	assert.Equal(t, "Marantz PM6006", session.DeviceName)
	require.NotNil(t, session.ServiceProductID)
	assert.Equal(t, p.labour.ID, *session.ServiceProductID)

	in := PricingInput{TargetTotal: 100, Parts: []PartInput{{ProductID: p.fuse.ID}}, AddWorkDetails: true}
	preview, err := p.pricing.Preview(p.ctx, session.ID, in)
	require.NoError(t, err)
	require.Len(t, preview, 5)
	assert.Equal(t, DefaultManualLabel, preview[2].Name)
	assert.Equal(t, 70.0, preview[2].PriceUnit)
	assert.Equal(t, "Replaced the mains fuse.", preview[4].Name)

	_, err = p.pricing.Next(p.ctx, p.manager, session.ID, in)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	done, err := p.pricing.Confirm(p.ctx, p.manager, session.ID, in)
	require.NoError(t, err)
	assert.Equal(t, models.SessionDone, done.State)
	require.NotNil(t, done.DocumentID)

	inv := p.invoice(t, *done.DocumentID)
	assert.Equal(t, "INV/00001", inv.Name)
	assert.Equal(t, models.DocumentDraft, inv.State)
	assert.Equal(t, 100.0, inv.AmountUntaxed)
	assert.Equal(t, 20.0, inv.AmountTax)
	assert.Equal(t, 120.0, inv.AmountTotal)
	require.Len(t, inv.Lines, 5)
	assert.Equal(t, "Repair: Marantz PM6006 (S/N: SN-1)", inv.Lines[0].Name)
	assert.Equal(t, "Fuse T2A", inv.Lines[1].Name)
	require.NotNil(t, inv.FiscalPositionID)

	got, err := p.repairs.Get(p.ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, got.Invoices, 1)
	assert.Equal(t, inv.ID, got.Invoices[0].ID)
	assert.Contains(t, p.messages(t, o.ID), "Invoice generated by Mia.")

	_, err = p.pricing.Confirm(p.ctx, p.manager, session.ID, in)
	require.ErrorAs(t, err, &verr)
}

func TestPricingTemplateSplit(t *testing.T) {
	p := newPricingFixture(t)
	tpl := models.PricingTemplate{Name: "Amplifier", Lines: []models.PricingTemplateLine{
		{Sequence: 10, Name: "Diagnosis", ProductID: p.labour.ID, Weight: 25},
		{Sequence: 20, Name: "Bench work", ProductID: p.labour.ID, Weight: 75},
	}}
	require.NoError(t, p.db.Create(&tpl).Error)
	o := p.order(t, models.StateDone)

	session, err := p.pricing.Start(p.ctx, p.manager, StartPricingInput{OrderID: o.ID, GenerationType: models.PricingInvoice})
	require.NoError(t, err)

	lines, err := p.pricing.Preview(p.ctx, session.ID, PricingInput{
		TargetTotal: 100,
		Parts:       []PartInput{{ProductID: p.fuse.ID, Quantity: 1}},
		UseTemplate: true,
		TemplateID:  &tpl.ID,
	})
	require.NoError(t, err)
	require.Len(t, lines, 4)
	assert.Equal(t, "Diagnosis", lines[2].Name)
	assert.Equal(t, 17.5, lines[2].PriceUnit)
	assert.Equal(t, 52.5, lines[3].PriceUnit)
	assert.Equal(t, []uint{p.vat.ID}, lines[3].TaxIDs)

	_, err = p.pricing.Preview(p.ctx, session.ID, PricingInput{TargetTotal: 100, UseTemplate: true})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestPricingBatchInvoice(t *testing.T) {
	p := newPricingFixture(t)
	a := p.order(t, models.StateDone)
	b := p.order(t, models.StateDone, func(o *models.RepairOrder) { o.VariantID = &p.variant.ID })
	cancelled := p.order(t, models.StateCancel)
	batch, err := p.batches.Merge(p.ctx, p.manager, []uint{a.ID, b.ID, cancelled.ID})
	require.NoError(t, err)

	session, err := p.pricing.Start(p.ctx, p.manager, StartPricingInput{OrderID: b.ID, GenerationType: models.PricingInvoice})
	require.NoError(t, err)
	assert.Equal(t, 2, session.StepCount)
	assert.Equal(t, a.ID, session.CurrentOrderID)

	_, err = p.pricing.Confirm(p.ctx, p.manager, session.ID, PricingInput{TargetTotal: 50})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	session, err = p.pricing.Next(p.ctx, p.manager, session.ID, PricingInput{TargetTotal: 50})
	require.NoError(t, err)
	assert.Equal(t, 2, session.Step)
	assert.Equal(t, b.ID, session.CurrentOrderID)
	assert.Equal(t, "Marantz PM6006 Black", session.DeviceName)

	_, err = p.pricing.Next(p.ctx, p.manager, session.ID, PricingInput{TargetTotal: 80})
	require.ErrorAs(t, err, &verr)

	done, err := p.pricing.Confirm(p.ctx, p.manager, session.ID, PricingInput{TargetTotal: 80, Parts: []PartInput{{ProductID: p.fuse.ID}}})
	require.NoError(t, err)

	inv := p.invoice(t, *done.DocumentID)
	assert.Equal(t, 130.0, inv.AmountUntaxed)
	assert.Equal(t, 26.0, inv.AmountTax)
	assert.Equal(t, 156.0, inv.AmountTotal)
	require.Len(t, inv.Lines, 5)
	require.NotNil(t, inv.BatchID)
	assert.Equal(t, batch.ID, *inv.BatchID)

	var links int64
	require.NoError(t, p.db.Table("repair_order_invoices").Where("invoice_id = ?", inv.ID).Count(&links).Error)
	assert.EqualValues(t, 2, links)
	assert.Empty(t, p.messages(t, cancelled.ID))

	// the batch now carries an invoice and can no longer be dropped
	require.NoError(t, p.db.Model(&models.RepairOrder{}).Where("batch_id = ?", batch.ID).Update("batch_id", nil).Error)
	require.ErrorAs(t, p.batches.Delete(p.ctx, batch.ID), &verr)
}

func TestPricingQuote(t *testing.T) {
	p := newPricingFixture(t)
	o := p.order(t, models.StateConfirmed)

	session, err := p.pricing.Start(p.ctx, p.manager, StartPricingInput{OrderID: o.ID, GenerationType: models.PricingQuote})
	require.NoError(t, err)
	done, err := p.pricing.Confirm(p.ctx, p.manager, session.ID, PricingInput{TargetTotal: 60, ManualLabel: "Bench repair"})
	require.NoError(t, err)

	var so models.SaleOrder
	require.NoError(t, p.db.Preload("Lines").First(&so, *done.DocumentID).Error)
	assert.Equal(t, "QUO/00001", so.Name)
	assert.NotNil(t, so.TemplateID)
	assert.Equal(t, 72.0, so.AmountTotal)
	require.Len(t, so.Lines, 2)
	assert.Equal(t, "Bench repair", so.Lines[1].Name)

	after := p.reload(t, o.ID)
	require.NotNil(t, after.SaleOrderID)
	assert.Equal(t, so.ID, *after.SaleOrderID)
	assert.Contains(t, p.messages(t, o.ID), "Quotation generated by Mia.")

	_, err = p.pricing.Start(p.ctx, p.manager, StartPricingInput{OrderID: o.ID, GenerationType: models.PricingQuote})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{o.Name}, verr.Records)
}

func TestPricingRollsBackOnFailure(t *testing.T) {
	p := newPricingFixture(t)
	o := p.order(t, models.StateDone)
	session, err := p.pricing.Start(p.ctx, p.manager, StartPricingInput{OrderID: o.ID, GenerationType: models.PricingInvoice})
	require.NoError(t, err)

	_, err = p.pricing.Confirm(p.ctx, p.manager, session.ID, PricingInput{TargetTotal: 10, Parts: []PartInput{{ProductID: p.fuse.ID}}})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	var invoices int64
	require.NoError(t, p.db.Model(&models.Invoice{}).Count(&invoices).Error)
	assert.Zero(t, invoices)
	reopened, err := p.pricing.Get(p.ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionOpen, reopened.State)
}
