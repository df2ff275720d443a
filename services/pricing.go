package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"atelier-backend/models"
	"atelier-backend/utils"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	DefaultManualLabel = "Workshop flat rate / labour"
	DetailsSectionName = "Work details"
)

// DocLine is one line of a generated invoice or quotation.
type DocLine struct {
	DisplayType string  `json:"display_type,omitempty"`
	ProductID   *uint   `json:"product_id,omitempty"`
	Name        string  `json:"name"`
	Quantity    float64 `json:"quantity"`
	PriceUnit   float64 `json:"price_unit"`
	TaxIDs      []uint  `json:"tax_ids,omitempty"`
}

func (l DocLine) Subtotal() float64 {
	if l.DisplayType != "" {
		return 0
	}
	return utils.Round2(l.Quantity * l.PriceUnit)
}

// LaborLine is a labour line before allocation. Weight is relative to the other labour lines.
type LaborLine struct {
	ProductID uint
	Name      string
	Weight    float64
	TaxIDs    []uint
}

// PricingPlan is a fully resolved pricing form for one order.
type PricingPlan struct {
	Header    string
	Target    float64
	PartsMode string
	Parts     []DocLine
	Labor     []LaborLine
	Details   string
}

// LaborAmount is what is left for labour once parts are accounted for.
func LaborAmount(target, partsSubtotal float64, partsMode string) (float64, error) {
	if partsMode == models.PartsAdded {
		return utils.Round2(target), nil
	}
	amount := utils.Round2(target - partsSubtotal)
	if amount < 0 {
		return 0, invalid("parts amount (%.2f excl. tax) exceeds the requested total (%.2f excl. tax)", partsSubtotal, target)
	}
	return amount, nil
}

// Allocate splits amount proportionally to weights in whole cents.
func Allocate(amount float64, weights []float64) ([]float64, error) {
	var total float64
	for _, w := range weights {
		if w < 0 {
			return nil, invalid("template weights cannot be negative")
		}
		total += w
	}
	if total == 0 {
		return nil, invalid("the pricing template must have weights greater than zero")
	}
	return utils.ProRata(amount, weights, total), nil
}

// BuildLines emits the header, part lines, labour lines and the optional details section.
func BuildLines(p PricingPlan) ([]DocLine, error) {
	var partsSubtotal float64
	for _, l := range p.Parts {
		partsSubtotal += l.Subtotal()
	}
	amount, err := LaborAmount(p.Target, utils.Round2(partsSubtotal), p.PartsMode)
	if err != nil {
		return nil, err
	}
	if len(p.Labor) == 0 {
		return nil, invalid("select a pricing template or a service product")
	}
	weights := make([]float64, len(p.Labor))
	for i, l := range p.Labor {
		weights[i] = l.Weight
	}
	shares, err := Allocate(amount, weights)
	if err != nil {
		return nil, err
	}

	lines := []DocLine{{DisplayType: models.LineSection, Name: p.Header}}
	lines = append(lines, p.Parts...)
	for i, l := range p.Labor {
		pid := l.ProductID
		lines = append(lines, DocLine{ProductID: &pid, Name: l.Name, Quantity: 1, PriceUnit: shares[i], TaxIDs: l.TaxIDs})
	}
	if details := strings.TrimSpace(p.Details); details != "" {
		lines = append(lines,
			DocLine{DisplayType: models.LineSection, Name: DetailsSectionName},
			DocLine{DisplayType: models.LineNote, Name: details},
		)
	}
	return lines, nil
}

// HeaderLabel names the device and its serial number when known.
func HeaderLabel(device, serial string) string {
	if device == "" {
		device = "Unknown device"
	}
	label := "Repair: " + device
	if serial != "" {
		label += " (S/N: " + serial + ")"
	}
	return label
}

type PartInput struct {
	ProductID uint     `json:"product_id" validate:"required"`
	Name      string   `json:"name"`
	Quantity  float64  `json:"quantity" validate:"gte=0"`
	PriceUnit *float64 `json:"price_unit" validate:"omitempty,gte=0"`
}

// PricingInput is the form submitted at each step.
type PricingInput struct {
	TargetTotal      float64     `json:"target_total" validate:"gte=0"`
	PartsMode        string      `json:"parts_mode" validate:"omitempty,oneof=included added"`
	Parts            []PartInput `json:"parts" validate:"dive"`
	UseTemplate      bool        `json:"use_template"`
	TemplateID       *uint       `json:"template_id"`
	ManualLabel      string      `json:"manual_label"`
	ServiceProductID *uint       `json:"service_product_id"`
	AddWorkDetails   bool        `json:"add_work_details"`
	WorkDetails      *string     `json:"work_details"`
}

type StartPricingInput struct {
	OrderID        uint   `json:"order_id" validate:"required"`
	GenerationType string `json:"generation_type" validate:"required,oneof=invoice quote"`
}

type PricingService struct {
	*Deps
}

func NewPricingService(d *Deps) *PricingService { return &PricingService{Deps: d} }

// Start opens a session on the order, or on every order of its batch in id order.
func (s *PricingService) Start(ctx context.Context, actor Actor, in StartPricingInput) (*models.PricingSession, error) {
	var session models.PricingSession
	err := s.inTx(ctx, func(ctx context.Context) error {
		var o models.RepairOrder
		if err := s.conn(ctx).First(&o, in.OrderID).Error; err != nil {
			return notFound(err, "repair order")
		}
		orders := []models.RepairOrder{o}
		if o.BatchID != nil {
			orders = nil
			if err := s.conn(ctx).Where("batch_id = ? AND state <> ?", *o.BatchID, models.StateCancel).
				Order("id").Find(&orders).Error; err != nil {
				return err
			}
			if len(orders) == 0 {
				return invalid("batch of %s has no active repair order", o.Name)
			}
		}
		if in.GenerationType == models.PricingQuote {
			var linked []string
			for _, m := range orders {
				if m.SaleOrderID != nil {
					linked = append(linked, m.Name)
				}
			}
			if len(linked) > 0 {
				return &ValidationError{Message: "a quotation is already linked to this repair", Records: linked}
			}
		}

		queue := make([]uint, 0, len(orders)-1)
		for _, m := range orders[1:] {
			queue = append(queue, m.ID)
		}
		session = models.PricingSession{
			GenerationType: in.GenerationType,
			State:          models.SessionOpen,
			BatchID:        o.BatchID,
			Queue:          mustJSON(queue),
			Accumulated:    mustJSON([]DocLine{}),
			Step:           1,
			StepCount:      len(orders),
			UserID:         actor.UserID,
		}
		if err := s.loadDefaults(ctx, &session, &orders[0]); err != nil {
			return err
		}
		return s.conn(ctx).Create(&session).Error
	})
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// loadDefaults resets the form defaults for the order now being priced.
func (s *PricingService) loadDefaults(ctx context.Context, session *models.PricingSession, o *models.RepairOrder) error {
	session.CurrentOrderID = o.ID
	session.DeviceName = s.deviceLabel(ctx, o)
	session.WorkDetails = strings.TrimSpace(o.InternalNotes)
	session.TechnicianID = o.TechnicianEmployeeID
	session.ServiceProductID = nil

	var svc models.Product
	err := s.conn(ctx).Where("type = ? AND default_code = ?", models.ProductService, models.DefaultServiceCode).
		Order("id").Limit(1).Find(&svc).Error
	if err != nil {
		return err
	}
	if svc.ID == 0 {
		if err := s.conn(ctx).Where("type = ?", models.ProductService).Order("id").Limit(1).Find(&svc).Error; err != nil {
			return err
		}
	}
	if svc.ID != 0 {
		session.ServiceProductID = &svc.ID
	}
	return nil
}

func (s *PricingService) Get(ctx context.Context, id uint) (*models.PricingSession, error) {
	var session models.PricingSession
	if err := s.conn(ctx).First(&session, id).Error; err != nil {
		return nil, notFound(err, "pricing session")
	}
	return &session, nil
}

func (s *PricingService) openSession(ctx context.Context, id uint) (*models.PricingSession, error) {
	session, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.State != models.SessionOpen {
		return nil, invalid("pricing session %d is already closed", id)
	}
	return session, nil
}

// Preview returns the lines the current form would emit, without saving anything.
func (s *PricingService) Preview(ctx context.Context, id uint, in PricingInput) ([]DocLine, error) {
	session, err := s.openSession(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.currentLines(ctx, session, in)
}

// Next snapshots the current order's lines and moves to the next order of the batch.
func (s *PricingService) Next(ctx context.Context, actor Actor, id uint, in PricingInput) (*models.PricingSession, error) {
	var session *models.PricingSession
	err := s.inTx(ctx, func(ctx context.Context) error {
		var err error
		if session, err = s.openSession(ctx, id); err != nil {
			return err
		}
		var queue []uint
		if err := json.Unmarshal(session.Queue, &queue); err != nil {
			return fmt.Errorf("decode pricing queue: %w", err)
		}
		if len(queue) == 0 {
			return invalid("this is the last order of the batch, confirm to generate the document")
		}
		lines, err := s.currentLines(ctx, session, in)
		if err != nil {
			return err
		}
		acc, err := accumulated(session)
		if err != nil {
			return err
		}

		var next models.RepairOrder
		if err := s.conn(ctx).First(&next, queue[0]).Error; err != nil {
			return notFound(err, "repair order")
		}
		session.Accumulated = mustJSON(append(acc, lines...))
		session.Queue = mustJSON(queue[1:])
		session.Step++
		if err := s.loadDefaults(ctx, session, &next); err != nil {
			return err
		}
		return s.conn(ctx).Save(session).Error
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// Confirm appends the last order's lines and emits one document for the whole session.
// Any failure rolls back every write of the generation.
func (s *PricingService) Confirm(ctx context.Context, actor Actor, id uint, in PricingInput) (*models.PricingSession, error) {
	var session *models.PricingSession
	err := s.inTx(ctx, func(ctx context.Context) error {
		var err error
		if session, err = s.openSession(ctx, id); err != nil {
			return err
		}
		var queue []uint
		if err := json.Unmarshal(session.Queue, &queue); err != nil {
			return fmt.Errorf("decode pricing queue: %w", err)
		}
		if len(queue) > 0 {
			return invalid("%d orders of the batch remain to be priced", len(queue))
		}
		lines, err := s.currentLines(ctx, session, in)
		if err != nil {
			return err
		}
		acc, err := accumulated(session)
		if err != nil {
			return err
		}
		lines = append(acc, lines...)

		orders, err := s.sessionOrders(ctx, session)
		if err != nil {
			return err
		}
		var docID uint
		if session.GenerationType == models.PricingQuote {
			docID, err = s.createQuote(ctx, session, orders, lines)
		} else {
			docID, err = s.createInvoice(ctx, session, orders, lines)
		}
		if err != nil {
			return err
		}

		now := s.Now()
		session.Accumulated = mustJSON(lines)
		session.State = models.SessionDone
		session.DocumentID = &docID
		session.ClosedAt = &now
		if err := s.conn(ctx).Save(session).Error; err != nil {
			return err
		}
		for _, o := range orders {
			body := fmt.Sprintf("Invoice generated by %s.", actor.Name)
			if session.GenerationType == models.PricingQuote {
				body = fmt.Sprintf("Quotation generated by %s.", actor.Name)
			}
			if err := s.Audit.Post(ctx, OrderRef(o.ID), actor, body); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Log.Info("pricing document generated",
		zap.Uint("session_id", session.ID),
		zap.String("type", session.GenerationType),
		zap.Uintp("document_id", session.DocumentID))
	return session, nil
}

// currentLines resolves the form against the current order and builds its lines.
func (s *PricingService) currentLines(ctx context.Context, session *models.PricingSession, in PricingInput) ([]DocLine, error) {
	var o models.RepairOrder
	if err := s.conn(ctx).First(&o, session.CurrentOrderID).Error; err != nil {
		return nil, notFound(err, "repair order")
	}

	plan := PricingPlan{
		Header:    HeaderLabel(session.DeviceName, o.SerialNumber),
		Target:    in.TargetTotal,
		PartsMode: in.PartsMode,
	}
	if plan.PartsMode == "" {
		plan.PartsMode = models.PartsIncluded
	}

	for _, p := range in.Parts {
		product, err := s.product(ctx, p.ProductID)
		if err != nil {
			return nil, err
		}
		qty := p.Quantity
		if qty == 0 {
			qty = 1
		}
		price := product.ListPrice
		if p.PriceUnit != nil {
			price = *p.PriceUnit
		}
		name := strings.TrimSpace(p.Name)
		if name == "" {
			name = product.Name
		}
		pid := product.ID
		plan.Parts = append(plan.Parts, DocLine{ProductID: &pid, Name: name, Quantity: qty, PriceUnit: price, TaxIDs: taxIDs(product)})
	}

	if in.UseTemplate {
		if in.TemplateID == nil {
			return nil, invalid("select a pricing template")
		}
		var tpl models.PricingTemplate
		err := s.conn(ctx).
			Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("sequence, id") }).
			Preload("Lines.Product.Taxes").
			First(&tpl, *in.TemplateID).Error
		if err != nil {
			return nil, notFound(err, "pricing template")
		}
		for _, l := range tpl.Lines {
			line := LaborLine{ProductID: l.ProductID, Name: l.Name, Weight: l.Weight}
			if l.Product != nil {
				line.TaxIDs = taxIDs(l.Product)
			}
			plan.Labor = append(plan.Labor, line)
		}
		if len(plan.Labor) == 0 {
			return nil, invalid("the pricing template must have weights greater than zero")
		}
	} else {
		svcID := in.ServiceProductID
		if svcID == nil {
			svcID = session.ServiceProductID
		}
		if svcID == nil {
			return nil, invalid("select a service product")
		}
		svc, err := s.product(ctx, *svcID)
		if err != nil {
			return nil, err
		}
		label := strings.TrimSpace(in.ManualLabel)
		if label == "" {
			label = DefaultManualLabel
		}
		plan.Labor = []LaborLine{{ProductID: svc.ID, Name: label, Weight: 1, TaxIDs: taxIDs(svc)}}
	}

	if in.AddWorkDetails {
		plan.Details = session.WorkDetails
		if in.WorkDetails != nil {
			plan.Details = *in.WorkDetails
		}
	}
	return BuildLines(plan)
}

func (s *PricingService) product(ctx context.Context, id uint) (*models.Product, error) {
	var p models.Product
	if err := s.conn(ctx).Preload("Taxes").First(&p, id).Error; err != nil {
		return nil, notFound(err, "product")
	}
	return &p, nil
}

func (s *PricingService) sessionOrders(ctx context.Context, session *models.PricingSession) ([]models.RepairOrder, error) {
	var orders []models.RepairOrder
	q := s.conn(ctx).Order("id")
	if session.BatchID != nil {
		q = q.Where("batch_id = ? AND state <> ?", *session.BatchID, models.StateCancel)
	} else {
		q = q.Where("id = ?", session.CurrentOrderID)
	}
	if err := q.Find(&orders).Error; err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, fmt.Errorf("repair order: %w", ErrNotFound)
	}
	return orders, nil
}

// fiscalPosition is the position of the order's sale order, else the default repair position.
func (s *PricingService) fiscalPosition(ctx context.Context, o models.RepairOrder) (*models.FiscalPosition, error) {
	if o.SaleOrderID != nil {
		var so models.SaleOrder
		err := s.conn(ctx).Preload("FiscalPosition.TaxMaps").First(&so, *o.SaleOrderID).Error
		if err != nil {
			return nil, notFound(err, "sale order")
		}
		if so.FiscalPosition != nil {
			return so.FiscalPosition, nil
		}
	}
	var fp models.FiscalPosition
	err := s.conn(ctx).Preload("TaxMaps").Where(&models.FiscalPosition{Code: models.DefaultFiscalPositionCode}).
		Limit(1).Find(&fp).Error
	if err != nil {
		return nil, err
	}
	if fp.ID == 0 {
		return nil, nil
	}
	return &fp, nil
}

// MapTaxes applies fiscal position mappings; a mapping without destination drops the tax.
func MapTaxes(fp *models.FiscalPosition, ids []uint) []uint {
	if fp == nil {
		return ids
	}
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		mapped, dest := false, (*uint)(nil)
		for _, m := range fp.TaxMaps {
			if m.TaxSrcID == id {
				mapped, dest = true, m.TaxDestID
				break
			}
		}
		switch {
		case !mapped:
			out = append(out, id)
		case dest != nil:
			out = append(out, *dest)
		}
	}
	return out
}

type pricedLine struct {
	DocLine
	subtotal  float64
	taxAmount float64
}

// priceLines remaps taxes and computes subtotals and tax amounts.
func (s *PricingService) priceLines(ctx context.Context, fp *models.FiscalPosition, lines []DocLine) ([]pricedLine, float64, float64, error) {
	rates := map[uint]float64{}
	var ids []uint
	for _, l := range lines {
		ids = append(ids, MapTaxes(fp, l.TaxIDs)...)
	}
	if len(ids) > 0 {
		var taxes []models.Tax
		if err := s.conn(ctx).Where("id IN ?", uniqueIDs(ids)).Find(&taxes).Error; err != nil {
			return nil, 0, 0, err
		}
		for _, t := range taxes {
			rates[t.ID] = t.Amount
		}
	}

	out := make([]pricedLine, len(lines))
	var untaxed, tax float64
	for i, l := range lines {
		l.TaxIDs = MapTaxes(fp, l.TaxIDs)
		pl := pricedLine{DocLine: l, subtotal: l.Subtotal()}
		for _, id := range l.TaxIDs {
			rate, ok := rates[id]
			if !ok {
				return nil, 0, 0, invalid("tax %d does not exist", id)
			}
			pl.taxAmount += pl.subtotal * rate / 100
		}
		pl.taxAmount = utils.Round2(pl.taxAmount)
		untaxed += pl.subtotal
		tax += pl.taxAmount
		out[i] = pl
	}
	return out, utils.Round2(untaxed), utils.Round2(tax), nil
}

func (s *PricingService) createInvoice(ctx context.Context, session *models.PricingSession, orders []models.RepairOrder, lines []DocLine) (uint, error) {
	fp, err := s.fiscalPosition(ctx, orders[0])
	if err != nil {
		return 0, err
	}
	priced, untaxed, tax, err := s.priceLines(ctx, fp, lines)
	if err != nil {
		return 0, err
	}
	name, err := s.nextReference(ctx, "account.move")
	if err != nil {
		return 0, err
	}
	inv := models.Invoice{
		Name:          name,
		MoveType:      "out_invoice",
		State:         models.DocumentDraft,
		PartnerID:     orders[0].PartnerID,
		BatchID:       session.BatchID,
		AmountUntaxed: untaxed,
		AmountTax:     tax,
		AmountTotal:   utils.Round2(untaxed + tax),
	}
	if fp != nil {
		inv.FiscalPositionID = &fp.ID
	}
	for i, pl := range priced {
		inv.Lines = append(inv.Lines, models.InvoiceLine{
			Sequence:      (i + 1) * 10,
			DisplayType:   pl.DisplayType,
			ProductID:     pl.ProductID,
			Name:          pl.Name,
			Quantity:      pl.Quantity,
			PriceUnit:     pl.PriceUnit,
			PriceSubtotal: pl.subtotal,
			TaxAmount:     pl.taxAmount,
			TaxIDs:        mustJSON(pl.TaxIDs),
		})
	}
	if err := s.conn(ctx).Create(&inv).Error; err != nil {
		return 0, fmt.Errorf("create invoice: %w", err)
	}
	for i := range orders {
		if err := s.conn(ctx).Model(&orders[i]).Association("Invoices").Append(&inv); err != nil {
			return 0, fmt.Errorf("link invoice: %w", err)
		}
	}
	return inv.ID, nil
}

func (s *PricingService) createQuote(ctx context.Context, session *models.PricingSession, orders []models.RepairOrder, lines []DocLine) (uint, error) {
	ids := make([]uint, len(orders))
	for i, o := range orders {
		if o.SaleOrderID != nil {
			return 0, invalid("a quotation is already linked to %s", o.Name)
		}
		ids[i] = o.ID
	}
	fp, err := s.fiscalPosition(ctx, orders[0])
	if err != nil {
		return 0, err
	}
	priced, untaxed, tax, err := s.priceLines(ctx, fp, lines)
	if err != nil {
		return 0, err
	}
	var tpl models.SaleOrderTemplate
	if err := s.conn(ctx).Where(&models.SaleOrderTemplate{TemplateType: models.TemplateRepairQuote}).Limit(1).Find(&tpl).Error; err != nil {
		return 0, err
	}
	name, err := s.nextReference(ctx, "sale.order")
	if err != nil {
		return 0, err
	}
	so := models.SaleOrder{
		Name:          name,
		State:         models.DocumentDraft,
		PartnerID:     orders[0].PartnerID,
		BatchID:       session.BatchID,
		Note:          tpl.Note,
		AmountUntaxed: untaxed,
		AmountTax:     tax,
		AmountTotal:   utils.Round2(untaxed + tax),
	}
	if tpl.ID != 0 {
		so.TemplateID = &tpl.ID
	}
	if fp != nil {
		so.FiscalPositionID = &fp.ID
	}
	for i, pl := range priced {
		so.Lines = append(so.Lines, models.SaleOrderLine{
			Sequence:      (i + 1) * 10,
			DisplayType:   pl.DisplayType,
			ProductID:     pl.ProductID,
			Name:          pl.Name,
			Quantity:      pl.Quantity,
			PriceUnit:     pl.PriceUnit,
			PriceSubtotal: pl.subtotal,
			TaxAmount:     pl.taxAmount,
			TaxIDs:        mustJSON(pl.TaxIDs),
		})
	}
	if err := s.conn(ctx).Omit("FiscalPosition").Create(&so).Error; err != nil {
		return 0, fmt.Errorf("create quotation: %w", err)
	}
	if err := s.conn(ctx).Model(&models.RepairOrder{}).Where("id IN ?", ids).
		Update("sale_order_id", so.ID).Error; err != nil {
		return 0, err
	}
	return so.ID, nil
}

func accumulated(session *models.PricingSession) ([]DocLine, error) {
	var lines []DocLine
	if len(session.Accumulated) == 0 {
		return lines, nil
	}
	if err := json.Unmarshal(session.Accumulated, &lines); err != nil {
		return nil, fmt.Errorf("decode accumulated lines: %w", err)
	}
	return lines, nil
}

func taxIDs(p *models.Product) []uint {
	ids := make([]uint, 0, len(p.Taxes))
	for _, t := range p.Taxes {
		ids = append(ids, t.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func mustJSON(v any) datatypes.JSON {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return datatypes.JSON(b)
}
