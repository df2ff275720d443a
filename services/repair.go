package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"atelier-backend/models"
	"atelier-backend/utils"

	"go.uber.org/zap"
)

type RepairService struct {
	*Deps
	warranty *WarrantyService
}

func NewRepairService(d *Deps) *RepairService {
	return &RepairService{Deps: d, warranty: NewWarrantyService(d)}
}

// CreateOrderInput is the intake form.
type CreateOrderInput struct {
	PartnerID     *uint           `json:"partner_id" patch:"nullable"`
	DeviceID      *uint           `json:"device_id" patch:"nullable"`
	VariantID     *uint           `json:"variant_id" patch:"nullable"`
	SerialNumber  string          `json:"serial_number" validate:"max=128"`
	UnitID        *uint           `json:"unit_id" patch:"nullable"`
	EntryDate     *time.Time      `json:"entry_date"`
	Priority      models.Priority `json:"priority" validate:"omitempty,oneof=0 1"`
	QuoteRequired bool            `json:"quote_required"`
	InternalNotes string          `json:"internal_notes"`
	Warranty      models.Warranty `json:"warranty" validate:"omitempty,oneof=none sav sar"`
	BatchID       *uint           `json:"batch_id"`
	TagIDs        []uint          `json:"tag_ids"`
}

// OrderPatch is a partial update; nil fields are left untouched and a zero id clears a link.
// The json tags are the column names.
type OrderPatch struct {
	PartnerID            *uint            `json:"partner_id" patch:"nullable"`
	DeviceID             *uint            `json:"device_id" patch:"nullable"`
	VariantID            *uint            `json:"variant_id" patch:"nullable"`
	SerialNumber         *string          `json:"serial_number" validate:"omitempty,max=128"`
	UnitID               *uint            `json:"unit_id" patch:"nullable"`
	EntryDate            *time.Time       `json:"entry_date"`
	Priority             *models.Priority `json:"priority" validate:"omitempty,oneof=0 1"`
	QuoteRequired        *bool            `json:"quote_required"`
	InternalNotes        *string          `json:"internal_notes"`
	Warranty             *models.Warranty `json:"warranty" validate:"omitempty,oneof=none sav sar"`
	TechnicianEmployeeID *uint            `json:"technician_employee_id" patch:"nullable"`
	SaleOrderID          *uint            `json:"sale_order_id" patch:"nullable"`
}

// StartOptions are the answers to the quote-required prompt.
type StartOptions struct {
	Force     bool `json:"force"`
	WithQuote bool `json:"with_quote"`
}

func (s *RepairService) Get(ctx context.Context, id uint) (*models.RepairOrder, error) {
	var o models.RepairOrder
	err := s.conn(ctx).
		Preload("Partner").Preload("Device.Brand").Preload("Variant").Preload("Unit").
		Preload("TechnicianEmployee").Preload("Tags").Preload("Invoices").
		First(&o, id).Error
	if err != nil {
		return nil, notFound(err, "repair order")
	}
	return &o, nil
}

type OrderFilter struct {
	State     string `query:"state"`
	PartnerID uint   `query:"partner_id"`
	BatchID   uint   `query:"batch_id"`
	Search    string `query:"q"`
	Limit     int    `query:"limit"`
	Offset    int    `query:"offset"`
}

func (s *RepairService) List(ctx context.Context, f OrderFilter) ([]models.RepairOrder, error) {
	q := s.conn(ctx).Model(&models.RepairOrder{}).Preload("Partner").Preload("Device.Brand")
	if f.State != "" {
		q = q.Where("state = ?", f.State)
	}
	if f.PartnerID != 0 {
		q = q.Where("partner_id = ?", f.PartnerID)
	}
	if f.BatchID != 0 {
		q = q.Where("batch_id = ?", f.BatchID)
	}
	if f.Search != "" {
		like := "%" + strings.ToLower(f.Search) + "%"
		q = q.Where("LOWER(name) LIKE ? OR LOWER(serial_number) LIKE ?", like, like)
	}
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	var out []models.RepairOrder
	err := q.Order("priority DESC, entry_date DESC, id DESC").Limit(f.Limit).Offset(f.Offset).Find(&out).Error
	return out, err
}

// Create registers an intake with a sequence reference and a fresh tracking token.
func (s *RepairService) Create(ctx context.Context, actor Actor, in CreateOrderInput) (*models.RepairOrder, error) {
	var id uint
	err := s.inTx(ctx, func(ctx context.Context) error {
		now := s.Now()
		o := models.RepairOrder{
			EntryDate:     now,
			State:         models.StateDraft,
			QuoteState:    models.QuoteNone,
			DeliveryState: models.DeliveryNone,
			Priority:      models.PriorityNormal,
			PartnerID:     in.PartnerID,
			DeviceID:      in.DeviceID,
			VariantID:     in.VariantID,
			SerialNumber:  strings.TrimSpace(in.SerialNumber),
			UnitID:        in.UnitID,
			QuoteRequired: in.QuoteRequired,
			InternalNotes: in.InternalNotes,
			Warranty:      models.WarrantyNone,
			BatchID:       in.BatchID,
		}
		if in.EntryDate != nil {
			o.EntryDate = *in.EntryDate
		}
		if in.Priority != "" {
			o.Priority = in.Priority
		}
		if in.Warranty != "" {
			o.Warranty = in.Warranty
		}

		unit, err := s.loadUnit(ctx, o.UnitID)
		if err != nil {
			return err
		}
		if unit != nil {
			fillFromUnit(&o, unit, false)
		}
		if err := s.checkLinks(ctx, &o, unit); err != nil {
			return err
		}
		if err := s.warranty.apply(ctx, &o, false); err != nil {
			return err
		}

		if o.BatchID != nil {
			var b models.RepairBatch
			if err := s.conn(ctx).First(&b, *o.BatchID).Error; err != nil {
				return notFound(err, "repair batch")
			}
			if !sameID(b.PartnerID, o.PartnerID) {
				return invalid("batch %s belongs to another customer", b.Name)
			}
		}

		if o.Name, err = s.nextReference(ctx, "repair.order"); err != nil {
			return err
		}
		if o.TrackingToken, err = models.NewTrackingToken(); err != nil {
			return err
		}
		exp := now.AddDate(0, s.TrackingMonths, 0)
		o.TrackingTokenExpiresAt = &exp

		if err := s.conn(ctx).Create(&o).Error; err != nil {
			return fmt.Errorf("create repair order: %w", err)
		}
		if len(in.TagIDs) > 0 {
			if err := s.replaceTags(ctx, []uint{o.ID}, in.TagIDs); err != nil {
				return err
			}
		}
		id = o.ID
		if err := s.recomputeBatch(ctx, o.BatchID); err != nil {
			return err
		}
		return s.refreshUnitState(ctx, o.UnitID)
	})
	if err != nil {
		return nil, err
	}
	s.Log.Info("repair order created", zap.Uint("order_id", id), zap.String("user_id", actor.UserID))
	return s.Get(ctx, id)
}

// Update applies a typed partial write. Linking a unit copies its device data and
// recomputes the warranty; changing the customer drops a unit the patch does not set.
func (s *RepairService) Update(ctx context.Context, actor Actor, id uint, p OrderPatch) (*models.RepairOrder, error) {
	if p.SaleOrderID != nil && !actor.IsManager() {
		return nil, forbidden("only managers can change the linked sale order")
	}
	utils.Normalize(&p)

	err := s.inTx(ctx, func(ctx context.Context) error {
		var o models.RepairOrder
		if err := s.conn(ctx).First(&o, id).Error; err != nil {
			return notFound(err, "repair order")
		}
		oldUnit := o.UnitID

		vals := utils.ColumnUpdates(&p)
		applyPatch(&o, p)

		if p.PartnerID != nil && p.UnitID == nil && !sameID(o.PartnerID, oldUnitOwner(ctx, s.Deps, oldUnit)) {
			o.UnitID = nil
			vals["unit_id"] = nil
		}
		unitChanged := !sameID(oldUnit, o.UnitID)

		unit, err := s.loadUnit(ctx, o.UnitID)
		if err != nil {
			return err
		}
		if unit != nil && unitChanged {
			fillFromUnit(&o, unit, true)
			vals["device_id"] = o.DeviceID
			vals["variant_id"] = o.VariantID
			vals["serial_number"] = o.SerialNumber
		}
		if err := s.checkLinks(ctx, &o, unit); err != nil {
			return err
		}

		if unitChanged || p.EntryDate != nil {
			if err := s.warranty.apply(ctx, &o, unitChanged); err != nil {
				return err
			}
			vals["warranty"] = o.Warranty
		}

		if len(vals) == 0 {
			return nil
		}
		if err := s.write(ctx, &o, vals); err != nil {
			return err
		}
		if unitChanged {
			if err := s.refreshUnitState(ctx, oldUnit); err != nil {
				return err
			}
			return s.refreshUnitState(ctx, o.UnitID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// write is the single write path for order columns. Setting state to draft always
// clears the technician, whatever else vals carries.
func (s *RepairService) write(ctx context.Context, o *models.RepairOrder, vals map[string]any) error {
	if st, ok := vals["state"]; ok && st == models.StateDraft {
		vals["technician_employee_id"] = nil
		vals["technician_user_id"] = nil
	}
	if err := s.conn(ctx).Model(&models.RepairOrder{}).Where("id = ?", o.ID).Updates(vals).Error; err != nil {
		if isDuplicate(err) {
			return invalid("repair order %s conflicts with an existing record", o.Name)
		}
		return err
	}
	if st, ok := vals["state"]; ok {
		o.State = st.(models.RepairState)
		if o.State == models.StateDraft {
			o.TechnicianEmployeeID = nil
			o.TechnicianUserID = nil
		}
		s.Log.Info("repair order state changed", zap.Uint("order_id", o.ID), zap.String("state", string(o.State)))
		if err := s.recomputeBatch(ctx, o.BatchID); err != nil {
			return err
		}
		return s.refreshUnitState(ctx, o.UnitID)
	}
	return nil
}

// Confirm moves a draft to confirmed, creating and linking a unit when needed.
func (s *RepairService) Confirm(ctx context.Context, actor Actor, id uint) (*models.RepairOrder, error) {
	err := s.inTx(ctx, func(ctx context.Context) error {
		var o models.RepairOrder
		if err := s.conn(ctx).First(&o, id).Error; err != nil {
			return notFound(err, "repair order")
		}
		if o.State != models.StateDraft {
			return invalid("cannot confirm %s: current state is %s (must be draft)", o.Name, o.State)
		}
		if o.PartnerID == nil {
			return invalid("cannot confirm %s: a customer is required", o.Name)
		}

		unit, err := s.loadUnit(ctx, o.UnitID)
		if err != nil {
			return err
		}
		vals := map[string]any{"state": models.StateConfirmed}
		if unit == nil && o.DeviceID != nil {
			if err := s.checkLinks(ctx, &o, nil); err != nil {
				return err
			}
			u := models.DeviceUnit{
				DeviceID:        *o.DeviceID,
				VariantID:       o.VariantID,
				PartnerID:       o.PartnerID,
				StockState:      models.StockClient,
				FunctionalState: models.FunctionalBroken,
			}
			if o.SerialNumber != "" {
				serial := o.SerialNumber
				u.SerialNumber = &serial
			}
			if err := s.conn(ctx).Create(&u).Error; err != nil {
				if isDuplicate(err) {
					return invalid("a unit with serial number %q already exists for this device", o.SerialNumber)
				}
				return err
			}
			o.UnitID = &u.ID
			vals["unit_id"] = u.ID
			unit = &u
		}
		if err := s.checkLinks(ctx, &o, unit); err != nil {
			return err
		}
		if err := s.write(ctx, &o, vals); err != nil {
			return err
		}
		return s.Audit.Post(ctx, OrderRef(o.ID), actor, "Repair order confirmed.")
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// StartRepair takes a confirmed order into the workshop. A required quote returns a
// prompt unless the caller forces the start or chooses to request the quote alongside.
func (s *RepairService) StartRepair(ctx context.Context, actor Actor, id uint, opts StartOptions) (*models.RepairOrder, error) {
	err := s.inTx(ctx, func(ctx context.Context) error {
		orders, release, err := s.lockOrders(ctx, []uint{id})
		if err != nil {
			return err
		}
		defer release()
		o := &orders[0]

		if o.State != models.StateConfirmed {
			return invalid("cannot start %s: current state is %s (must be confirmed)", o.Name, o.State)
		}
		if o.QuoteRequired && !opts.Force && !opts.WithQuote {
			return &PromptError{Prompt: Prompt{
				Code:    PromptQuoteRequired,
				OrderID: o.ID,
				Message: "A quote is required for this repair. Request it now or start anyway.",
				Actions: []string{ActionForce, ActionRequestQuote},
			}}
		}

		vals := map[string]any{"state": models.StateUnderRepair}
		s.assignTechnician(o, actor, vals)
		if err := s.write(ctx, o, vals); err != nil {
			return err
		}

		tech := s.technicianName(ctx, o, actor)
		var note string
		switch {
		case opts.WithQuote:
			note = fmt.Sprintf("%s started the repair (quote requested in parallel).", tech)
		case opts.Force:
			note = fmt.Sprintf("%s forced the start (quote skipped).", tech)
		default:
			note = fmt.Sprintf("%s started the repair.", tech)
		}
		if err := s.Audit.Post(ctx, OrderRef(o.ID), actor, note); err != nil {
			return err
		}
		if opts.WithQuote {
			return s.requestQuote(ctx, actor, o)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// assignTechnician never overwrites an existing assignment.
func (s *RepairService) assignTechnician(o *models.RepairOrder, actor Actor, vals map[string]any) {
	if o.TechnicianEmployeeID == nil {
		if emp := actor.WorkingEmployee(); emp != nil {
			o.TechnicianEmployeeID = emp
			vals["technician_employee_id"] = *emp
		}
	}
	if o.TechnicianUserID == nil && actor.UserID != "" && actor.KioskEmployeeID == nil {
		uid := actor.UserID
		o.TechnicianUserID = &uid
		vals["technician_user_id"] = uid
	}
}

func (s *RepairService) technicianName(ctx context.Context, o *models.RepairOrder, actor Actor) string {
	if o.TechnicianEmployeeID != nil {
		var e models.Employee
		if err := s.conn(ctx).First(&e, *o.TechnicianEmployeeID).Error; err == nil {
			return e.Name
		}
	}
	return actor.Name
}

// RequestQuote asks every manager to review the technician's estimate.
func (s *RepairService) RequestQuote(ctx context.Context, actor Actor, id uint) (*models.RepairOrder, error) {
	err := s.inTx(ctx, func(ctx context.Context) error {
		var o models.RepairOrder
		if err := s.conn(ctx).First(&o, id).Error; err != nil {
			return notFound(err, "repair order")
		}
		return s.requestQuote(ctx, actor, &o)
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *RepairService) requestQuote(ctx context.Context, actor Actor, o *models.RepairOrder) error {
	if o.State != models.StateConfirmed && o.State != models.StateUnderRepair {
		return invalid("cannot request a quote for %s: current state is %s", o.Name, o.State)
	}
	if strings.TrimSpace(o.InternalNotes) == "" {
		return invalid("fill in the technical estimate before requesting a quote")
	}

	vals := map[string]any{"quote_state": models.QuotePending}
	s.assignTechnician(o, actor, vals)

	managers, err := s.managerUserIDs(ctx)
	if err != nil {
		return err
	}
	device := s.deviceLabel(ctx, o)
	for _, uid := range managers {
		err := s.Tasks.Schedule(ctx, OrderRef(o.ID), TaskSpec{
			Type:     models.ActivityQuoteValidate,
			UserID:   uid,
			Summary:  "Quote",
			Note:     fmt.Sprintf("Requested by %s for %s", actor.Name, device),
			Deadline: dateOnly(s.Now()),
		})
		if err != nil {
			return err
		}
	}
	o.QuoteState = models.QuotePending
	return s.write(ctx, o, vals)
}

// ApproveQuote is the manager's sign-off that unlocks completion.
func (s *RepairService) ApproveQuote(ctx context.Context, actor Actor, id uint) (*models.RepairOrder, error) {
	return s.decideQuote(ctx, actor, id, models.QuoteApproved)
}

func (s *RepairService) RefuseQuote(ctx context.Context, actor Actor, id uint) (*models.RepairOrder, error) {
	return s.decideQuote(ctx, actor, id, models.QuoteRefused)
}

func (s *RepairService) decideQuote(ctx context.Context, actor Actor, id uint, decision models.QuoteState) (*models.RepairOrder, error) {
	if !actor.IsManager() {
		return nil, forbidden("only managers can approve or refuse a quote")
	}
	err := s.inTx(ctx, func(ctx context.Context) error {
		var o models.RepairOrder
		if err := s.conn(ctx).First(&o, id).Error; err != nil {
			return notFound(err, "repair order")
		}
		if o.QuoteState == decision {
			return invalid("quote for %s is already %s", o.Name, decision)
		}
		if o.State.Terminal() {
			return invalid("cannot change the quote of %s: current state is %s", o.Name, o.State)
		}

		feedback, note := "Validated by "+actor.Name, "Quote approved by management."
		if decision == models.QuoteRefused {
			feedback, note = "Refused by "+actor.Name, "Quote refused by management."
		}
		if _, err := s.Tasks.Resolve(ctx, OrderRef(o.ID), models.ActivityQuoteValidate, feedback); err != nil {
			return err
		}
		if err := s.Audit.Post(ctx, OrderRef(o.ID), actor, note); err != nil {
			return err
		}
		return s.write(ctx, &o, map[string]any{"quote_state": decision})
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Complete marks the repair done under an exclusive row lock. An unapproved required
// quote returns a prompt unless force is set.
func (s *RepairService) Complete(ctx context.Context, actor Actor, id uint, force bool) (*models.RepairOrder, error) {
	err := s.inTx(ctx, func(ctx context.Context) error {
		orders, release, err := s.lockOrders(ctx, []uint{id})
		if err != nil {
			return err
		}
		defer release()
		o := &orders[0]

		if o.State != models.StateUnderRepair {
			return invalid("cannot complete %s: current state is %s (must be under_repair)", o.Name, o.State)
		}
		gated := o.QuoteRequired && o.QuoteState != models.QuoteApproved
		if gated && !force {
			return &PromptError{Prompt: Prompt{
				Code:    PromptQuoteNotApproved,
				OrderID: o.ID,
				Message: "The required quote has not been approved. Force completion or request the quote.",
				Actions: []string{ActionForce, ActionRequestQuote},
			}}
		}
		if gated {
			if err := s.Audit.Post(ctx, OrderRef(o.ID), actor, "Forced completion (unapproved quote ignored)."); err != nil {
				return err
			}
		}

		now := s.Now()
		if err := s.write(ctx, o, map[string]any{
			"state":         models.StateDone,
			"parts_waiting": false,
			"end_date":      now,
		}); err != nil {
			return err
		}
		if _, err := s.Tasks.Resolve(ctx, OrderRef(o.ID), models.ActivityQuoteValidate, "Auto-closed: repair completed"); err != nil {
			return err
		}

		managers, err := s.managerUserIDs(ctx)
		if err != nil {
			return err
		}
		device := s.deviceLabel(ctx, o)
		customer := s.partnerLabel(ctx, o.PartnerID)
		for _, uid := range managers {
			err := s.Tasks.Schedule(ctx, OrderRef(o.ID), TaskSpec{
				Type:     models.ActivityReadyPickup,
				UserID:   uid,
				Summary:  "Device ready",
				Note:     fmt.Sprintf("%s for %s is ready for pickup (%s).", device, customer, o.Name),
				Deadline: dateOnly(now),
			})
			if err != nil {
				return err
			}
		}
		return s.Audit.Post(ctx, OrderRef(o.ID), actor, "Repair completed.")
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// MarkIrreparable ends the repair without a fix and keeps the trail visible.
func (s *RepairService) MarkIrreparable(ctx context.Context, actor Actor, id uint) (*models.RepairOrder, error) {
	err := s.inTx(ctx, func(ctx context.Context) error {
		var o models.RepairOrder
		if err := s.conn(ctx).First(&o, id).Error; err != nil {
			return notFound(err, "repair order")
		}
		if o.State != models.StateConfirmed && o.State != models.StateUnderRepair {
			return invalid("cannot mark %s irreparable: current state is %s", o.Name, o.State)
		}
		if err := s.write(ctx, &o, map[string]any{"state": models.StateIrreparable, "end_date": s.Now()}); err != nil {
			return err
		}
		return s.Audit.Post(ctx, OrderRef(o.ID), actor, "Device declared irreparable.")
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Deliver hands completed devices back. Every order is validated before any is written.
func (s *RepairService) Deliver(ctx context.Context, actor Actor, ids []uint) ([]models.RepairOrder, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil, invalid("select at least one repair order to deliver")
	}
	err := s.inTx(ctx, func(ctx context.Context) error {
		orders, release, err := s.lockOrders(ctx, ids)
		if err != nil {
			return err
		}
		defer release()

		var problems []string
		for _, o := range orders {
			switch {
			case o.State != models.StateDone:
				problems = append(problems, fmt.Sprintf("%s must be done before delivery (current state: %s)", o.Name, o.State))
			case o.DeliveryState != models.DeliveryNone:
				problems = append(problems, fmt.Sprintf("%s has already left the workshop", o.Name))
			}
		}
		if len(problems) > 0 {
			return &ValidationError{Message: "delivery refused", Records: problems}
		}

		if err := s.conn(ctx).Model(&models.RepairOrder{}).Where("id IN ?", ids).
			Update("delivery_state", models.DeliveryDelivered).Error; err != nil {
			return err
		}
		for _, o := range orders {
			if _, err := s.Tasks.Resolve(ctx, OrderRef(o.ID), models.ActivityReadyPickup, "Delivered to customer"); err != nil {
				return err
			}
			if err := s.Audit.Post(ctx, OrderRef(o.ID), actor, "Device delivered to customer."); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Log.Info("repair orders delivered", zap.Uints("order_ids", ids))
	return s.loadMany(ctx, ids)
}

// Cancel is refused to non-admins when any selected order is done.
func (s *RepairService) Cancel(ctx context.Context, actor Actor, ids []uint) ([]models.RepairOrder, error) {
	ids = uniqueIDs(ids)
	err := s.inTx(ctx, func(ctx context.Context) error {
		return s.cancel(ctx, actor, ids)
	})
	if err != nil {
		return nil, err
	}
	return s.loadMany(ctx, ids)
}

func (s *RepairService) cancel(ctx context.Context, actor Actor, ids []uint) error {
	orders, err := s.findAll(ctx, ids)
	if err != nil {
		return err
	}
	if !actor.IsAdmin() {
		var done []string
		for _, o := range orders {
			if o.State == models.StateDone {
				done = append(done, o.Name)
			}
		}
		if len(done) > 0 {
			return &PermissionError{Message: "only an administrator can cancel a completed repair", Records: done}
		}
	}
	for i := range orders {
		o := &orders[i]
		if o.State == models.StateCancel {
			continue
		}
		if err := s.write(ctx, o, map[string]any{"state": models.StateCancel}); err != nil {
			return err
		}
		if err := s.Tasks.Purge(ctx, OrderRef(o.ID)); err != nil {
			return err
		}
		if err := s.Audit.Post(ctx, OrderRef(o.ID), actor, "Repair cancelled."); err != nil {
			return err
		}
	}
	return nil
}

// Abort puts an order under repair back into the queue.
func (s *RepairService) Abort(ctx context.Context, actor Actor, id uint) (*models.RepairOrder, error) {
	err := s.inTx(ctx, func(ctx context.Context) error {
		var o models.RepairOrder
		if err := s.conn(ctx).First(&o, id).Error; err != nil {
			return notFound(err, "repair order")
		}
		if o.State != models.StateUnderRepair {
			return invalid("cannot abort %s: current state is %s (must be under_repair)", o.Name, o.State)
		}
		tech := s.technicianName(ctx, &o, actor)
		if err := s.Audit.Post(ctx, OrderRef(o.ID), actor, fmt.Sprintf("%s abandoned the repair (back to queue).", tech)); err != nil {
			return err
		}
		if err := s.Tasks.Purge(ctx, OrderRef(o.ID)); err != nil {
			return err
		}
		return s.write(ctx, &o, map[string]any{
			"state":                  models.StateConfirmed,
			"technician_employee_id": nil,
			"technician_user_id":     nil,
			"quote_state":            models.QuoteNone,
			"parts_waiting":          false,
		})
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// ResetToDraft cancels what is not cancelled yet, then reopens as draft.
func (s *RepairService) ResetToDraft(ctx context.Context, actor Actor, ids []uint) ([]models.RepairOrder, error) {
	ids = uniqueIDs(ids)
	err := s.inTx(ctx, func(ctx context.Context) error {
		if err := s.cancel(ctx, actor, ids); err != nil {
			return err
		}
		orders, err := s.findAll(ctx, ids)
		if err != nil {
			return err
		}
		for i := range orders {
			if err := s.write(ctx, &orders[i], map[string]any{"state": models.StateDraft, "end_date": nil}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.loadMany(ctx, ids)
}

// ToggleParts flips the parts-waiting flag of each order.
func (s *RepairService) ToggleParts(ctx context.Context, actor Actor, ids []uint) ([]models.RepairOrder, error) {
	ids = uniqueIDs(ids)
	err := s.inTx(ctx, func(ctx context.Context) error {
		orders, err := s.findAll(ctx, ids)
		if err != nil {
			return err
		}
		for i := range orders {
			o := &orders[i]
			waiting := !o.PartsWaiting
			if err := s.write(ctx, o, map[string]any{"parts_waiting": waiting}); err != nil {
				return err
			}
			msg := "Parts received."
			if waiting {
				msg = "Parts ordered / waiting."
			}
			if err := s.Audit.Post(ctx, OrderRef(o.ID), actor, msg); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.loadMany(ctx, ids)
}

// Delete removes drafts and cancelled orders; anything else is cancelled instead.
func (s *RepairService) Delete(ctx context.Context, actor Actor, id uint) (deleted bool, err error) {
	err = s.inTx(ctx, func(ctx context.Context) error {
		var o models.RepairOrder
		if err := s.conn(ctx).First(&o, id).Error; err != nil {
			return notFound(err, "repair order")
		}
		if o.State != models.StateDraft && o.State != models.StateCancel {
			return s.cancel(ctx, actor, []uint{id})
		}
		db := s.conn(ctx)
		if err := db.Model(&o).Association("Tags").Clear(); err != nil {
			return err
		}
		if err := s.Tasks.Purge(ctx, OrderRef(o.ID)); err != nil {
			return err
		}
		if err := db.Delete(&o).Error; err != nil {
			return err
		}
		deleted = true
		if err := s.recomputeBatch(ctx, o.BatchID); err != nil {
			return err
		}
		return s.refreshUnitState(ctx, o.UnitID)
	})
	return deleted, err
}

// NotesSeparator joins an inserted template to existing notes.
const NotesSeparator = "\n\n---\n\n"

// InsertNotesTemplate appends (mode "add") or substitutes (mode "replace") template text.
func (s *RepairService) InsertNotesTemplate(ctx context.Context, actor Actor, id, templateID uint, mode string) (*models.RepairOrder, error) {
	err := s.inTx(ctx, func(ctx context.Context) error {
		var o models.RepairOrder
		if err := s.conn(ctx).First(&o, id).Error; err != nil {
			return notFound(err, "repair order")
		}
		var tpl models.RepairNotesTemplate
		if err := s.conn(ctx).First(&tpl, templateID).Error; err != nil {
			return notFound(err, "notes template")
		}
		notes := tpl.Body
		if mode != "replace" && strings.TrimSpace(o.InternalNotes) != "" {
			notes = o.InternalNotes + NotesSeparator + tpl.Body
		}
		return s.write(ctx, &o, map[string]any{"internal_notes": notes})
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// RegenerateTrackingToken issues a new public token with a fresh expiry.
func (s *RepairService) RegenerateTrackingToken(ctx context.Context, actor Actor, id uint) (*models.RepairOrder, error) {
	if !actor.IsManager() {
		return nil, forbidden("only managers can regenerate a tracking link")
	}
	token, err := models.NewTrackingToken()
	if err != nil {
		return nil, err
	}
	exp := s.Now().AddDate(0, s.TrackingMonths, 0)
	res := s.conn(ctx).Model(&models.RepairOrder{}).Where("id = ?", id).
		Updates(map[string]any{"tracking_token": token, "tracking_token_expires_at": exp})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("repair order: %w", ErrNotFound)
	}
	o, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	o.TrackingToken = token
	return o, nil
}

func (s *RepairService) findAll(ctx context.Context, ids []uint) ([]models.RepairOrder, error) {
	if len(ids) == 0 {
		return nil, invalid("select at least one repair order")
	}
	var orders []models.RepairOrder
	if err := s.conn(ctx).Where("id IN ?", ids).Order("id").Find(&orders).Error; err != nil {
		return nil, err
	}
	if len(orders) != len(ids) {
		return nil, fmt.Errorf("repair order: %w", ErrNotFound)
	}
	return orders, nil
}

func (s *RepairService) loadMany(ctx context.Context, ids []uint) ([]models.RepairOrder, error) {
	var orders []models.RepairOrder
	err := s.conn(ctx).Preload("Partner").Where("id IN ?", ids).Order("id").Find(&orders).Error
	return orders, err
}

func (s *RepairService) loadUnit(ctx context.Context, id *uint) (*models.DeviceUnit, error) {
	if id == nil {
		return nil, nil
	}
	var u models.DeviceUnit
	if err := s.conn(ctx).First(&u, *id).Error; err != nil {
		return nil, notFound(err, "device unit")
	}
	return &u, nil
}

// checkLinks validates the variant against the device and the order against its unit.
func (s *RepairService) checkLinks(ctx context.Context, o *models.RepairOrder, unit *models.DeviceUnit) error {
	if o.VariantID != nil {
		var v models.DeviceVariant
		if err := s.conn(ctx).First(&v, *o.VariantID).Error; err != nil {
			return notFound(err, "device variant")
		}
		if o.DeviceID == nil || *o.DeviceID != v.DeviceID {
			return &ValidationError{Message: "inconsistent variant: it belongs to another device", Records: []string{o.Name}}
		}
	}
	return CheckUnitConsistency(o, unit)
}

func (s *RepairService) replaceTags(ctx context.Context, orderIDs, tagIDs []uint) error {
	var tags []models.RepairTag
	if err := s.conn(ctx).Where("id IN ?", tagIDs).Find(&tags).Error; err != nil {
		return err
	}
	for _, id := range orderIDs {
		o := models.RepairOrder{ID: id}
		if err := s.conn(ctx).Model(&o).Association("Tags").Replace(tags); err != nil {
			return err
		}
	}
	return nil
}

func (d *Deps) deviceLabel(ctx context.Context, o *models.RepairOrder) string {
	if o.DeviceID == nil {
		return "unknown device"
	}
	var dev models.Device
	if err := d.conn(ctx).Preload("Brand").First(&dev, *o.DeviceID).Error; err != nil {
		return "unknown device"
	}
	label := dev.DisplayName()
	if o.VariantID != nil {
		var v models.DeviceVariant
		if err := d.conn(ctx).First(&v, *o.VariantID).Error; err == nil && v.Name != "" {
			label += " " + v.Name
		}
	}
	return label
}

func (d *Deps) partnerLabel(ctx context.Context, id *uint) string {
	if id == nil {
		return "no customer"
	}
	var p models.Partner
	if err := d.conn(ctx).First(&p, *id).Error; err != nil {
		return "no customer"
	}
	return p.Name
}

// fillFromUnit copies device data from the unit; overwrite also replaces values already set.
func fillFromUnit(o *models.RepairOrder, u *models.DeviceUnit, overwrite bool) {
	if overwrite || o.DeviceID == nil {
		id := u.DeviceID
		o.DeviceID = &id
	}
	if u.VariantID != nil && (overwrite || o.VariantID == nil) {
		o.VariantID = u.VariantID
	}
	if u.Serial() != "" && (overwrite || o.SerialNumber == "") {
		o.SerialNumber = u.Serial()
	}
}

func applyPatch(o *models.RepairOrder, p OrderPatch) {
	setID := func(dst **uint, v *uint) {
		if v == nil {
			return
		}
		if *v == 0 {
			*dst = nil
			return
		}
		id := *v
		*dst = &id
	}
	setID(&o.PartnerID, p.PartnerID)
	setID(&o.DeviceID, p.DeviceID)
	setID(&o.VariantID, p.VariantID)
	setID(&o.UnitID, p.UnitID)
	setID(&o.TechnicianEmployeeID, p.TechnicianEmployeeID)
	setID(&o.SaleOrderID, p.SaleOrderID)
	if p.SerialNumber != nil {
		o.SerialNumber = *p.SerialNumber
	}
	if p.EntryDate != nil {
		o.EntryDate = *p.EntryDate
	}
	if p.Priority != nil {
		o.Priority = *p.Priority
	}
	if p.QuoteRequired != nil {
		o.QuoteRequired = *p.QuoteRequired
	}
	if p.InternalNotes != nil {
		o.InternalNotes = *p.InternalNotes
	}
	if p.Warranty != nil {
		o.Warranty = *p.Warranty
	}
}

// oldUnitOwner returns the owner of the currently linked unit.
func oldUnitOwner(ctx context.Context, d *Deps, unitID *uint) *uint {
	if unitID == nil {
		return nil
	}
	var u models.DeviceUnit
	if err := d.conn(ctx).First(&u, *unitID).Error; err != nil {
		return nil
	}
	return u.PartnerID
}

func sameID(a, b *uint) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
