package services

import (
	"context"
	"fmt"
	"strings"

	"atelier-backend/models"
	"atelier-backend/utils"

	"go.uber.org/zap"
	"gorm.io/gorm/clause"
)

type AbandonInput struct {
	LocationCode string `json:"location_code" validate:"omitempty,oneof=STOCK COLLECTION"`
	Note         string `json:"note" validate:"max=2000"`
}

type StockService struct {
	*Deps
}

func NewStockService(d *Deps) *StockService { return &StockService{Deps: d} }

// DefaultAbandonLocation sends working repaired devices to shop stock and everything else to collection.
func DefaultAbandonLocation(state models.RepairState, functional models.FunctionalState) string {
	if state == models.StateDone && functional == models.FunctionalWorking {
		return models.LocationStockCode
	}
	return models.LocationCollectionCode
}

// Abandon takes a device left behind by its customer into the shop's stock.
func (s *StockService) Abandon(ctx context.Context, actor Actor, orderID uint, in AbandonInput) (*models.StockMove, error) {
	if !actor.IsManager() {
		return nil, forbidden("only managers can take an abandoned device into stock")
	}
	var move models.StockMove
	err := s.inTx(ctx, func(ctx context.Context) error {
		orders, release, err := s.lockOrders(ctx, []uint{orderID})
		if err != nil {
			return err
		}
		defer release()
		o := &orders[0]

		if o.State != models.StateDone && o.State != models.StateIrreparable {
			return invalid("cannot abandon %s: current state is %s (must be done or irreparable)", o.Name, o.State)
		}
		if o.DeliveryState != models.DeliveryNone {
			return invalid("%s has already left the workshop", o.Name)
		}
		if o.UnitID == nil {
			return invalid("%s has no device unit to take into stock", o.Name)
		}
		var unit models.DeviceUnit
		if err := s.conn(ctx).First(&unit, *o.UnitID).Error; err != nil {
			return notFound(err, "device unit")
		}

		code := in.LocationCode
		if code == "" {
			code = DefaultAbandonLocation(o.State, unit.FunctionalState)
		}
		src, err := s.location(ctx, models.LocationCustomerCode)
		if err != nil {
			return err
		}
		dest, err := s.location(ctx, code)
		if err != nil {
			return err
		}
		move = models.StockMove{
			UnitID:         unit.ID,
			RepairOrderID:  &o.ID,
			LocationID:     src.ID,
			LocationDestID: dest.ID,
			Note:           strings.TrimSpace(in.Note),
		}
		if err := s.recordMove(ctx, &move); err != nil {
			return err
		}
		if err := s.conn(ctx).Model(&models.DeviceUnit{}).Where("id = ?", unit.ID).
			Updates(map[string]any{"stock_state": models.StockInStock, "partner_id": nil}).Error; err != nil {
			return err
		}
		if err := s.conn(ctx).Model(&models.RepairOrder{}).Where("id = ?", o.ID).
			Update("delivery_state", models.DeliveryAbandoned).Error; err != nil {
			return err
		}
		if _, err := s.Tasks.Resolve(ctx, OrderRef(o.ID), models.ActivityReadyPickup, "Abandoned by customer"); err != nil {
			return err
		}
		body := fmt.Sprintf("Device abandoned by the customer, moved to %s (%s).", dest.Name, move.Reference)
		return s.Audit.Post(ctx, OrderRef(o.ID), actor, body)
	})
	if err != nil {
		return nil, err
	}
	s.Log.Info("device abandoned", zap.Uint("order_id", orderID), zap.String("move", move.Reference))
	return &move, nil
}

// DefaultReceiveLocation sends working devices to shop stock and the rest to collection.
func DefaultReceiveLocation(functional models.FunctionalState) string {
	if functional == models.FunctionalWorking {
		return models.LocationStockCode
	}
	return models.LocationCollectionCode
}

type ReceiveInput struct {
	LocationCode string `json:"location_code" validate:"omitempty,oneof=STOCK COLLECTION"`
	Note         string `json:"note" validate:"max=2000"`
}

// Receive takes a unit into the shop's stock without abandonment. The owner is kept.
func (s *StockService) Receive(ctx context.Context, actor Actor, unitID uint, in ReceiveInput) (*models.StockMove, error) {
	if !actor.IsManager() {
		return nil, forbidden("only managers can take a device into stock")
	}
	utils.Normalize(&in)
	var move models.StockMove
	err := s.inTx(ctx, func(ctx context.Context) error {
		var unit models.DeviceUnit
		if err := s.conn(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).First(&unit, unitID).Error; err != nil {
			return notFound(err, "device unit")
		}
		if unit.StockState != models.StockClient {
			return invalid("unit %d is not with a customer (stock state %s)", unit.ID, unit.StockState)
		}
		if unit.Serial() == "" {
			return invalid("assign a serial number to unit %d before taking it into stock", unit.ID)
		}

		code := in.LocationCode
		if code == "" {
			code = DefaultReceiveLocation(unit.FunctionalState)
		}
		src, err := s.location(ctx, models.LocationCustomerCode)
		if err != nil {
			return err
		}
		dest, err := s.location(ctx, code)
		if err != nil {
			return err
		}
		move = models.StockMove{UnitID: unit.ID, LocationID: src.ID, LocationDestID: dest.ID, Note: in.Note}
		if err := s.recordMove(ctx, &move); err != nil {
			return err
		}

		line := fmt.Sprintf("[%s] Stock entry, location: %s.", s.Now().Format("02/01/2006"), dest.Name)
		if in.Note != "" {
			line += " " + in.Note
		}
		notes := line
		if unit.Notes != "" {
			notes = unit.Notes + "\n" + line
		}
		if err := s.conn(ctx).Model(&models.DeviceUnit{}).Where("id = ?", unit.ID).
			Updates(map[string]any{"stock_state": models.StockInStock, "notes": notes}).Error; err != nil {
			return err
		}
		return s.Audit.Post(ctx, Ref{Model: ModelDeviceUnit, ID: unit.ID}, actor, fmt.Sprintf("Taken into %s (%s).", dest.Name, move.Reference))
	})
	if err != nil {
		return nil, err
	}
	s.Log.Info("device received into stock", zap.Uint("unit_id", unitID), zap.String("move", move.Reference))
	return &move, nil
}

type SellUnitInput struct {
	UnitID       *uint   `json:"unit_id"`
	DeviceID     uint    `json:"device_id"`
	VariantID    *uint   `json:"variant_id"`
	SerialNumber *string `json:"serial_number" validate:"omitempty,max=128"`
	PriceUnit    float64 `json:"price_unit" validate:"gte=0"`
}

// SellUnit adds a stock unit to a draft sale order and hands it over to the buyer.
// Without UnitID a new unit of DeviceID is registered straight into stock first.
func (s *StockService) SellUnit(ctx context.Context, actor Actor, saleOrderID uint, in SellUnitInput) (*models.SaleOrderLine, error) {
	utils.Normalize(&in)
	var line models.SaleOrderLine
	err := s.inTx(ctx, func(ctx context.Context) error {
		var so models.SaleOrder
		if err := s.conn(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).First(&so, saleOrderID).Error; err != nil {
			return notFound(err, "sale order")
		}
		if so.State != models.DocumentDraft {
			return invalid("cannot add a device to %s: current state is %s (must be draft)", so.Name, so.State)
		}

		var unit models.DeviceUnit
		if in.UnitID != nil {
			if err := s.conn(ctx).Preload("Device.Brand").First(&unit, *in.UnitID).Error; err != nil {
				return notFound(err, "device unit")
			}
			if unit.StockState != models.StockInStock {
				return invalid("unit %d is not in stock (stock state %s)", unit.ID, unit.StockState)
			}
		} else {
			if in.DeviceID == 0 {
				return invalid("select a stock unit or a device model")
			}
			created, err := NewCatalogService(s.Deps).CreateUnit(ctx, UnitInput{DeviceID: in.DeviceID, VariantID: in.VariantID, SerialNumber: in.SerialNumber})
			if err != nil {
				return err
			}
			if err := s.conn(ctx).Preload("Device.Brand").First(&unit, created.ID).Error; err != nil {
				return err
			}
		}

		var seq int
		if err := s.conn(ctx).Model(&models.SaleOrderLine{}).Where("sale_order_id = ?", so.ID).
			Select("COALESCE(MAX(sequence), 0)").Row().Scan(&seq); err != nil {
			return err
		}
		line = models.SaleOrderLine{
			SaleOrderID:   so.ID,
			Sequence:      seq + 1,
			DeviceUnitID:  &unit.ID,
			Name:          unitLabel(&unit),
			Quantity:      1,
			PriceUnit:     in.PriceUnit,
			PriceSubtotal: in.PriceUnit,
		}
		if err := s.conn(ctx).Create(&line).Error; err != nil {
			return fmt.Errorf("create sale order line: %w", err)
		}
		if err := s.conn(ctx).Model(&models.SaleOrder{}).Where("id = ?", so.ID).Updates(map[string]any{
			"amount_untaxed": utils.Round2(so.AmountUntaxed + in.PriceUnit),
			"amount_total":   utils.Round2(so.AmountTotal + in.PriceUnit),
		}).Error; err != nil {
			return err
		}

		src, err := s.location(ctx, models.LocationStockCode)
		if err != nil {
			return err
		}
		dest, err := s.location(ctx, models.LocationCustomerCode)
		if err != nil {
			return err
		}
		move := models.StockMove{UnitID: unit.ID, SaleOrderID: &so.ID, LocationID: src.ID, LocationDestID: dest.ID}
		if err := s.recordMove(ctx, &move); err != nil {
			return err
		}
		if err := s.conn(ctx).Model(&models.DeviceUnit{}).Where("id = ?", unit.ID).
			Updates(map[string]any{"stock_state": models.StockSold, "partner_id": so.PartnerID}).Error; err != nil {
			return err
		}
		body := fmt.Sprintf("Device %s sold from stock (%s).", line.Name, move.Reference)
		return s.Audit.Post(ctx, Ref{Model: ModelSaleOrder, ID: so.ID}, actor, body)
	})
	if err != nil {
		return nil, err
	}
	s.Log.Info("device sold", zap.Uint("sale_order_id", saleOrderID), zap.Uint("line_id", line.ID))
	return &line, nil
}

func unitLabel(u *models.DeviceUnit) string {
	var label string
	if u.Device != nil {
		label = u.Device.DisplayName()
	}
	if serial := u.Serial(); serial != "" {
		label += " (" + serial + ")"
	}
	return strings.TrimSpace(label)
}

func (s *StockService) location(ctx context.Context, code string) (models.StockLocation, error) {
	var l models.StockLocation
	if err := s.conn(ctx).Where(&models.StockLocation{Code: code}).First(&l).Error; err != nil {
		return l, notFound(err, "stock location "+code)
	}
	return l, nil
}

// recordMove numbers and stores a move.
func (s *StockService) recordMove(ctx context.Context, move *models.StockMove) error {
	ref, err := s.nextReference(ctx, "stock.move")
	if err != nil {
		return err
	}
	move.Reference = ref
	if err := s.conn(ctx).Create(move).Error; err != nil {
		return fmt.Errorf("create stock move: %w", err)
	}
	return nil
}
