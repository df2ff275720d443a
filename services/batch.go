package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"atelier-backend/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AggregateState folds member states into the batch state.
// Precedence: all terminal, then any under repair, then all non-cancelled confirmed.
func AggregateState(states []models.RepairState) models.BatchState {
	if len(states) == 0 {
		return models.BatchDraft
	}

	allTerminal := true
	anyUnderRepair := false
	allConfirmed := true
	for _, st := range states {
		if !st.Terminal() {
			allTerminal = false
		}
		if st == models.StateUnderRepair {
			anyUnderRepair = true
		}
		if st != models.StateCancel && st != models.StateConfirmed {
			allConfirmed = false
		}
	}

	switch {
	case allTerminal:
		return models.BatchProcessed
	case anyUnderRepair:
		return models.BatchUnderRepair
	case allConfirmed:
		return models.BatchConfirmed
	default:
		return models.BatchDraft
	}
}

// BatchPrefix is the first four letters of the partner name, upper-cased without spaces or dots.
func BatchPrefix(partnerName string) string {
	clean := strings.NewReplacer(" ", "", ".", "").Replace(strings.ToUpper(partnerName))
	r := []rune(clean)
	if len(r) > 4 {
		r = r[:4]
	}
	if len(r) == 0 {
		return ""
	}
	return string(r) + "-"
}

type BatchService struct {
	*Deps
}

func NewBatchService(d *Deps) *BatchService { return &BatchService{Deps: d} }

func (s *BatchService) Get(ctx context.Context, id uint) (*models.RepairBatch, error) {
	var b models.RepairBatch
	err := s.conn(ctx).Preload("Partner").Preload("Orders", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		First(&b, id).Error
	if err != nil {
		return nil, notFound(err, "repair batch")
	}
	return &b, nil
}

func (d *Deps) createBatch(ctx context.Context, partnerID *uint) (*models.RepairBatch, error) {
	seq, err := d.nextReference(ctx, "repair.batch")
	if err != nil {
		return nil, err
	}
	prefix := ""
	if partnerID != nil {
		var p models.Partner
		if err := d.conn(ctx).First(&p, *partnerID).Error; err != nil {
			return nil, notFound(err, "customer")
		}
		prefix = BatchPrefix(p.Name)
	}
	b := models.RepairBatch{Name: prefix + seq, PartnerID: partnerID, State: models.BatchDraft}
	if err := d.conn(ctx).Create(&b).Error; err != nil {
		return nil, fmt.Errorf("create batch: %w", err)
	}
	return &b, nil
}

// recomputeBatch re-materializes the aggregate state of batchID.
func (d *Deps) recomputeBatch(ctx context.Context, batchID *uint) error {
	if batchID == nil {
		return nil
	}
	var states []models.RepairState
	if err := d.conn(ctx).Model(&models.RepairOrder{}).Where("batch_id = ?", *batchID).Pluck("state", &states).Error; err != nil {
		return err
	}
	return d.conn(ctx).Model(&models.RepairBatch{}).Where("id = ?", *batchID).
		Update("state", AggregateState(states)).Error
}

// AddOrder attaches the order to a batch, creating one for its customer when it has none.
func (s *BatchService) AddOrder(ctx context.Context, actor Actor, orderID uint) (*models.RepairBatch, error) {
	var batch *models.RepairBatch
	err := s.inTx(ctx, func(ctx context.Context) error {
		var o models.RepairOrder
		if err := s.conn(ctx).First(&o, orderID).Error; err != nil {
			return notFound(err, "repair order")
		}
		if o.BatchID != nil {
			var b models.RepairBatch
			if err := s.conn(ctx).First(&b, *o.BatchID).Error; err != nil {
				return err
			}
			batch = &b
			return nil
		}
		if o.PartnerID == nil {
			return invalid("repair order %s has no customer", o.Name)
		}
		b, err := s.createBatch(ctx, o.PartnerID)
		if err != nil {
			return err
		}
		if err := s.conn(ctx).Model(&o).Update("batch_id", b.ID).Error; err != nil {
			return err
		}
		batch = b
		return s.recomputeBatch(ctx, &b.ID)
	})
	return batch, err
}

// Merge regroups the orders under the oldest batch among them.
// Emptied batches are deleted unless they carry invoices or quotations.
func (s *BatchService) Merge(ctx context.Context, actor Actor, orderIDs []uint) (*models.RepairBatch, error) {
	orderIDs = uniqueIDs(orderIDs)
	if len(orderIDs) == 0 {
		return nil, invalid("select at least one repair order to merge")
	}

	var target *models.RepairBatch
	err := s.inTx(ctx, func(ctx context.Context) error {
		var orders []models.RepairOrder
		if err := s.conn(ctx).Preload("Partner").Where("id IN ?", orderIDs).Order("id").Find(&orders).Error; err != nil {
			return err
		}
		if len(orders) != len(orderIDs) {
			return fmt.Errorf("repair order: %w", ErrNotFound)
		}

		partners := make(map[uint]struct{})
		for _, o := range orders {
			var pid uint
			if o.PartnerID != nil {
				pid = *o.PartnerID
			}
			partners[pid] = struct{}{}
		}
		if len(partners) > 1 {
			records := make([]string, 0, len(orders))
			for _, o := range orders {
				records = append(records, fmt.Sprintf("%s (%s)", o.Name, partnerName(o.Partner)))
			}
			return &ValidationError{Message: "repair orders must belong to a single customer to be merged", Records: records}
		}
		partnerID := orders[0].PartnerID
		if partnerID == nil {
			return invalid("repair orders need a customer to be merged")
		}

		var batchIDs []uint
		seen := map[uint]bool{}
		for _, o := range orders {
			if o.BatchID != nil && !seen[*o.BatchID] {
				seen[*o.BatchID] = true
				batchIDs = append(batchIDs, *o.BatchID)
			}
		}
		sort.Slice(batchIDs, func(i, j int) bool { return batchIDs[i] < batchIDs[j] })

		if len(batchIDs) > 0 {
			var b models.RepairBatch
			if err := s.conn(ctx).First(&b, batchIDs[0]).Error; err != nil {
				return err
			}
			target = &b
		} else {
			b, err := s.createBatch(ctx, partnerID)
			if err != nil {
				return err
			}
			target = b
		}

		if err := s.conn(ctx).Model(&models.RepairOrder{}).Where("id IN ?", orderIDs).
			Update("batch_id", target.ID).Error; err != nil {
			return err
		}

		for _, id := range batchIDs {
			if id == target.ID {
				continue
			}
			if err := s.deleteIfEmpty(ctx, id); err != nil {
				return err
			}
			// batches that keep members lost some of them
			if err := s.recomputeBatch(ctx, &id); err != nil {
				return err
			}
		}
		if err := s.recomputeBatch(ctx, &target.ID); err != nil {
			return err
		}
		return s.conn(ctx).First(target, target.ID).Error
	})
	if err != nil {
		return nil, err
	}
	s.Log.Info("repair orders merged", zap.Uint("batch_id", target.ID), zap.Int("orders", len(orderIDs)))
	return target, nil
}

// Delete removes an empty batch without financial documents.
func (s *BatchService) Delete(ctx context.Context, batchID uint) error {
	return s.inTx(ctx, func(ctx context.Context) error {
		var b models.RepairBatch
		if err := s.conn(ctx).First(&b, batchID).Error; err != nil {
			return notFound(err, "repair batch")
		}
		var members int64
		if err := s.conn(ctx).Model(&models.RepairOrder{}).Where("batch_id = ?", batchID).Count(&members).Error; err != nil {
			return err
		}
		if members > 0 {
			return invalid("batch %s still has %d repair orders", b.Name, members)
		}
		return s.deleteIfEmpty(ctx, batchID)
	})
}

func (s *BatchService) deleteIfEmpty(ctx context.Context, batchID uint) error {
	db := s.conn(ctx)
	var members int64
	if err := db.Model(&models.RepairOrder{}).Where("batch_id = ?", batchID).Count(&members).Error; err != nil {
		return err
	}
	if members > 0 {
		return nil
	}

	var invoices, quotes int64
	if err := db.Model(&models.Invoice{}).Where("batch_id = ?", batchID).Count(&invoices).Error; err != nil {
		return err
	}
	if err := db.Model(&models.SaleOrder{}).Where("batch_id = ?", batchID).Count(&quotes).Error; err != nil {
		return err
	}
	if invoices+quotes > 0 {
		var b models.RepairBatch
		_ = db.First(&b, batchID).Error
		return &ValidationError{
			Message: "cannot delete a batch linked to invoices or quotations",
			Records: []string{b.Name},
		}
	}
	return db.Delete(&models.RepairBatch{}, batchID).Error
}

func partnerName(p *models.Partner) string {
	if p == nil {
		return "no customer"
	}
	return p.Name
}
