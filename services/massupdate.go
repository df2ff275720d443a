package services

import (
	"context"
	"fmt"
	"strings"

	"atelier-backend/models"

	"go.uber.org/zap"
)

const (
	TagsAdd     = "add"
	TagsReplace = "replace"
	TagsRemove  = "remove"
)

// MassUpdate is a bulk edit. Nil fields are not touched; a zero technician id unassigns.
type MassUpdate struct {
	OrderIDs     []uint           `json:"order_ids" validate:"required,min=1"`
	TechnicianID *uint            `json:"technician_employee_id"`
	Priority     *models.Priority `json:"priority" validate:"omitempty,oneof=0 1"`
	Warranty     *models.Warranty `json:"warranty" validate:"omitempty,oneof=none sav sar"`
	TagAction    string           `json:"tag_action" validate:"omitempty,oneof=add replace remove"`
	TagIDs       []uint           `json:"tag_ids"`
}

type MassUpdateService struct {
	*Deps
}

func NewMassUpdateService(d *Deps) *MassUpdateService { return &MassUpdateService{Deps: d} }

// Modifiable reports whether bulk edits may touch the order.
func Modifiable(o models.RepairOrder) bool {
	return o.State != models.StateCancel && o.DeliveryState == models.DeliveryNone
}

// Apply validates the whole selection, then writes every change and posts one note per order.
func (s *MassUpdateService) Apply(ctx context.Context, actor Actor, in MassUpdate) (int, error) {
	if !actor.IsManager() {
		return 0, forbidden("only managers can bulk edit repair orders")
	}
	ids := uniqueIDs(in.OrderIDs)
	if len(ids) == 0 {
		return 0, invalid("select at least one repair order")
	}

	err := s.inTx(ctx, func(ctx context.Context) error {
		var orders []models.RepairOrder
		if err := s.conn(ctx).Where("id IN ?", ids).Order("id").Find(&orders).Error; err != nil {
			return err
		}
		if len(orders) != len(ids) {
			return fmt.Errorf("repair order: %w", ErrNotFound)
		}

		var locked []string
		for _, o := range orders {
			if !Modifiable(o) {
				locked = append(locked, o.Name)
			}
		}
		if len(locked) > 0 {
			return &ValidationError{Message: "some repairs cannot be modified (cancelled or delivered)", Records: locked}
		}
		if !actor.IsManager() {
			me := actor.WorkingEmployee()
			var foreign []string
			for _, o := range orders {
				if o.TechnicianEmployeeID != nil && (me == nil || *o.TechnicianEmployeeID != *me) {
					foreign = append(foreign, o.Name)
				}
			}
			if len(foreign) > 0 {
				return &PermissionError{Message: "you can only modify your own or unassigned repairs", Records: foreign}
			}
		}

		vals := map[string]any{}
		var changes []string
		if in.TechnicianID != nil {
			if *in.TechnicianID == 0 {
				vals["technician_employee_id"] = nil
				vals["technician_user_id"] = nil
				changes = append(changes, "Technician → none")
			} else {
				var emp models.Employee
				if err := s.conn(ctx).First(&emp, *in.TechnicianID).Error; err != nil {
					return notFound(err, "employee")
				}
				vals["technician_employee_id"] = emp.ID
				if emp.UserID != nil {
					vals["technician_user_id"] = *emp.UserID
				}
				changes = append(changes, "Technician → "+emp.Name)
			}
		}
		if in.Priority != nil {
			vals["priority"] = *in.Priority
			changes = append(changes, "Priority → "+priorityLabel(*in.Priority))
		}
		if in.Warranty != nil {
			vals["warranty"] = *in.Warranty
			changes = append(changes, "Warranty → "+warrantyLabel(*in.Warranty))
		}
		if len(vals) > 0 {
			if err := s.conn(ctx).Model(&models.RepairOrder{}).Where("id IN ?", ids).Updates(vals).Error; err != nil {
				return err
			}
		}

		if in.TagAction != "" && len(in.TagIDs) > 0 {
			names, err := s.applyTags(ctx, orders, in.TagAction, uniqueIDs(in.TagIDs))
			if err != nil {
				return err
			}
			changes = append(changes, fmt.Sprintf("Tags (%s) → %s", in.TagAction, strings.Join(names, ", ")))
		}

		if len(changes) == 0 {
			return nil
		}
		body := fmt.Sprintf("Bulk update by %s:\n• %s", actor.Name, strings.Join(changes, "\n• "))
		for _, o := range orders {
			if err := s.Audit.Post(ctx, OrderRef(o.ID), actor, body); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.Log.Info("repair orders bulk updated", zap.Uints("order_ids", ids), zap.String("user_id", actor.UserID))
	return len(ids), nil
}

func (s *MassUpdateService) applyTags(ctx context.Context, orders []models.RepairOrder, action string, tagIDs []uint) ([]string, error) {
	var tags []models.RepairTag
	if err := s.conn(ctx).Where("id IN ?", tagIDs).Order("id").Find(&tags).Error; err != nil {
		return nil, err
	}
	if len(tags) != len(tagIDs) {
		return nil, fmt.Errorf("repair tag: %w", ErrNotFound)
	}
	names := make([]string, len(tags))
	for i, t := range tags {
		names[i] = t.Name
	}

	for i := range orders {
		assoc := s.conn(ctx).Model(&orders[i]).Association("Tags")
		var err error
		switch action {
		case TagsReplace:
			err = assoc.Replace(tags)
		case TagsAdd:
			err = assoc.Append(tags)
		case TagsRemove:
			err = assoc.Delete(tags)
		default:
			return nil, invalid("unknown tag action %q", action)
		}
		if err != nil {
			return nil, err
		}
	}
	return names, nil
}

func priorityLabel(p models.Priority) string {
	if p == models.PriorityUrgent {
		return "Urgent"
	}
	return "Normal"
}

func warrantyLabel(w models.Warranty) string {
	switch w {
	case models.WarrantySAV:
		return "SAV"
	case models.WarrantySAR:
		return "SAR"
	default:
		return "None"
	}
}
