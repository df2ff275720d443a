package controllers

import (
	"atelier-backend/middlewares"
	"atelier-backend/services"

	"github.com/gofiber/fiber/v2"
)

// bindOptional parses an optional JSON body; an empty body keeps dst's zero value.
func bindOptional(c *fiber.Ctx, dst interface{}) error {
	if len(c.Body()) == 0 {
		return middlewares.ValidateStruct(dst)
	}
	return middlewares.BindAndValidate(c, dst)
}

func CreateRepair(c *fiber.Ctx) error {
	var in services.CreateOrderInput
	if err := middlewares.BindAndValidate(c, &in); err != nil {
		return err
	}
	o, err := repairs.Create(c.UserContext(), middlewares.ActorFrom(c), in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(o)
}

func GetRepairs(c *fiber.Ctx) error {
	var f services.OrderFilter
	if err := middlewares.BindQuery(c, &f); err != nil {
		return err
	}
	orders, err := repairs.List(c.UserContext(), f)
	if err != nil {
		return err
	}
	return c.JSON(orders)
}

func GetRepair(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	o, err := repairs.Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(o)
}

func UpdateRepair(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	var p services.OrderPatch
	if err := middlewares.BindAndValidate(c, &p); err != nil {
		return err
	}
	o, err := repairs.Update(c.UserContext(), middlewares.ActorFrom(c), id, p)
	if err != nil {
		return err
	}
	return c.JSON(o)
}

// DeleteRepair deletes drafts and cancelled orders and cancels the others.
func DeleteRepair(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	deleted, err := repairs.Delete(c.UserContext(), middlewares.ActorFrom(c), id)
	if err != nil {
		return err
	}
	if deleted {
		return c.JSON(fiber.Map{"deleted": true})
	}
	o, err := repairs.Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"deleted": false, "order": o})
}

type orderAction func(c *fiber.Ctx, actor services.Actor, id uint) (interface{}, error)

// action adapts a single-order workflow step to a handler.
func action(fn orderAction) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := idParam(c)
		if err != nil {
			return err
		}
		out, err := fn(c, middlewares.ActorFrom(c), id)
		if err != nil {
			return err
		}
		return c.JSON(out)
	}
}

var (
	ConfirmRepair = action(func(c *fiber.Ctx, a services.Actor, id uint) (interface{}, error) {
		return repairs.Confirm(c.UserContext(), a, id)
	})

	StartRepair = action(func(c *fiber.Ctx, a services.Actor, id uint) (interface{}, error) {
		var opts services.StartOptions
		if err := bindOptional(c, &opts); err != nil {
			return nil, err
		}
		return repairs.StartRepair(c.UserContext(), a, id, opts)
	})

	RequestQuote = action(func(c *fiber.Ctx, a services.Actor, id uint) (interface{}, error) {
		return repairs.RequestQuote(c.UserContext(), a, id)
	})

	ApproveQuote = action(func(c *fiber.Ctx, a services.Actor, id uint) (interface{}, error) {
		return repairs.ApproveQuote(c.UserContext(), a, id)
	})

	RefuseQuote = action(func(c *fiber.Ctx, a services.Actor, id uint) (interface{}, error) {
		return repairs.RefuseQuote(c.UserContext(), a, id)
	})

	CompleteRepair = action(func(c *fiber.Ctx, a services.Actor, id uint) (interface{}, error) {
		var body struct {
			Force bool `json:"force"`
		}
		if err := bindOptional(c, &body); err != nil {
			return nil, err
		}
		return repairs.Complete(c.UserContext(), a, id, body.Force)
	})

	MarkIrreparable = action(func(c *fiber.Ctx, a services.Actor, id uint) (interface{}, error) {
		return repairs.MarkIrreparable(c.UserContext(), a, id)
	})

	AbortRepair = action(func(c *fiber.Ctx, a services.Actor, id uint) (interface{}, error) {
		return repairs.Abort(c.UserContext(), a, id)
	})

	ResetToDraft = action(func(c *fiber.Ctx, a services.Actor, id uint) (interface{}, error) {
		orders, err := repairs.ResetToDraft(c.UserContext(), a, []uint{id})
		if err != nil || len(orders) == 0 {
			return nil, err
		}
		return orders[0], nil
	})

	ToggleParts = action(func(c *fiber.Ctx, a services.Actor, id uint) (interface{}, error) {
		orders, err := repairs.ToggleParts(c.UserContext(), a, []uint{id})
		if err != nil || len(orders) == 0 {
			return nil, err
		}
		return orders[0], nil
	})

	InsertNotesTemplate = action(func(c *fiber.Ctx, a services.Actor, id uint) (interface{}, error) {
		var body struct {
			TemplateID uint   `json:"template_id" validate:"required"`
			Mode       string `json:"mode" validate:"omitempty,oneof=add replace"`
		}
		if err := middlewares.BindAndValidate(c, &body); err != nil {
			return nil, err
		}
		return repairs.InsertNotesTemplate(c.UserContext(), a, id, body.TemplateID, body.Mode)
	})

	AddToBatch = action(func(c *fiber.Ctx, a services.Actor, id uint) (interface{}, error) {
		return batches.AddOrder(c.UserContext(), a, id)
	})

	AbandonDevice = action(func(c *fiber.Ctx, a services.Actor, id uint) (interface{}, error) {
		var in services.AbandonInput
		if err := bindOptional(c, &in); err != nil {
			return nil, err
		}
		return stock.Abandon(c.UserContext(), a, id, in)
	})

	RegenerateTrackingToken = action(func(c *fiber.Ctx, a services.Actor, id uint) (interface{}, error) {
		o, err := repairs.RegenerateTrackingToken(c.UserContext(), a, id)
		if err != nil {
			return nil, err
		}
		return fiber.Map{
			"token":      o.TrackingToken,
			"expires_at": o.TrackingTokenExpiresAt,
			"path":       "/api/tracking/" + o.TrackingToken,
		}, nil
	})
)

func DeliverRepairs(c *fiber.Ctx) error {
	ids, err := bindIDs(c)
	if err != nil {
		return err
	}
	orders, err := repairs.Deliver(c.UserContext(), middlewares.ActorFrom(c), ids)
	if err != nil {
		return err
	}
	return c.JSON(orders)
}

func CancelRepairs(c *fiber.Ctx) error {
	ids, err := bindIDs(c)
	if err != nil {
		return err
	}
	orders, err := repairs.Cancel(c.UserContext(), middlewares.ActorFrom(c), ids)
	if err != nil {
		return err
	}
	return c.JSON(orders)
}

func MergeRepairs(c *fiber.Ctx) error {
	ids, err := bindIDs(c)
	if err != nil {
		return err
	}
	batch, err := batches.Merge(c.UserContext(), middlewares.ActorFrom(c), ids)
	if err != nil {
		return err
	}
	return c.JSON(batch)
}

func MassUpdateRepairs(c *fiber.Ctx) error {
	var in services.MassUpdate
	if err := middlewares.BindAndValidate(c, &in); err != nil {
		return err
	}
	n, err := massUpdate.Apply(c.UserContext(), middlewares.ActorFrom(c), in)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"updated": n})
}
