package controllers

import (
	"atelier-backend/middlewares"
	"atelier-backend/services"

	"github.com/gofiber/fiber/v2"
)

func CreateBrand(c *fiber.Ctx) error {
	var in services.BrandInput
	if err := middlewares.BindAndValidate(c, &in); err != nil {
		return err
	}
	b, err := catalog.CreateBrand(c.UserContext(), in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(b)
}

func CreateCategory(c *fiber.Ctx) error {
	var in services.CategoryInput
	if err := middlewares.BindAndValidate(c, &in); err != nil {
		return err
	}
	cat, err := catalog.CreateCategory(c.UserContext(), in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(cat)
}

func CreateDevice(c *fiber.Ctx) error {
	var in services.DeviceInput
	if err := middlewares.BindAndValidate(c, &in); err != nil {
		return err
	}
	d, err := catalog.CreateDevice(c.UserContext(), in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(d)
}

// GetDevices lists devices, restricted to a category subtree with ?category_id=.
func GetDevices(c *fiber.Ctx) error {
	devices, err := catalog.ListDevices(c.UserContext(), queryID(c, "category_id"))
	if err != nil {
		return err
	}
	return c.JSON(devices)
}

func ReclassifyDevices(c *fiber.Ctx) error {
	var in services.ReclassifyInput
	if err := middlewares.BindAndValidate(c, &in); err != nil {
		return err
	}
	n, err := catalog.Reclassify(c.UserContext(), in)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"updated": n})
}

func CreateUnit(c *fiber.Ctx) error {
	var in services.UnitInput
	if err := middlewares.BindAndValidate(c, &in); err != nil {
		return err
	}
	u, err := catalog.CreateUnit(c.UserContext(), in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(u)
}

// CreateTag answers 200 with the existing tag when the name is already taken.
func CreateTag(c *fiber.Ctx) error {
	var in services.TagInput
	if err := middlewares.BindAndValidate(c, &in); err != nil {
		return err
	}
	tag, created, err := catalog.CreateTag(c.UserContext(), in)
	if err != nil {
		return err
	}
	if created {
		c.Status(fiber.StatusCreated)
	}
	return c.JSON(tag)
}

func GetTags(c *fiber.Ctx) error {
	tags, err := catalog.TagsForCategory(c.UserContext(), queryID(c, "category_id"), c.Query("q"))
	if err != nil {
		return err
	}
	return c.JSON(tags)
}

func CreateNotesTemplate(c *fiber.Ctx) error {
	var in services.NotesTemplateInput
	if err := middlewares.BindAndValidate(c, &in); err != nil {
		return err
	}
	t, err := catalog.CreateNotesTemplate(c.UserContext(), in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(t)
}

// ReceiveUnit takes a customer's unit into stock without an abandonment.
func ReceiveUnit(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	var in services.ReceiveInput
	if err := bindOptional(c, &in); err != nil {
		return err
	}
	move, err := stock.Receive(c.UserContext(), middlewares.ActorFrom(c), id, in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(move)
}
