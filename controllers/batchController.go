package controllers

import "github.com/gofiber/fiber/v2"

func GetBatch(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	b, err := batches.Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(b)
}

func DeleteBatch(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	if err := batches.Delete(c.UserContext(), id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
