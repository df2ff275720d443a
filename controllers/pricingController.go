package controllers

import (
	"atelier-backend/middlewares"
	"atelier-backend/services"

	"github.com/gofiber/fiber/v2"
)

func StartPricing(c *fiber.Ctx) error {
	var in services.StartPricingInput
	if err := middlewares.BindAndValidate(c, &in); err != nil {
		return err
	}
	session, err := pricing.Start(c.UserContext(), middlewares.ActorFrom(c), in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(session)
}

// pricingStep binds the form submitted at the current step of a session.
func pricingStep(c *fiber.Ctx) (uint, services.PricingInput, error) {
	var in services.PricingInput
	id, err := idParam(c)
	if err != nil {
		return 0, in, err
	}
	if err := middlewares.BindAndValidate(c, &in); err != nil {
		return 0, in, err
	}
	return id, in, nil
}

func PreviewPricing(c *fiber.Ctx) error {
	id, in, err := pricingStep(c)
	if err != nil {
		return err
	}
	lines, err := pricing.Preview(c.UserContext(), id, in)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"lines": lines})
}

func NextPricing(c *fiber.Ctx) error {
	id, in, err := pricingStep(c)
	if err != nil {
		return err
	}
	session, err := pricing.Next(c.UserContext(), middlewares.ActorFrom(c), id, in)
	if err != nil {
		return err
	}
	return c.JSON(session)
}

func ConfirmPricing(c *fiber.Ctx) error {
	id, in, err := pricingStep(c)
	if err != nil {
		return err
	}
	session, err := pricing.Confirm(c.UserContext(), middlewares.ActorFrom(c), id, in)
	if err != nil {
		return err
	}
	return c.JSON(session)
}
