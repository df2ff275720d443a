package controllers

import "github.com/gofiber/fiber/v2"

// GetTracking is the public status page of a repair. No authentication.
func GetTracking(c *fiber.Ctx) error {
	status, err := tracking.Lookup(c.UserContext(), c.Params("token"))
	if err != nil {
		return err
	}
	return c.JSON(status)
}
