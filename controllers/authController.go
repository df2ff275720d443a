package controllers

import (
	"net/mail"
	"strings"

	"atelier-backend/middlewares"
	"atelier-backend/models"

	"github.com/gofiber/fiber/v2"
)

type loginBody struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func Login(c *fiber.Ctx) error {
	var data loginBody
	if err := middlewares.BindAndValidate(c, &data); err != nil {
		return err
	}
	email := strings.ToLower(strings.TrimSpace(data.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "invalid email format"})
	}

	var user models.User
	err := db(c).Where("LOWER(email) = ?", email).Limit(1).Find(&user).Error
	if err != nil {
		return err
	}
	if user.Id == "" || !user.Active || user.ComparePassword(data.Password) != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "invalid credentials"})
	}

	token, err := middlewares.GenerateJWT(user)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"token": token,
		"user": fiber.Map{
			"id":          user.Id,
			"name":        user.Name,
			"email":       user.Email,
			"role":        user.Role,
			"employee_id": user.EmployeeID,
		},
	})
}

// Logout is a no-op for bearer tokens; clients drop the token.
func Logout(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"message": "success"})
}

// Me returns the authenticated actor, including the kiosk identity when present.
func Me(c *fiber.Ctx) error {
	actor := middlewares.ActorFrom(c)
	return c.JSON(fiber.Map{
		"id":                actor.UserID,
		"name":              actor.Name,
		"role":              actor.Role,
		"employee_id":       actor.EmployeeID,
		"kiosk_employee_id": actor.KioskEmployeeID,
		"working_employee":  actor.WorkingEmployee(),
	})
}
