package controllers

import (
	"atelier-backend/middlewares"
	"atelier-backend/models"
	"atelier-backend/services"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

func orderedLines(tx *gorm.DB) *gorm.DB { return tx.Order("sequence, id") }

// GetInvoice returns a generated invoice with its lines.
func GetInvoice(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	var invoice models.Invoice
	if err := db(c).Preload("Lines", orderedLines).First(&invoice, id).Error; err != nil {
		return fiber.NewError(fiber.StatusNotFound, "invoice not found")
	}
	return c.JSON(invoice)
}

// GetQuote returns a generated quotation with its lines.
func GetQuote(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	var quote models.SaleOrder
	if err := db(c).Preload("Lines", orderedLines).First(&quote, id).Error; err != nil {
		return fiber.NewError(fiber.StatusNotFound, "quote not found")
	}
	return c.JSON(quote)
}

// SellUnit adds a stock unit to a draft quotation.
func SellUnit(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	var in services.SellUnitInput
	if err := middlewares.BindAndValidate(c, &in); err != nil {
		return err
	}
	line, err := stock.SellUnit(c.UserContext(), middlewares.ActorFrom(c), id, in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(line)
}
