package controllers

import (
	"atelier-backend/middlewares"
	"atelier-backend/models"
	"atelier-backend/utils"

	"github.com/gofiber/fiber/v2"
)

type productCreateDTO struct {
	Name        string  `json:"name" validate:"required,max=255"`
	DefaultCode string  `json:"default_code" validate:"max=64"`
	Type        string  `json:"type" validate:"omitempty,oneof=service consu"`
	ListPrice   float64 `json:"list_price" validate:"gte=0"`
	TaxIDs      []uint  `json:"tax_ids"`
}

// CreateProducts accepts a batch of products and creates them all or none.
func CreateProducts(c *fiber.Ctx) error {
	var in []productCreateDTO
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if len(in) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "no products given")
	}

	products := make([]models.Product, 0, len(in))
	for i := range in {
		utils.Normalize(&in[i])
		if err := middlewares.ValidateStruct(&in[i]); err != nil {
			return err
		}
		p := models.Product{
			Name:        in[i].Name,
			DefaultCode: in[i].DefaultCode,
			Type:        in[i].Type,
			ListPrice:   in[i].ListPrice,
		}
		if p.Type == "" {
			p.Type = models.ProductConsumable
		}
		if len(in[i].TaxIDs) > 0 {
			if err := db(c).Find(&p.Taxes, in[i].TaxIDs).Error; err != nil {
				return err
			}
			if len(p.Taxes) != len(in[i].TaxIDs) {
				return fiber.NewError(fiber.StatusBadRequest, "unknown tax id for product "+p.Name)
			}
		}
		products = append(products, p)
	}
	if err := db(c).Create(&products).Error; err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(products)
}

// GetProducts lists products, optionally filtered with ?type=service.
func GetProducts(c *fiber.Ctx) error {
	var products []models.Product
	q := db(c).Preload("Taxes").Order("name")
	if t := c.Query("type"); t != "" {
		q = q.Where("type = ?", t)
	}
	if err := q.Find(&products).Error; err != nil {
		return err
	}
	return c.JSON(products)
}
