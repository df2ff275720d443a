package controllers

import (
	"atelier-backend/middlewares"
	"atelier-backend/models"
	"atelier-backend/utils"

	"github.com/gofiber/fiber/v2"
)

type partnerCreateDTO struct {
	Name             string `json:"name" validate:"required,max=255"`
	Email            string `json:"email" validate:"omitempty,email,max=255"`
	Phone            string `json:"phone" validate:"max=64"`
	FiscalPositionID *uint  `json:"fiscal_position_id"`
}

type partnerUpdateDTO struct {
	Name             *string `json:"name" validate:"omitempty,min=1,max=255"`
	Email            *string `json:"email" validate:"omitempty,email,max=255"`
	Phone            *string `json:"phone" validate:"omitempty,max=64"`
	FiscalPositionID *uint   `json:"fiscal_position_id" patch:"nullable"`
}

func CreatePartner(c *fiber.Ctx) error {
	var in partnerCreateDTO
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	utils.Normalize(&in)
	if err := middlewares.ValidateStruct(&in); err != nil {
		return err
	}

	partner := models.Partner{
		Name:             in.Name,
		Email:            in.Email,
		Phone:            in.Phone,
		FiscalPositionID: in.FiscalPositionID,
	}
	if err := db(c).Create(&partner).Error; err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(partner)
}

func UpdatePartner(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	var in partnerUpdateDTO
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	utils.Normalize(&in)
	if err := middlewares.ValidateStruct(&in); err != nil {
		return err
	}

	var partner models.Partner
	if err := db(c).First(&partner, id).Error; err != nil {
		return fiber.NewError(fiber.StatusNotFound, "partner not found")
	}
	if updates := utils.ColumnUpdates(&in); len(updates) > 0 {
		if err := db(c).Model(&partner).Updates(updates).Error; err != nil {
			return err
		}
	}
	if err := db(c).First(&partner, id).Error; err != nil {
		return err
	}
	return c.JSON(partner)
}

func GetPartners(c *fiber.Ctx) error {
	var partners []models.Partner
	q := db(c).Model(&models.Partner{}).Order("name")
	if s := c.Query("q"); s != "" {
		q = q.Where("LOWER(name) LIKE LOWER(?)", "%"+s+"%")
	}
	if err := q.Limit(200).Find(&partners).Error; err != nil {
		return err
	}
	return c.JSON(partners)
}

func GetPartner(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	var partner models.Partner
	if err := db(c).First(&partner, id).Error; err != nil {
		return fiber.NewError(fiber.StatusNotFound, "partner not found")
	}
	return c.JSON(partner)
}
