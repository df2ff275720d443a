package controllers

import (
	"time"

	"atelier-backend/database"
	"atelier-backend/middlewares"
	"atelier-backend/services"
	"atelier-backend/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

var (
	deps *services.Deps

	repairs    *services.RepairService
	batches    *services.BatchService
	pricing    *services.PricingService
	massUpdate *services.MassUpdateService
	dashboard  *services.DashboardService
	catalog    *services.CatalogService
	stock      *services.StockService
	tracking   *services.TrackingService
)

// Setup builds the services behind the handlers. Call it before routes.Register.
func Setup(d *services.Deps, cache services.CountCache, cacheTTL time.Duration) {
	deps = d
	repairs = services.NewRepairService(d)
	batches = services.NewBatchService(d)
	pricing = services.NewPricingService(d)
	massUpdate = services.NewMassUpdateService(d)
	dashboard = services.NewDashboardService(d, cache, cacheTTL)
	catalog = services.NewCatalogService(d)
	stock = services.NewStockService(d)
	tracking = services.NewTrackingService(d)
}

// db is the request transaction when there is one.
func db(c *fiber.Ctx) *gorm.DB {
	return database.Conn(c.UserContext(), deps.DB)
}

func idParam(c *fiber.Ctx) (uint, error) {
	id, err := utils.ParseID(c.Params("id"))
	if err != nil {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// queryID reads an optional id filter; a missing or malformed value means no filter.
func queryID(c *fiber.Ctx, key string) uint {
	id, err := utils.ParseID(c.Query(key))
	if err != nil {
		return 0
	}
	return id
}

// idsBody is the selection sent to bulk actions.
type idsBody struct {
	IDs []uint `json:"ids" validate:"required,min=1"`
}

func bindIDs(c *fiber.Ctx) ([]uint, error) {
	var body idsBody
	if err := middlewares.BindAndValidate(c, &body); err != nil {
		return nil, err
	}
	return body.IDs, nil
}
