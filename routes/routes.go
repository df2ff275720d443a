package routes

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"atelier-backend/controllers"
	"atelier-backend/middlewares"
	"atelier-backend/models"
	"atelier-backend/services"
)

type Options struct {
	DB  *gorm.DB
	Log *zap.Logger
	// RateLimitMax requests per RateLimitWindow and per address, for every route but
	// the tracking page. Zero disables it.
	RateLimitMax    int
	RateLimitWindow time.Duration
	// TrackingRateLimit is the per-address budget of the public tracking page, per minute.
	TrackingRateLimit int
}

const trackingPrefix = "/api/tracking/"

func isTracking(c *fiber.Ctx) bool {
	return strings.HasPrefix(c.Path(), trackingPrefix)
}

// Register wires all HTTP routes. controllers.Setup must have been called.
func Register(app *fiber.App, opts Options) {
	if opts.RateLimitMax > 0 {
		// the tracking page answers its own throttling with a not-found
		app.Use(limiter.New(limiter.Config{
			Next:       isTracking,
			Max:        opts.RateLimitMax,
			Expiration: opts.RateLimitWindow,
		}))
	}

	api := app.Group("/api")

	// Public endpoints
	api.Post("/login", controllers.Login)
	api.Post("/logout", controllers.Logout)

	trackingMax := opts.TrackingRateLimit
	if trackingMax <= 0 {
		trackingMax = 10
	}
	api.Get("/tracking/:token", limiter.New(limiter.Config{
		Max:        trackingMax,
		Expiration: time.Minute,
		// throttled lookups look like unknown tokens
		LimitReached: func(c *fiber.Ctx) error {
			return services.ErrTrackingUnavailable
		},
	}), controllers.GetTracking)

	// Protected endpoints (JWT auth)
	protected := api.Group("")
	protected.Use(middlewares.IsAuthenticatedHeader())

	// Idempotency guard FIRST (not tied to request TX)
	protected.Use(middlewares.Idempotency(opts.DB, opts.Log))

	// Then the per-request transaction
	protected.Use(middlewares.RequestTx(opts.DB, opts.Log))

	managers := middlewares.RequireRole(models.RoleManager, models.RoleAdmin)

	protected.Get("/me", controllers.Me)

	// Repair orders
	protected.Post("/repairs", controllers.CreateRepair)
	protected.Get("/repairs", controllers.GetRepairs)
	protected.Post("/repairs/deliver", controllers.DeliverRepairs)
	protected.Post("/repairs/cancel", controllers.CancelRepairs)
	protected.Post("/repairs/merge", controllers.MergeRepairs)
	protected.Post("/repairs/mass-update", controllers.MassUpdateRepairs)
	protected.Get("/repairs/:id", controllers.GetRepair)
	protected.Put("/repairs/:id", controllers.UpdateRepair)
	protected.Delete("/repairs/:id", controllers.DeleteRepair)

	// Workflow actions
	protected.Post("/repairs/:id/confirm", controllers.ConfirmRepair)
	protected.Post("/repairs/:id/start", controllers.StartRepair)
	protected.Post("/repairs/:id/request-quote", controllers.RequestQuote)
	protected.Post("/repairs/:id/approve-quote", controllers.ApproveQuote)
	protected.Post("/repairs/:id/refuse-quote", controllers.RefuseQuote)
	protected.Post("/repairs/:id/complete", controllers.CompleteRepair)
	protected.Post("/repairs/:id/irreparable", controllers.MarkIrreparable)
	protected.Post("/repairs/:id/abort", controllers.AbortRepair)
	protected.Post("/repairs/:id/draft", controllers.ResetToDraft)
	protected.Post("/repairs/:id/parts-toggle", controllers.ToggleParts)
	protected.Post("/repairs/:id/notes-template", controllers.InsertNotesTemplate)
	protected.Post("/repairs/:id/batch", controllers.AddToBatch)
	protected.Post("/repairs/:id/abandon", controllers.AbandonDevice)
	protected.Post("/repairs/:id/tracking-token", controllers.RegenerateTrackingToken)

	// Batches
	protected.Get("/batches/:id", controllers.GetBatch)
	protected.Delete("/batches/:id", controllers.DeleteBatch)

	// Pricing wizard
	protected.Post("/pricing/sessions", controllers.StartPricing)
	protected.Post("/pricing/sessions/:id/preview", controllers.PreviewPricing)
	protected.Post("/pricing/sessions/:id/next", controllers.NextPricing)
	protected.Post("/pricing/sessions/:id/confirm", controllers.ConfirmPricing)

	// Generated documents
	protected.Get("/invoices/:id", controllers.GetInvoice)
	protected.Get("/quotes/:id", controllers.GetQuote)
	protected.Post("/quotes/:id/units", managers, controllers.SellUnit)

	// Dashboard
	protected.Get("/dashboard/tiles", controllers.GetTiles)
	protected.Get("/dashboard/tiles/:tile/orders", controllers.GetTileOrders)
	protected.Get("/dashboard/tiles/:tile/export", controllers.ExportTile)

	// Catalog
	protected.Post("/catalog/brands", managers, controllers.CreateBrand)
	protected.Post("/catalog/categories", managers, controllers.CreateCategory)
	protected.Get("/catalog/devices", controllers.GetDevices)
	protected.Post("/catalog/devices", managers, controllers.CreateDevice)
	protected.Post("/catalog/devices/reclassify", managers, controllers.ReclassifyDevices)
	protected.Post("/catalog/units", controllers.CreateUnit)
	protected.Post("/catalog/units/:id/receive", managers, controllers.ReceiveUnit)
	protected.Get("/catalog/tags", controllers.GetTags)
	protected.Post("/catalog/tags", controllers.CreateTag)
	protected.Post("/catalog/notes-templates", controllers.CreateNotesTemplate)

	// Customers
	protected.Post("/partners", controllers.CreatePartner)
	protected.Get("/partners", controllers.GetPartners)
	protected.Get("/partners/:id", controllers.GetPartner)
	protected.Put("/partners/:id", controllers.UpdatePartner)

	// Products (batch create)
	protected.Post("/products", managers, controllers.CreateProducts)
	protected.Get("/products", controllers.GetProducts)
}
