package database

import (
	"fmt"

	"atelier-backend/models"

	"gorm.io/gorm"
)

// Models lists every persisted type, in dependency order.
var Models = []any{
	&models.Employee{},
	&models.User{},
	&models.Tax{},
	&models.FiscalPosition{},
	&models.FiscalPositionTax{},
	&models.Partner{},
	&models.Product{},
	&models.Brand{},
	&models.DeviceCategory{},
	&models.Device{},
	&models.DeviceVariant{},
	&models.DeviceUnit{},
	&models.RepairBatch{},
	&models.RepairTag{},
	&models.RepairNotesTemplate{},
	&models.Invoice{},
	&models.InvoiceLine{},
	&models.SaleOrderTemplate{},
	&models.SaleOrder{},
	&models.SaleOrderLine{},
	&models.RepairOrder{},
	&models.PricingTemplate{},
	&models.PricingTemplateLine{},
	&models.PricingSession{},
	&models.Activity{},
	&models.Message{},
	&models.StockLocation{},
	&models.StockMove{},
	&models.Setting{},
	&models.Sequence{},
	&models.IdempotencyKey{},
}

// Migrate applies idempotent schema migrations and seeds reference data.
// Money columns and CHECK constraints are only enforced on postgres.
func Migrate(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(Models...); err != nil {
			return fmt.Errorf("automigrate failed: %w", err)
		}

		if tx.Dialector.Name() == "postgres" {
			if err := migratePostgres(tx); err != nil {
				return err
			}
		}

		return Seed(tx)
	})
}

func migratePostgres(tx *gorm.DB) error {
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_repair_orders_unit_state_end ON repair_orders (unit_id, state, end_date DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_repair_orders_tech_state ON repair_orders (technician_employee_id, state)`,
		`CREATE INDEX IF NOT EXISTS idx_activities_open ON activities (res_model, res_id, activity_type) WHERE state = 'open'`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_repair_tags_lower_name ON repair_tags (lower(name))`,
	}
	for _, stmt := range indexes {
		if err := tx.Exec(stmt).Error; err != nil {
			return fmt.Errorf("index migration failed on: %s - %w", stmt, err)
		}
	}

	checks := map[string]string{
		"chk_repair_orders_state":          `ALTER TABLE repair_orders ADD CONSTRAINT chk_repair_orders_state CHECK (state IN ('draft','confirmed','under_repair','done','irreparable','cancel'))`,
		"chk_repair_orders_quote_state":    `ALTER TABLE repair_orders ADD CONSTRAINT chk_repair_orders_quote_state CHECK (quote_state IN ('none','draft','pending','approved','refused'))`,
		"chk_repair_orders_delivery_state": `ALTER TABLE repair_orders ADD CONSTRAINT chk_repair_orders_delivery_state CHECK (delivery_state IN ('none','delivered','abandoned'))`,
		"chk_pricing_template_lines_weight": `ALTER TABLE pricing_template_lines ADD CONSTRAINT chk_pricing_template_lines_weight CHECK (weight >= 0)`,
		"chk_invoice_lines_price_nonneg":   `ALTER TABLE invoice_lines ADD CONSTRAINT chk_invoice_lines_price_nonneg CHECK (price_unit >= 0)`,
	}
	for name, stmt := range checks {
		block := fmt.Sprintf(`
DO $$
BEGIN
	IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = '%s') THEN
		%s;
	END IF;
END $$;`, name, stmt)
		if err := tx.Exec(block).Error; err != nil {
			return fmt.Errorf("check constraint migration failed on %s: %w", name, err)
		}
	}
	return nil
}

// Seed creates the reference rows the workflows look up by code.
func Seed(tx *gorm.DB) error {
	seqs := []models.Sequence{
		{Code: "repair.order", Prefix: "RO/", Padding: 5, NextNumber: 1},
		{Code: "repair.batch", Prefix: "", Padding: 5, NextNumber: 1},
		{Code: "account.move", Prefix: "INV/", Padding: 5, NextNumber: 1},
		{Code: "sale.order", Prefix: "QUO/", Padding: 5, NextNumber: 1},
		{Code: "stock.move", Prefix: "MOVE/", Padding: 5, NextNumber: 1},
	}
	for _, s := range seqs {
		if err := tx.Where(models.Sequence{Code: s.Code}).FirstOrCreate(&s).Error; err != nil {
			return fmt.Errorf("seed sequence %s: %w", s.Code, err)
		}
	}

	locations := []models.StockLocation{
		{Code: models.LocationStockCode, Name: "Shop stock", Usage: "internal"},
		{Code: models.LocationCollectionCode, Name: "Collection", Usage: "internal"},
		{Code: models.LocationCustomerCode, Name: "Customers", Usage: "customer"},
	}
	for _, l := range locations {
		if err := tx.Where(models.StockLocation{Code: l.Code}).FirstOrCreate(&l).Error; err != nil {
			return fmt.Errorf("seed location %s: %w", l.Code, err)
		}
	}

	fp := models.FiscalPosition{Code: models.DefaultFiscalPositionCode, Name: "Repair"}
	if err := tx.Where(models.FiscalPosition{Code: fp.Code}).FirstOrCreate(&fp).Error; err != nil {
		return fmt.Errorf("seed fiscal position: %w", err)
	}

	tpl := models.SaleOrderTemplate{TemplateType: models.TemplateRepairQuote, Name: "Repair quotation"}
	if err := tx.Where(models.SaleOrderTemplate{TemplateType: tpl.TemplateType}).FirstOrCreate(&tpl).Error; err != nil {
		return fmt.Errorf("seed quote template: %w", err)
	}
	return nil
}
