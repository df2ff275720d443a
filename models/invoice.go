package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	LineSection = "line_section"
	LineNote    = "line_note"
)

const (
	DocumentDraft  = "draft"
	DocumentPosted = "posted"
)

// Invoice is a customer invoice generated from one order or a whole batch.
type Invoice struct {
	ID               uint          `json:"id" gorm:"primaryKey"`
	Name             string        `json:"name" gorm:"size:32;uniqueIndex"`
	MoveType         string        `json:"move_type" gorm:"size:20;not null;default:out_invoice"`
	State            string        `json:"state" gorm:"size:10;not null;default:draft"`
	PartnerID        *uint         `json:"partner_id" gorm:"index"`
	BatchID          *uint         `json:"batch_id" gorm:"index"`
	FiscalPositionID *uint         `json:"fiscal_position_id"`
	Lines            []InvoiceLine `json:"lines" gorm:"foreignKey:InvoiceID;constraint:OnDelete:CASCADE"`
	AmountUntaxed    float64       `json:"amount_untaxed" gorm:"type:numeric(12,2)"`
	AmountTax        float64       `json:"amount_tax" gorm:"type:numeric(12,2)"`
	AmountTotal      float64       `json:"amount_total" gorm:"type:numeric(12,2)"`
	CreatedAt        time.Time     `json:"created_at"`
}

type InvoiceLine struct {
	ID            uint           `json:"id" gorm:"primaryKey"`
	InvoiceID     uint           `json:"-" gorm:"index"`
	Sequence      int            `json:"sequence"`
	DisplayType   string         `json:"display_type" gorm:"size:20"`
	ProductID     *uint          `json:"product_id"`
	Name          string         `json:"name" gorm:"type:text"`
	Quantity      float64        `json:"quantity"`
	PriceUnit     float64        `json:"price_unit" gorm:"type:numeric(12,2)"`
	PriceSubtotal float64        `json:"price_subtotal" gorm:"type:numeric(12,2)"`
	TaxAmount     float64        `json:"tax_amount" gorm:"type:numeric(12,2)"`
	TaxIDs        datatypes.JSON `json:"tax_ids"`
}

// SaleOrderTemplate with TemplateType "repair_quote" is applied to generated quotations.
type SaleOrderTemplate struct {
	ID           uint   `json:"id" gorm:"primaryKey"`
	Name         string `json:"name" gorm:"size:128;not null"`
	TemplateType string `json:"template_type" gorm:"size:32;index"`
	Note         string `json:"note" gorm:"type:text"`
}

const TemplateRepairQuote = "repair_quote"

// SaleOrder is a quotation generated by the pricing wizard.
type SaleOrder struct {
	ID               uint            `json:"id" gorm:"primaryKey"`
	Name             string          `json:"name" gorm:"size:32;uniqueIndex"`
	State            string          `json:"state" gorm:"size:10;not null;default:draft"`
	PartnerID        *uint           `json:"partner_id" gorm:"index"`
	BatchID          *uint           `json:"batch_id" gorm:"index"`
	FiscalPositionID *uint           `json:"fiscal_position_id"`
	FiscalPosition   *FiscalPosition `json:"-" gorm:"foreignKey:FiscalPositionID"`
	TemplateID       *uint           `json:"template_id"`
	Note             string          `json:"note" gorm:"type:text"`
	Lines            []SaleOrderLine `json:"lines" gorm:"foreignKey:SaleOrderID;constraint:OnDelete:CASCADE"`
	AmountUntaxed    float64         `json:"amount_untaxed" gorm:"type:numeric(12,2)"`
	AmountTax        float64         `json:"amount_tax" gorm:"type:numeric(12,2)"`
	AmountTotal      float64         `json:"amount_total" gorm:"type:numeric(12,2)"`
	CreatedAt        time.Time       `json:"created_at"`
}

type SaleOrderLine struct {
	ID            uint           `json:"id" gorm:"primaryKey"`
	SaleOrderID   uint           `json:"-" gorm:"index"`
	Sequence      int            `json:"sequence"`
	DisplayType   string         `json:"display_type" gorm:"size:20"`
	ProductID     *uint          `json:"product_id"`
	DeviceUnitID  *uint          `json:"device_unit_id" gorm:"index"`
	Name          string         `json:"name" gorm:"type:text"`
	Quantity      float64        `json:"product_uom_qty"`
	PriceUnit     float64        `json:"price_unit" gorm:"type:numeric(12,2)"`
	PriceSubtotal float64        `json:"price_subtotal" gorm:"type:numeric(12,2)"`
	TaxAmount     float64        `json:"tax_amount" gorm:"type:numeric(12,2)"`
	TaxIDs        datatypes.JSON `json:"tax_ids"`
}
