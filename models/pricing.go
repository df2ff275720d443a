package models

import (
	"time"

	"gorm.io/datatypes"
)

// PricingTemplate splits a labour amount across weighted service lines.
type PricingTemplate struct {
	ID         uint                  `json:"id" gorm:"primaryKey"`
	Name       string                `json:"name" gorm:"size:128;not null"`
	CategoryID *uint                 `json:"category_id" gorm:"index"`
	Lines      []PricingTemplateLine `json:"lines" gorm:"foreignKey:TemplateID;constraint:OnDelete:CASCADE"`
}

type PricingTemplateLine struct {
	ID         uint     `json:"id" gorm:"primaryKey"`
	TemplateID uint     `json:"template_id" gorm:"index;not null"`
	Sequence   int      `json:"sequence" gorm:"not null;default:10"`
	Name       string   `json:"name" gorm:"size:255;not null"`
	ProductID  uint     `json:"product_id" gorm:"not null"`
	Product    *Product `json:"-" gorm:"foreignKey:ProductID"`
	Weight     float64  `json:"weight" gorm:"not null;default:20"`
}

const (
	PricingInvoice = "invoice"
	PricingQuote   = "quote"
)

const (
	PartsIncluded = "included"
	PartsAdded    = "added"
)

const (
	SessionOpen = "open"
	SessionDone = "done"
)

// PricingSession is the persisted state of an interactive pricing flow.
// Queue holds the order ids still to price; Accumulated holds the lines of orders already priced.
type PricingSession struct {
	ID             uint           `json:"id" gorm:"primaryKey"`
	GenerationType string         `json:"generation_type" gorm:"size:10;not null"`
	State          string         `json:"state" gorm:"size:10;not null;default:open"`
	BatchID        *uint          `json:"batch_id"`
	CurrentOrderID uint           `json:"current_order_id"`
	Queue          datatypes.JSON `json:"queue"`
	Accumulated    datatypes.JSON `json:"accumulated"`
	Step           int            `json:"step"`
	StepCount      int            `json:"step_count"`

	// Form defaults for the current order.
	ServiceProductID *uint  `json:"service_product_id"`
	DeviceName       string `json:"device_name" gorm:"size:255"`
	WorkDetails      string `json:"work_details" gorm:"type:text"`
	TechnicianID     *uint  `json:"technician_employee_id"`

	UserID     string     `json:"user_id" gorm:"size:64"`
	DocumentID *uint      `json:"document_id"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	ClosedAt   *time.Time `json:"closed_at"`
}
