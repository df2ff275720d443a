package models

const (
	ProductService    = "service"
	ProductConsumable = "consu"
)

// DefaultServiceCode identifies the labour product preselected by the pricing wizard.
const DefaultServiceCode = "SERV"

type Product struct {
	ID          uint    `json:"id" gorm:"primaryKey"`
	Name        string  `json:"name" gorm:"size:255;not null"`
	DefaultCode string  `json:"default_code" gorm:"size:64;index"`
	Type        string  `json:"type" gorm:"size:10;not null;default:consu"`
	ListPrice   float64 `json:"list_price" gorm:"type:numeric(12,2)"`
	Taxes       []Tax   `json:"taxes,omitempty" gorm:"many2many:product_taxes"`
}

// Tax is a percentage tax, e.g. Amount 20 for 20%.
type Tax struct {
	ID     uint    `json:"id" gorm:"primaryKey"`
	Name   string  `json:"name" gorm:"size:128;not null"`
	Amount float64 `json:"amount"`
}

// DefaultFiscalPositionCode is used for repair documents without a sale order position.
const DefaultFiscalPositionCode = "REPAIR"

type FiscalPosition struct {
	ID      uint                `json:"id" gorm:"primaryKey"`
	Name    string              `json:"name" gorm:"size:128;not null"`
	Code    string              `json:"code" gorm:"size:32;uniqueIndex"`
	TaxMaps []FiscalPositionTax `json:"tax_maps,omitempty" gorm:"foreignKey:FiscalPositionID;constraint:OnDelete:CASCADE"`
}

// FiscalPositionTax maps a source tax to a destination; a nil destination drops the tax.
type FiscalPositionTax struct {
	ID               uint  `json:"id" gorm:"primaryKey"`
	FiscalPositionID uint  `json:"fiscal_position_id" gorm:"index;not null"`
	TaxSrcID         uint  `json:"tax_src_id" gorm:"not null"`
	TaxDestID        *uint `json:"tax_dest_id"`
}
