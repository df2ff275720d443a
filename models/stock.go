package models

import "time"

const (
	LocationStockCode      = "STOCK"
	LocationCollectionCode = "COLLECTION"
	LocationCustomerCode   = "CUSTOMER"
)

type StockLocation struct {
	ID    uint   `json:"id" gorm:"primaryKey"`
	Name  string `json:"name" gorm:"size:128;not null"`
	Code  string `json:"code" gorm:"size:32;uniqueIndex"`
	Usage string `json:"usage" gorm:"size:16;not null;default:internal"` // internal | customer
}

// StockMove records one unit moving between two locations.
type StockMove struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	Reference      string    `json:"reference" gorm:"size:64"`
	UnitID         uint      `json:"unit_id" gorm:"index;not null"`
	RepairOrderID  *uint     `json:"repair_order_id" gorm:"index"`
	SaleOrderID    *uint     `json:"sale_order_id" gorm:"index"`
	LocationID     uint      `json:"location_id"`
	LocationDestID uint      `json:"location_dest_id"`
	Note           string    `json:"note" gorm:"type:text"`
	CreatedAt      time.Time `json:"created_at"`
}
