package models

import "time"

type Brand struct {
	ID   uint   `json:"id" gorm:"primaryKey"`
	Name string `json:"name" gorm:"size:128;uniqueIndex;not null"`
}

// DeviceCategory is a tree; ParentPath holds the ancestor ids as "1/4/9/".
type DeviceCategory struct {
	ID           uint   `json:"id" gorm:"primaryKey"`
	Name         string `json:"name" gorm:"size:128;not null"`
	ParentID     *uint  `json:"parent_id" gorm:"index"`
	ParentPath   string `json:"parent_path" gorm:"size:255;index"`
	CompleteName string `json:"complete_name" gorm:"size:512"`
}

type Device struct {
	ID         uint            `json:"id" gorm:"primaryKey"`
	Name       string          `json:"name" gorm:"size:128;not null;uniqueIndex:idx_devices_brand_name,priority:2"`
	BrandID    *uint           `json:"brand_id" gorm:"uniqueIndex:idx_devices_brand_name,priority:1"`
	Brand      *Brand          `json:"brand,omitempty" gorm:"foreignKey:BrandID"`
	CategoryID *uint           `json:"category_id" gorm:"index"`
	Category   *DeviceCategory `json:"category,omitempty" gorm:"foreignKey:CategoryID"`
	Variants   []DeviceVariant `json:"variants,omitempty" gorm:"foreignKey:DeviceID"`
}

func (d *Device) DisplayName() string {
	if d.Brand != nil && d.Brand.Name != "" {
		return d.Brand.Name + " " + d.Name
	}
	return d.Name
}

type DeviceVariant struct {
	ID       uint   `json:"id" gorm:"primaryKey"`
	DeviceID uint   `json:"device_id" gorm:"index;not null"`
	Name     string `json:"name" gorm:"size:128;not null"`
}

type FunctionalState string

const (
	FunctionalBroken  FunctionalState = "broken"
	FunctionalFixing  FunctionalState = "fixing"
	FunctionalWorking FunctionalState = "working"
)

type StockState string

const (
	StockClient   StockState = "client"
	StockInStock  StockState = "stock"
	StockSold     StockState = "sold"
	// written by the rental workflow, which lives outside this service
	StockInRepair StockState = "repair"
	StockRented   StockState = "rented"
)

// DeviceUnit is one physical serialized device. A NULL serial never collides.
type DeviceUnit struct {
	ID              uint            `json:"id" gorm:"primaryKey"`
	DeviceID        uint            `json:"device_id" gorm:"not null;uniqueIndex:idx_units_device_serial,priority:1"`
	Device          *Device         `json:"device,omitempty" gorm:"foreignKey:DeviceID"`
	VariantID       *uint           `json:"variant_id"`
	SerialNumber    *string         `json:"serial_number" gorm:"size:128;uniqueIndex:idx_units_device_serial,priority:2"`
	PartnerID       *uint           `json:"partner_id" gorm:"index"`
	FunctionalState FunctionalState `json:"functional_state" gorm:"size:10;not null;default:broken"`
	StockState      StockState      `json:"stock_state" gorm:"size:10;not null;default:client"`
	Notes           string          `json:"notes" gorm:"type:text"`
	CreatedAt       time.Time       `json:"created_at"`
}

func (u *DeviceUnit) Serial() string {
	if u.SerialNumber == nil {
		return ""
	}
	return *u.SerialNumber
}
