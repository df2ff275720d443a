package models

// Partner is a customer of the workshop.
type Partner struct {
	ID               uint            `json:"id" gorm:"primaryKey"`
	Name             string          `json:"name" gorm:"size:255;not null"`
	Email            string          `json:"email" gorm:"size:255"`
	Phone            string          `json:"phone" gorm:"size:64"`
	FiscalPositionID *uint           `json:"fiscal_position_id"`
	FiscalPosition   *FiscalPosition `json:"-" gorm:"foreignKey:FiscalPositionID"`
}
