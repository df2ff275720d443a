package models

// RepairTag is a fault category. Global tags apply to every device category.
type RepairTag struct {
	ID         uint             `json:"id" gorm:"primaryKey"`
	Name       string           `json:"name" gorm:"size:128;not null"`
	Color      int              `json:"color"`
	IsGlobal   bool             `json:"is_global"`
	Categories []DeviceCategory `json:"categories,omitempty" gorm:"many2many:repair_tag_categories"`
}

type RepairNotesTemplate struct {
	ID         uint   `json:"id" gorm:"primaryKey"`
	Name       string `json:"name" gorm:"size:128;not null"`
	Body       string `json:"body" gorm:"type:text"`
	CategoryID *uint  `json:"category_id" gorm:"index"`
}
