package models

// Setting is a runtime key/value parameter.
type Setting struct {
	Key   string `json:"key" gorm:"primaryKey;size:64"`
	Value string `json:"value" gorm:"size:255"`
}

// Sequence hands out document references such as RO/00042.
type Sequence struct {
	Code       string `json:"code" gorm:"primaryKey;size:64"`
	Prefix     string `json:"prefix" gorm:"size:32"`
	Padding    int    `json:"padding" gorm:"not null;default:5"`
	NextNumber int64  `json:"next_number" gorm:"not null;default:1"`
}
