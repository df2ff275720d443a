package models

import "time"

const (
	ActivityQuoteValidate = "quote_validate"
	ActivityReadyPickup   = "ready_pickup"
)

const (
	ActivityOpen = "open"
	ActivityDone = "done"
)

// Activity is a task scheduled on a record for one user.
type Activity struct {
	ID           uint       `json:"id" gorm:"primaryKey"`
	ResModel     string     `json:"res_model" gorm:"size:64;index:idx_activities_res,priority:1"`
	ResID        uint       `json:"res_id" gorm:"index:idx_activities_res,priority:2"`
	ActivityType string     `json:"activity_type" gorm:"size:32;index"`
	UserID       string     `json:"user_id" gorm:"size:64;index"`
	Summary      string     `json:"summary" gorm:"size:255"`
	Note         string     `json:"note" gorm:"type:text"`
	DateDeadline time.Time  `json:"date_deadline"`
	State        string     `json:"state" gorm:"size:10;not null;default:open"`
	Feedback     string     `json:"feedback" gorm:"type:text"`
	DoneAt       *time.Time `json:"done_at"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Message is an audit note posted on a record.
type Message struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	ResModel   string    `json:"res_model" gorm:"size:64;index:idx_messages_res,priority:1"`
	ResID      uint      `json:"res_id" gorm:"index:idx_messages_res,priority:2"`
	Body       string    `json:"body" gorm:"type:text"`
	AuthorID   string    `json:"author_id" gorm:"size:64"`
	AuthorName string    `json:"author_name" gorm:"size:128"`
	CreatedAt  time.Time `json:"created_at"`
}
