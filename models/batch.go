package models

import "time"

type BatchState string

const (
	BatchDraft       BatchState = "draft"
	BatchConfirmed   BatchState = "confirmed"
	BatchUnderRepair BatchState = "under_repair"
	BatchProcessed   BatchState = "processed"
)

// RepairBatch is a deposit dossier: several orders from one customer dropped off together.
// State is materialized and recomputed whenever a member changes state.
type RepairBatch struct {
	ID        uint          `json:"id" gorm:"primaryKey"`
	Name      string        `json:"name" gorm:"size:64;uniqueIndex;not null"`
	PartnerID *uint         `json:"partner_id" gorm:"index"`
	Partner   *Partner      `json:"partner,omitempty" gorm:"foreignKey:PartnerID"`
	State     BatchState    `json:"state" gorm:"size:20;not null;default:draft"`
	Orders    []RepairOrder `json:"orders,omitempty" gorm:"foreignKey:BatchID"`
	CreatedAt time.Time     `json:"created_at"`
}
