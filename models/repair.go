package models

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"gorm.io/gorm"
)

type RepairState string

const (
	StateDraft       RepairState = "draft"
	StateConfirmed   RepairState = "confirmed"
	StateUnderRepair RepairState = "under_repair"
	StateDone        RepairState = "done"
	StateIrreparable RepairState = "irreparable"
	StateCancel      RepairState = "cancel"
)

// Terminal reports whether no more repair work happens in this state.
func (s RepairState) Terminal() bool {
	return s == StateDone || s == StateCancel || s == StateIrreparable
}

type QuoteState string

const (
	QuoteNone     QuoteState = "none"
	QuoteDraft    QuoteState = "draft"
	QuotePending  QuoteState = "pending"
	QuoteApproved QuoteState = "approved"
	QuoteRefused  QuoteState = "refused"
)

type DeliveryState string

const (
	DeliveryNone      DeliveryState = "none"
	DeliveryDelivered DeliveryState = "delivered"
	DeliveryAbandoned DeliveryState = "abandoned"
)

type Priority string

const (
	PriorityNormal Priority = "0"
	PriorityUrgent Priority = "1"
)

type Warranty string

const (
	WarrantyNone Warranty = "none"
	WarrantySAV  Warranty = "sav"
	WarrantySAR  Warranty = "sar"
)

// DefaultTrackingValidity applies when a token is generated without an explicit expiry.
const DefaultTrackingValidity = 6

// RepairOrder is one intake-to-delivery case for a single device.
type RepairOrder struct {
	ID        uint       `json:"id" gorm:"primaryKey"`
	Name      string     `json:"name" gorm:"size:32;uniqueIndex;not null"`
	EntryDate time.Time  `json:"entry_date" gorm:"not null"`
	EndDate   *time.Time `json:"end_date"`

	State         RepairState   `json:"state" gorm:"size:20;index;not null;default:draft"`
	QuoteState    QuoteState    `json:"quote_state" gorm:"size:20;not null;default:none"`
	DeliveryState DeliveryState `json:"delivery_state" gorm:"size:20;not null;default:none"`
	Priority      Priority      `json:"priority" gorm:"size:1;not null;default:0"`

	PartnerID    *uint          `json:"partner_id" gorm:"index"`
	Partner      *Partner       `json:"partner,omitempty" gorm:"foreignKey:PartnerID"`
	DeviceID     *uint          `json:"device_id" gorm:"index"`
	Device       *Device        `json:"device,omitempty" gorm:"foreignKey:DeviceID"`
	VariantID    *uint          `json:"variant_id"`
	Variant      *DeviceVariant `json:"variant,omitempty" gorm:"foreignKey:VariantID"`
	SerialNumber string         `json:"serial_number" gorm:"size:128"`
	UnitID       *uint          `json:"unit_id" gorm:"index"`
	Unit         *DeviceUnit    `json:"unit,omitempty" gorm:"foreignKey:UnitID"`

	TechnicianUserID     *string   `json:"technician_user_id" gorm:"size:64;index"`
	TechnicianEmployeeID *uint     `json:"technician_employee_id" gorm:"index"`
	TechnicianEmployee   *Employee `json:"technician_employee,omitempty" gorm:"foreignKey:TechnicianEmployeeID"`

	InternalNotes string   `json:"internal_notes" gorm:"type:text"`
	QuoteRequired bool     `json:"quote_required"`
	PartsWaiting  bool     `json:"parts_waiting"`
	Warranty      Warranty `json:"warranty" gorm:"size:10;not null;default:none"`

	TrackingToken          string     `json:"-" gorm:"size:64;uniqueIndex"`
	TrackingTokenExpiresAt *time.Time `json:"tracking_token_expires_at"`

	BatchID     *uint        `json:"batch_id" gorm:"index"`
	Batch       *RepairBatch `json:"-" gorm:"foreignKey:BatchID;constraint:OnDelete:RESTRICT"`
	SaleOrderID *uint        `json:"sale_order_id"`
	Invoices    []Invoice    `json:"invoices,omitempty" gorm:"many2many:repair_order_invoices"`
	Tags        []RepairTag  `json:"tags,omitempty" gorm:"many2many:repair_order_tags"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (o *RepairOrder) BeforeCreate(tx *gorm.DB) (err error) {
	if o.TrackingToken == "" {
		o.TrackingToken, err = NewTrackingToken()
		if err != nil {
			return err
		}
	}
	if o.TrackingTokenExpiresAt == nil {
		exp := time.Now().AddDate(0, DefaultTrackingValidity, 0)
		o.TrackingTokenExpiresAt = &exp
	}
	if o.EntryDate.IsZero() {
		o.EntryDate = time.Now()
	}
	return nil
}

// DeviceLabel is the display name used on documents and notifications.
func (o *RepairOrder) DeviceLabel() string {
	if o.Device == nil {
		return ""
	}
	label := o.Device.DisplayName()
	if o.Variant != nil && o.Variant.Name != "" {
		label += " " + o.Variant.Name
	}
	return label
}

// NewTrackingToken returns 32 random bytes, URL-safe encoded.
func NewTrackingToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
