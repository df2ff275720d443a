package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"atelier-backend/models"

	"gorm.io/gorm"
)

// TrackingStatus is everything an anonymous token holder may see.
type TrackingStatus struct {
	Name          string               `json:"name"`
	State         models.RepairState   `json:"state"`
	QuoteState    models.QuoteState    `json:"quote_state"`
	DeliveryState models.DeliveryState `json:"delivery_state"`
	Device        string               `json:"device"`
	EntryDate     time.Time            `json:"entry_date"`
	EndDate       *time.Time           `json:"end_date,omitempty"`
}

// ErrTrackingUnavailable is the single answer for unknown, expired and throttled lookups.
var ErrTrackingUnavailable = fmt.Errorf("tracking: %w", ErrNotFound)

type TrackingService struct {
	*Deps
}

func NewTrackingService(d *Deps) *TrackingService { return &TrackingService{Deps: d} }

// Lookup returns ErrNotFound for unknown and expired tokens alike.
func (s *TrackingService) Lookup(ctx context.Context, token string) (*TrackingStatus, error) {
	if len(token) < 16 || len(token) > 64 {
		return nil, ErrTrackingUnavailable
	}
	var o models.RepairOrder
	err := s.conn(ctx).Preload("Device.Brand").Preload("Variant").
		Where("tracking_token = ?", token).
		First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTrackingUnavailable
	}
	if err != nil {
		return nil, err
	}
	if o.TrackingTokenExpiresAt == nil || !s.Now().Before(*o.TrackingTokenExpiresAt) {
		return nil, ErrTrackingUnavailable
	}
	return &TrackingStatus{
		Name:          o.Name,
		State:         o.State,
		QuoteState:    o.QuoteState,
		DeliveryState: o.DeliveryState,
		Device:        o.DeviceLabel(),
		EntryDate:     o.EntryDate,
		EndDate:       o.EndDate,
	}, nil
}
