package services

import (
	"context"
	"time"

	"atelier-backend/models"

	"gorm.io/gorm"
)

type Tile string

const (
	TileTodo           Tile = "todo"
	TileProgress       Tile = "progress"
	TileWaiting        Tile = "waiting"
	TileQuoteWaiting   Tile = "quote_waiting"
	TileQuoteValidated Tile = "quote_validated"
	TileToday          Tile = "today"
	TileDone           Tile = "done"
)

// Tiles in display order.
var Tiles = []Tile{TileTodo, TileProgress, TileWaiting, TileQuoteWaiting, TileQuoteValidated, TileToday, TileDone}

var tileTitles = map[Tile]string{
	TileTodo:           "To do",
	TileProgress:       "In progress (me)",
	TileWaiting:        "Waiting for parts",
	TileQuoteWaiting:   "Quote pending",
	TileQuoteValidated: "Quote approved",
	TileToday:          "Today's activity",
	TileDone:           "Done",
}

func ParseTile(s string) (Tile, bool) {
	t := Tile(s)
	_, ok := tileTitles[t]
	return t, ok
}

type TileCount struct {
	Tile  Tile   `json:"tile"`
	Title string `json:"title"`
	Count int64  `json:"count"`
}

type DashboardService struct {
	*Deps
	Cache CountCache
	TTL   time.Duration
}

func NewDashboardService(d *Deps, cache CountCache, ttl time.Duration) *DashboardService {
	if cache == nil {
		cache = NewMemoryCache()
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &DashboardService{Deps: d, Cache: cache, TTL: ttl}
}

// scopeKey is the kiosk technician when one is supplied, else the operator.
func scopeKey(actor Actor) (uint, string) {
	if actor.KioskEmployeeID != nil {
		return *actor.KioskEmployeeID, actor.UserID
	}
	return 0, actor.UserID
}

// tileFilter applies the bucket predicate. Every tile but todo is scoped to the technician.
func (s *DashboardService) tileFilter(q *gorm.DB, tile Tile, actor Actor) *gorm.DB {
	switch tile {
	case TileTodo:
		q = q.Where("state = ?", models.StateConfirmed)
	case TileProgress:
		q = q.Where("state = ? AND quote_state <> ?", models.StateUnderRepair, models.QuotePending)
	case TileWaiting:
		q = q.Where("parts_waiting = ?", true)
	case TileQuoteWaiting:
		q = q.Where("state = ? AND quote_state = ?", models.StateUnderRepair, models.QuotePending)
	case TileQuoteValidated:
		q = q.Where("state = ? AND quote_state = ?", models.StateUnderRepair, models.QuoteApproved)
	case TileToday:
		q = q.Where("updated_at >= ?", dateOnly(s.Now()))
	case TileDone:
		q = q.Where("state = ?", models.StateDone)
	}
	if tile == TileTodo {
		return q
	}
	if actor.KioskEmployeeID != nil {
		return q.Where("technician_employee_id = ?", *actor.KioskEmployeeID)
	}
	return q.Where("technician_user_id = ?", actor.UserID)
}

func (s *DashboardService) bucket() int64 {
	sec := int64(s.TTL / time.Second)
	if sec < 1 {
		sec = 1
	}
	return s.Now().Unix() / sec
}

// Count returns the cached count of one tile.
func (s *DashboardService) Count(ctx context.Context, actor Actor, tile Tile) (int64, error) {
	emp, uid := scopeKey(actor)
	key := CacheKey{Tile: tile, EmployeeID: emp, UserID: uid, Bucket: s.bucket()}
	if n, ok := s.Cache.Get(ctx, key); ok {
		return n, nil
	}

	q := s.tileFilter(s.conn(ctx).Model(&models.RepairOrder{}), tile, actor).
		Where("state <> ?", models.StateCancel)
	if tile == TileTodo || tile == TileWaiting {
		q = q.Where("state <> ?", models.StateDraft)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, err
	}
	s.Cache.Set(ctx, key, n)
	return n, nil
}

func (s *DashboardService) Counts(ctx context.Context, actor Actor) ([]TileCount, error) {
	out := make([]TileCount, 0, len(Tiles))
	for _, t := range Tiles {
		n, err := s.Count(ctx, actor, t)
		if err != nil {
			return nil, err
		}
		out = append(out, TileCount{Tile: t, Title: tileTitles[t], Count: n})
	}
	return out, nil
}

// Orders is what opening a tile shows: open orders matching the tile predicate.
func (s *DashboardService) Orders(ctx context.Context, actor Actor, tile Tile) ([]models.RepairOrder, error) {
	q := s.conn(ctx).Model(&models.RepairOrder{}).
		Preload("Partner").Preload("Device.Brand").Preload("Variant").Preload("TechnicianEmployee").
		Where("state NOT IN ?", []models.RepairState{models.StateDraft, models.StateCancel})
	q = s.tileFilter(q, tile, actor)

	order := "priority DESC, entry_date"
	if tile == TileToday {
		order = "updated_at DESC"
	}
	var orders []models.RepairOrder
	err := q.Order(order).Find(&orders).Error
	return orders, err
}
