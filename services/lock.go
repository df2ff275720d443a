package services

import (
	"context"
	"fmt"
	"sync"

	"atelier-backend/models"

	"go.uber.org/zap"
	"gorm.io/gorm/clause"
)

// RowLocker is an in-process try-lock registry keyed by table and id.
// It backs the database NOWAIT lock on drivers that ignore FOR UPDATE.
type RowLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewRowLocker() *RowLocker {
	return &RowLocker{held: make(map[string]struct{})}
}

// TryLock takes every key or none. The returned func releases them.
func (l *RowLocker) TryLock(keys ...string) (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, k := range keys {
		if _, busy := l.held[k]; busy {
			return nil, false
		}
	}
	for _, k := range keys {
		l.held[k] = struct{}{}
	}
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		for _, k := range keys {
			delete(l.held, k)
		}
	}, true
}

func orderLockKey(id uint) string { return fmt.Sprintf("repair_orders:%d", id) }

// lockOrders takes an exclusive non-blocking lock on the given orders and loads them.
// The caller must call release once the unit of work is over.
func (d *Deps) lockOrders(ctx context.Context, ids []uint) (orders []models.RepairOrder, release func(), err error) {
	ids = uniqueIDs(ids)
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = orderLockKey(id)
	}
	release, ok := d.Locker.TryLock(keys...)
	if !ok {
		d.Log.Warn("repair order lock busy", zap.Uints("order_ids", ids))
		return nil, nil, ErrConcurrentModification
	}

	err = d.conn(ctx).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "NOWAIT"}).
		Where("id IN ?", ids).
		Order("id").
		Find(&orders).Error
	if err != nil {
		release()
		if isLockNotAvailable(err) {
			d.Log.Warn("repair order row locked", zap.Uints("order_ids", ids))
			return nil, nil, ErrConcurrentModification
		}
		return nil, nil, err
	}
	if len(orders) != len(ids) {
		release()
		return nil, nil, fmt.Errorf("repair order: %w", ErrNotFound)
	}
	return orders, release, nil
}

func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
