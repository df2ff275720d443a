package services

import (
	"context"
	"strconv"
	"time"

	"atelier-backend/database"
	"atelier-backend/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Deps carries the collaborators shared by every service.
// A Deps is built once at startup; per-request transactions travel in the context.
type Deps struct {
	DB     *gorm.DB
	Log    *zap.Logger
	Audit  AuditLog
	Tasks  TaskScheduler
	Locker *RowLocker
	Now    func() time.Time

	SARWarrantyMonths int
	TrackingMonths    int
}

func NewDeps(db *gorm.DB, log *zap.Logger) *Deps {
	return &Deps{
		DB:                db,
		Log:               log,
		Audit:             NewGormAuditLog(db),
		Tasks:             NewGormTaskScheduler(db),
		Locker:            NewRowLocker(),
		Now:               time.Now,
		SARWarrantyMonths: 3,
		TrackingMonths:    models.DefaultTrackingValidity,
	}
}

func (d *Deps) conn(ctx context.Context) *gorm.DB {
	return database.Conn(ctx, d.DB)
}

// inTx runs fn in a transaction, or a savepoint when ctx already carries one.
func (d *Deps) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return d.conn(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(database.WithTx(ctx, tx))
	})
}

const SettingSARWarrantyMonths = "sar_warranty_months"

// sarMonths prefers the runtime setting over the configured default.
func (d *Deps) sarMonths(ctx context.Context) int {
	var s models.Setting
	if err := d.conn(ctx).Where(&models.Setting{Key: SettingSARWarrantyMonths}).Limit(1).Find(&s).Error; err == nil && s.Value != "" {
		if n, err := strconv.Atoi(s.Value); err == nil && n >= 0 {
			return n
		}
	}
	return d.SARWarrantyMonths
}

func (d *Deps) managerUserIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := d.conn(ctx).Model(&models.User{}).
		Where("role IN ? AND active = ?", []string{models.RoleManager, models.RoleAdmin}, true).
		Order("id").
		Pluck("id", &ids).Error
	return ids, err
}
