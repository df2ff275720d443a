package services

import (
	"context"
	"time"

	"atelier-backend/database"
	"atelier-backend/models"

	"gorm.io/gorm"
)

const (
	ModelRepairOrder = "repair.order"
	ModelSaleOrder   = "sale.order"
	ModelDeviceUnit  = "repair.device.unit"
)

// Ref points at any record that can carry notes and tasks.
type Ref struct {
	Model string
	ID    uint
}

func OrderRef(id uint) Ref { return Ref{Model: ModelRepairOrder, ID: id} }

// AuditLog posts notes on records.
type AuditLog interface {
	Post(ctx context.Context, ref Ref, author Actor, body string) error
}

type TaskSpec struct {
	Type     string
	UserID   string
	Summary  string
	Note     string
	Deadline time.Time
}

// TaskScheduler manages per-user tasks on records.
type TaskScheduler interface {
	Schedule(ctx context.Context, ref Ref, spec TaskSpec) error
	// Resolve closes every open task of taskType on ref and returns how many were closed.
	Resolve(ctx context.Context, ref Ref, taskType, feedback string) (int64, error)
	// Purge deletes every open task on ref.
	Purge(ctx context.Context, ref Ref) error
}

type GormAuditLog struct {
	db *gorm.DB
}

func NewGormAuditLog(db *gorm.DB) *GormAuditLog { return &GormAuditLog{db: db} }

func (l *GormAuditLog) Post(ctx context.Context, ref Ref, author Actor, body string) error {
	return database.Conn(ctx, l.db).Create(&models.Message{
		ResModel:   ref.Model,
		ResID:      ref.ID,
		Body:       body,
		AuthorID:   author.UserID,
		AuthorName: author.Name,
	}).Error
}

type GormTaskScheduler struct {
	db *gorm.DB
}

func NewGormTaskScheduler(db *gorm.DB) *GormTaskScheduler { return &GormTaskScheduler{db: db} }

func (s *GormTaskScheduler) Schedule(ctx context.Context, ref Ref, spec TaskSpec) error {
	return database.Conn(ctx, s.db).Create(&models.Activity{
		ResModel:     ref.Model,
		ResID:        ref.ID,
		ActivityType: spec.Type,
		UserID:       spec.UserID,
		Summary:      spec.Summary,
		Note:         spec.Note,
		DateDeadline: spec.Deadline,
		State:        models.ActivityOpen,
	}).Error
}

func (s *GormTaskScheduler) Resolve(ctx context.Context, ref Ref, taskType, feedback string) (int64, error) {
	now := time.Now()
	res := database.Conn(ctx, s.db).Model(&models.Activity{}).
		Where("res_model = ? AND res_id = ? AND activity_type = ? AND state = ?", ref.Model, ref.ID, taskType, models.ActivityOpen).
		Updates(map[string]any{"state": models.ActivityDone, "feedback": feedback, "done_at": &now})
	return res.RowsAffected, res.Error
}

func (s *GormTaskScheduler) Purge(ctx context.Context, ref Ref) error {
	return database.Conn(ctx, s.db).
		Where("res_model = ? AND res_id = ? AND state = ?", ref.Model, ref.ID, models.ActivityOpen).
		Delete(&models.Activity{}).Error
}
