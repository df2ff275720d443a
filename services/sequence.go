package services

import (
	"context"
	"errors"
	"fmt"

	"atelier-backend/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// nextReference consumes the next number of the sequence identified by code.
func (d *Deps) nextReference(ctx context.Context, code string) (string, error) {
	db := d.conn(ctx)

	var seq models.Sequence
	err := db.Clauses(clause.Locking{Strength: "UPDATE"}).Where("code = ?", code).First(&seq).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		seq = models.Sequence{Code: code, Padding: 5, NextNumber: 1}
		if err := db.Create(&seq).Error; err != nil {
			return "", fmt.Errorf("create sequence %s: %w", code, err)
		}
	} else if err != nil {
		return "", fmt.Errorf("read sequence %s: %w", code, err)
	}

	n := seq.NextNumber
	if err := db.Model(&models.Sequence{}).Where("code = ?", code).Update("next_number", n+1).Error; err != nil {
		return "", fmt.Errorf("advance sequence %s: %w", code, err)
	}
	return fmt.Sprintf("%s%0*d", seq.Prefix, seq.Padding, n), nil
}
