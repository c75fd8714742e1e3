package repository

import (
	"context"

	"github.com/smallbiznis/receiptpoints/internal/receipt/domain"
	"github.com/smallbiznis/receiptpoints/pkg/db"
	"gorm.io/gorm"
)

type repo struct {
	db *gorm.DB
}

// NewGorm returns a registry backed by conn. The receipt_points table is
// created when missing.
func NewGorm(conn *gorm.DB) (domain.Repository, error) {
	if err := conn.AutoMigrate(&domain.ReceiptPoints{}); err != nil {
		return nil, err
	}
	return &repo{db: conn}, nil
}

func (r *repo) Put(ctx context.Context, record domain.ReceiptPoints) error {
	err := r.db.WithContext(ctx).Exec(
		`INSERT INTO receipt_points (id, points, created_at) VALUES (?, ?, ?)`,
		record.ID,
		record.Points,
		record.CreatedAt,
	).Error
	if db.IsDuplicateKeyErr(err) {
		return domain.ErrDuplicateID
	}
	return err
}

func (r *repo) Get(ctx context.Context, id string) (*domain.ReceiptPoints, error) {
	var record domain.ReceiptPoints
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, points, created_at FROM receipt_points WHERE id = ?`,
		id,
	).Scan(&record).Error
	if err != nil {
		return nil, err
	}
	if record.ID == "" {
		return nil, nil
	}
	return &record, nil
}
