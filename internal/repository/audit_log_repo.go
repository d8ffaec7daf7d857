package repository

import (
	"context"

	"gorm.io/gorm"

	"paymentcore/internal/models"
)

// AuditLogRepository appends immutable audit rows. Append never fails
// the caller's main flow — the repository itself still returns the
// gorm error so the caller can log it; callers in this service
// deliberately discard it (`_ = auditRepo.Append(...)`), a
// fire-and-forget pattern used at every audit call site.
type AuditLogRepository struct {
	db *gorm.DB
}

func NewAuditLogRepository(db *gorm.DB) *AuditLogRepository {
	return &AuditLogRepository{db: db}
}

func (r *AuditLogRepository) Append(ctx context.Context, entry *models.AuditLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *AuditLogRepository) ByTransaction(ctx context.Context, transactionID string) ([]models.AuditLog, error) {
	var entries []models.AuditLog
	err := r.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Order("created_at asc").
		Find(&entries).Error
	return entries, err
}
