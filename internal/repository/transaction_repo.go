package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"paymentcore/internal/domain"
	"paymentcore/internal/models"
)

// ErrCASFailed is returned by UpdateStatus when the row's current status
// no longer matches the expected "from" — another worker already moved
// it, or the transition is illegal. Callers treat this as an idempotent
// no-op for lost races and stale redelivery.
var ErrCASFailed = errors.New("repository: compare-and-swap on status failed")

// TransactionRepository is the store's write/read surface for
// Transaction rows.
type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Insert fails with gorm's unique-constraint error if either
// reference_id or idempotency_key collides — the durable fallback
// relied on when the idempotency cache is unavailable or has evicted
// the key.
func (r *TransactionRepository) Insert(ctx context.Context, tx *models.Transaction) error {
	return r.db.WithContext(ctx).Create(tx).Error
}

func (r *TransactionRepository) FindByID(ctx context.Context, id string) (*models.Transaction, error) {
	var tx models.Transaction
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&tx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tx, nil
}

func (r *TransactionRepository) FindByReference(ctx context.Context, referenceID string) (*models.Transaction, error) {
	var tx models.Transaction
	err := r.db.WithContext(ctx).Where("reference_id = ?", referenceID).First(&tx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tx, nil
}

func (r *TransactionRepository) FindByIdempotencyKey(ctx context.Context, key string) (*models.Transaction, error) {
	var tx models.Transaction
	err := r.db.WithContext(ctx).Where("idempotency_key = ?", key).First(&tx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tx, nil
}

// UpdateStatus is the state machine's serialization point: an
// UPDATE ... WHERE id = ? AND status = ? whose affected-row count tells
// the caller whether it won the race. errCode/errMessage are only
// written when moving into FAILED; callers pass "" otherwise.
func (r *TransactionRepository) UpdateStatus(ctx context.Context, id string, from, to domain.TransactionStatus, errCode, errMessage string) error {
	if !domain.CanTransition(from, to) {
		return ErrCASFailed
	}
	updates := map[string]interface{}{"status": to}
	if to == domain.StatusFailed {
		updates["error_code"] = errCode
		updates["error_message"] = errMessage
	}
	res := r.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrCASFailed
	}
	return nil
}

// SetProviderRef stamps the provider's reference once charge() returns,
// without touching status. Allowed before the transaction reaches a
// terminal state only; callers are expected to call this from Process
// between the PROCESSING CAS and the terminal CAS.
func (r *TransactionRepository) SetProviderRef(ctx context.Context, id, providerRef string) error {
	terminal := []domain.TransactionStatus{domain.StatusSuccess, domain.StatusFailed, domain.StatusCancelled}
	return r.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("id = ? AND status NOT IN ?", id, terminal).
		Update("provider_ref", providerRef).Error
}

// ByUser lists a user's transactions, newest first, capped at limit
// when limit > 0.
func (r *TransactionRepository) ByUser(ctx context.Context, userID string, limit int) ([]models.Transaction, error) {
	var txs []models.Transaction
	q := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&txs).Error
	return txs, err
}
