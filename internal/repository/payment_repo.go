package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"scancodes/internal/models"
	"scancodes/pkg/payment"

	"gorm.io/gorm"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// WithTx binds the repository to a caller-owned transaction.
func (r *PaymentRepository) WithTx(tx *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: tx}
}

// CreatePair persists a payment and its transaction together. Both rows
// share p.Key.
func (r *PaymentRepository) CreatePair(ctx context.Context, p *models.Payment, t *models.Transaction) error {
	if p.Key == "" || p.Key != t.Key {
		return fmt.Errorf("%w: payment and transaction must share a reference", payment.ErrValidation)
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(p).Error; err != nil {
			return err
		}
		return tx.Create(t).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: duplicate payment reference %s", payment.ErrValidation, p.Key)
	}
	return err
}

func (r *PaymentRepository) GetByKey(ctx context.Context, key string) (*models.Payment, error) {
	var p models.Payment
	err := r.db.WithContext(ctx).Where(map[string]any{"key": key}).First(&p).Error
	if err != nil {
		return nil, notFound(err, "payment "+key)
	}
	return &p, nil
}

func (r *PaymentRepository) GetTransactionByKey(ctx context.Context, key string) (*models.Transaction, error) {
	var t models.Transaction
	err := r.db.WithContext(ctx).Where(map[string]any{"key": key}).First(&t).Error
	if err != nil {
		return nil, notFound(err, "transaction "+key)
	}
	return &t, nil
}

// TransitionStatus moves a non-terminal payment and its transaction to
// status. It reports false when the payment was already terminal, which
// makes replays of the same event no-ops.
func (r *PaymentRepository) TransitionStatus(ctx context.Context, key string, status payment.Status, providerRef string) (bool, error) {
	updates := map[string]any{"status": status}
	if providerRef != "" {
		updates["provider_reference"] = providerRef
	}
	res := r.db.WithContext(ctx).Model(&models.Payment{}).
		Where(map[string]any{"key": key}).
		Where("status NOT IN ?", payment.TerminalStatuses()).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	err := r.db.WithContext(ctx).Model(&models.Transaction{}).
		Where(map[string]any{"key": key}).
		Update("status", status).Error
	return err == nil, err
}

// MergeMeta adds keys to a payment's meta_info.
func (r *PaymentRepository) MergeMeta(ctx context.Context, p *models.Payment, extra map[string]any) error {
	if len(extra) == 0 {
		return nil
	}
	if p.MetaInfo == nil {
		p.MetaInfo = map[string]any{}
	}
	for k, v := range extra {
		p.MetaInfo[k] = v
	}
	return r.db.WithContext(ctx).Model(p).Update("meta_info", p.MetaInfo).Error
}

// ListPending returns pending payments created before cutoff, oldest first.
func (r *PaymentRepository) ListPending(ctx context.Context, cutoff time.Time, limit int) ([]models.Payment, error) {
	var list []models.Payment
	q := r.db.WithContext(ctx).
		Where("status IN ?", []payment.Status{payment.StatusPending, payment.StatusProcessing}).
		Where("created_at < ?", cutoff).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&list).Error
	return list, err
}
