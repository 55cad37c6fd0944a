package service

import (
	"context"
	"fmt"
	"strings"

	"scancodes/internal/domain"
	"scancodes/internal/metrics"
	"scancodes/internal/models"
	"scancodes/internal/repository"
	"scancodes/pkg/money"
	"scancodes/pkg/payment"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var refundFeeRate = decimal.RequireFromString(domain.RefundFeeRate)

// WalletService credits and debits wallets. An unbound service runs each
// operation in its own transaction; WithTx binds it to a caller-owned one
// whose commit belongs to the caller.
type WalletService struct {
	db      *gorm.DB
	bound   bool
	history bool
	log     logrus.FieldLogger
}

func NewWalletService(db *gorm.DB, log logrus.FieldLogger) *WalletService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &WalletService{db: db, history: true, log: log}
}

// WithTx binds the service to tx. History rows are not written unless
// RecordHistory is also called.
func (s *WalletService) WithTx(tx *gorm.DB) *WalletService {
	return &WalletService{db: tx, bound: true, log: s.log}
}

// RecordHistory makes every mutation append a credit/debit Transaction.
func (s *WalletService) RecordHistory() *WalletService {
	c := *s
	c.history = true
	return &c
}

// Balance returns the user's wallet, creating an empty one on first use.
func (s *WalletService) Balance(ctx context.Context, userID uint) (*models.Wallet, error) {
	return repository.NewWalletRepository(s.db).GetOrCreate(ctx, userID)
}

func (s *WalletService) Credit(ctx context.Context, userID uint, amount decimal.Decimal) (decimal.Decimal, error) {
	amt, err := positive(amount)
	if err != nil {
		return decimal.Zero, err
	}
	return s.mutate(ctx, "credit", userID, amt, domain.TransactionTypeCredit, "Wallet credit",
		func(r *repository.WalletRepository) (decimal.Decimal, error) { return r.Credit(ctx, userID, amt) })
}

// Debit fails with payment.ErrInsufficientFunds, leaving the balance
// untouched, when the wallet holds less than amount.
func (s *WalletService) Debit(ctx context.Context, userID uint, amount decimal.Decimal) (decimal.Decimal, error) {
	amt, err := positive(amount)
	if err != nil {
		return decimal.Zero, err
	}
	return s.mutate(ctx, "debit", userID, amt, domain.TransactionTypeDebit, "Wallet debit",
		func(r *repository.WalletRepository) (decimal.Decimal, error) { return r.Debit(ctx, userID, amt) })
}

// Refund credits amount less the refund fee. The fee is taken from the
// amount as given and the net is rounded once.
func (s *WalletService) Refund(ctx context.Context, userID uint, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: refund amount must be positive", payment.ErrValidation)
	}
	net, err := money.Quantize(amount.Sub(amount.Mul(refundFeeRate)))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", payment.ErrValidation, err)
	}
	return s.mutate(ctx, "refund", userID, net, domain.TransactionTypeCredit, "Wallet refund",
		func(r *repository.WalletRepository) (decimal.Decimal, error) { return r.Credit(ctx, userID, net) })
}

func (s *WalletService) mutate(ctx context.Context, op string, userID uint, amt decimal.Decimal, txType, narration string,
	apply func(*repository.WalletRepository) (decimal.Decimal, error)) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.run(ctx, func(tx *gorm.DB) error {
		var err error
		if balance, err = apply(repository.NewWalletRepository(tx)); err != nil {
			return err
		}
		if !s.history {
			return nil
		}
		return tx.WithContext(ctx).Create(&models.Transaction{
			Key:             "wtx_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
			Amount:          amt,
			TransactionType: txType,
			Narration:       narration,
			Status:          payment.StatusCompleted,
			MetaInfo:        map[string]any{"operation": op},
			UserID:          userID,
		}).Error
	})
	metrics.WalletOperations.WithLabelValues(op, metrics.Outcome(err)).Inc()
	log := s.log.WithFields(logrus.Fields{"user_id": userID, "operation": op, "amount": money.String(amt)})
	if err != nil {
		log.WithError(err).Warn("wallet operation failed")
		return decimal.Zero, err
	}
	log.Debug("wallet updated")
	return balance, nil
}

func (s *WalletService) run(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s.bound {
		return fn(s.db)
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

func positive(amount decimal.Decimal) (decimal.Decimal, error) {
	amt, err := money.Quantize(amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", payment.ErrValidation, err)
	}
	if !amt.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: amount must be positive", payment.ErrValidation)
	}
	return amt, nil
}
