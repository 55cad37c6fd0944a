package repository

import (
	"errors"
	"fmt"

	"scancodes/pkg/payment"

	"gorm.io/gorm"
)

// notFound maps a missing row onto payment.ErrNotFound so callers outside
// the repository never depend on gorm sentinels.
func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", payment.ErrNotFound, what)
	}
	return err
}
