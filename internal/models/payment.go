package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"scancodes/pkg/payment"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Payment is a request to collect money through a gateway. Key is our own
// reference and is shared with the companion Transaction row.
type Payment struct {
	ID                uint              `gorm:"primaryKey" json:"id"`
	Key               string            `gorm:"size:80;uniqueIndex;not null" json:"key"`
	Amount            decimal.Decimal   `gorm:"type:decimal(14,2);not null" json:"amount"`
	Currency          string            `gorm:"size:10;not null" json:"currency"`
	Narration         string            `gorm:"size:255" json:"narration"`
	PaymentMethod     string            `gorm:"size:80;not null" json:"payment_method"` // lowercase provider
	Status            payment.Status    `gorm:"size:20;not null;index" json:"status"`
	ProviderReference string            `gorm:"size:255" json:"provider_reference,omitempty"`
	MetaInfo          datatypes.JSONMap `json:"meta_info"`
	UserID            uint              `gorm:"not null;index" json:"user_id"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`

	User *User `gorm:"foreignKey:UserID" json:"-"`
}

func (Payment) TableName() string {
	return "payments"
}

// PaymentType is meta_info.payment_type, or "" when absent.
func (p *Payment) PaymentType() string {
	return p.metaString("payment_type")
}

func (p *Payment) metaString(k string) string {
	if p.MetaInfo == nil {
		return ""
	}
	s, _ := p.MetaInfo[k].(string)
	return s
}

// MetaUint reads a numeric id from meta_info. ok is false when k is absent;
// a value that is present but not a positive integer is an error.
func (p *Payment) MetaUint(k string) (id uint, ok bool, err error) {
	if p.MetaInfo == nil {
		return 0, false, nil
	}
	v, found := p.MetaInfo[k]
	if !found || v == nil {
		return 0, false, nil
	}
	id, err = ParseID(v)
	return id, true, err
}

// ParseID accepts the shapes an id takes in JSON meta: json.Number once read
// back from the database, float64 from a decoded request body, or a string.
func ParseID(v any) (uint, error) {
	var (
		d   decimal.Decimal
		err error
	)
	switch x := v.(type) {
	case json.Number:
		d, err = decimal.NewFromString(x.String())
	case string:
		d, err = decimal.NewFromString(strings.TrimSpace(x))
	case float64:
		d = decimal.NewFromFloat(x)
	case int:
		d = decimal.NewFromInt(int64(x))
	case int64:
		d = decimal.NewFromInt(x)
	case uint:
		d = decimal.NewFromInt(int64(x))
	default:
		return 0, fmt.Errorf("%w: id of type %T", payment.ErrValidation, v)
	}
	if err != nil || !d.IsPositive() || !d.IsInteger() || d.GreaterThan(maxID) {
		return 0, fmt.Errorf("%w: invalid id %v", payment.ErrValidation, v)
	}
	return uint(d.IntPart()), nil
}

var maxID = decimal.NewFromInt(math.MaxInt64)
