package domain

const (
	RoleCustomer = "CUSTOMER"
	RoleAdmin    = "ADMIN"
)

// Payment types carried in payment meta_info.payment_type.
const (
	PaymentTypeWalletTopUp  = "wallet_top_up"
	PaymentTypeOrderPayment = "order_payment"
	PaymentTypeSubscription = "subscription"
)

// ValidPaymentType reports whether t is a payment type the platform settles.
func ValidPaymentType(t string) bool {
	switch t {
	case PaymentTypeWalletTopUp, PaymentTypeOrderPayment, PaymentTypeSubscription:
		return true
	}
	return false
}

const (
	TransactionTypeCredit     = "credit"
	TransactionTypeDebit      = "debit"
	TransactionTypePayment    = "payment"
	TransactionTypeWithdrawal = "withdrawal"
)

const (
	OrderStatusPending   = "pending"
	OrderStatusPaid      = "paid"
	OrderStatusCancelled = "cancelled"
)

// General settings keys.
const (
	SettingCurrency    = "CURRENCY"
	SettingPlatformURL = "PLATFORM_URL"

	SettingGatewayProvider   = "payment_gateway.provider"
	SettingGatewayAPIKey     = "payment_gateway.api_key"
	SettingGatewaySecretKey  = "payment_gateway.secret_key"
	SettingGatewayPublicKey  = "payment_gateway.public_key"
	SettingGatewaySecretHash = "payment_gateway.secret_hash"
	SettingGatewayTestMode   = "payment_gateway.test_mode"
	SettingGatewayTestAPIKey = "payment_gateway.test_api_key"
	SettingGatewayTestSecret = "payment_gateway.test_secret_key"
	SettingGatewayTestPublic = "payment_gateway.test_public_key"
)

const DefaultCurrency = "NGN"

// RefundFeeRate is the fraction withheld from wallet refunds.
const RefundFeeRate = "0.015"
