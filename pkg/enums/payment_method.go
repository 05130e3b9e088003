package enums

import (
	"fmt"
	"strings"
)

// PaymentMethod describes how the buyer settled.
type PaymentMethod string

const (
	PaymentMethodCard   PaymentMethod = "card"
	PaymentMethodWallet PaymentMethod = "wallet"
	PaymentMethodBank   PaymentMethod = "bank_transfer"
	PaymentMethodOther  PaymentMethod = "other"
)

var validPaymentMethods = []PaymentMethod{
	PaymentMethodCard,
	PaymentMethodWallet,
	PaymentMethodBank,
	PaymentMethodOther,
}

// String implements fmt.Stringer.
func (p PaymentMethod) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentMethod.
func (p PaymentMethod) IsValid() bool {
	for _, candidate := range validPaymentMethods {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentMethod converts raw input into a PaymentMethod.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	for _, candidate := range validPaymentMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment method %q", value)
}

// PaymentMethodFromGateway maps a gateway payment method type (card, link,
// us_bank_account, ...) onto the stored enum. Unknown types map to other.
func PaymentMethodFromGateway(kind string) PaymentMethod {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "card", "card_present":
		return PaymentMethodCard
	case "link", "apple_pay", "google_pay", "paypal", "cashapp":
		return PaymentMethodWallet
	case "us_bank_account", "sepa_debit", "ach_debit", "bacs_debit", "acss_debit":
		return PaymentMethodBank
	default:
		return PaymentMethodOther
	}
}
