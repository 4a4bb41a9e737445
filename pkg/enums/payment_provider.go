package enums

import "fmt"

// PaymentProvider identifies the external gateway that processes a payment.
type PaymentProvider string

const (
	PaymentProviderStripe  PaymentProvider = "STRIPE"
	PaymentProviderMoMo    PaymentProvider = "MOMO"
	PaymentProviderZaloPay PaymentProvider = "ZALOPAY"
)

var validPaymentProviders = []PaymentProvider{
	PaymentProviderStripe,
	PaymentProviderMoMo,
	PaymentProviderZaloPay,
}

// String implements fmt.Stringer.
func (p PaymentProvider) String() string {
	return string(p)
}

// IsValid reports whether the value is known.
func (p PaymentProvider) IsValid() bool {
	for _, candidate := range validPaymentProviders {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentProvider validates the raw value.
func ParsePaymentProvider(raw string) (PaymentProvider, error) {
	candidate := PaymentProvider(raw)
	if !candidate.IsValid() {
		return "", fmt.Errorf("unknown payment provider %q", raw)
	}
	return candidate, nil
}
