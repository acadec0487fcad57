package enums

import "slices"

// PaymentSource names the channel that reported a payment transition.
type PaymentSource string

const (
	PaymentSourceStripe PaymentSource = "stripe"
	PaymentSourceUSDC   PaymentSource = "usdc"
	PaymentSourceManual PaymentSource = "manual"
	PaymentSourceSystem PaymentSource = "system"
)

var validPaymentSources = []PaymentSource{
	PaymentSourceStripe,
	PaymentSourceUSDC,
	PaymentSourceManual,
	PaymentSourceSystem,
}

// IsValid reports whether the value is a known PaymentSource.
func (p PaymentSource) IsValid() bool {
	return slices.Contains(validPaymentSources, p)
}

// ParsePaymentSource converts raw input into a PaymentSource.
func ParsePaymentSource(value string) (PaymentSource, error) {
	return parse(value, validPaymentSources, "payment source")
}
