package enums

import "slices"

// PaymentMethod records how a purchase order is expected to settle.
type PaymentMethod string

const (
	PaymentMethodStripe PaymentMethod = "STRIPE"
	PaymentMethodUSDC   PaymentMethod = "USDC"
	PaymentMethodDemo   PaymentMethod = "DEMO"
)

var validPaymentMethods = []PaymentMethod{
	PaymentMethodStripe,
	PaymentMethodUSDC,
	PaymentMethodDemo,
}

// String implements fmt.Stringer.
func (p PaymentMethod) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentMethod.
func (p PaymentMethod) IsValid() bool {
	return slices.Contains(validPaymentMethods, p)
}

// ParsePaymentMethod converts raw input into a PaymentMethod.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	return parse(value, validPaymentMethods, "payment method")
}
