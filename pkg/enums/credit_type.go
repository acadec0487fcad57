package enums

import "slices"

// CreditType identifies the federal program a lot's credits originate from.
type CreditType string

const (
	CreditTypeITC   CreditType = "ITC"
	CreditTypePTC   CreditType = "PTC"
	CreditType45Q   CreditType = "45Q"
	CreditType48C   CreditType = "48C"
	CreditType48E   CreditType = "48E"
	CreditTypeOther CreditType = "OTHER"
)

var validCreditTypes = []CreditType{
	CreditTypeITC,
	CreditTypePTC,
	CreditType45Q,
	CreditType48C,
	CreditType48E,
	CreditTypeOther,
}

// String implements fmt.Stringer.
func (c CreditType) String() string {
	return string(c)
}

// IsValid reports whether the value is a known CreditType.
func (c CreditType) IsValid() bool {
	return slices.Contains(validCreditTypes, c)
}

// ParseCreditType converts raw input into a CreditType.
func ParseCreditType(value string) (CreditType, error) {
	return parse(value, validCreditTypes, "credit type")
}
