package fees

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/taxcredit-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/taxcredit-backend/pkg/errors"
)

// Base selects the amount fee percentages are applied to.
type Base string

const (
	BaseFace     Base = "face"
	BaseSubtotal Base = "subtotal"
)

const centsPlaces = 2

var hundred = decimal.NewFromInt(100)

// Input describes a quote request. Percent fields are whole percents (2 == 2%).
type Input struct {
	FaceAmount         decimal.Decimal
	UnitPrice          decimal.Decimal
	PlatformFeePercent decimal.Decimal
	BrokerFeePercent   decimal.Decimal
	PlatformFeeFloor   decimal.Decimal
	BrokerFeeFloor     decimal.Decimal
	FeeBase            Base
}

// Breakdown is the priced result of a quote.
type Breakdown struct {
	FaceAmount               decimal.Decimal `json:"faceAmountUsd"`
	UnitPrice                decimal.Decimal `json:"pricePerDollar"`
	Subtotal                 decimal.Decimal `json:"subtotalUsd"`
	PlatformFee              decimal.Decimal `json:"platformFeeUsd"`
	BrokerFee                decimal.Decimal `json:"brokerFeeUsd"`
	TotalCost                decimal.Decimal `json:"totalCostUsd"`
	Savings                  decimal.Decimal `json:"savingsUsd"`
	EffectiveDiscountPercent decimal.Decimal `json:"effectiveDiscountPercent"`
}

// Calculate prices a purchase of FaceAmount credits at UnitPrice per dollar.
//
//	subtotal = face * price
//	fee      = max(base * pct / 100, floor)
//	total    = subtotal + platformFee + brokerFee
//	savings  = face - total
func Calculate(in Input) (Breakdown, error) {
	if err := in.validate(); err != nil {
		return Breakdown{}, err
	}

	subtotal := in.FaceAmount.Mul(in.UnitPrice).Round(centsPlaces)

	base := subtotal
	if in.FeeBase == BaseFace {
		base = in.FaceAmount
	}

	platformFee := percentWithFloor(base, in.PlatformFeePercent, in.PlatformFeeFloor)
	brokerFee := percentWithFloor(base, in.BrokerFeePercent, in.BrokerFeeFloor)
	total := subtotal.Add(platformFee).Add(brokerFee)
	savings := in.FaceAmount.Sub(total)

	return Breakdown{
		FaceAmount:               in.FaceAmount,
		UnitPrice:                in.UnitPrice,
		Subtotal:                 subtotal,
		PlatformFee:              platformFee,
		BrokerFee:                brokerFee,
		TotalCost:                total,
		Savings:                  savings,
		EffectiveDiscountPercent: savings.Div(in.FaceAmount).Mul(hundred).Round(centsPlaces),
	}, nil
}

func percentWithFloor(base, percent, floor decimal.Decimal) decimal.Decimal {
	fee := base.Mul(percent).Div(hundred).Round(centsPlaces)
	if fee.LessThan(floor) {
		return floor.Round(centsPlaces)
	}
	return fee
}

func (in Input) validate() error {
	switch {
	case !in.FaceAmount.IsPositive():
		return pkgerrors.New(pkgerrors.CodeValidation, "face amount must be greater than zero")
	case !in.UnitPrice.IsPositive() || in.UnitPrice.GreaterThan(decimal.NewFromInt(1)):
		return pkgerrors.New(pkgerrors.CodeValidation, "price per dollar must be within (0, 1]")
	case in.PlatformFeePercent.IsNegative() || in.BrokerFeePercent.IsNegative():
		return pkgerrors.New(pkgerrors.CodeValidation, "fee percentages must not be negative")
	case in.PlatformFeeFloor.IsNegative() || in.BrokerFeeFloor.IsNegative():
		return pkgerrors.New(pkgerrors.CodeValidation, "fee floors must not be negative")
	}
	switch in.FeeBase {
	case BaseFace, BaseSubtotal:
		return nil
	default:
		return pkgerrors.New(pkgerrors.CodeValidation, "fee base must be face or subtotal").
			WithDetails(map[string]any{"fee_base": in.FeeBase})
	}
}

// Calculator applies the configured fee schedule to quotes.
type Calculator struct {
	cfg config.FeesConfig
}

func NewCalculator(cfg config.FeesConfig) *Calculator {
	return &Calculator{cfg: cfg}
}

// Quote prices face credits at the given unit price using the configured schedule.
func (c *Calculator) Quote(face, price decimal.Decimal) (Breakdown, error) {
	return Calculate(Input{
		FaceAmount:         face,
		UnitPrice:          price,
		PlatformFeePercent: c.cfg.PlatformFeePercent,
		BrokerFeePercent:   c.cfg.BrokerFeePercent,
		PlatformFeeFloor:   c.cfg.PlatformFeeFloor,
		BrokerFeeFloor:     c.cfg.BrokerFeeFloor,
		FeeBase:            Base(strings.ToLower(strings.TrimSpace(c.cfg.FeeBase))),
	})
}
