package enums

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseIsExact(t *testing.T) {
	got, err := ParseCreditType("45Q")
	require.NoError(t, err)
	require.Equal(t, CreditType45Q, got)

	_, err = ParseCreditType("itc")
	require.EqualError(t, err, `invalid credit type "itc"`)

	_, err = ParseLotStatus("")
	require.Error(t, err)
}

func TestOutboxEnums(t *testing.T) {
	event, err := ParseOutboxEventType("order_paid")
	require.NoError(t, err)
	require.Equal(t, EventOrderPaid, event)
	require.False(t, OutboxEventType("order_shipped").IsValid())

	agg, err := ParseOutboxAggregateType("hold")
	require.NoError(t, err)
	require.True(t, agg.IsValid())
}

func TestHoldStatusTerminal(t *testing.T) {
	require.False(t, HoldStatusActive.IsTerminal())
	for _, s := range []HoldStatus{HoldStatusExpired, HoldStatusConsumed, HoldStatusCancelled} {
		require.True(t, s.IsTerminal(), s.String())
	}
}

func TestRoleAndMethodValidity(t *testing.T) {
	require.True(t, RoleAccountant.IsValid())
	require.False(t, Role("admin").IsValid())
	require.True(t, PaymentMethodUSDC.IsValid())
	_, err := ParsePaymentMethod("WIRE")
	require.Error(t, err)
}

func TestPaymentStatusTransitions(t *testing.T) {
	require.True(t, PaymentStatusPaidTest.IsSettled())
	require.False(t, PaymentStatusProcessing.IsSettled())
	require.True(t, PaymentStatusRefunded.ReleasesInventory())
	require.False(t, PaymentStatusPaid.ReleasesInventory())
}
