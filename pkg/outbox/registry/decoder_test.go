package registry

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/taxcredit-backend/pkg/enums"
	"github.com/angelmondragon/taxcredit-backend/pkg/outbox/payloads"
)

func TestCurrentDecodersCoverEveryEvent(t *testing.T) {
	decoders := CurrentDecoders()
	for _, event := range []enums.OutboxEventType{
		enums.EventHoldCreated,
		enums.EventOrderCreated,
		enums.EventOrderPaid,
		enums.EventOrderPaymentFailed,
		enums.EventOrderRefunded,
		enums.EventOrderBrokerApproved,
	} {
		require.Equal(t, 1, decoders.Latest(event), string(event))
	}
}

func TestDecodersDecode(t *testing.T) {
	decoders := CurrentDecoders()
	input := json.RawMessage(` {"order_id":"f47ac10b-58cc-4372-a567-0e02b2c3d479","company_id":"f47ac10b-58cc-4372-a567-0e02b2c3d480","note":"ok"} `)

	out, err := decoders.Decode(enums.EventOrderBrokerApproved, 0, input)
	require.NoError(t, err)
	decoded, ok := out.(*payloads.OrderBrokerApprovedEvent)
	require.True(t, ok, "got %T", out)
	require.Equal(t, "ok", decoded.Note)

	_, err = decoders.Decode(enums.EventOrderBrokerApproved, 2, input)
	require.ErrorIs(t, err, ErrNoDecoder)

	_, err = decoders.Decode(enums.EventOrderPaid, 1, json.RawMessage("null"))
	require.ErrorIs(t, err, ErrEmptyPayload)

	_, err = decoders.Decode(enums.EventOrderPaid, 1, json.RawMessage(`{"total_usd":"abc"}`))
	require.Error(t, err)
}

func TestBindTracksLatestVersion(t *testing.T) {
	decoders := NewDecoders()
	Bind[payloads.OrderPaymentEvent](decoders, 2, enums.EventOrderPaid)
	Bind[payloads.OrderPaymentEvent](decoders, 1, enums.EventOrderPaid)
	require.Equal(t, 2, decoders.Latest(enums.EventOrderPaid))
	require.Zero(t, decoders.Latest(enums.EventHoldCreated))
}
