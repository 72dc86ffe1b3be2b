package paynow_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"mukando/internal/models"
	"mukando/internal/paynow"
)

func TestMapStatus_KnownVocabulary(t *testing.T) {
	cases := map[string]models.PaymentStatus{
		"Paid":              models.StatusPaid,
		"Awaiting Delivery": models.StatusPaid,
		"Delivered":         models.StatusPaid,
		"Confirmed":         models.StatusPaid,
		"Success":           models.StatusPaid,
		"Cancelled":         models.StatusCancelled,
		"Canceled":          models.StatusCancelled,
		"Refunded":          models.StatusCancelled,
		"Failed":            models.StatusFailed,
		"Error":             models.StatusFailed,
		"Disputed":          models.StatusFailed,
		"Created":           models.StatusPending,
		"Sent":              models.StatusPending,
		"Pending":           models.StatusPending,
	}

	for token, want := range cases {
		require.Equal(t, want, paynow.MapStatus(token), "token %q", token)
	}
}

func TestMapStatus_CaseInsensitive(t *testing.T) {
	require.Equal(t, models.StatusPaid, paynow.MapStatus("PAID"))
	require.Equal(t, models.StatusPaid, paynow.MapStatus("paid"))
	require.Equal(t, models.StatusPaid, paynow.MapStatus("  AWAITING DELIVERY "))
	require.Equal(t, models.StatusFailed, paynow.MapStatus("FaIlEd"))
}

// Unknown tokens stay pending so an unrecognized intermediate state can
// never finalize a payment.
func TestMapStatus_UnknownDefaultsToPending(t *testing.T) {
	for _, token := range []string{"", "queued", "in_progress", "whatever-new-state", "3"} {
		require.Equal(t, models.StatusPending, paynow.MapStatus(token), "token %q", token)
	}
}
