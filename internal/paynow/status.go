package paynow

import (
	"strings"

	"mukando/internal/models"
)

// MapStatus translates a raw gateway status token into the closed payment
// status set. This is the only place the gateway's vocabulary is known.
//
// Unknown or absent tokens map to pending on purpose: the gateway emits
// intermediate states ("created", "sent", ...) and may add new ones, and an
// unrecognized token must never finalize a payment prematurely.
func MapStatus(token string) models.PaymentStatus {
	switch strings.ToLower(strings.TrimSpace(token)) {
	case "paid", "awaiting delivery", "delivered", "confirmed", "success":
		return models.StatusPaid
	case "cancelled", "canceled", "refunded":
		return models.StatusCancelled
	case "failed", "error", "disputed":
		return models.StatusFailed
	default:
		return models.StatusPending
	}
}
