package cashfree

import (
	"encoding/json"
	"strings"

	"github.com/angelmondragon/donations-backend/pkg/enums"
)

// MapOrderStatus normalizes the order_status field of the orders API.
func MapOrderStatus(raw string) enums.GatewayStatus {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "PAID":
		return enums.GatewayStatusPaid
	case "ACTIVE":
		return enums.GatewayStatusPending
	case "EXPIRED":
		return enums.GatewayStatusExpired
	case "TERMINATED", "TERMINATION_REQUESTED", "CANCELLED":
		return enums.GatewayStatusCancelled
	case "FAILED":
		return enums.GatewayStatusFailed
	}
	return enums.GatewayStatusUnknown
}

// MapPaymentStatus normalizes the payment_status field of payment webhooks.
func MapPaymentStatus(raw string) enums.GatewayStatus {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "SUCCESS":
		return enums.GatewayStatusPaid
	case "FAILED":
		return enums.GatewayStatusFailed
	case "USER_DROPPED", "CANCELLED":
		return enums.GatewayStatusCancelled
	case "PENDING", "NOT_ATTEMPTED":
		return enums.GatewayStatusPending
	}
	return enums.GatewayStatusUnknown
}

// FlexibleID accepts identifiers Cashfree sends as either JSON numbers or
// strings depending on API version.
type FlexibleID string

func (f *FlexibleID) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		*f = ""
		return nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexibleID(n.String())
	return nil
}

func (f FlexibleID) String() string {
	return string(f)
}
