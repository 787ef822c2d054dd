package enums

import "strings"

// GatewayStatus is the gateway's view of an order, normalized across the
// order status API and webhook payment statuses.
type GatewayStatus string

const (
	GatewayStatusPaid      GatewayStatus = "PAID"
	GatewayStatusPending   GatewayStatus = "PENDING"
	GatewayStatusFailed    GatewayStatus = "FAILED"
	GatewayStatusCancelled GatewayStatus = "CANCELLED"
	GatewayStatusExpired   GatewayStatus = "EXPIRED"
	GatewayStatusUnknown   GatewayStatus = "UNKNOWN"
)

// String implements fmt.Stringer.
func (g GatewayStatus) String() string {
	return string(g)
}

// IsFailure reports whether the observation settles an order as failed.
func (g GatewayStatus) IsFailure() bool {
	switch g {
	case GatewayStatusFailed, GatewayStatusCancelled, GatewayStatusExpired:
		return true
	}
	return false
}

// ParseGatewayStatus never fails; anything unrecognized is UNKNOWN.
func ParseGatewayStatus(value string) GatewayStatus {
	switch GatewayStatus(strings.ToUpper(strings.TrimSpace(value))) {
	case GatewayStatusPaid:
		return GatewayStatusPaid
	case GatewayStatusPending:
		return GatewayStatusPending
	case GatewayStatusFailed:
		return GatewayStatusFailed
	case GatewayStatusCancelled:
		return GatewayStatusCancelled
	case GatewayStatusExpired:
		return GatewayStatusExpired
	}
	return GatewayStatusUnknown
}
