package enums

import "fmt"

// PaymentFlow identifies which product flow created a payment order.
type PaymentFlow string

const (
	PaymentFlowRegistration    PaymentFlow = "registration"
	PaymentFlowMemberDonation  PaymentFlow = "member_donation"
	PaymentFlowVisitorDonation PaymentFlow = "visitor_donation"
)

var validPaymentFlows = []PaymentFlow{
	PaymentFlowRegistration,
	PaymentFlowMemberDonation,
	PaymentFlowVisitorDonation,
}

// String implements fmt.Stringer.
func (f PaymentFlow) String() string {
	return string(f)
}

// IsValid reports whether the value is a known PaymentFlow.
func (f PaymentFlow) IsValid() bool {
	for _, candidate := range validPaymentFlows {
		if candidate == f {
			return true
		}
	}
	return false
}

// ParsePaymentFlow converts raw input into a PaymentFlow.
func ParsePaymentFlow(value string) (PaymentFlow, error) {
	for _, candidate := range validPaymentFlows {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment flow %q", value)
}
