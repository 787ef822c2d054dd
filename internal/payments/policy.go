package payments

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/donations-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/donations-backend/pkg/errors"
)

const anonymousSubject = "ANON"

var orderIDPattern = regexp.MustCompile(`^(REG|MDN|VDN)_([0-9a-f]{8}|ANON)_([0-9a-f]{32})$`)

// FlowPolicy holds everything that differs between payment flows. The
// engine and service are otherwise flow-agnostic.
type FlowPolicy struct {
	Flow            enums.PaymentFlow
	Tag             string
	ReceiptPrefix   string
	RequiresSubject bool
	Public          bool
	Description     string
}

var policies = map[enums.PaymentFlow]FlowPolicy{
	enums.PaymentFlowRegistration: {
		Flow:            enums.PaymentFlowRegistration,
		Tag:             "REG",
		ReceiptPrefix:   "MRCP",
		RequiresSubject: true,
		Description:     "Membership registration fee",
	},
	enums.PaymentFlowMemberDonation: {
		Flow:            enums.PaymentFlowMemberDonation,
		Tag:             "MDN",
		ReceiptPrefix:   "MDRCP",
		RequiresSubject: true,
		Description:     "Member donation",
	},
	enums.PaymentFlowVisitorDonation: {
		Flow:          enums.PaymentFlowVisitorDonation,
		Tag:           "VDN",
		ReceiptPrefix: "VDRCP",
		Public:        true,
		Description:   "Visitor donation",
	},
}

// PolicyFor returns the policy registered for flow.
func PolicyFor(flow enums.PaymentFlow) (FlowPolicy, error) {
	policy, ok := policies[flow]
	if !ok {
		return FlowPolicy{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported payment flow %q", flow))
	}
	return policy, nil
}

// ParsedOrderID is an order id split into its components.
type ParsedOrderID struct {
	Policy  FlowPolicy
	Subject string
	Token   string
}

// ParseOrderID validates the shape of an order id and resolves its flow.
func ParseOrderID(orderID string) (ParsedOrderID, error) {
	m := orderIDPattern.FindStringSubmatch(strings.TrimSpace(orderID))
	if m == nil {
		return ParsedOrderID{}, pkgerrors.New(pkgerrors.CodeValidation, "malformed order id")
	}
	for _, policy := range policies {
		if policy.Tag == m[1] {
			return ParsedOrderID{Policy: policy, Subject: m[2], Token: m[3]}, nil
		}
	}
	return ParsedOrderID{}, pkgerrors.New(pkgerrors.CodeValidation, "unknown order id tag")
}

// NewOrderID builds <TAG>_<subject8|ANON>_<uuidv7 hex>. At 45 characters it
// fits the gateway's 50 character order_id limit.
func (p FlowPolicy) NewOrderID(subject *uuid.UUID) (string, error) {
	token, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate order token: %w", err)
	}
	return fmt.Sprintf("%s_%s_%s", p.Tag, subjectSegment(subject), strings.ReplaceAll(token.String(), "-", "")), nil
}

// ReceiptNo derives the receipt number from an order id. The mapping is
// injective, so receipt numbers are unique whenever order ids are.
func (p FlowPolicy) ReceiptNo(orderID string) (string, error) {
	parsed, err := ParseOrderID(orderID)
	if err != nil {
		return "", err
	}
	if parsed.Policy.Flow != p.Flow {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "order id does not belong to flow "+p.Flow.String())
	}
	return fmt.Sprintf("%s-%s-%s", p.ReceiptPrefix, strings.ToUpper(parsed.Subject), strings.ToUpper(parsed.Token)), nil
}

func subjectSegment(subject *uuid.UUID) string {
	if subject == nil || *subject == uuid.Nil {
		return anonymousSubject
	}
	return strings.ReplaceAll(subject.String(), "-", "")[:8]
}
