package enums

import "testing"

func TestOrderStatusTerminal(t *testing.T) {
	if OrderStatusPending.IsTerminal() {
		t.Fatalf("pending must not be terminal")
	}
	for _, s := range []OrderStatus{OrderStatusSuccess, OrderStatusFailed} {
		if !s.IsTerminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
	got, err := ParseOrderStatus(" SUCCESS ")
	if err != nil || got != OrderStatusSuccess {
		t.Fatalf("unexpected parse result %q err=%v", got, err)
	}
	if _, err := ParseOrderStatus("refunded"); err == nil {
		t.Fatalf("expected error for unknown status")
	}
}

func TestParseGatewayStatusFallsBackToUnknown(t *testing.T) {
	cases := map[string]GatewayStatus{
		"PAID":      GatewayStatusPaid,
		"paid":      GatewayStatusPaid,
		"EXPIRED":   GatewayStatusExpired,
		"cancelled": GatewayStatusCancelled,
		"ACTIVE":    GatewayStatusUnknown,
		"":          GatewayStatusUnknown,
	}
	for in, want := range cases {
		if got := ParseGatewayStatus(in); got != want {
			t.Fatalf("ParseGatewayStatus(%q) = %s want %s", in, got, want)
		}
	}
}

func TestGatewayStatusIsFailure(t *testing.T) {
	for _, s := range []GatewayStatus{GatewayStatusFailed, GatewayStatusCancelled, GatewayStatusExpired} {
		if !s.IsFailure() {
			t.Fatalf("%s should settle as failure", s)
		}
	}
	for _, s := range []GatewayStatus{GatewayStatusPaid, GatewayStatusPending, GatewayStatusUnknown} {
		if s.IsFailure() {
			t.Fatalf("%s should not settle as failure", s)
		}
	}
}

func TestMemberRoleIsStaff(t *testing.T) {
	if MemberRoleMember.IsStaff() {
		t.Fatalf("member is not staff")
	}
	if !MemberRoleAdmin.IsStaff() || !MemberRoleManager.IsStaff() {
		t.Fatalf("admin and manager are staff")
	}
}

func TestParseCurrency(t *testing.T) {
	got, err := ParseCurrency(" inr ")
	if err != nil || got != CurrencyINR {
		t.Fatalf("unexpected parse result %q err=%v", got, err)
	}
	if _, err := ParseCurrency("USD"); err == nil {
		t.Fatalf("expected error for unsupported currency")
	}
}

func TestOutboxDLQErrorReasonIsValid(t *testing.T) {
	if !OutboxDLQReasonMaxAttempts.IsValid() || !OutboxDLQReasonNonRetryable.IsValid() {
		t.Fatalf("known reasons must be valid")
	}
	if OutboxDLQErrorReason("timeout").IsValid() {
		t.Fatalf("unknown reason must be invalid")
	}
}

func TestParseMemberRoleIgnoresCase(t *testing.T) {
	got, err := ParseMemberRole(" Manager ")
	if err != nil || got != MemberRoleManager {
		t.Fatalf("unexpected parse result %q err=%v", got, err)
	}
	if _, err := ParseMemberRole("treasurer"); err == nil {
		t.Fatalf("expected error for unknown role")
	}
}

func TestOutcomeEventFor(t *testing.T) {
	if got, err := OutcomeEventFor(OrderStatusSuccess); err != nil || got != EventPaymentSucceeded {
		t.Fatalf("unexpected success event %q err=%v", got, err)
	}
	if got, err := OutcomeEventFor(OrderStatusFailed); err != nil || got != EventPaymentFailed {
		t.Fatalf("unexpected failure event %q err=%v", got, err)
	}
	if _, err := OutcomeEventFor(OrderStatusPending); err == nil {
		t.Fatalf("pending must not map to an outcome event")
	}
}
