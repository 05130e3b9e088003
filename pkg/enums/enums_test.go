package enums

import "testing"

func TestParseOrderStatus(t *testing.T) {
	got, err := ParseOrderStatus("shipped")
	if err != nil || got != OrderStatusShipped {
		t.Fatalf("expected shipped, got %q (%v)", got, err)
	}
	if _, err := ParseOrderStatus("lost"); err == nil {
		t.Fatal("expected unknown status to fail")
	}
}

func TestPaymentMethodFromGateway(t *testing.T) {
	cases := map[string]PaymentMethod{
		"card":            PaymentMethodCard,
		" Apple_Pay ":     PaymentMethodWallet,
		"us_bank_account": PaymentMethodBank,
		"klarna":          PaymentMethodOther,
		"":                PaymentMethodOther,
	}
	for kind, want := range cases {
		if got := PaymentMethodFromGateway(kind); got != want {
			t.Fatalf("PaymentMethodFromGateway(%q) = %q, want %q", kind, got, want)
		}
	}
}

func TestNotificationPriorityOutranks(t *testing.T) {
	if !NotificationPriorityUrgent.Outranks(NotificationPriorityHigh) {
		t.Fatal("urgent should outrank high")
	}
	if NotificationPriorityNormal.Outranks(NotificationPriorityNormal) {
		t.Fatal("equal priorities must not outrank")
	}
	if NotificationPriority("bogus").Rank() != 0 {
		t.Fatal("unknown priority should rank 0")
	}
}

func TestMemberRoleReceivesAlerts(t *testing.T) {
	if !MemberRoleAdmin.ReceivesAlerts() || MemberRoleStaff.ReceivesAlerts() {
		t.Fatal("only owners and admins receive alerts")
	}
	if _, err := ParseMemberRole("guest"); err == nil {
		t.Fatal("expected unknown role to fail")
	}
}
