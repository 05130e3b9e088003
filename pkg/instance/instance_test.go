package instance

import "testing"

func TestIDPrefersExplicitInstance(t *testing.T) {
	t.Setenv("STOREFRONT_INSTANCE_ID", "api-1")
	t.Setenv("DYNO", "web.1")
	if got := ID(); got != "api-1" {
		t.Fatalf("expected api-1, got %q", got)
	}
}

func TestIDFallsBack(t *testing.T) {
	t.Setenv("STOREFRONT_INSTANCE_ID", "")
	t.Setenv("DYNO", "")
	t.Setenv("HOSTNAME", "")
	if got := ID(); got != "local" {
		t.Fatalf("expected local, got %q", got)
	}
}

func TestPort(t *testing.T) {
	t.Setenv("PORT", "")
	if got := Port("8080"); got != "8080" {
		t.Fatalf("expected configured port, got %q", got)
	}
	t.Setenv("PORT", "5000")
	if got := Port("8080"); got != "5000" {
		t.Fatalf("expected PORT override, got %q", got)
	}
}
