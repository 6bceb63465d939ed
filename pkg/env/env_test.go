package env

import "testing"

func TestGetFallsBackOnBlank(t *testing.T) {
	t.Setenv("HRCORE_TEST_VALUE", "   ")
	if got := Get("HRCORE_TEST_VALUE", "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
	t.Setenv("HRCORE_TEST_VALUE", "set")
	if got := Get("HRCORE_TEST_VALUE", "fallback"); got != "set" {
		t.Fatalf("expected set, got %q", got)
	}
}

func TestInstancePrefersDyno(t *testing.T) {
	t.Setenv("DYNO", "dispatcher.1")
	t.Setenv("HOSTNAME", "box")
	if got := Instance(); got != "dispatcher.1" {
		t.Fatalf("expected dyno name, got %q", got)
	}
}
