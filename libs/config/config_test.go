package config

import (
	"testing"
	"time"
)

func TestPortValidation(t *testing.T) {
	t.Setenv("TEST_PORT", "70000")
	if _, err := Port("TEST_PORT", "8080"); err == nil {
		t.Fatalf("expected error for out of range port")
	}
	t.Setenv("TEST_PORT", "")
	p, err := Port("TEST_PORT", "8080")
	if err != nil || p != "8080" {
		t.Fatalf("expected fallback port, got %q err=%v", p, err)
	}
}

func TestRequiredString(t *testing.T) {
	t.Setenv("TEST_REQUIRED", "  ")
	if _, err := RequiredString("TEST_REQUIRED"); err == nil || err.Error() != "TEST_REQUIRED is required" {
		t.Fatalf("unexpected err: %v", err)
	}
}

func TestIntDurationBool(t *testing.T) {
	t.Setenv("TEST_INT", "20")
	if n, err := Int("TEST_INT", 1); err != nil || n != 20 {
		t.Fatalf("Int = %d, %v", n, err)
	}
	t.Setenv("TEST_INT", "-1")
	if _, err := Int("TEST_INT", 1); err == nil {
		t.Fatalf("expected error for negative int")
	}

	t.Setenv("TEST_DUR", "90s")
	if d, err := Duration("TEST_DUR", time.Minute); err != nil || d != 90*time.Second {
		t.Fatalf("Duration = %s, %v", d, err)
	}

	t.Setenv("TEST_BOOL", "off")
	if Bool("TEST_BOOL", true) {
		t.Fatalf("expected false")
	}
	t.Setenv("TEST_BOOL", "maybe")
	if !Bool("TEST_BOOL", true) {
		t.Fatalf("expected fallback true")
	}
}

func TestLocationAndList(t *testing.T) {
	t.Setenv("TEST_TZ", "")
	loc, err := Location("TEST_TZ", "Asia/Tokyo")
	if err != nil || loc.String() != "Asia/Tokyo" {
		t.Fatalf("Location = %v, %v", loc, err)
	}
	t.Setenv("TEST_TZ", "Mars/Olympus")
	if _, err := Location("TEST_TZ", "Asia/Tokyo"); err == nil {
		t.Fatalf("expected error for unknown zone")
	}

	t.Setenv("TEST_LIST", " a, ,b ,")
	got := List("TEST_LIST")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("List = %v", got)
	}
}
