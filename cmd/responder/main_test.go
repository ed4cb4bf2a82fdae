package main

import "testing"

func TestFirstNonEmpty(t *testing.T) {
	if got := firstNonEmpty("", "  ", ":5000"); got != ":5000" {
		t.Fatalf("expected :5000, got %q", got)
	}
	if got := firstNonEmpty("  :6000 ", ":5000"); got != ":6000" {
		t.Fatalf("expected trimmed first value, got %q", got)
	}
	if got := firstNonEmpty("", "   "); got != "" {
		t.Fatalf("expected empty result, got %q", got)
	}
}
