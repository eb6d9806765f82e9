package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOfAndIs(t *testing.T) {
	base := errors.New("connection refused")
	inner := E(KindNetwork, "api.ProvisionUser", base)
	outer := E(KindProvision, "session.Connect", inner)
	wrapped := fmt.Errorf("connect: %w", outer)

	if got := KindOf(wrapped); got != KindProvision {
		t.Fatalf("KindOf = %v, want provision", got)
	}
	if !Is(wrapped, KindNetwork) {
		t.Fatalf("expected nested network kind to be found")
	}
	if Is(wrapped, KindTimedOut) {
		t.Fatalf("unexpected timed out kind")
	}
	if !errors.Is(wrapped, base) {
		t.Fatalf("expected chain to reach the base error")
	}
	if KindOf(base) != KindUnknown {
		t.Fatalf("plain errors must report KindUnknown")
	}
}

func TestErrorString(t *testing.T) {
	err := Status(KindNetwork, "api.ListChannels", 503, errors.New("unavailable"))
	want := "api.ListChannels: network (HTTP 503): unavailable"
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
	if StatusOf(fmt.Errorf("x: %w", err)) != 503 {
		t.Fatalf("expected status 503")
	}
}
