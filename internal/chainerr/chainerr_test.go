package chainerr

import (
	"errors"
	"testing"
)

func TestTransientUnwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection reset")
	err := &Transient{Endpoint: "https://rpc.example", Op: "eth_getLogs", Err: cause}

	if !errors.Is(err, cause) {
		t.Fatalf("errors.Is(err, cause)=false, want true")
	}
	want := "transient error calling eth_getLogs on https://rpc.example: connection reset"
	if got := err.Error(); got != want {
		t.Fatalf("Error()=%q want %q", got, want)
	}
}

func TestPermanentUnwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("method not found")
	err := &Permanent{Endpoint: "https://rpc.example", Op: "eth_call", Err: cause}
	if !errors.Is(err, cause) {
		t.Fatalf("errors.Is(err, cause)=false, want true")
	}
}

func TestRateLimitStalledMessage(t *testing.T) {
	t.Parallel()

	err := &RateLimitStalled{Endpoint: "ep-1", Waited: "120s"}
	want := "rate limiter stalled on endpoint ep-1 after waiting 120s"
	if got := err.Error(); got != want {
		t.Fatalf("Error()=%q want %q", got, want)
	}
}

func TestDataIntegrityMessage(t *testing.T) {
	t.Parallel()

	err := &DataIntegrity{Detail: "block timestamp went backwards"}
	if got := err.Error(); got != "data integrity violation: block timestamp went backwards" {
		t.Fatalf("Error()=%q", got)
	}
}

func TestConfigErrorMessage(t *testing.T) {
	t.Parallel()

	err := &ConfigError{Detail: "missing endpoint"}
	if got := err.Error(); got != "configuration error: missing endpoint" {
		t.Fatalf("Error()=%q", got)
	}
}

func TestErrorsAsClassification(t *testing.T) {
	t.Parallel()

	var err error = &Transient{Endpoint: "ep", Op: "op", Err: errors.New("boom")}

	var transient *Transient
	if !errors.As(err, &transient) {
		t.Fatalf("expected errors.As to match *Transient")
	}

	var permanent *Permanent
	if errors.As(err, &permanent) {
		t.Fatalf("did not expect errors.As to match *Permanent")
	}
}
