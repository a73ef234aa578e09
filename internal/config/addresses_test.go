package config

import "testing"

func TestZeroIsStableAcrossCalls(t *testing.T) {
	t.Parallel()

	a := Zero()
	b := Zero()
	if a != b {
		t.Fatal("expected Zero() to return the same singleton instance")
	}
	if a.EVM != "0x0000000000000000000000000000000000000000" {
		t.Fatalf("EVM zero address=%q", a.EVM)
	}
	if a.Tron != "410000000000000000000000000000000000000000" {
		t.Fatalf("Tron zero address=%q", a.Tron)
	}
	if a.DefaultDecimalsEVM != 18 {
		t.Fatalf("DefaultDecimalsEVM=%d want 18", a.DefaultDecimalsEVM)
	}
}
