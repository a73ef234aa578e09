package repository

import (
	"math/big"
	"testing"
)

func TestBigOrZero(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   *big.Int
		want string
	}{
		{"nil", nil, "0"},
		{"zero", big.NewInt(0), "0"},
		{"positive", big.NewInt(123456789), "123456789"},
	}

	for _, tc := range cases {
		if got := bigOrZero(tc.in); got != tc.want {
			t.Errorf("%s: bigOrZero()=%q want %q", tc.name, got, tc.want)
		}
	}
}

func TestBigOrNull(t *testing.T) {
	t.Parallel()

	if got := bigOrNull(nil); got != nil {
		t.Errorf("bigOrNull(nil)=%v want nil", got)
	}
	v := big.NewInt(42)
	got, ok := bigOrNull(v).(string)
	if !ok || got != "42" {
		t.Errorf("bigOrNull(42)=%v want %q", got, "42")
	}
}

func TestParseBig(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"0", "0"},
		{"123456789012345678901234567890", "123456789012345678901234567890"},
		{"not-a-number", "0"},
		{"", "0"},
	}

	for _, tc := range cases {
		if got := parseBig(tc.in).String(); got != tc.want {
			t.Errorf("parseBig(%q)=%q want %q", tc.in, got, tc.want)
		}
	}
}

func TestBigRoundTrip(t *testing.T) {
	t.Parallel()

	v := new(big.Int)
	v.SetString("98765432109876543210987654321098765432109876543210", 10)
	s := bigOrZero(v)
	if got := parseBig(s); got.Cmp(v) != 0 {
		t.Fatalf("round trip mismatch: got %s want %s", got, v)
	}
}
