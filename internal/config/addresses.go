package config

import "sync"

// ZeroAddresses holds the chain-family-specific "null" address conventions
// used to classify a Transfer event as a mint (From == zero) or burn
// (To == zero), plus that family's default token decimals when a contract
// is silent about its own.
type ZeroAddresses struct {
	EVM            string
	Tron           string
	SolanaSystem   string
	DefaultDecimalsEVM int
	DefaultDecimalsTron int
}

var (
	zeroAddrs     *ZeroAddresses
	zeroAddrsOnce sync.Once
)

// Zero returns the global zero-address table. Constant across networks
// within a chain family, so unlike the teacher's per-network addresses it
// needs no environment-driven selection.
func Zero() *ZeroAddresses {
	zeroAddrsOnce.Do(func() {
		zeroAddrs = &ZeroAddresses{
			EVM:                 "0x0000000000000000000000000000000000000000",
			Tron:                "410000000000000000000000000000000000000000",
			SolanaSystem:        "11111111111111111111111111111111",
			DefaultDecimalsEVM:  18,
			DefaultDecimalsTron: 6,
		}
	})
	return zeroAddrs
}
