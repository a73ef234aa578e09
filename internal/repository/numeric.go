package repository

import "math/big"

// bigOrZero renders a possibly-nil *big.Int as its decimal string, treating
// nil as zero. Postgres NUMERIC columns accept decimal text directly.
func bigOrZero(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// bigOrNull renders a possibly-nil *big.Int as a nullable decimal string,
// used for total_supply which is only known once a totalSupply() read has
// been attributed to a given block.
func bigOrNull(v *big.Int) interface{} {
	if v == nil {
		return nil
	}
	return v.String()
}

func parseBig(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return big.NewInt(0)
	}
	return v
}
