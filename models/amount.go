package models

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
)

// Amount is an arbitrary-precision token amount. It is always serialized as a
// base-10 string so that values above 2^53 survive JSON round trips.
type Amount struct {
	v big.Int
}

// NewAmount returns an Amount holding x.
func NewAmount(x int64) Amount {
	var a Amount
	a.v.SetInt64(x)
	return a
}

// ParseAmount parses a base-10 integer string. Signs are accepted so callers
// can reject negative values with a domain error instead of a parse error.
func ParseAmount(s string) (Amount, error) {
	var a Amount
	s = strings.TrimSpace(s)
	if s == "" {
		return a, fmt.Errorf("empty amount")
	}
	if _, ok := a.v.SetString(s, 10); !ok {
		return a, fmt.Errorf("invalid amount %q", s)
	}
	return a, nil
}

// Sign returns -1, 0 or +1.
func (a Amount) Sign() int {
	return a.v.Sign()
}

// Cmp compares a and b.
func (a Amount) Cmp(b Amount) int {
	return a.v.Cmp(&b.v)
}

// Add returns a+b.
func (a Amount) Add(b Amount) Amount {
	var r Amount
	r.v.Add(&a.v, &b.v)
	return r
}

// Sub returns a-b.
func (a Amount) Sub(b Amount) Amount {
	var r Amount
	r.v.Sub(&a.v, &b.v)
	return r
}

// Percent returns floor(a * pct / 100). a must be non-negative.
func (a Amount) Percent(pct uint64) Amount {
	var r Amount
	r.v.Mul(&a.v, new(big.Int).SetUint64(pct))
	r.v.Quo(&r.v, big.NewInt(100))
	return r
}

// IsZero reports whether a == 0.
func (a Amount) IsZero() bool {
	return a.v.Sign() == 0
}

func (a Amount) String() string {
	return a.v.String()
}

// MarshalJSON encodes the amount as a quoted decimal string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.v.String())
}

// UnmarshalJSON accepts a quoted decimal string. Bare JSON numbers are
// accepted too, as long as they are integers.
func (a *Amount) UnmarshalJSON(data []byte) error {
	var s string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	} else {
		s = string(data)
	}
	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	a.v.Set(&parsed.v)
	return nil
}

// SumAmounts returns the sum of all amounts.
func SumAmounts(amounts []Amount) Amount {
	var total Amount
	for i := range amounts {
		total.v.Add(&total.v, &amounts[i].v)
	}
	return total
}
