package core

import (
	"database/sql/driver"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Amount is a non-negative integer quantity in raw asset units. All arithmetic is overflow checked.
type Amount struct {
	v uint256.Int
}

var (
	ZeroAmount      = Amount{}
	PrecisionAmount = NewAmount(PRECISION)
)

func NewAmount(v uint64) Amount {
	var a Amount
	a.v.SetUint64(v)
	return a
}

func AmountFromString(s string) (Amount, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return ZeroAmount, errors.Wrapf(ErrInvalidAmount, "parse %q: %v", s, err)
	}
	return Amount{v: *v}, nil
}

func MustAmount(s string) Amount {
	a, err := AmountFromString(s)
	if err != nil {
		panic(err)
	}
	return a
}

// AmountFromDecimal converts a human amount ("1.5") into raw units with AMOUNT_DECIMALS.
func AmountFromDecimal(d decimal.Decimal) (Amount, error) {
	raw := d.Shift(AMOUNT_DECIMALS)
	if raw.IsNegative() || !raw.Equal(raw.Truncate(0)) {
		return ZeroAmount, errors.Wrapf(ErrInvalidAmount, "amount %s", d)
	}
	v, overflow := uint256.FromBig(raw.BigInt())
	if overflow {
		return ZeroAmount, ErrArithmeticOverflow
	}
	return Amount{v: *v}, nil
}

func (a Amount) Decimal() decimal.Decimal {
	return decimal.NewFromBigInt(a.v.ToBig(), -AMOUNT_DECIMALS)
}

func (a Amount) String() string {
	return a.v.Dec()
}

func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.v.Dec()), nil
}

func (a *Amount) UnmarshalText(b []byte) error {
	v, err := AmountFromString(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// Value stores the amount as a decimal string so no column width limits it.
func (a Amount) Value() (driver.Value, error) {
	return a.v.Dec(), nil
}

func (a *Amount) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*a = ZeroAmount
		return nil
	case string:
		return a.UnmarshalText([]byte(v))
	case []byte:
		return a.UnmarshalText(v)
	case int64:
		if v < 0 {
			return errors.Wrapf(ErrInvalidAmount, "negative amount %d", v)
		}
		*a = NewAmount(uint64(v))
		return nil
	default:
		return errors.Errorf("cannot scan %T into Amount", src)
	}
}

func (a Amount) IsZero() bool {
	return a.v.IsZero()
}

func (a Amount) IsPositive() bool {
	return !a.v.IsZero()
}

func (a Amount) Cmp(b Amount) int {
	return a.v.Cmp(&b.v)
}

func (a Amount) Equal(b Amount) bool {
	return a.v.Eq(&b.v)
}

func (a Amount) LessThan(b Amount) bool {
	return a.v.Lt(&b.v)
}

func (a Amount) LessThanOrEqual(b Amount) bool {
	return !a.v.Gt(&b.v)
}

func (a Amount) GreaterThan(b Amount) bool {
	return a.v.Gt(&b.v)
}

func (a Amount) GreaterThanOrEqual(b Amount) bool {
	return !a.v.Lt(&b.v)
}

// IsUint64 reports whether the amount fits in a uint64.
func (a Amount) IsUint64() bool {
	return a.v.IsUint64()
}

func (a Amount) Uint64() uint64 {
	return a.v.Uint64()
}

func (a Amount) Add(b Amount) (Amount, error) {
	var z Amount
	if _, overflow := z.v.AddOverflow(&a.v, &b.v); overflow {
		return ZeroAmount, errors.Wrapf(ErrArithmeticOverflow, "%s + %s", a, b)
	}
	return z, nil
}

func (a Amount) Sub(b Amount) (Amount, error) {
	var z Amount
	if _, underflow := z.v.SubOverflow(&a.v, &b.v); underflow {
		return ZeroAmount, errors.Wrapf(ErrArithmeticUnderflow, "%s - %s", a, b)
	}
	return z, nil
}

// SaturatingSub returns a-b, or zero when b exceeds a.
func (a Amount) SaturatingSub(b Amount) Amount {
	if a.LessThanOrEqual(b) {
		return ZeroAmount
	}
	var z Amount
	z.v.Sub(&a.v, &b.v)
	return z
}

func (a Amount) Mul(b Amount) (Amount, error) {
	var z Amount
	if _, overflow := z.v.MulOverflow(&a.v, &b.v); overflow {
		return ZeroAmount, errors.Wrapf(ErrArithmeticOverflow, "%s * %s", a, b)
	}
	return z, nil
}

// Div is floor division.
func (a Amount) Div(b Amount) (Amount, error) {
	if b.IsZero() {
		return ZeroAmount, ErrDivisionByZero
	}
	var z Amount
	z.v.Div(&a.v, &b.v)
	return z, nil
}

// MulDiv computes floor(a * b / d).
func (a Amount) MulDiv(b, d Amount) (Amount, error) {
	p, err := a.Mul(b)
	if err != nil {
		return ZeroAmount, err
	}
	return p.Div(d)
}

// MulDivCeil computes ceil(a * b / d).
func (a Amount) MulDivCeil(b, d Amount) (Amount, error) {
	p, err := a.Mul(b)
	if err != nil {
		return ZeroAmount, err
	}
	if d.IsZero() {
		return ZeroAmount, ErrDivisionByZero
	}
	var q, r Amount
	q.v.Div(&p.v, &d.v)
	r.v.Mod(&p.v, &d.v)
	if r.IsZero() {
		return q, nil
	}
	return q.Add(NewAmount(1))
}

// MulRatio scales a by a PRECISION based ratio, rounding down.
func (a Amount) MulRatio(ratio uint64) (Amount, error) {
	return a.MulDiv(NewAmount(ratio), PrecisionAmount)
}

func MinAmount(a, b Amount) Amount {
	if a.LessThan(b) {
		return a
	}
	return b
}

// SumAmounts adds all values, failing on overflow.
func SumAmounts(values ...Amount) (Amount, error) {
	total := ZeroAmount
	for _, v := range values {
		var err error
		if total, err = total.Add(v); err != nil {
			return ZeroAmount, err
		}
	}
	return total, nil
}
