// Package field implements scalar arithmetic over GF(M61), the prime
// field of order M61 = 2^61 - 1.
package field

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"math/big"
	"math/bits"
)

// M61 is the Mersenne prime 2^61 - 1 defining the field.
const M61 uint64 = (1 << 61) - 1

// ErrDomain is returned by operations undefined at their input, such as
// inverting zero.
var ErrDomain = errors.New("field: domain error")

// ErrInvalidInput is returned for malformed caller-supplied data, such as
// interpolation points with duplicate x-coordinates.
var ErrInvalidInput = errors.New("field: invalid input")

// Element is a value in [0, M61). The zero value is the additive identity.
type Element uint64

// Zero is the additive identity.
var Zero Element = 0

// One is the multiplicative identity.
var One Element = 1

// New reduces x mod M61 and returns the corresponding Element.
func New(x uint64) Element {
	return reduce(x)
}

// reduce performs the fast Mersenne reduction for 2^61-1: any 64-bit (or
// wider, via the caller folding down to <2^122) value x is folded as
// (x & M61) + (x >> 61), followed by at most one conditional subtraction.
func reduce(x uint64) Element {
	r := (x & M61) + (x >> 61)
	if r >= M61 {
		r -= M61
	}
	return Element(r)
}

// reduceWide folds a (hi, lo) 128-bit product into the field.
func reduceWide(hi, lo uint64) Element {
	// lo has 64 bits; split into the low 61 bits and the overflow above it.
	low61 := lo & M61
	rest := (lo >> 61) | (hi << 3)
	r := low61 + rest
	for r >= M61 {
		r -= M61
	}
	return Element(r)
}

// Add returns a + b mod M61.
func (a Element) Add(b Element) Element {
	return reduce(uint64(a) + uint64(b))
}

// Sub returns a - b mod M61.
func (a Element) Sub(b Element) Element {
	if a >= b {
		return Element(uint64(a) - uint64(b))
	}
	return Element(M61 - uint64(b) + uint64(a))
}

// Neg returns -a mod M61.
func (a Element) Neg() Element {
	if a == 0 {
		return 0
	}
	return Element(M61 - uint64(a))
}

// Mul returns a * b mod M61 using a 128-bit intermediate product.
func (a Element) Mul(b Element) Element {
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	return reduceWide(hi, lo)
}

// Pow returns a^e mod M61 via square-and-multiply.
func (a Element) Pow(e uint64) Element {
	result := One
	base := a
	for e > 0 {
		if e&1 == 1 {
			result = result.Mul(base)
		}
		base = base.Mul(base)
		e >>= 1
	}
	return result
}

// Inv returns the multiplicative inverse of a. Fails with ErrDomain if a == 0.
func (a Element) Inv() (Element, error) {
	if a == 0 {
		return 0, ErrDomain
	}
	// M61 is prime, so a^(M61-2) == a^-1 by Fermat's little theorem.
	return a.Pow(M61 - 2), nil
}

// Div returns a / b mod M61. Fails with ErrDomain if b == 0.
func (a Element) Div(b Element) (Element, error) {
	inv, err := b.Inv()
	if err != nil {
		return 0, err
	}
	return a.Mul(inv), nil
}

// Equal reports whether a and b are the same field element.
func (a Element) Equal(b Element) bool {
	return a == b
}

// IsZero reports whether a is the additive identity.
func (a Element) IsZero() bool {
	return a == 0
}

// Uint64 returns the element's canonical representative in [0, M61).
func (a Element) Uint64() uint64 {
	return uint64(a)
}

// Bytes returns the 8-byte little-endian encoding used on the wire (§6.3).
func (a Element) Bytes() [8]byte {
	var out [8]byte
	binary.LittleEndian.PutUint64(out[:], uint64(a))
	return out
}

// FromBytes decodes an 8-byte little-endian wire encoding, reducing the
// decoded value mod M61 so the result is always a canonical Element.
func FromBytes(b []byte) (Element, error) {
	if len(b) != 8 {
		return 0, ErrInvalidInput
	}
	return reduce(binary.LittleEndian.Uint64(b)), nil
}

// Random returns a uniformly random element of F from a cryptographically
// secure source, using rejection sampling to avoid modulo bias.
func Random() (Element, error) {
	for {
		var buf [8]byte
		if _, err := rand.Read(buf[:]); err != nil {
			return 0, err
		}
		// Clear the top 3 bits so the sampled value is uniform over
		// [0, 2^61) before rejecting the small sliver >= M61.
		x := binary.LittleEndian.Uint64(buf[:]) & ((1 << 61) - 1)
		if x < M61 {
			return Element(x), nil
		}
	}
}

// MustRandom panics if Random fails; intended for test helpers only.
func MustRandom() Element {
	e, err := Random()
	if err != nil {
		panic(err)
	}
	return e
}

// FromBigInt reduces a big.Int (taken mod M61) into an Element. Used when
// bridging from byte-oriented secrets (saferith.Nat derived values) into
// the field.
func FromBigInt(x *big.Int) Element {
	m := new(big.Int).SetUint64(M61)
	r := new(big.Int).Mod(x, m)
	return Element(r.Uint64())
}
