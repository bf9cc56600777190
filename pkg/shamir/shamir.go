// Package shamir implements (k, n) Shamir secret sharing over
// github.com/noospheer/liun/pkg/field, with leave-one-out corrupt-share
// detection (§4.2).
package shamir

import (
	"errors"

	"github.com/noospheer/liun/pkg/field"
)

// ErrInvalidParams is returned by Split for malformed (k, n, secret).
var ErrInvalidParams = errors.New("shamir: invalid parameters")

// ErrInsufficientShares is returned by ReconstructAt when fewer than the
// caller-supplied threshold shares are given.
var ErrInsufficientShares = errors.New("shamir: insufficient shares")

// Share is a single (x, y) evaluation of the secret-bearing polynomial,
// with x != 0 by convention (x == 0 would reveal the secret directly).
type Share struct {
	X field.Element
	Y field.Element
}

// Split samples a degree-(k-1) polynomial with the secret as its constant
// term and returns shares at x = 1, ..., n. Fails with ErrInvalidParams if
// k < 1 or n < k.
func Split(secret field.Element, k, n int) ([]Share, error) {
	if k < 1 || n < k {
		return nil, ErrInvalidParams
	}
	poly, err := field.NewRandomPolynomial(k-1, secret)
	if err != nil {
		return nil, err
	}
	shares := make([]Share, n)
	for i := 0; i < n; i++ {
		x := field.New(uint64(i + 1))
		shares[i] = Share{X: x, Y: poly.Evaluate(x)}
	}
	return shares, nil
}

// ReconstructAt interpolates the shares at point x. If threshold > 0, fails
// with ErrInsufficientShares when fewer than threshold shares are given;
// with threshold <= 0, it interpolates whatever it is given, per §4.2
// ("behavior is 'interpolate whatever you are given'").
func ReconstructAt(shares []Share, x field.Element, threshold int) (field.Element, error) {
	if threshold > 0 && len(shares) < threshold {
		return 0, ErrInsufficientShares
	}
	points := make([]field.Point, len(shares))
	for i, s := range shares {
		points[i] = field.Point{X: s.X, Y: s.Y}
	}
	return field.LagrangeInterpolateAt(points, x)
}

// Reconstruct is ReconstructAt at x = 0, the conventional secret location.
func Reconstruct(shares []Share, threshold int) (field.Element, error) {
	return ReconstructAt(shares, field.Zero, threshold)
}

// ConsistencyCheck partitions shares into (good, bad) via the leave-one-out
// method: it searches for the degree-(k-1) polynomial that the largest
// number of shares lie on (equivalently, for each share, checking it
// against the polynomial interpolated from the rest) and reports the
// disagreeing minority as bad. Below the k+1-share minimum needed to
// detect any corruption, every share is returned as good rather than
// falsely accusing anyone (§4.2); with fewer than 2k shares, detection is
// partial by construction, since a tied vote keeps both sides in `good`.
func ConsistencyCheck(shares []Share, k int) (good, bad []Share) {
	if len(shares) < k+1 {
		return append([]Share(nil), shares...), nil
	}

	bestAgree := -1
	var bestFit []Share
	tied := false
	forEachKSubset(shares, k, func(subset []Share) {
		points := make([]field.Point, k)
		for i, s := range subset {
			points[i] = field.Point{X: s.X, Y: s.Y}
		}
		agree := 0
		for _, s := range shares {
			val, err := field.LagrangeInterpolateAt(points, s.X)
			if err == nil && val.Equal(s.Y) {
				agree++
			}
		}
		if agree > bestAgree {
			bestAgree = agree
			bestFit = subset
			tied = false
		} else if agree == bestAgree && !tied {
			// Equal support for a different polynomial is a tied vote.
			fit := make([]field.Point, k)
			for i, s := range bestFit {
				fit[i] = field.Point{X: s.X, Y: s.Y}
			}
			for _, s := range subset {
				val, err := field.LagrangeInterpolateAt(fit, s.X)
				if err != nil || !val.Equal(s.Y) {
					tied = true
					break
				}
			}
		}
	})

	if bestFit == nil || tied {
		return append([]Share(nil), shares...), nil
	}
	points := make([]field.Point, k)
	for i, s := range bestFit {
		points[i] = field.Point{X: s.X, Y: s.Y}
	}
	for _, s := range shares {
		val, err := field.LagrangeInterpolateAt(points, s.X)
		if err == nil && val.Equal(s.Y) {
			good = append(good, s)
		} else {
			bad = append(bad, s)
		}
	}
	return good, bad
}

// forEachKSubset invokes fn once per k-element subset of shares, in
// increasing index order. Committees and bootstrap candidate pools are
// small (tens of peers), so the combinatorial search is cheap in practice.
func forEachKSubset(shares []Share, k int, fn func(subset []Share)) {
	n := len(shares)
	if k <= 0 || k > n {
		return
	}
	idx := make([]int, k)
	for i := range idx {
		idx[i] = i
	}
	for {
		subset := make([]Share, k)
		for i, v := range idx {
			subset[i] = shares[v]
		}
		fn(subset)

		i := k - 1
		for i >= 0 && idx[i] == i+n-k {
			i--
		}
		if i < 0 {
			return
		}
		idx[i]++
		for j := i + 1; j < k; j++ {
			idx[j] = idx[j-1] + 1
		}
	}
}
