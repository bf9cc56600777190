package field

// Polynomial is an ordered sequence of coefficients [a0, ..., ad] with
// ai in F, representing a0 + a1*x + ... + ad*x^d. A Polynomial is
// immutable once constructed.
type Polynomial struct {
	coeffs []Element
}

// NewPolynomial constructs a polynomial from low-to-high coefficients.
func NewPolynomial(coeffs ...Element) *Polynomial {
	cp := make([]Element, len(coeffs))
	copy(cp, coeffs)
	return &Polynomial{coeffs: cp}
}

// NewRandomPolynomial samples a polynomial of the given degree with a
// fixed constant term (the secret) and uniform random higher-order
// coefficients, as required by Shamir.Split and DKG's Contribute step.
func NewRandomPolynomial(degree int, constant Element) (*Polynomial, error) {
	coeffs := make([]Element, degree+1)
	coeffs[0] = constant
	for i := 1; i <= degree; i++ {
		c, err := Random()
		if err != nil {
			return nil, err
		}
		coeffs[i] = c
	}
	return &Polynomial{coeffs: coeffs}, nil
}

// Degree returns len(coeffs)-1, which is -1 for a polynomial built with no
// coefficients. Trailing zero coefficients are not trimmed, so the result
// can exceed the polynomial's true degree.
func (p *Polynomial) Degree() int {
	return len(p.coeffs) - 1
}

// Coefficients returns a copy of the low-to-high coefficient slice.
func (p *Polynomial) Coefficients() []Element {
	out := make([]Element, len(p.coeffs))
	copy(out, p.coeffs)
	return out
}

// Constant returns the constant term a0 (the secret, by Shamir convention).
func (p *Polynomial) Constant() Element {
	if len(p.coeffs) == 0 {
		return Zero
	}
	return p.coeffs[0]
}

// Evaluate computes p(x) via Horner's method, folding the low-to-high
// coefficients from the leading term down. Only the low-to-high
// coefficient order is accepted; there is no high-to-low variant.
func (p *Polynomial) Evaluate(x Element) Element {
	if len(p.coeffs) == 0 {
		return Zero
	}
	result := p.coeffs[len(p.coeffs)-1]
	for i := len(p.coeffs) - 2; i >= 0; i-- {
		result = result.Mul(x).Add(p.coeffs[i])
	}
	return result
}

// Point is a single (x, y) evaluation of some polynomial.
type Point struct {
	X Element
	Y Element
}

// LagrangeInterpolateAt returns the value at x of the unique minimal-degree
// polynomial passing through the given points. Fails with ErrInvalidInput
// if two points share an x-coordinate or no points are given.
func LagrangeInterpolateAt(points []Point, x Element) (Element, error) {
	if len(points) == 0 {
		return 0, ErrInvalidInput
	}
	if len(points) == 1 {
		return points[0].Y, nil
	}
	if err := checkDistinctXs(points); err != nil {
		return 0, err
	}

	result := Zero
	for i, pi := range points {
		num := One
		den := One
		for j, pj := range points {
			if i == j {
				continue
			}
			num = num.Mul(x.Sub(pj.X))
			den = den.Mul(pi.X.Sub(pj.X))
		}
		invDen, err := den.Inv()
		if err != nil {
			// Unreachable given the distinct-x check above.
			return 0, err
		}
		term := pi.Y.Mul(num).Mul(invDen)
		result = result.Add(term)
	}
	return result, nil
}

// LagrangeBasisAt returns, for each point's x-coordinate, the Lagrange
// basis coefficient L_i(x) = prod_{j != i} (x - x_j) / (x_i - x_j). This
// is the building block USS.PartialSign uses directly (§4.4).
func LagrangeBasisAt(xs []Element, x Element) (map[Element]Element, error) {
	if len(xs) == 0 {
		return nil, ErrInvalidInput
	}
	seen := make(map[Element]bool, len(xs))
	for _, xi := range xs {
		if seen[xi] {
			return nil, ErrInvalidInput
		}
		seen[xi] = true
	}

	out := make(map[Element]Element, len(xs))
	for i, xi := range xs {
		num := One
		den := One
		for j, xj := range xs {
			if i == j {
				continue
			}
			num = num.Mul(x.Sub(xj))
			den = den.Mul(xi.Sub(xj))
		}
		invDen, err := den.Inv()
		if err != nil {
			return nil, err
		}
		out[xi] = num.Mul(invDen)
	}
	return out, nil
}

func checkDistinctXs(points []Point) error {
	seen := make(map[Element]bool, len(points))
	for _, p := range points {
		if seen[p.X] {
			return ErrInvalidInput
		}
		seen[p.X] = true
	}
	return nil
}

// NewtonPolynomial is the divided-difference (Newton) form of the same
// interpolating polynomial as LagrangeInterpolateAt, retained because the
// spec requires both forms to be supported and to agree (§4.1).
type NewtonPolynomial struct {
	xs     []Element
	coeffs []Element // divided differences c0..cn
}

// NewNewtonPolynomial builds the Newton form through the given points via
// the standard divided-difference table.
func NewNewtonPolynomial(points []Point) (*NewtonPolynomial, error) {
	if len(points) == 0 {
		return nil, ErrInvalidInput
	}
	if err := checkDistinctXs(points); err != nil {
		return nil, err
	}
	n := len(points)
	xs := make([]Element, n)
	table := make([]Element, n)
	for i, p := range points {
		xs[i] = p.X
		table[i] = p.Y
	}
	coeffs := make([]Element, n)
	coeffs[0] = table[0]
	cur := append([]Element(nil), table...)
	for k := 1; k < n; k++ {
		next := make([]Element, n-k)
		for i := 0; i < n-k; i++ {
			num := cur[i+1].Sub(cur[i])
			den := xs[i+k].Sub(xs[i])
			invDen, err := den.Inv()
			if err != nil {
				return nil, err
			}
			next[i] = num.Mul(invDen)
		}
		coeffs[k] = next[0]
		cur = next
	}
	return &NewtonPolynomial{xs: xs, coeffs: coeffs}, nil
}

// Evaluate computes the Newton-form polynomial at x via nested
// multiplication, equivalent to LagrangeInterpolateAt(points, x).
func (np *NewtonPolynomial) Evaluate(x Element) Element {
	n := len(np.coeffs)
	if n == 0 {
		return Zero
	}
	result := np.coeffs[n-1]
	for i := n - 2; i >= 0; i-- {
		result = result.Mul(x.Sub(np.xs[i])).Add(np.coeffs[i])
	}
	return result
}
