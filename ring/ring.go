package ring

import (
	"errors"
	"fmt"
)

// ErrLength reports an operand whose length does not match the ring degree.
var ErrLength = errors.New("ring: polynomial length mismatch")

// Poly is a coefficient vector with entries in [0, Q).
type Poly []uint64

// Copy returns an owned copy of p.
func (p Poly) Copy() Poly {
	out := make(Poly, len(p))
	copy(out, p)
	return out
}

// Ring holds the degree n and modulus q together with the precomputed NTT
// constants: the primitive n-th root of unity, its inverse and n^-1 mod q.
type Ring struct {
	N     int
	Q     uint64
	Omega uint64

	logN     int
	omegaInv uint64
	nInv     uint64
}

// NewRing constructs a ring for the given transform length and prime
// modulus. It fails when n is not a power of two, when q is not prime, or
// when n does not divide q-1 so no primitive n-th root of unity exists.
func NewRing(n int, q uint64) (*Ring, error) {
	if n < 2 || n&(n-1) != 0 {
		return nil, fmt.Errorf("ring: n=%d must be a power of two", n)
	}
	if q < 3 || q-1 >= 1<<32 {
		return nil, fmt.Errorf("ring: modulus %d out of range", q)
	}
	if !isPrime(q) {
		return nil, fmt.Errorf("ring: modulus %d is not prime", q)
	}
	if (q-1)%uint64(n) != 0 {
		return nil, fmt.Errorf("ring: no primitive %d-th root of unity mod %d", n, q)
	}
	omega, err := findRoot(n, q)
	if err != nil {
		return nil, err
	}
	r := &Ring{
		N:        n,
		Q:        q,
		Omega:    omega,
		omegaInv: PowMod(omega, q-2, q),
		nInv:     PowMod(uint64(n), q-2, q),
	}
	for m := n; m > 1; m >>= 1 {
		r.logN++
	}
	return r, nil
}

// Layers returns log2(n), the number of butterfly stages of the transform.
func (r *Ring) Layers() int { return r.logN }

// findRoot discovers omega by trial: the smallest g >= 2 such that
// g^((q-1)/n) has order exactly n. Since the order divides n and n is a
// power of two, order n is equivalent to omega^(n/2) != 1.
func findRoot(n int, q uint64) (uint64, error) {
	exp := (q - 1) / uint64(n)
	for g := uint64(2); g < q; g++ {
		w := PowMod(g, exp, q)
		if PowMod(w, uint64(n)/2, q) != 1 {
			return w, nil
		}
	}
	return 0, fmt.Errorf("ring: no generator found for n=%d q=%d", n, q)
}

func isPrime(q uint64) bool {
	if q%2 == 0 {
		return q == 2
	}
	for d := uint64(3); d*d <= q; d += 2 {
		if q%d == 0 {
			return false
		}
	}
	return true
}

// PowMod computes base^exp mod q by binary exponentiation. q-1 must fit in
// 32 bits so intermediate products cannot overflow.
func PowMod(base, exp, q uint64) uint64 {
	base %= q
	res := uint64(1)
	for exp > 0 {
		if exp&1 == 1 {
			res = res * base % q
		}
		base = base * base % q
		exp >>= 1
	}
	return res
}

func (r *Ring) checkLen(p Poly) error {
	if len(p) != r.N {
		return fmt.Errorf("%w: got %d want %d", ErrLength, len(p), r.N)
	}
	return nil
}

// Reduce returns a new vector with every coefficient reduced into [0, Q).
func (r *Ring) Reduce(p Poly) Poly {
	out := make(Poly, len(p))
	for i, v := range p {
		out[i] = v % r.Q
	}
	return out
}

// Add returns the element-wise sum a+b mod Q as a new vector.
func (r *Ring) Add(a, b Poly) (Poly, error) {
	if err := r.checkLen(a); err != nil {
		return nil, err
	}
	if err := r.checkLen(b); err != nil {
		return nil, err
	}
	out := make(Poly, r.N)
	for i := range out {
		s := a[i]%r.Q + b[i]%r.Q
		if s >= r.Q {
			s -= r.Q
		}
		out[i] = s
	}
	return out, nil
}

// Sub returns the element-wise difference a-b mod Q as a new vector.
func (r *Ring) Sub(a, b Poly) (Poly, error) {
	if err := r.checkLen(a); err != nil {
		return nil, err
	}
	if err := r.checkLen(b); err != nil {
		return nil, err
	}
	out := make(Poly, r.N)
	for i := range out {
		out[i] = (a[i]%r.Q + r.Q - b[i]%r.Q) % r.Q
	}
	return out, nil
}

// PointMul returns the element-wise product mod Q as a new vector.
func (r *Ring) PointMul(a, b Poly) (Poly, error) {
	if err := r.checkLen(a); err != nil {
		return nil, err
	}
	if err := r.checkLen(b); err != nil {
		return nil, err
	}
	out := make(Poly, r.N)
	for i := range out {
		out[i] = (a[i] % r.Q) * (b[i] % r.Q) % r.Q
	}
	return out, nil
}
