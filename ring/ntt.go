package ring

import (
	"fmt"
	"math/bits"
)

// BitReverseInPlace permutes a in place, moving index i to the index given
// by reversing the log2(len(a)) low bits of i. The length must be a power
// of two. The permutation is an involution.
func BitReverseInPlace(a Poly) {
	n := len(a)
	lg := bits.Len(uint(n)) - 1
	for i := 0; i < n; i++ {
		j := int(bits.Reverse64(uint64(i)) >> (64 - lg))
		if i < j {
			a[i], a[j] = a[j], a[i]
		}
	}
}

// NTTLayer applies one in-place Cooley–Tukey butterfly stage to a, which
// must already be in bit-reversed order and reduced mod Q. Stage k works on
// blocks of length 2^(k+1); applying stages 0..Layers()-1 in order yields
// the forward transform.
func (r *Ring) NTTLayer(a Poly, k int) error {
	if err := r.checkLen(a); err != nil {
		return err
	}
	if k < 0 || k >= r.logN {
		return fmt.Errorf("ring: stage %d out of range [0,%d)", k, r.logN)
	}
	length := 1 << (k + 1)
	half := length >> 1
	wLen := PowMod(r.Omega, uint64(r.N/length), r.Q)
	for start := 0; start < r.N; start += length {
		wj := uint64(1)
		for j := 0; j < half; j++ {
			u := a[start+j]
			v := a[start+j+half] * wj % r.Q
			s := u + v
			if s >= r.Q {
				s -= r.Q
			}
			a[start+j] = s
			a[start+j+half] = (u + r.Q - v) % r.Q
			wj = wj * wLen % r.Q
		}
	}
	return nil
}

// NTT returns the forward transform of p as a new vector. The input may be
// unreduced.
func (r *Ring) NTT(p Poly) (Poly, error) {
	if err := r.checkLen(p); err != nil {
		return nil, err
	}
	a := r.Reduce(p)
	BitReverseInPlace(a)
	for k := 0; k < r.logN; k++ {
		if err := r.NTTLayer(a, k); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// InvNTT returns the inverse transform of p as a new vector, using the
// Gentleman–Sande decimation-in-frequency schedule followed by the
// bit-reversal permutation and scaling by n^-1.
func (r *Ring) InvNTT(p Poly) (Poly, error) {
	if err := r.checkLen(p); err != nil {
		return nil, err
	}
	a := r.Reduce(p)
	for length := r.N; length >= 2; length >>= 1 {
		half := length >> 1
		wLen := PowMod(r.omegaInv, uint64(r.N/length), r.Q)
		for start := 0; start < r.N; start += length {
			wj := uint64(1)
			for j := 0; j < half; j++ {
				u := a[start+j]
				v := a[start+j+half]
				s := u + v
				if s >= r.Q {
					s -= r.Q
				}
				a[start+j] = s
				a[start+j+half] = (u + r.Q - v) % r.Q * wj % r.Q
				wj = wj * wLen % r.Q
			}
		}
	}
	BitReverseInPlace(a)
	for i := range a {
		a[i] = a[i] * r.nInv % r.Q
	}
	return a, nil
}

// PolyMul multiplies a and b through the transform domain:
// InvNTT(PointMul(NTT(a), NTT(b))).
func (r *Ring) PolyMul(a, b Poly) (Poly, error) {
	ah, err := r.NTT(a)
	if err != nil {
		return nil, err
	}
	bh, err := r.NTT(b)
	if err != nil {
		return nil, err
	}
	ch, err := r.PointMul(ah, bh)
	if err != nil {
		return nil, err
	}
	return r.InvNTT(ch)
}

// VerifyRoundTrip reports whether InvNTT(NTT(p)) recovers p mod Q.
func (r *Ring) VerifyRoundTrip(p Poly) (bool, error) {
	fwd, err := r.NTT(p)
	if err != nil {
		return false, err
	}
	back, err := r.InvNTT(fwd)
	if err != nil {
		return false, err
	}
	want := r.Reduce(p)
	for i := range back {
		if back[i] != want[i] {
			return false, nil
		}
	}
	return true, nil
}
