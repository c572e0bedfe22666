package ring

import (
	"encoding/binary"
	"io"
	"math/bits"
)

// UniformPoly samples a vector of n coefficients uniform in [0, Q) from
// prng by rejection against a power-of-two mask. Sampling is deterministic
// given the PRNG, so a keyed source yields reproducible polynomials.
func (r *Ring) UniformPoly(prng io.Reader) (Poly, error) {
	mask := uint64(1)<<bits.Len64(r.Q-1) - 1
	p := make(Poly, r.N)
	var buf [8]byte
	for i := 0; i < r.N; {
		if _, err := io.ReadFull(prng, buf[:]); err != nil {
			return nil, err
		}
		v := binary.LittleEndian.Uint64(buf[:]) & mask
		if v < r.Q {
			p[i] = v
			i++
		}
	}
	return p, nil
}
