// Package kem completes the lattice KEM scaffold that consumes the NTT
// ring: a simplified Kyber-style key encapsulation mechanism at module rank
// k=2 with centered-binomial noise. It exercises the full transform call
// surface (NTT, InvNTT, PointMul, Add, Sub) but skips ciphertext
// compression and makes no constant-time or FIPS 203 claims.
package kem

import (
	"fmt"
	"io"

	"golang.org/x/crypto/sha3"

	"tessera/ring"
)

// SeedSize is the byte length of the matrix and noise seeds; MsgSize the
// byte length of the encapsulated message (one bit per ring coefficient).
const (
	SeedSize = 32
	MsgSize  = 32
)

// Params fixes the module rank and the binomial noise parameter.
type Params struct {
	K   int
	Eta int
}

// DefaultParams returns the rank-2, eta-2 parameter set.
func DefaultParams() Params { return Params{K: 2, Eta: 2} }

// KEM binds a parameter set to a ring instance.
type KEM struct {
	rg  *ring.Ring
	par Params
}

// New validates that the ring can carry one message bit per coefficient and
// returns a KEM over it.
func New(rg *ring.Ring, par Params) (*KEM, error) {
	if rg.N != 8*MsgSize {
		return nil, fmt.Errorf("kem: ring degree %d, need %d", rg.N, 8*MsgSize)
	}
	if par.K < 1 || par.Eta < 1 {
		return nil, fmt.Errorf("kem: invalid parameters k=%d eta=%d", par.K, par.Eta)
	}
	return &KEM{rg: rg, par: par}, nil
}

// PublicKey is t = A∘s + e in the transform domain plus the matrix seed.
type PublicKey struct {
	T    []ring.Poly
	Seed [SeedSize]byte
}

// PrivateKey is the secret vector in the transform domain.
type PrivateKey struct {
	S []ring.Poly
}

// Ciphertext carries u = Aᵀ∘r + e1 and v = t·r + e2 + encode(m), both in
// the coefficient domain.
type Ciphertext struct {
	U []ring.Poly
	V ring.Poly
}

// KeyGen draws the matrix and noise seeds from prng and derives a key pair.
// A keyed PRNG yields a reproducible pair.
func (k *KEM) KeyGen(prng io.Reader) (*PublicKey, *PrivateKey, error) {
	var seedA, seedNoise [SeedSize]byte
	if _, err := io.ReadFull(prng, seedA[:]); err != nil {
		return nil, nil, fmt.Errorf("kem: seed: %w", err)
	}
	if _, err := io.ReadFull(prng, seedNoise[:]); err != nil {
		return nil, nil, fmt.Errorf("kem: noise seed: %w", err)
	}

	a, err := k.expandMatrix(seedA)
	if err != nil {
		return nil, nil, err
	}

	nonce := byte(0)
	sHat := make([]ring.Poly, k.par.K)
	for i := range sHat {
		s := k.sampleNoise(seedNoise[:], nonce)
		nonce++
		if sHat[i], err = k.rg.NTT(s); err != nil {
			return nil, nil, err
		}
	}
	t := make([]ring.Poly, k.par.K)
	for i := range t {
		e := k.sampleNoise(seedNoise[:], nonce)
		nonce++
		eHat, err := k.rg.NTT(e)
		if err != nil {
			return nil, nil, err
		}
		acc := eHat
		for j := 0; j < k.par.K; j++ {
			prod, err := k.rg.PointMul(a[i][j], sHat[j])
			if err != nil {
				return nil, nil, err
			}
			if acc, err = k.rg.Add(acc, prod); err != nil {
				return nil, nil, err
			}
		}
		t[i] = acc
	}

	pk := &PublicKey{T: t, Seed: seedA}
	return pk, &PrivateKey{S: sHat}, nil
}

// Encaps draws a random message from prng and encapsulates it under pk. The
// encryption coins are derived from the message and the matrix seed, so the
// ciphertext is deterministic given the message.
func (k *KEM) Encaps(pk *PublicKey, prng io.Reader) (*Ciphertext, [MsgSize]byte, error) {
	var shared [MsgSize]byte
	var m [MsgSize]byte
	if _, err := io.ReadFull(prng, m[:]); err != nil {
		return nil, shared, fmt.Errorf("kem: message: %w", err)
	}

	coins := sha3.NewShake256()
	coins.Write(m[:])
	coins.Write(pk.Seed[:])
	var coinSeed [SeedSize]byte
	coins.Read(coinSeed[:])

	a, err := k.expandMatrix(pk.Seed)
	if err != nil {
		return nil, shared, err
	}

	nonce := byte(0)
	rHat := make([]ring.Poly, k.par.K)
	for i := range rHat {
		r := k.sampleNoise(coinSeed[:], nonce)
		nonce++
		if rHat[i], err = k.rg.NTT(r); err != nil {
			return nil, shared, err
		}
	}

	u := make([]ring.Poly, k.par.K)
	for j := range u {
		acc := make(ring.Poly, k.rg.N)
		for i := 0; i < k.par.K; i++ {
			prod, err := k.rg.PointMul(a[i][j], rHat[i])
			if err != nil {
				return nil, shared, err
			}
			if acc, err = k.rg.Add(acc, prod); err != nil {
				return nil, shared, err
			}
		}
		uj, err := k.rg.InvNTT(acc)
		if err != nil {
			return nil, shared, err
		}
		e1 := k.sampleNoise(coinSeed[:], nonce)
		nonce++
		if u[j], err = k.rg.Add(uj, e1); err != nil {
			return nil, shared, err
		}
	}

	acc := make(ring.Poly, k.rg.N)
	for i := 0; i < k.par.K; i++ {
		prod, err := k.rg.PointMul(pk.T[i], rHat[i])
		if err != nil {
			return nil, shared, err
		}
		if acc, err = k.rg.Add(acc, prod); err != nil {
			return nil, shared, err
		}
	}
	v, err := k.rg.InvNTT(acc)
	if err != nil {
		return nil, shared, err
	}
	e2 := k.sampleNoise(coinSeed[:], nonce)
	if v, err = k.rg.Add(v, e2); err != nil {
		return nil, shared, err
	}
	if v, err = k.rg.Add(v, k.encodeMsg(m)); err != nil {
		return nil, shared, err
	}

	return &Ciphertext{U: u, V: v}, deriveShared(m), nil
}

// Decaps recovers the message from ct under sk and re-derives the shared
// secret.
func (k *KEM) Decaps(sk *PrivateKey, ct *Ciphertext) ([MsgSize]byte, error) {
	var shared [MsgSize]byte
	if len(ct.U) != k.par.K || len(sk.S) != k.par.K {
		return shared, fmt.Errorf("kem: rank mismatch")
	}
	acc := make(ring.Poly, k.rg.N)
	for i := 0; i < k.par.K; i++ {
		uHat, err := k.rg.NTT(ct.U[i])
		if err != nil {
			return shared, err
		}
		prod, err := k.rg.PointMul(sk.S[i], uHat)
		if err != nil {
			return shared, err
		}
		if acc, err = k.rg.Add(acc, prod); err != nil {
			return shared, err
		}
	}
	su, err := k.rg.InvNTT(acc)
	if err != nil {
		return shared, err
	}
	w, err := k.rg.Sub(ct.V, su)
	if err != nil {
		return shared, err
	}
	return deriveShared(k.decodeMsg(w)), nil
}

// expandMatrix derives the k×k uniform matrix from the public seed with
// SHAKE-128, one XOF stream per entry, rejection-sampled straight into the
// transform domain.
func (k *KEM) expandMatrix(seed [SeedSize]byte) ([][]ring.Poly, error) {
	a := make([][]ring.Poly, k.par.K)
	for i := range a {
		a[i] = make([]ring.Poly, k.par.K)
		for j := range a[i] {
			xof := sha3.NewShake128()
			xof.Write(seed[:])
			xof.Write([]byte{byte(j), byte(i)})
			p, err := k.rg.UniformPoly(xof)
			if err != nil {
				return nil, fmt.Errorf("kem: expand A[%d][%d]: %w", i, j, err)
			}
			a[i][j] = p
		}
	}
	return a, nil
}

// sampleNoise draws a centered binomial polynomial from
// SHAKE-256(seed || nonce): each coefficient is the difference of two
// eta-bit popcounts, embedded mod q.
func (k *KEM) sampleNoise(seed []byte, nonce byte) ring.Poly {
	xof := sha3.NewShake256()
	xof.Write(seed)
	xof.Write([]byte{nonce})
	buf := make([]byte, k.par.Eta*k.rg.N/4)
	xof.Read(buf)

	p := make(ring.Poly, k.rg.N)
	bit := func(i int) uint64 { return uint64(buf[i>>3]>>(i&7)) & 1 }
	pos := 0
	for i := range p {
		var a, b uint64
		for t := 0; t < k.par.Eta; t++ {
			a += bit(pos)
			b += bit(pos + 1)
			pos += 2
		}
		p[i] = (a + k.rg.Q - b) % k.rg.Q
	}
	return p
}

// encodeMsg maps each message bit to 0 or round(q/2).
func (k *KEM) encodeMsg(m [MsgSize]byte) ring.Poly {
	half := (k.rg.Q + 1) / 2
	p := make(ring.Poly, k.rg.N)
	for i := range p {
		if m[i>>3]>>(i&7)&1 == 1 {
			p[i] = half
		}
	}
	return p
}

// decodeMsg rounds each coefficient back to a bit: 1 when it is closer to
// q/2 than to 0.
func (k *KEM) decodeMsg(p ring.Poly) [MsgSize]byte {
	var m [MsgSize]byte
	lo := k.rg.Q / 4
	hi := 3 * k.rg.Q / 4
	for i, v := range p {
		if v > lo && v <= hi {
			m[i>>3] |= 1 << (i & 7)
		}
	}
	return m
}

func deriveShared(m [MsgSize]byte) [MsgSize]byte {
	var out [MsgSize]byte
	h := sha3.NewShake256()
	h.Write(m[:])
	h.Read(out[:])
	return out
}
