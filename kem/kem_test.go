package kem

import (
	"testing"

	"github.com/tuneinsight/lattigo/v4/utils"

	"tessera/ring"
)

func testKEM(t *testing.T) *KEM {
	t.Helper()
	rg, err := ring.NewRing(256, 3329)
	if err != nil {
		t.Fatalf("ring: %v", err)
	}
	k, err := New(rg, DefaultParams())
	if err != nil {
		t.Fatalf("kem: %v", err)
	}
	return k
}

func TestEncapsDecapsAgree(t *testing.T) {
	k := testKEM(t)
	prng, err := utils.NewKeyedPRNG([]byte("kem-handshake"))
	if err != nil {
		t.Fatalf("prng: %v", err)
	}

	pk, sk, err := k.KeyGen(prng)
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	ct, ssEnc, err := k.Encaps(pk, prng)
	if err != nil {
		t.Fatalf("encaps: %v", err)
	}
	ssDec, err := k.Decaps(sk, ct)
	if err != nil {
		t.Fatalf("decaps: %v", err)
	}
	if ssEnc != ssDec {
		t.Fatalf("shared secrets disagree: %x vs %x", ssEnc, ssDec)
	}
}

func TestKeyGenDeterministicUnderKeyedPRNG(t *testing.T) {
	k := testKEM(t)
	prngA, err := utils.NewKeyedPRNG([]byte("kem-keygen"))
	if err != nil {
		t.Fatalf("prng: %v", err)
	}
	prngB, err := utils.NewKeyedPRNG([]byte("kem-keygen"))
	if err != nil {
		t.Fatalf("prng: %v", err)
	}

	pkA, skA, err := k.KeyGen(prngA)
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	pkB, skB, err := k.KeyGen(prngB)
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	if pkA.Seed != pkB.Seed {
		t.Fatal("matrix seeds differ")
	}
	for i := range pkA.T {
		for j := range pkA.T[i] {
			if pkA.T[i][j] != pkB.T[i][j] {
				t.Fatalf("public keys differ at T[%d][%d]", i, j)
			}
		}
	}
	for i := range skA.S {
		for j := range skA.S[i] {
			if skA.S[i][j] != skB.S[i][j] {
				t.Fatalf("secret keys differ at S[%d][%d]", i, j)
			}
		}
	}
}

func TestSeveralHandshakes(t *testing.T) {
	k := testKEM(t)
	prng, err := utils.NewKeyedPRNG([]byte("kem-many"))
	if err != nil {
		t.Fatalf("prng: %v", err)
	}
	pk, sk, err := k.KeyGen(prng)
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	for i := 0; i < 5; i++ {
		ct, ssEnc, err := k.Encaps(pk, prng)
		if err != nil {
			t.Fatalf("encaps %d: %v", i, err)
		}
		ssDec, err := k.Decaps(sk, ct)
		if err != nil {
			t.Fatalf("decaps %d: %v", i, err)
		}
		if ssEnc != ssDec {
			t.Fatalf("handshake %d: shared secrets disagree", i)
		}
	}
}

func TestNewRejectsWrongDegree(t *testing.T) {
	rg, err := ring.NewRing(128, 3329)
	if err != nil {
		t.Fatalf("ring: %v", err)
	}
	if _, err := New(rg, DefaultParams()); err == nil {
		t.Fatal("accepted a ring that cannot carry the message")
	}
}

func TestNoiseIsSmall(t *testing.T) {
	k := testKEM(t)
	p := k.sampleNoise([]byte("noise"), 0)
	if len(p) != k.rg.N {
		t.Fatalf("noise length = %d", len(p))
	}
	eta := uint64(k.par.Eta)
	for i, v := range p {
		if v > eta && v < k.rg.Q-eta {
			t.Fatalf("coefficient %d = %d outside [-eta, eta] embedding", i, v)
		}
	}
}
