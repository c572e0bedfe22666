package ring

// Package ring implements coefficient arithmetic over Z_q for Kyber-style
// parameter sets, built around an iterative radix-2 NTT.
//
// The forward transform is decimation-in-time Cooley–Tukey over a primitive
// n-th root of unity; the inverse is decimation-in-frequency
// Gentleman–Sande. The per-stage butterfly is exposed on its own so a caller
// can drive the forward transform one layer at a time.
//
// Because the transform uses an n-th root rather than a 2n-th root, PolyMul
// returns the cyclic product modulo X^n - 1; it does not compute the
// negacyclic product of Z_q[X]/(X^n + 1).
