package hardware

import (
	"fmt"
	"math/bits"

	"github.com/montanaflynn/stats"

	"tessera/sim"
)

// Sample is one side-channel observation: the simulated time of an NVM
// write and the Hamming weight of the written blob.
type Sample struct {
	Time   sim.Time
	Weight int
}

// NVM simulates FRAM/MRAM: an address→blob store that survives power loss.
// Every write leaks the Hamming weight of its payload into an append-only
// trace, the power-consumption proxy a DPA attacker would record.
type NVM struct {
	storage map[int][]uint64
	trace   []Sample
}

// NewNVM returns an empty memory with an empty leakage trace.
func NewNVM() *NVM {
	return &NVM{storage: make(map[int][]uint64)}
}

// Write stores an owned copy of blob at addr, overwriting any prior entry,
// and appends the leakage sample for this write.
func (m *NVM) Write(addr int, blob []uint64, now sim.Time) {
	cp := make([]uint64, len(blob))
	copy(cp, blob)
	m.storage[addr] = cp
	m.trace = append(m.trace, Sample{Time: now, Weight: HammingWeight(blob)})
}

// Read returns an owned copy of the blob last written at addr, or false if
// the address was never written. Mutating the returned slice cannot touch
// the stored state.
func (m *NVM) Read(addr int) ([]uint64, bool) {
	blob, ok := m.storage[addr]
	if !ok {
		return nil, false
	}
	cp := make([]uint64, len(blob))
	copy(cp, blob)
	return cp, true
}

// Writes returns the number of writes performed so far.
func (m *NVM) Writes() int { return len(m.trace) }

// HammingWeight sums the set bits of every coefficient, each treated as an
// unsigned 16-bit memory word.
func HammingWeight(blob []uint64) int {
	w := 0
	for _, v := range blob {
		w += bits.OnesCount16(uint16(v))
	}
	return w
}

// LeakageTimes returns the write times of the trace in arrival order.
func (m *NVM) LeakageTimes() []sim.Time {
	out := make([]sim.Time, len(m.trace))
	for i, s := range m.trace {
		out[i] = s.Time
	}
	return out
}

// LeakageWeights returns the Hamming weights of the trace in arrival order.
func (m *NVM) LeakageWeights() []int {
	out := make([]int, len(m.trace))
	for i, s := range m.trace {
		out[i] = s.Weight
	}
	return out
}

// LeakageSummary renders a one-line statistical summary of the trace.
func (m *NVM) LeakageSummary() string {
	if len(m.trace) == 0 {
		return "leakage: no samples"
	}
	w := make([]float64, len(m.trace))
	for i, s := range m.trace {
		w[i] = float64(s.Weight)
	}
	mean, _ := stats.Mean(w)
	std, _ := stats.StandardDeviation(w)
	min, _ := stats.Min(w)
	max, _ := stats.Max(w)
	return fmt.Sprintf("leakage: n=%d mean=%.1f std=%.1f min=%.0f max=%.0f",
		len(w), mean, std, min, max)
}
