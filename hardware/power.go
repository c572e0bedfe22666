package hardware

import (
	"os"

	"tessera/sim"
)

// PowerSource simulates an intermittent harvester (RF or solar). It runs as
// its own task on the clock, alternating exponentially distributed ON and
// OFF intervals, and interrupts whoever is computing.
//
// The edge signals are one-shot: each time an edge fires, a fresh
// unfulfilled signal replaces it, so a subscriber awaiting Restored while
// already powered blocks until the next OFF→ON edge instead of being told
// "just restored".
type PowerSource struct {
	rng     *RNG
	onMean  float64
	offMean float64

	powered  bool
	lost     *sim.Signal
	restored *sim.Signal
	started  bool
}

// NewPowerSource creates the power process with initial state ON and
// registers it on the clock.
func NewPowerSource(c *sim.Clock, rng *RNG, onMean, offMean float64) *PowerSource {
	p := &PowerSource{
		rng:      rng,
		onMean:   onMean,
		offMean:  offMean,
		powered:  true,
		lost:     c.NewSignal(),
		restored: c.NewSignal(),
	}
	c.Spawn(p)
	return p
}

// IsPowered reads the current supply state.
func (p *PowerSource) IsPowered() bool { return p.powered }

// Lost returns the one-shot signal for the next ON→OFF edge.
func (p *PowerSource) Lost() *sim.Signal { return p.lost }

// Restored returns the one-shot signal for the next OFF→ON edge.
func (p *PowerSource) Restored() *sim.Signal { return p.restored }

// Step alternates the supply forever: sleep Exp(onMean) while ON, cut
// power, sleep Exp(offMean), restore. Each edge re-arms its signal before
// firing the old one.
func (p *PowerSource) Step(c *sim.Clock) sim.Directive {
	if !p.started {
		p.started = true
		return sim.Timeout(p.rng.Exp(p.onMean))
	}
	if p.powered {
		p.powered = false
		s := p.lost
		p.lost = c.NewSignal()
		s.Fire()
		dbg(os.Stderr, "[HW] power FAILURE at %.2f\n", c.Now())
		return sim.Timeout(p.rng.Exp(p.offMean))
	}
	p.powered = true
	s := p.restored
	p.restored = c.NewSignal()
	s.Fire()
	dbg(os.Stderr, "[HW] power RESTORED at %.2f\n", c.Now())
	return sim.Timeout(p.rng.Exp(p.onMean))
}
