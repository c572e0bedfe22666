package hardware

import (
	"testing"

	"tessera/sim"
)

// edgeObserver awaits Lost and Restored alternately and records the edge
// times.
type edgeObserver struct {
	power      *PowerSource
	cycles     int
	lostAt     []sim.Time
	restoredAt []sim.Time
	waitingOff bool
}

func (o *edgeObserver) Step(c *sim.Clock) sim.Directive {
	if o.waitingOff {
		o.lostAt = append(o.lostAt, c.Now())
		o.waitingOff = false
		return sim.Await(o.power.Restored())
	}
	if len(o.lostAt) > 0 {
		o.restoredAt = append(o.restoredAt, c.Now())
	}
	if len(o.restoredAt) >= o.cycles {
		return sim.Done()
	}
	o.waitingOff = true
	return sim.Await(o.power.Lost())
}

func TestPowerEdgesAlternate(t *testing.T) {
	c := sim.NewClock()
	p := NewPowerSource(c, NewRNG(1), 10, 10)
	if !p.IsPowered() {
		t.Fatal("initial state must be ON")
	}

	obs := &edgeObserver{power: p, cycles: 5}
	c.Spawn(obs)
	c.RunUntil(100000)

	if len(obs.lostAt) != 5 || len(obs.restoredAt) != 5 {
		t.Fatalf("edges = %d lost, %d restored", len(obs.lostAt), len(obs.restoredAt))
	}
	for i := 0; i < 5; i++ {
		if obs.restoredAt[i] <= obs.lostAt[i] {
			t.Fatalf("cycle %d: restored at %v not after lost at %v", i, obs.restoredAt[i], obs.lostAt[i])
		}
		if i > 0 && obs.lostAt[i] <= obs.restoredAt[i-1] {
			t.Fatalf("cycle %d: lost at %v not after previous restore at %v", i, obs.lostAt[i], obs.restoredAt[i-1])
		}
	}
}

// restoredWaiter awaits Restored once and records when it resumed.
type restoredWaiter struct {
	power    *PowerSource
	resumed  bool
	resumeAt sim.Time
	powered  bool
}

func (w *restoredWaiter) Step(c *sim.Clock) sim.Directive {
	if !w.resumed {
		w.resumed = true
		return sim.Await(w.power.Restored())
	}
	w.resumeAt = c.Now()
	w.powered = w.power.IsPowered()
	return sim.Done()
}

func TestRestoredNotLatchedWhilePowered(t *testing.T) {
	c := sim.NewClock()
	p := NewPowerSource(c, NewRNG(7), 50, 5)

	obs := &edgeObserver{power: p, cycles: 1}
	c.Spawn(obs)
	w := &restoredWaiter{power: p}
	c.Spawn(w)
	c.RunUntil(100000)

	if w.resumeAt == 0 {
		t.Fatal("waiter never resumed")
	}
	// Awaiting Restored while powered must block until the first full
	// OFF->ON edge, never return in the initial powered interval.
	if w.resumeAt <= obs.lostAt[0] {
		t.Fatalf("waiter resumed at %v, before the first outage at %v", w.resumeAt, obs.lostAt[0])
	}
	if w.resumeAt != obs.restoredAt[0] {
		t.Fatalf("waiter resumed at %v, want first restore %v", w.resumeAt, obs.restoredAt[0])
	}
	if !w.powered {
		t.Fatal("power must be back on when Restored fires")
	}
}
