// Package scheduler drives the forward NTT as a sequence of atomic tesserae
// on an intermittently powered device. One tessera is one butterfly layer
// plus its checkpoint pair; after every layer the working buffer and the
// progress counter are written to NVM so that an abrupt power failure costs
// at most one layer of replay.
package scheduler

import (
	"errors"
	"fmt"
	"os"

	"github.com/tuneinsight/lattigo/v4/utils"

	"tessera/hardware"
	"tessera/ring"
	"tessera/sim"
)

// Simulated cost of one butterfly layer (wake-up plus compute) and of one
// checkpoint write pair.
const (
	ComputeCost    sim.Time = 10
	CheckpointCost sim.Time = 5
)

// NVM address layout. DataBase+k holds the working-buffer snapshot taken
// after layer k completed; StateAddr holds a one-element vector with the
// next layer index to execute. The sentinel must stay clear of every data
// slot.
const (
	DataBase  = 0x00
	StateAddr = 0xFF
)

// ErrCorruptCheckpoint reports a progress counter that names a data slot
// the NVM does not hold. The counter is authoritative, so the scheduler
// refuses to restart from scratch.
var ErrCorruptCheckpoint = errors.New("scheduler: corrupt checkpoint")

type runState int

const (
	stateStart runState = iota
	stateGate
	stateRestore
	stateButterfly
	stateCheckpoint
	stateDone
)

// AtomicNTT is the scheduler task for one forward transform. Exactly one
// such task owns the working buffer; the power process runs concurrently on
// the same clock.
type AtomicNTT struct {
	clock *sim.Clock
	power *hardware.PowerSource
	nvm   *hardware.NVM
	rg    *ring.Ring

	input ring.Poly
	work  ring.Poly

	step      int
	completed int
	failures  int
	restores  int

	state    runState
	err      error
	finished bool
	result   ring.Poly
}

// New prepares a scheduler task for one atomic NTT over poly. A nil poly
// means "generate a fresh random polynomial". The task is not registered on
// the clock until Start is called.
func New(c *sim.Clock, power *hardware.PowerSource, nvm *hardware.NVM, rg *ring.Ring, poly ring.Poly) (*AtomicNTT, error) {
	if DataBase+rg.Layers()-1 >= StateAddr {
		return nil, fmt.Errorf("scheduler: %d layers collide with state sentinel %#x", rg.Layers(), StateAddr)
	}
	if poly == nil {
		prng, err := utils.NewPRNG()
		if err != nil {
			return nil, fmt.Errorf("scheduler: prng: %w", err)
		}
		if poly, err = rg.UniformPoly(prng); err != nil {
			return nil, fmt.Errorf("scheduler: sample input: %w", err)
		}
	}
	if len(poly) != rg.N {
		return nil, fmt.Errorf("scheduler: input length %d, ring degree %d", len(poly), rg.N)
	}
	return &AtomicNTT{clock: c, power: power, nvm: nvm, rg: rg, input: poly}, nil
}

// Start registers the task on the clock.
func (s *AtomicNTT) Start() { s.clock.Spawn(s) }

// CompletedLayers counts butterfly layers executed by this task instance. A
// run resumed from a checkpoint reports only the layers it ran itself.
func (s *AtomicNTT) CompletedLayers() int { return s.completed }

// PowerFailures counts the times the power gate found the supply down.
func (s *AtomicNTT) PowerFailures() int { return s.failures }

// Restores counts working-buffer reloads from NVM, including the one at
// startup when a checkpoint was adopted.
func (s *AtomicNTT) Restores() int { return s.restores }

// Finished reports whether the task ran to completion without error.
func (s *AtomicNTT) Finished() bool { return s.finished }

// Err returns the fatal error that stopped the task, if any.
func (s *AtomicNTT) Err() error { return s.err }

// Result returns the completed working buffer: the forward transform of the
// input, still without the inverse-side permutation or scaling. Nil until
// Finished.
func (s *AtomicNTT) Result() ring.Poly { return s.result }

// Step runs the per-layer loop as a state machine. Suspension points are
// exactly the compute timeout, the checkpoint timeout, and the wait for
// power; everything between two of them is instantaneous and indivisible.
func (s *AtomicNTT) Step(c *sim.Clock) sim.Directive {
	for {
		switch s.state {
		case stateStart:
			if err := s.recover(); err != nil {
				return s.fail(err)
			}
			dbg(os.Stderr, "[Scheduler] starting atomic NTT at %.2f (layer %d)\n", c.Now(), s.step)
			s.state = stateGate

		case stateGate:
			if s.step >= s.rg.Layers() {
				s.result = s.work
				s.finished = true
				s.state = stateDone
				dbg(os.Stderr, "[Scheduler] finished NTT at %.2f\n", c.Now())
				return sim.Done()
			}
			if !s.power.IsPowered() {
				s.failures++
				s.state = stateRestore
				dbg(os.Stderr, "[Scheduler] waiting for power at %.2f\n", c.Now())
				return sim.Await(s.power.Restored())
			}
			s.state = stateButterfly
			return sim.Timeout(ComputeCost)

		case stateRestore:
			// Power is back; RAM contents did not survive the outage, so
			// the working buffer comes back from the last durable snapshot.
			if s.step > 0 {
				data, ok := s.nvm.Read(DataBase + s.step - 1)
				if !ok {
					return s.fail(fmt.Errorf("%w: counter=%d, data slot %d absent",
						ErrCorruptCheckpoint, s.step, DataBase+s.step-1))
				}
				s.work = ring.Poly(data)
				s.restores++
			}
			s.state = stateGate

		case stateButterfly:
			// One stage, no suspension inside: the atomic unit.
			if err := s.rg.NTTLayer(s.work, s.step); err != nil {
				return s.fail(err)
			}
			s.state = stateCheckpoint
			return sim.Timeout(CheckpointCost)

		case stateCheckpoint:
			// Data snapshot first, then the counter. A crash between the
			// two leaves the counter at k and layer k replays onto an
			// identical snapshot.
			s.nvm.Write(DataBase+s.step, s.work, c.Now())
			s.nvm.Write(StateAddr, []uint64{uint64(s.step + 1)}, c.Now())
			s.step++
			s.completed++
			s.state = stateGate

		case stateDone:
			return sim.Done()
		}
	}
}

func (s *AtomicNTT) fail(err error) sim.Directive {
	s.err = err
	s.state = stateDone
	dbg(os.Stderr, "[Scheduler] fatal: %v\n", err)
	return sim.Done()
}

// recover applies the startup protocol: adopt the NVM progress counter if
// present, reload the matching snapshot, or start from the bit-reversed
// input when no progress was recorded.
func (s *AtomicNTT) recover() error {
	if blob, ok := s.nvm.Read(StateAddr); ok && len(blob) > 0 {
		s.step = int(blob[0])
	}
	if s.step < 0 || s.step > s.rg.Layers() {
		return fmt.Errorf("%w: counter %d outside [0,%d]", ErrCorruptCheckpoint, s.step, s.rg.Layers())
	}
	if s.step > 0 {
		data, ok := s.nvm.Read(DataBase + s.step - 1)
		if !ok {
			return fmt.Errorf("%w: counter=%d, data slot %d absent",
				ErrCorruptCheckpoint, s.step, DataBase+s.step-1)
		}
		s.work = ring.Poly(data)
		s.restores++
		return nil
	}
	// Fresh start: the transform's permutation step happens once, here.
	s.work = s.rg.Reduce(s.input)
	ring.BitReverseInPlace(s.work)
	return nil
}
