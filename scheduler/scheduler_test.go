package scheduler

import (
	"errors"
	"testing"

	"tessera/hardware"
	"tessera/ring"
	"tessera/sim"
)

func testRing(t *testing.T) *ring.Ring {
	t.Helper()
	rg, err := ring.NewRing(256, 3329)
	if err != nil {
		t.Fatalf("ring: %v", err)
	}
	return rg
}

func testPoly(rg *ring.Ring) ring.Poly {
	p := make(ring.Poly, rg.N)
	for i := range p {
		p[i] = uint64(i*13+7) % rg.Q
	}
	return p
}

type fixture struct {
	clock *sim.Clock
	power *hardware.PowerSource
	nvm   *hardware.NVM
	rg    *ring.Ring
	task  *AtomicNTT
}

func newFixture(t *testing.T, rg *ring.Ring, nvm *hardware.NVM, poly ring.Poly, seed int64, onAvg, offAvg float64) *fixture {
	t.Helper()
	clock := sim.NewClock()
	power := hardware.NewPowerSource(clock, hardware.NewRNG(seed), onAvg, offAvg)
	task, err := New(clock, power, nvm, rg, poly)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	task.Start()
	return &fixture{clock: clock, power: power, nvm: nvm, rg: rg, task: task}
}

func TestUninterruptedRun(t *testing.T) {
	rg := testRing(t)
	nvm := hardware.NewNVM()
	f := newFixture(t, rg, nvm, testPoly(rg), 1, 9999, 1)
	f.clock.RunUntil(5000)

	if err := f.task.Err(); err != nil {
		t.Fatalf("scheduler error: %v", err)
	}
	if !f.task.Finished() {
		t.Fatal("scheduler did not finish")
	}
	if got := f.task.CompletedLayers(); got != rg.Layers() {
		t.Fatalf("completed layers = %d, want %d", got, rg.Layers())
	}
	// One data write plus one counter write per layer.
	if got := nvm.Writes(); got != 16 {
		t.Fatalf("nvm writes = %d, want 16", got)
	}
	final, ok := nvm.Read(DataBase + rg.Layers() - 1)
	if !ok {
		t.Fatal("final data slot absent")
	}
	if len(final) != 256 {
		t.Fatalf("final slot length = %d", len(final))
	}
	state, ok := nvm.Read(StateAddr)
	if !ok || len(state) != 1 || state[0] != uint64(rg.Layers()) {
		t.Fatalf("state slot = %v, %v", state, ok)
	}
}

func TestHostileRunCompletes(t *testing.T) {
	rg := testRing(t)
	nvm := hardware.NewNVM()
	input := testPoly(rg)
	f := newFixture(t, rg, nvm, input, 3, 30, 20)
	f.clock.RunUntil(50000)

	if err := f.task.Err(); err != nil {
		t.Fatalf("scheduler error: %v", err)
	}
	if !f.task.Finished() {
		t.Fatal("scheduler did not finish under hostile power")
	}
	if got := f.task.CompletedLayers(); got != rg.Layers() {
		t.Fatalf("completed layers = %d, want %d", got, rg.Layers())
	}
	if f.task.Restores() > f.task.PowerFailures()+1 {
		t.Fatalf("restores = %d exceeds failures+1 = %d",
			f.task.Restores(), f.task.PowerFailures()+1)
	}

	result := f.task.Result()
	for i, v := range result {
		if v >= rg.Q {
			t.Fatalf("result[%d] = %d out of range", i, v)
		}
	}

	// The interrupted transform must be observably equivalent to an
	// uninterrupted one.
	want, err := rg.NTT(input)
	if err != nil {
		t.Fatalf("reference ntt: %v", err)
	}
	for i := range want {
		if result[i] != want[i] {
			t.Fatalf("result[%d] = %d, want %d", i, result[i], want[i])
		}
	}
	final, ok := nvm.Read(DataBase + rg.Layers() - 1)
	if !ok {
		t.Fatal("final data slot absent")
	}
	for i := range want {
		if final[i] != want[i] {
			t.Fatalf("nvm final[%d] = %d, want %d", i, final[i], want[i])
		}
	}
}

func TestPrepopulatedRestore(t *testing.T) {
	rg := testRing(t)
	nvm := hardware.NewNVM()

	// Fake an interrupted run whose layer 3 completed.
	fake := make(ring.Poly, rg.N)
	for i := range fake {
		fake[i] = uint64(i*31+5) % rg.Q
	}
	nvm.Write(DataBase+3, fake, 0)
	nvm.Write(StateAddr, []uint64{4}, 0)
	preWrites := nvm.Writes()

	f := newFixture(t, rg, nvm, testPoly(rg), 1, 1e9, 1)
	f.clock.RunUntil(5000)

	if err := f.task.Err(); err != nil {
		t.Fatalf("scheduler error: %v", err)
	}
	if !f.task.Finished() {
		t.Fatal("scheduler did not finish")
	}
	if f.task.Restores() < 1 {
		t.Fatalf("restores = %d, want >= 1", f.task.Restores())
	}
	// Only the remaining four layers run and checkpoint.
	if got := f.task.CompletedLayers(); got != 4 {
		t.Fatalf("completed layers = %d, want 4", got)
	}
	if got := nvm.Writes() - preWrites; got != 8 {
		t.Fatalf("scheduler writes = %d, want 8", got)
	}

	// The result continues from the preloaded snapshot, not the input.
	want := fake.Copy()
	for k := 4; k < rg.Layers(); k++ {
		if err := rg.NTTLayer(want, k); err != nil {
			t.Fatalf("reference layer %d: %v", k, err)
		}
	}
	result := f.task.Result()
	for i := range want {
		if result[i] != want[i] {
			t.Fatalf("result[%d] = %d, want %d", i, result[i], want[i])
		}
	}
}

func TestCorruptCheckpointIsFatal(t *testing.T) {
	rg := testRing(t)
	nvm := hardware.NewNVM()
	// Progress counter without its matching data snapshot.
	nvm.Write(StateAddr, []uint64{4}, 0)

	f := newFixture(t, rg, nvm, testPoly(rg), 1, 1e9, 1)
	f.clock.RunUntil(5000)

	if f.task.Finished() {
		t.Fatal("scheduler finished on corrupt state")
	}
	if !errors.Is(f.task.Err(), ErrCorruptCheckpoint) {
		t.Fatalf("err = %v, want ErrCorruptCheckpoint", f.task.Err())
	}
	if f.task.CompletedLayers() != 0 {
		t.Fatalf("completed layers = %d on corrupt state", f.task.CompletedLayers())
	}
}

func TestPreloadedStateAtFullProgress(t *testing.T) {
	rg := testRing(t)
	nvm := hardware.NewNVM()
	done := testPoly(rg)
	nvm.Write(DataBase+rg.Layers()-1, done, 0)
	nvm.Write(StateAddr, []uint64{uint64(rg.Layers())}, 0)

	f := newFixture(t, rg, nvm, nil, 1, 1e9, 1)
	f.clock.RunUntil(100)

	if !f.task.Finished() {
		t.Fatal("scheduler did not finish from completed state")
	}
	if f.task.CompletedLayers() != 0 {
		t.Fatalf("completed layers = %d, want 0", f.task.CompletedLayers())
	}
	if f.task.Restores() != 1 {
		t.Fatalf("restores = %d, want 1", f.task.Restores())
	}
}

func TestNilInputSamplesFreshPolynomial(t *testing.T) {
	rg := testRing(t)
	nvm := hardware.NewNVM()
	f := newFixture(t, rg, nvm, nil, 1, 9999, 1)
	f.clock.RunUntil(5000)

	if !f.task.Finished() {
		t.Fatal("scheduler did not finish")
	}
	result := f.task.Result()
	if len(result) != rg.N {
		t.Fatalf("result length = %d", len(result))
	}
	for i, v := range result {
		if v >= rg.Q {
			t.Fatalf("result[%d] = %d out of range", i, v)
		}
	}
}

func TestPowerGateCountsFailures(t *testing.T) {
	rg := testRing(t)
	nvm := hardware.NewNVM()
	// Long outages relative to layer cost force the gate to fire.
	f := newFixture(t, rg, nvm, testPoly(rg), 9, 5, 40)
	f.clock.RunUntil(200000)

	if err := f.task.Err(); err != nil {
		t.Fatalf("scheduler error: %v", err)
	}
	if !f.task.Finished() {
		t.Fatal("scheduler did not finish")
	}
	if f.task.PowerFailures() == 0 {
		t.Fatal("expected at least one observed power failure")
	}
	if f.task.Restores() > f.task.PowerFailures()+1 {
		t.Fatalf("restores = %d exceeds failures+1 = %d",
			f.task.Restores(), f.task.PowerFailures()+1)
	}
}
