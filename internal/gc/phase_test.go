package gc

import (
	"testing"
)

// ============================================================================
// 状态字测试
// ============================================================================

func TestStatePacking(t *testing.T) {
	s := State(0).withPhase(Collecting).
		add(bucketInCollection, 3).
		add(bucketInSweep, 2).
		add(bucketNotMutating, 1).
		move(bucketInCollection, bucketOutOfCollection)

	if s.Phase() != Collecting {
		t.Errorf("Expected phase collecting, got %s", s.Phase())
	}
	if s.ThreadsInCollection() != 2 {
		t.Errorf("Expected 2 in collection, got %d", s.ThreadsInCollection())
	}
	if s.ThreadsOutOfCollection() != 1 {
		t.Errorf("Expected 1 out of collection, got %d", s.ThreadsOutOfCollection())
	}
	if s.ThreadsInSweep() != 2 {
		t.Errorf("Expected 2 in sweep, got %d", s.ThreadsInSweep())
	}
	if s.ThreadsNotMutating() != 1 {
		t.Errorf("Expected 1 not mutating, got %d", s.ThreadsNotMutating())
	}

	s = s.withPhase(RestoringSnapshot)
	if s.Phase() != RestoringSnapshot || s.ThreadsInCollection() != 2 {
		t.Errorf("Changing phase disturbed counters: %s", s)
	}
}

func TestStateCounterSaturation(t *testing.T) {
	s := State(0).add(bucketInSweep, counterMask)
	if s.ThreadsInSweep() != counterMask {
		t.Errorf("Expected %d, got %d", counterMask, s.ThreadsInSweep())
	}
	if s.ThreadsOutOfCollection() != 0 || s.Phase() != NotMutating {
		t.Errorf("Full counter leaked into neighbours: %s", s)
	}

	defer func() {
		if recover() == nil {
			t.Error("Counter overflow should panic")
		}
	}()
	s.add(bucketInSweep, 1)
}

func TestStateUnderflowPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Counter underflow should panic")
		}
	}()
	State(0).add(bucketOutOfCollection, -1)
}

func TestPhaseString(t *testing.T) {
	cases := map[Phase]string{
		NotMutating:       "not-mutating",
		NotCollecting:     "not-collecting",
		Collecting:        "collecting",
		RestoringSnapshot: "restoring-snapshot",
		Phase(9):          "phase(9)",
	}
	for p, want := range cases {
		if p.String() != want {
			t.Errorf("Expected %q, got %q", want, p.String())
		}
	}
}

// ============================================================================
// 阶段控制器测试
// ============================================================================

func TestPhaseControllerCycleWithoutThreads(t *testing.T) {
	pc := newPhaseController(0)
	if pc.Load().Phase() != NotCollecting {
		t.Fatalf("Expected initial phase not-collecting, got %s", pc.Load().Phase())
	}

	pc.StartCollection(nil)
	if pc.Load().Phase() != Collecting {
		t.Errorf("Expected collecting, got %s", pc.Load().Phase())
	}
	if pc.ActiveIndex() != 1 {
		t.Errorf("Expected active index 1 after flip, got %d", pc.ActiveIndex())
	}
	if pc.Cycle() != 1 {
		t.Errorf("Expected cycle 1, got %d", pc.Cycle())
	}
	if pc.Load().ThreadsOutOfCollection() != 0 {
		t.Errorf("Collector token not released: %s", pc.Load())
	}

	merged := false
	pc.EndCollectionStartRestoreSnapshot(nil, func() { merged = true })
	if !merged {
		t.Error("Merge callback was not run")
	}
	if pc.Load().Phase() != RestoringSnapshot || pc.Load().ThreadsInCollection() != 0 {
		t.Errorf("Unexpected state after end collection: %s", pc.Load())
	}

	finalized := false
	pc.EndSweep(nil, func() { finalized = true })
	if !finalized {
		t.Error("Finalize callback was not run")
	}
	if pc.Load() != State(0).withPhase(NotCollecting) {
		t.Errorf("Expected clean not-collecting state, got %s", pc.Load())
	}
}

func TestPhaseControllerWrongOrderPanics(t *testing.T) {
	pc := newPhaseController(0)
	defer func() {
		if _, ok := recover().(*ProtocolError); !ok {
			t.Error("EndSweep from not-collecting should panic with ProtocolError")
		}
	}()
	pc.EndSweep(nil, nil)
}
