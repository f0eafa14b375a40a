package gc

import (
	"errors"
	"sync"
	"testing"
)

// ============================================================================
// Cell 测试
// ============================================================================

func TestCellZeroValue(t *testing.T) {
	var c Cell
	if c.Load() != Nil || c.Snapshot() != Nil {
		t.Errorf("Expected nil cell, got live=%d snapshot=%d", c.Load(), c.Snapshot())
	}
	if !c.Consistent() {
		t.Error("Zero cell should be consistent")
	}
}

func TestCellStoreLoadEveryPhase(t *testing.T) {
	var c Cell

	barrierFor(NotCollecting)(&c, 5)
	if c.Load() != 5 || c.Snapshot() != 5 {
		t.Errorf("NotCollecting: expected 5/5, got %d/%d", c.Load(), c.Snapshot())
	}

	barrierFor(Collecting)(&c, 7)
	if c.Load() != 7 {
		t.Errorf("Collecting: expected live 7, got %d", c.Load())
	}
	if c.Snapshot() != 5 {
		t.Errorf("Collecting: snapshot should stay frozen at 5, got %d", c.Snapshot())
	}
	if c.Consistent() {
		t.Error("Collecting store should leave cell divergent")
	}

	barrierFor(Collecting)(&c, 8)
	if c.Snapshot() != 5 {
		t.Errorf("Repeated single store changed snapshot to %d", c.Snapshot())
	}

	barrierFor(RestoringSnapshot)(&c, 9)
	if c.Load() != 9 || c.Snapshot() != 9 {
		t.Errorf("RestoringSnapshot: expected 9/9, got %d/%d", c.Load(), c.Snapshot())
	}
}

func TestCellRestore(t *testing.T) {
	var c Cell
	c.doubleStore(1)
	c.singleStore(2)

	c.Restore()
	if c.Load() != 2 || c.Snapshot() != 2 {
		t.Errorf("Expected 2/2 after restore, got %d/%d", c.Load(), c.Snapshot())
	}

	// 幂等
	c.Restore()
	if !c.Consistent() || c.Load() != 2 {
		t.Errorf("Second restore changed cell to %d/%d", c.Load(), c.Snapshot())
	}
}

func TestCellFastRestore(t *testing.T) {
	var c Cell
	c.doubleStore(3)
	c.singleStore(Nil)

	c.FastRestore()
	if c.Load() != Nil || c.Snapshot() != Nil {
		t.Errorf("Expected nil/nil after fast restore, got %d/%d", c.Load(), c.Snapshot())
	}
}

func TestNotMutatingStorePanics(t *testing.T) {
	var c Cell
	defer func() {
		r := recover()
		err, ok := r.(error)
		var pe *ProtocolError
		if !ok || !errors.As(err, &pe) {
			t.Fatalf("Expected *ProtocolError panic, got %v", r)
		}
		if pe.Op != "store" {
			t.Errorf("Expected op store, got %q", pe.Op)
		}
	}()
	barrierFor(NotMutating)(&c, 1)
}

// 单次写与 double store 竞争时，snapshot 要么是旧值要么是 double store 写入的值，
// 不会出现 single store 的值。
func TestSingleStoreRacingDoubleStore(t *testing.T) {
	var c Cell
	c.doubleStore(1)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 10000; i++ {
			c.singleStore(100)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 10000; i++ {
			c.doubleStore(2)
		}
	}()
	wg.Wait()

	if s := c.Snapshot(); s != 1 && s != 2 {
		t.Errorf("Snapshot should never hold a single-store value, got %d", s)
	}
}

func BenchmarkDoubleStore(b *testing.B) {
	var c Cell
	for i := 0; i < b.N; i++ {
		c.doubleStore(Ref(i))
	}
}

func BenchmarkSingleStore(b *testing.B) {
	var c Cell
	for i := 0; i < b.N; i++ {
		c.singleStore(Ref(i))
	}
}
