package lockfree

import (
	"sync"
	"testing"

	"go.uber.org/atomic"
)

func TestFIFOInitialFreeOrder(t *testing.T) {
	f := NewFIFO[int](4)

	if f.Cap() != 4 {
		t.Fatalf("Expected capacity 4, got %d", f.Cap())
	}
	for want := int32(3); want >= 0; want-- {
		if got := f.PopFree(); got != want {
			t.Errorf("Expected %d from free list, got %d", want, got)
		}
	}
	if got := f.PopFree(); got != Nil {
		t.Errorf("Exhausted free list should return Nil, got %d", got)
	}
	if got := f.PopFIFO(); got != Nil {
		t.Errorf("FIFO list should start empty, got %d", got)
	}
}

func TestFIFOPushPop(t *testing.T) {
	f := NewFIFO[string](3)
	a := f.PopFree()
	b := f.PopFree()
	*f.At(a) = "a"
	*f.At(b) = "b"

	f.PushFIFO(a)
	f.PushFIFO(b)

	if got := f.PopFIFO(); got != b {
		t.Errorf("Expected %d, got %d", b, got)
	}
	if got := f.PopFIFO(); got != a {
		t.Errorf("Expected %d, got %d", a, got)
	}
	if *f.At(a) != "a" || *f.At(b) != "b" {
		t.Error("Data should survive list moves")
	}

	f.PushFree(a)
	if got := f.PopFree(); got != a {
		t.Errorf("Expected recycled index %d, got %d", a, got)
	}
}

func TestFIFOSteal(t *testing.T) {
	f := NewFIFO[int](8)
	var pushed []int32
	for i := 0; i < 5; i++ {
		idx := f.PopFree()
		pushed = append(pushed, idx)
		f.PushFIFO(idx)
	}

	head := f.StealFIFO()
	if f.PopFIFO() != Nil {
		t.Error("FIFO list should be empty after steal")
	}

	seen := make(map[int32]bool)
	for i := head; i != Nil; i = f.Next(i) {
		seen[i] = true
	}
	if len(seen) != len(pushed) {
		t.Fatalf("Expected %d stolen links, got %d", len(pushed), len(seen))
	}
	for _, idx := range pushed {
		if !seen[idx] {
			t.Errorf("Index %d missing from stolen chain", idx)
		}
	}

	if f.StealFIFO() != Nil {
		t.Error("Stealing an empty list should return Nil")
	}
}

func TestFIFOStealFree(t *testing.T) {
	f := NewFIFO[int](3)
	head := f.StealFree()
	n := 0
	for i := head; i != Nil; i = f.Next(i) {
		n++
	}
	if n != 3 {
		t.Errorf("Expected 3 links, got %d", n)
	}
	if f.PopFree() != Nil {
		t.Error("Free list should be empty after steal")
	}
}

// 多个 goroutine 反复取出/归还下标，任何时刻一个下标只能被一方持有
func TestFIFOConcurrentExclusive(t *testing.T) {
	const (
		capacity   = 64
		goroutines = 8
		rounds     = 5000
	)
	f := NewFIFO[int](capacity)
	owned := make([]atomic.Bool, capacity)

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				i := f.PopFree()
				if i == Nil {
					continue
				}
				if !owned[i].CAS(false, true) {
					t.Errorf("Index %d handed out twice", i)
					return
				}
				owned[i].Store(false)
				if r%2 == 0 {
					f.PushFree(i)
				} else {
					// 经由 fifo 链表中转，模拟隔离后再释放
					f.PushFIFO(i)
					if j := f.PopFIFO(); j != Nil {
						f.PushFree(j)
					}
				}
			}
		}()
	}
	wg.Wait()

	for i := f.StealFIFO(); i != Nil; {
		next := f.Next(i)
		f.PushFree(i)
		i = next
	}
	n := 0
	for f.PopFree() != Nil {
		n++
	}
	if n != capacity {
		t.Errorf("Expected all %d indices back on the free list, got %d", capacity, n)
	}
}

func BenchmarkFIFOPopPush(b *testing.B) {
	f := NewFIFO[int](1024)
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if i := f.PopFree(); i != Nil {
				f.PushFree(i)
			}
		}
	})
}
