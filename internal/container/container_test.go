package container

import (
	"fmt"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/tangzhangming/pauseless/internal/gc"
)

// newThread 返回 combined 模式下的唯一线程；TriggerBytes 很小，容器操作中途会发生回收
func newThread(t *testing.T, trigger int64) *gc.Thread {
	t.Helper()
	cfg := gc.Config{
		MaxThreads:    1,
		HeapSlots:     1 << 14,
		TriggerBytes:  trigger,
		FlushBytes:    64,
		Combined:      true,
		HandshakeSpin: 4,
	}
	g, err := gc.New(cfg, gc.WithLogger(zaptest.NewLogger(t)))
	if err != nil {
		t.Fatalf("gc.New failed: %v", err)
	}
	th := g.Register()
	t.Cleanup(th.Exit)
	return th
}

// ============================================================================
// Array / String
// ============================================================================

func TestArraySetAt(t *testing.T) {
	th := newThread(t, 0)
	ar := NewArray(th, 4)
	root := th.NewRoot(ar)
	a := gc.As[*Array](th.Heap(), ar)

	s := NewString(th, "x")
	a.Set(th, 2, s)
	if a.At(2) != s || a.At(0) != gc.Nil {
		t.Errorf("Unexpected contents: [0]=%d [2]=%d", a.At(0), a.At(2))
	}
	if a.Len() != 4 {
		t.Errorf("Expected length 4, got %d", a.Len())
	}

	th.Collect()
	if th.Heap().Objects() != 2 {
		t.Errorf("Expected array and element to survive, objects=%d", th.Heap().Objects())
	}

	root.Drop()
	th.Collect()
	if th.Heap().Objects() != 0 {
		t.Errorf("Expected everything freed, objects=%d", th.Heap().Objects())
	}
}

func TestStringHash(t *testing.T) {
	th := newThread(t, 0)
	a := gc.As[*String](th.Heap(), NewString(th, "hello"))
	b := gc.As[*String](th.Heap(), NewString(th, "hello"))
	c := gc.As[*String](th.Heap(), NewString(th, "world"))

	if a.Hash() != b.Hash() {
		t.Error("Equal strings should hash equally")
	}
	if a.Hash() == c.Hash() {
		t.Error("Different strings should not collide here")
	}
	if a.Hash() != HashString("hello") {
		t.Error("Hash should match HashString")
	}
	if a.Value() != "hello" || a.NumFields() != 0 {
		t.Errorf("Unexpected string object %q with %d fields", a.Value(), a.NumFields())
	}
}

// ============================================================================
// Vector
// ============================================================================

func TestVectorAppendAcrossCollections(t *testing.T) {
	th := newThread(t, 2<<10)
	vr := NewVector(th, 0)
	th.NewRoot(vr)

	const n = 300
	for i := 0; i < n; i++ {
		v := gc.As[*Vector](th.Heap(), vr)
		v.Append(th, NewString(th, fmt.Sprint(i)))
		th.Safepoint()
	}

	if th.GC().Stats().Cycles == 0 {
		t.Fatal("Expected collections while appending")
	}

	v := gc.As[*Vector](th.Heap(), vr)
	if v.Len() != n {
		t.Fatalf("Expected %d elements, got %d", n, v.Len())
	}
	for i := 0; i < n; i++ {
		s := gc.As[*String](th.Heap(), v.At(th, i))
		if s.Value() != fmt.Sprint(i) {
			t.Errorf("Element %d: expected %q, got %q", i, fmt.Sprint(i), s.Value())
		}
	}

	th.Collect()
	// vector + 当前数组 + 元素，旧数组都已回收
	if want := int64(n + 2); th.Heap().Objects() != want {
		t.Errorf("Expected %d objects, got %d", want, th.Heap().Objects())
	}
	if v.Cap(th) < n {
		t.Errorf("Capacity %d smaller than length %d", v.Cap(th), n)
	}
}

func TestVectorSet(t *testing.T) {
	th := newThread(t, 0)
	vr := NewVector(th, 2)
	th.NewRoot(vr)
	v := gc.As[*Vector](th.Heap(), vr)

	a := NewString(th, "a")
	b := NewString(th, "b")
	v.Append(th, a)
	v.Set(th, 0, b)
	if v.At(th, 0) != b {
		t.Errorf("Expected %d, got %d", b, v.At(th, 0))
	}

	defer func() {
		if recover() == nil {
			t.Error("Out of range access should panic")
		}
	}()
	v.At(th, 1)
}

// ============================================================================
// HashTable
// ============================================================================

func TestHashTablePutGetDelete(t *testing.T) {
	th := newThread(t, 4<<10)
	hr := NewHashTable(th, 4)
	th.NewRoot(hr)

	const n = 200
	for i := 0; i < n; i++ {
		h := gc.As[*HashTable](th.Heap(), hr)
		k := NewString(th, fmt.Sprintf("key-%d", i))
		v := NewString(th, fmt.Sprintf("val-%d", i))
		if !h.Put(th, k, v) {
			t.Fatalf("Put of new key %d reported existing", i)
		}
		th.Safepoint()
	}

	h := gc.As[*HashTable](th.Heap(), hr)
	if h.Len() != n {
		t.Errorf("Expected %d entries, got %d", n, h.Len())
	}
	if h.Buckets() < 4*n {
		t.Errorf("Table should stay 4x larger than its contents, size %d", h.Buckets())
	}

	for i := 0; i < n; i++ {
		v, ok := h.Lookup(th, fmt.Sprintf("key-%d", i))
		if !ok {
			t.Fatalf("Missing key-%d", i)
		}
		if s := gc.As[*String](th.Heap(), v).Value(); s != fmt.Sprintf("val-%d", i) {
			t.Errorf("key-%d: expected val-%d, got %s", i, i, s)
		}
	}

	for i := 0; i < n; i += 2 {
		if !h.Delete(th, fmt.Sprintf("key-%d", i)) {
			t.Errorf("Delete key-%d reported missing", i)
		}
	}
	if h.Delete(th, "key-0") {
		t.Error("Second delete should report missing")
	}
	if h.Len() != n/2 {
		t.Errorf("Expected %d entries after delete, got %d", n/2, h.Len())
	}
	if h.Contains(th, "key-4") || !h.Contains(th, "key-5") {
		t.Error("Deleted keys should be gone and others kept")
	}

	th.Collect()
	// 表 + 数组 + 剩余的键值对
	if want := int64(2 + n); th.Heap().Objects() != want {
		t.Errorf("Expected %d objects after collection, got %d", want, th.Heap().Objects())
	}
}

func TestHashTableOverwriteAndTombstoneReuse(t *testing.T) {
	th := newThread(t, 0)
	hr := NewHashTable(th, 64)
	th.NewRoot(hr)
	h := gc.As[*HashTable](th.Heap(), hr)

	k := NewString(th, "k")
	h.Put(th, k, NewString(th, "1"))
	if h.Put(th, NewString(th, "k"), NewString(th, "2")) {
		t.Error("Overwriting an equal key should report existing")
	}
	v, _ := h.Get(th, k)
	if gc.As[*String](th.Heap(), v).Value() != "2" {
		t.Error("Overwrite did not take effect")
	}

	h.Delete(th, "k")
	if h.wasted != 1 {
		t.Errorf("Expected one tombstone, got %d", h.wasted)
	}
	h.Put(th, k, NewString(th, "3"))
	if h.wasted != 0 || h.Len() != 1 {
		t.Errorf("Reinsert should reuse tombstone, wasted=%d len=%d", h.wasted, h.Len())
	}
}

func BenchmarkHashTablePut(b *testing.B) {
	cfg := gc.Config{MaxThreads: 1, HeapSlots: 1 << 20, TriggerBytes: 1 << 20, FlushBytes: 1 << 10, Combined: true}
	g, _ := gc.New(cfg)
	th := g.Register()
	defer th.Exit()
	hr := NewHashTable(th, InitialHashSize)
	th.NewRoot(hr)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		h := gc.As[*HashTable](th.Heap(), hr)
		h.Put(th, NewString(th, fmt.Sprint(i%100000)), gc.Nil)
		th.Safepoint()
	}
}
