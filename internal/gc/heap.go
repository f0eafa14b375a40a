package gc

import (
	"go.uber.org/atomic"

	"github.com/tangzhangming/pauseless/internal/lockfree"
	"github.com/tangzhangming/pauseless/internal/ring"
)

// slotKind 堆槽位的用途
type slotKind uint8

const (
	slotFree slotKind = iota
	slotSentinel
	slotObject
	slotRoot
	slotQuarantined
)

// slot 堆槽位。
//
// node 把槽位链入某个线程某一代的扫描链表；marked/back/field 是标记阶段的
// 临时状态，只由回收器在 Collecting 期间读写。
type slot struct {
	node ring.Node
	kind slotKind

	obj  Object
	root *Root

	marked bool
	back   Ref
	field  int
}

// Heap 托管堆：固定容量的槽位数组。
//
// 空闲槽位保存在 lockfree.FIFO 的空闲链表中；清除得到的槽位先进入 fifo 链表隔离，
// 等到所有线程确认离开 RestoringSnapshot 之后才归还到空闲链表，
// 保证不会有线程通过过期的 Ref 看到被复用的槽位。
type Heap struct {
	slots *lockfree.FIFO[slot]

	used    atomic.Int64
	objects atomic.Int64
	roots   atomic.Int64
}

func newHeap(n int) *Heap {
	return &Heap{slots: lockfree.NewFIFO[slot](n)}
}

// Node 实现 ring.Arena，下标即 Ref
func (h *Heap) Node(i uint32) *ring.Node {
	return &h.slot(Ref(i)).node
}

func (h *Heap) slot(r Ref) *slot {
	if r == Nil || int(r) > h.slots.Cap() {
		fatalf("heap", "invalid ref %d", r)
	}
	return h.slots.At(int32(r - 1))
}

func (h *Heap) alloc(kind slotKind) Ref {
	i := h.slots.PopFree()
	if i == lockfree.Nil {
		fatalf("alloc", "heap exhausted (%d slots)", h.slots.Cap())
	}
	s := h.slots.At(i)
	*s = slot{kind: kind}
	h.used.Inc()
	return Ref(i + 1)
}

// quarantine 清除槽位并放入隔离链表
func (h *Heap) quarantine(r Ref) {
	s := h.slot(r)
	switch s.kind {
	case slotObject:
		h.objects.Dec()
	case slotRoot:
		h.roots.Dec()
	}
	s.kind = slotQuarantined
	s.obj = nil
	s.root = nil
	h.slots.PushFIFO(int32(r - 1))
}

// releaseQuarantine 把隔离链表中的全部槽位归还到空闲链表，返回数量
func (h *Heap) releaseQuarantine() int {
	n := 0
	for i := h.slots.StealFIFO(); i != lockfree.Nil; {
		next := h.slots.Next(i)
		h.slots.At(i).kind = slotFree
		h.slots.PushFree(i)
		h.used.Dec()
		n++
		i = next
	}
	return n
}

// Get 返回 r 引用的对象
func (h *Heap) Get(r Ref) Object {
	s := h.slot(r)
	if s.kind != slotObject {
		fatalf("get", "ref %d is not a live object (%s)", r, s.kind)
	}
	return s.obj
}

// As 返回 r 引用的对象并断言为类型 T
func As[T Object](h *Heap, r Ref) T {
	o := h.Get(r)
	v, ok := o.(T)
	if !ok {
		fatalf("get", "ref %d holds %T", r, o)
	}
	return v
}

// Cap 槽位总数
func (h *Heap) Cap() int { return h.slots.Cap() }

// Used 已占用的槽位数（含哨兵和隔离中的槽位）
func (h *Heap) Used() int64 { return h.used.Load() }

// Objects 存活（尚未清除）的对象数
func (h *Heap) Objects() int64 { return h.objects.Load() }

// Roots 尚未清除的根句柄数
func (h *Heap) Roots() int64 { return h.roots.Load() }

func (k slotKind) String() string {
	switch k {
	case slotFree:
		return "free"
	case slotSentinel:
		return "sentinel"
	case slotObject:
		return "object"
	case slotRoot:
		return "root"
	case slotQuarantined:
		return "quarantined"
	default:
		return "unknown"
	}
}
