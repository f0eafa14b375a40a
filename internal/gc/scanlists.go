package gc

import "github.com/tangzhangming/pauseless/internal/ring"

// ScanLists 线程的分代扫描链表：两代对象链表和两代根链表。
//
// 下标由 PhaseController.ActiveIndex 选择：活动代接收新分配，
// 另一代（冻结代）在 Collecting 期间归回收器独占。
type ScanLists struct {
	objects [2]Ref
	roots   [2]Ref
}

func newScanLists(h *Heap) *ScanLists {
	l := &ScanLists{}
	for i := 0; i < 2; i++ {
		l.objects[i] = newSentinel(h)
		l.roots[i] = newSentinel(h)
	}
	return l
}

func newSentinel(h *Heap) Ref {
	s := h.alloc(slotSentinel)
	ring.Init(h, uint32(s))
	return s
}
