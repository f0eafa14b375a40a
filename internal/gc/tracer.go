package gc

import (
	"github.com/tangzhangming/pauseless/internal/ring"
)

// ============================================================================
// 标记
// ============================================================================

// markAll 从所有冻结代根链表中被追踪的根出发标记，返回新标记的对象数
func (g *GC) markAll(cycle uint64) int {
	frozen := g.pc.ActiveIndex() ^ 1
	marked := 0
	g.reg.forEach(func(l *ScanLists) {
		for c := ring.Iterate(g.heap, uint32(l.roots[frozen])); c.Next(); {
			root := g.heap.slot(Ref(c.Index())).root
			if root.traced(cycle) {
				marked += g.markFrom(root.cell.Snapshot())
			}
		}
	})
	return marked
}

// markFrom 沿快照值做深度优先标记。
//
// 不使用递归也不分配栈：每个槽位记录进入它的对象（back）和下一个待访问字段（field），
// 子对象扫完后沿 back 回到父对象继续。已标记的对象直接跳过，所以环不会导致死循环。
func (g *GC) markFrom(r Ref) int {
	if r == Nil {
		return 0
	}
	s := g.traceSlot(r)
	if s.marked {
		return 0
	}
	s.marked, s.back, s.field = true, Nil, 0
	n := 1

	for cur := r; cur != Nil; {
		s := g.heap.slot(cur)
		if s.field >= s.obj.NumFields() {
			cur = s.back
			continue
		}
		child := s.obj.Field(s.field).Snapshot()
		s.field++
		if child == Nil {
			continue
		}
		cs := g.traceSlot(child)
		if cs.marked {
			continue
		}
		cs.marked, cs.back, cs.field = true, cur, 0
		n++
		cur = child
	}
	return n
}

func (g *GC) traceSlot(r Ref) *slot {
	s := g.heap.slot(r)
	if s.kind != slotObject {
		fatalf("mark", "snapshot references %s slot %d", s.kind, r)
	}
	return s
}

// ============================================================================
// 清除
// ============================================================================

// sweepResult 一次清除的计数
type sweepResult struct {
	freed      int
	freedRoots int
	survived   int
}

// sweepAll 清除所有冻结代：未标记对象和已放弃的根被摘除并隔离，存活对象清除标记
func (g *GC) sweepAll() sweepResult {
	frozen := g.pc.ActiveIndex() ^ 1
	h := g.heap
	var res sweepResult
	g.reg.forEach(func(l *ScanLists) {
		for c := ring.Iterate(h, uint32(l.objects[frozen])); c.Next(); {
			r := Ref(c.Index())
			s := h.slot(r)
			if s.marked {
				s.marked, s.back, s.field = false, Nil, 0
				if sv, ok := s.obj.(Survivor); ok {
					sv.AfterCollection()
				}
				res.survived++
				continue
			}
			c.Remove()
			if f, ok := s.obj.(Finalizer); ok {
				f.Finalize()
			}
			h.quarantine(r)
			res.freed++
		}

		for c := ring.Iterate(h, uint32(l.roots[frozen])); c.Next(); {
			r := Ref(c.Index())
			if h.slot(r).root.Owned() {
				continue
			}
			c.Remove()
			h.quarantine(r)
			res.freedRoots++
		}
	})
	return res
}

// ============================================================================
// 合并与恢复
// ============================================================================

// span 合并时刻一条活动链表上的全部节点 [first, last]
type span struct {
	first, last uint32
}

// mergeAll 把冻结代整体拼接到活动代之前，并记录每条活动链表当时的范围。
// 只能在握手阻塞所有变更线程时调用。
func (g *GC) mergeAll() []span {
	active := g.pc.ActiveIndex()
	frozen := active ^ 1
	h := g.heap
	var spans []span
	record := func(src, dst Ref) {
		ring.Splice(h, uint32(src), uint32(dst))
		if ring.Empty(h, uint32(dst)) {
			return
		}
		n := h.Node(uint32(dst))
		spans = append(spans, span{first: n.Next(), last: n.Prev()})
	}
	g.reg.forEach(func(l *ScanLists) {
		record(l.objects[frozen], l.objects[active])
		record(l.roots[frozen], l.roots[active])
	})
	return spans
}

// restoreAll 恢复所有记录范围内单元的快照，返回处理的槽位数。
//
// 变更线程此时只会在哨兵之后插入新节点，不会修改范围内节点的 next，
// 所以从 first 沿 next 走到 last 是安全的。
func (g *GC) restoreAll(spans []span, fast bool) int {
	h := g.heap
	n := 0
	for _, sp := range spans {
		for i := sp.first; ; i = h.Node(i).Next() {
			g.restoreSlot(h.slot(Ref(i)), fast)
			n++
			if i == sp.last {
				break
			}
		}
	}
	return n
}

func (g *GC) restoreSlot(s *slot, fast bool) {
	restore := (*Cell).Restore
	if fast {
		restore = (*Cell).FastRestore
	}
	switch s.kind {
	case slotObject:
		for i, n := 0, s.obj.NumFields(); i < n; i++ {
			restore(s.obj.Field(i))
		}
	case slotRoot:
		restore(&s.root.cell)
	default:
		fatalf("restore", "unexpected %s slot in scan list", s.kind)
	}
}
