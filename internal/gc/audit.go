package gc

import "github.com/tangzhangming/pauseless/internal/ring"

// Audit 堆的一致性检查结果
type Audit struct {
	// Objects 扫描链表中的对象数
	Objects int `json:"objects"`
	// Counted 堆计数器中的对象数
	Counted int64 `json:"counted"`
	// Roots 扫描链表中的根句柄数
	Roots int `json:"roots"`
	// OwnedRoots 仍被持有的根
	OwnedRoots int `json:"owned_roots"`
	// Reachable 从持有的根沿 live 值可达的对象数
	Reachable int `json:"reachable"`
	// Divergent live != snapshot 的单元数
	Divergent int `json:"divergent"`
}

// Garbage 可达性之外仍在堆中的对象数
func (a Audit) Garbage() int { return a.Objects - a.Reachable }

// Audit 独立于标记器遍历整个堆。
//
// 只在静止状态下调用：没有处于变更状态的线程，也没有进行中的周期。
// 遍历使用自己的访问集合和显式栈，不读写槽位上的标记状态。
func (g *GC) Audit() Audit {
	g.mu.Lock()
	defer g.mu.Unlock()

	h := g.heap
	var a Audit
	var stack []Ref
	g.reg.forEach(func(l *ScanLists) {
		for gen := 0; gen < 2; gen++ {
			for c := ring.Iterate(h, uint32(l.objects[gen])); c.Next(); {
				a.Objects++
				o := h.slot(Ref(c.Index())).obj
				for i, n := 0, o.NumFields(); i < n; i++ {
					if !o.Field(i).Consistent() {
						a.Divergent++
					}
				}
			}
			for c := ring.Iterate(h, uint32(l.roots[gen])); c.Next(); {
				a.Roots++
				root := h.slot(Ref(c.Index())).root
				if !root.cell.Consistent() {
					a.Divergent++
				}
				if root.Owned() {
					a.OwnedRoots++
					if r := root.Get(); r != Nil {
						stack = append(stack, r)
					}
				}
			}
		}
	})
	a.Counted = h.Objects()

	seen := make(map[Ref]struct{})
	for len(stack) > 0 {
		r := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		o := h.Get(r)
		for i, n := 0, o.NumFields(); i < n; i++ {
			if c := o.Field(i).Load(); c != Nil {
				stack = append(stack, c)
			}
		}
	}
	a.Reachable = len(seen)
	return a
}
