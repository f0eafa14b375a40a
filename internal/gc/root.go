package gc

import "go.uber.org/atomic"

// Root 根句柄：线程持有的一个强引用。
//
// Drop 只清除 owned 标志，句柄本身由清除阶段回收。
// 在 Collecting 期间被放弃的根记录当前周期号，本周期仍按根处理，
// 因为它在快照时刻仍然被持有。
type Root struct {
	cell  Cell
	owner *Thread
	ref   Ref

	owned atomic.Bool
	keep  atomic.Uint64
}

// Cell 根的引用单元
func (r *Root) Cell() *Cell { return &r.cell }

// Get 返回根当前引用的对象
func (r *Root) Get() Ref { return r.cell.Load() }

// Set 通过持有线程的写屏障修改根
func (r *Root) Set(v Ref) { r.owner.Store(&r.cell, v) }

// Owned 是否仍被持有
func (r *Root) Owned() bool { return r.owned.Load() }

// Drop 放弃根。重复调用无效果。
func (r *Root) Drop() {
	if !r.owned.Load() {
		return
	}
	pc := r.owner.gc.pc
	if r.owner.phase == Collecting || pc.Load().Phase() == Collecting {
		r.keep.Store(pc.Cycle())
	}
	r.owned.Store(false)
}

// traced 标记阶段是否从该根出发
func (r *Root) traced(cycle uint64) bool {
	return r.owned.Load() || r.keep.Load() == cycle
}
