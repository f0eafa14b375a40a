package gc

import "go.uber.org/atomic"

// Ref 托管堆中的对象引用（堆槽位编号），Nil 表示空引用
type Ref uint32

// Nil 空引用
const Nil Ref = 0

// Cell 快照单元：同时保存 live 值与 snapshot 值。
//
// 两个 32 位引用打包在同一个 64 位原子字中（低 32 位 live，高 32 位 snapshot），
// 所以对两半的任何读写都是一次 64 位原子操作，等价于双字 CAS。
//
// 不变式：非 Collecting 阶段的写入同时更新两半（double store）；
// Collecting 阶段只更新 live（single store），snapshot 冻结在回收开始时的值。
type Cell struct {
	word atomic.Uint64
}

func packCell(live, snap Ref) uint64 {
	return uint64(live) | uint64(snap)<<32
}

func liveOf(w uint64) Ref { return Ref(uint32(w)) }
func snapOf(w uint64) Ref { return Ref(w >> 32) }

// Load 返回 live 值。变更线程只读 live。
func (c *Cell) Load() Ref {
	return liveOf(c.word.Load())
}

// Snapshot 返回 snapshot 值，只供标记阶段使用
func (c *Cell) Snapshot() Ref {
	return snapOf(c.word.Load())
}

// Consistent 报告 live 与 snapshot 是否相等
func (c *Cell) Consistent() bool {
	w := c.word.Load()
	return liveOf(w) == snapOf(w)
}

func (c *Cell) doubleStore(r Ref) {
	c.word.Store(packCell(r, r))
}

// singleStore 只更新 live。
// 握手窗口内仍可能有滞后线程在做 double store，CAS 保证不丢失它写入的 snapshot。
func (c *Cell) singleStore(r Ref) {
	for {
		old := c.word.Load()
		if c.word.CAS(old, packCell(r, snapOf(old))) {
			return
		}
	}
}

// Restore 若 live != snapshot，则把 live 复制到 snapshot。
// 幂等，可与并发的 double store 竞争。
func (c *Cell) Restore() {
	for {
		old := c.word.Load()
		live := liveOf(old)
		if live == snapOf(old) {
			return
		}
		if c.word.CAS(old, packCell(live, live)) {
			return
		}
	}
}

// FastRestore 与 Restore 效果相同，但使用普通存储。
// 只能在没有其他线程访问该单元时使用（combined 模式）。
func (c *Cell) FastRestore() {
	live := liveOf(c.word.Load())
	c.word.Store(packCell(live, live))
}
