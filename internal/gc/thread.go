package gc

import (
	"github.com/tangzhangming/pauseless/internal/ring"
)

// Thread 参与回收协议的线程（goroutine）上下文。
//
// Thread 不是并发安全的：只能由注册它的 goroutine 使用。
//
// 约定：保存在 Go 局部变量中的 Ref 只在下一次 Safepoint 或 LeaveMutation 之前有效；
// 需要跨越安全点的引用必须保存在根句柄或可达对象的字段中。
// 任何可能阻塞的调用都应包在 LeaveMutation / EnterMutation 之间，
// 否则回收器的握手会一直等待该线程。
type Thread struct {
	gc    *GC
	slot  int32
	lists *ScanLists

	phase   Phase
	barrier barrierFunc

	// depth LeaveMutation 嵌套深度
	depth int

	// pending 尚未汇总到全局计数的分配字节数
	pending int64

	exited bool
}

func (t *Thread) setPhase(p Phase) {
	t.phase = p
	t.barrier = barrierFor(p)
}

func (t *Thread) checkLive(op string) {
	if t.exited {
		fatalf(op, "thread already exited")
	}
}

// Phase 线程当前阶段
func (t *Thread) Phase() Phase { return t.phase }

// Heap 线程所属回收器的托管堆
func (t *Thread) Heap() *Heap { return t.gc.heap }

// GC 线程所属回收器
func (t *Thread) GC() *GC { return t.gc }

// Get 返回 r 引用的对象
func (t *Thread) Get(r Ref) Object { return t.gc.heap.Get(r) }

// ============================================================================
// 安全点
// ============================================================================

// Safepoint 安全点。
//
// 线程阶段落后于全局阶段时，把自己的计数从旧桶移到新桶并换用对应的写屏障；
// 进入 Collecting 或 RestoringSnapshot 时等待上一阶段的线程全部离开。
// combined 模式下，若分配触发了回收，则在这里内联执行整个周期。
func (t *Thread) Safepoint() {
	t.checkLive("safepoint")
	if t.phase == NotMutating {
		return
	}
	if t.gc.cfg.Combined {
		global := t.gc.pc.Load().Phase()
		assert(t.phase == global, "safepoint", "combined thread in %s while global is %s", t.phase, global)
		if t.gc.pending.CAS(true, false) {
			t.gc.collectInline(t)
		}
		return
	}

	pc := t.gc.pc
	if pc.Load().Phase() == t.phase {
		return
	}
	from := bucketOf(t.phase)
	_, to := pc.update(func(s State) State {
		return s.move(from, bucketOf(s.Phase()))
	})
	t.setPhase(to.Phase())
	pc.awaitBarrier(t.phase)
}

// LeaveMutation 退出变更状态。
// 之后线程不能读写托管引用，也不再参与握手，直到对应的 EnterMutation。可嵌套。
func (t *Thread) LeaveMutation() {
	t.checkLive("leave_mutation")
	if t.depth == 0 {
		t.flush()
		from := bucketOf(t.phase)
		t.gc.pc.update(func(s State) State {
			return s.move(from, bucketNotMutating)
		})
		t.setPhase(NotMutating)
	}
	t.depth++
}

// EnterMutation 重新进入变更状态，加入当前全局阶段
func (t *Thread) EnterMutation() {
	t.checkLive("enter_mutation")
	assert(t.depth > 0, "enter_mutation", "unbalanced EnterMutation")
	t.depth--
	if t.depth == 0 {
		t.join(false)
	}
}

// join 加入当前全局阶段并等待握手
func (t *Thread) join(register bool) {
	pc := t.gc.pc
	_, to := pc.update(func(s State) State {
		if register {
			return s.add(bucketOf(s.Phase()), 1)
		}
		return s.move(bucketNotMutating, bucketOf(s.Phase()))
	})
	t.setPhase(to.Phase())
	pc.awaitBarrier(t.phase)
}

// Exit 注销线程。之后 t 不可再用；已分配的对象留在线程槽中，由回收器照常处理。
func (t *Thread) Exit() {
	t.checkLive("exit")
	t.flush()
	from := bucketOf(t.phase)
	t.gc.pc.update(func(s State) State {
		return s.add(from, -1)
	})
	t.gc.reg.release(t.slot)
	t.gc.participants.Dec()
	t.exited = true
	t.setPhase(NotMutating)
}

// ============================================================================
// 读写与分配
// ============================================================================

// Store 通过当前阶段的写屏障写入单元
func (t *Thread) Store(c *Cell, r Ref) {
	t.barrier(c, r)
}

// Init 初始化一个尚未发布的对象的单元（总是 double store）
func (t *Thread) Init(c *Cell, r Ref) {
	c.doubleStore(r)
}

// New 把 obj 放入托管堆，链入当前活动代并返回其引用。
// obj 的字段应在发布前用 Init 初始化。
func (t *Thread) New(obj Object) Ref {
	t.checkMutating("new")
	h := t.gc.heap
	r := h.alloc(slotObject)
	h.slot(r).obj = obj
	ring.InsertAfter(h, uint32(t.lists.objects[t.gc.pc.ActiveIndex()]), uint32(r))
	h.objects.Inc()
	t.LogAlloc(objectSize(obj))
	return r
}

// NewRoot 创建引用 r 的根句柄
func (t *Thread) NewRoot(r Ref) *Root {
	t.checkMutating("new_root")
	h := t.gc.heap
	ref := h.alloc(slotRoot)
	root := &Root{owner: t, ref: ref}
	root.cell.doubleStore(r)
	root.owned.Store(true)
	h.slot(ref).root = root
	ring.InsertAfter(h, uint32(t.lists.roots[t.gc.pc.ActiveIndex()]), uint32(ref))
	h.roots.Inc()
	return root
}

func (t *Thread) checkMutating(op string) {
	t.checkLive(op)
	if t.phase == NotMutating {
		fatalf(op, "called while not mutating")
	}
}

// Collect 同步执行一次完整的回收周期。
// dedicated 模式下线程在等待期间退出变更状态；combined 模式下由本线程内联执行。
func (t *Thread) Collect() {
	t.checkMutating("collect")
	if t.gc.cfg.Combined {
		t.gc.pending.Store(false)
		t.gc.collectInline(t)
		return
	}
	t.LeaveMutation()
	t.gc.Collect()
	t.EnterMutation()
}
