package gc

import (
	"fmt"
	"runtime"

	"go.uber.org/atomic"
	"golang.org/x/sys/cpu"
)

// ============================================================================
// 阶段
// ============================================================================
//
// 全局阶段循环（只由回收器推进）:
//
//	NotCollecting -> Collecting -> RestoringSnapshot -> NotCollecting
//
// 线程阶段在安全点上惰性跟随全局阶段；NotMutating 只出现在线程阶段，
// 表示线程主动退出计数（例如阻塞在 I/O 上），不参与任何握手。
//
// 写屏障:
//   - NotCollecting / RestoringSnapshot: double store
//   - Collecting: single store
//   - NotMutating: 禁止写入

// Phase 回收阶段
type Phase uint8

const (
	NotMutating Phase = iota
	NotCollecting
	Collecting
	RestoringSnapshot
)

func (p Phase) String() string {
	switch p {
	case NotMutating:
		return "not-mutating"
	case NotCollecting:
		return "not-collecting"
	case Collecting:
		return "collecting"
	case RestoringSnapshot:
		return "restoring-snapshot"
	default:
		return fmt.Sprintf("phase(%d)", uint8(p))
	}
}

// bucket 线程计数桶
type bucket uint

const (
	bucketNotMutating bucket = iota
	bucketInCollection
	bucketInSweep
	bucketOutOfCollection
)

func bucketOf(p Phase) bucket {
	switch p {
	case NotMutating:
		return bucketNotMutating
	case NotCollecting:
		return bucketOutOfCollection
	case Collecting:
		return bucketInCollection
	case RestoringSnapshot:
		return bucketInSweep
	}
	fatalf("phase", "no bucket for %s", p)
	return 0
}

// 状态字布局: 4 个 14 位计数 + 8 位阶段
const (
	counterBits = 14
	counterMask = 1<<counterBits - 1
	phaseShift  = 56

	// MaxThreadLimit 计数字段可容纳的线程上限（保留一个给回收器令牌）
	MaxThreadLimit = counterMask - 1
)

// State 打包后的全局阶段状态
type State uint64

// Phase 全局阶段
func (s State) Phase() Phase { return Phase(s >> phaseShift) }

func (s State) count(b bucket) int {
	return int(uint64(s)>>(uint(b)*counterBits)) & counterMask
}

// ThreadsNotMutating 不在变更状态的线程数
func (s State) ThreadsNotMutating() int { return s.count(bucketNotMutating) }

// ThreadsInCollection 处于 Collecting 的线程数（含回收器令牌）
func (s State) ThreadsInCollection() int { return s.count(bucketInCollection) }

// ThreadsInSweep 处于 RestoringSnapshot 的线程数（含回收器令牌）
func (s State) ThreadsInSweep() int { return s.count(bucketInSweep) }

// ThreadsOutOfCollection 处于 NotCollecting 的线程数（含回收器令牌）
func (s State) ThreadsOutOfCollection() int { return s.count(bucketOutOfCollection) }

func (s State) add(b bucket, delta int) State {
	n := s.count(b) + delta
	assert(n >= 0 && n <= counterMask, "state", "counter %d out of range after %+d (%s)", b, delta, s)
	shift := uint(b) * counterBits
	cleared := uint64(s) &^ (uint64(counterMask) << shift)
	return State(cleared | uint64(n)<<shift)
}

func (s State) move(from, to bucket) State {
	if from == to {
		return s
	}
	return s.add(from, -1).add(to, 1)
}

func (s State) withPhase(p Phase) State {
	return State(uint64(s)&^(uint64(0xff)<<phaseShift) | uint64(p)<<phaseShift)
}

func (s State) String() string {
	return fmt.Sprintf("{%s not_mutating=%d in_collection=%d in_sweep=%d out_of_collection=%d}",
		s.Phase(), s.ThreadsNotMutating(), s.ThreadsInCollection(), s.ThreadsInSweep(), s.ThreadsOutOfCollection())
}

// ============================================================================
// 阶段控制器
// ============================================================================

// PhaseController 全局阶段状态机。
//
// 每个参与线程在注册时拿到同一个控制器的引用；不同的 GC 实例互不影响。
// 所有状态迁移都是对一个 64 位字的 CAS。
type PhaseController struct {
	_     cpu.CacheLinePad
	state atomic.Uint64
	_     cpu.CacheLinePad

	// active 当前活动代下标（0/1），每个周期翻转一次
	active atomic.Uint32

	// cycle 已开始的周期数，在翻转活动代时递增
	cycle atomic.Uint64

	// spin 握手等待时让出前的忙等次数
	spin int
}

func newPhaseController(spin int) *PhaseController {
	pc := &PhaseController{spin: spin}
	pc.state.Store(uint64(State(0).withPhase(NotCollecting)))
	return pc
}

// Load 读取当前状态
func (pc *PhaseController) Load() State {
	return State(pc.state.Load())
}

// ActiveIndex 当前活动代下标
func (pc *PhaseController) ActiveIndex() uint32 {
	return pc.active.Load()
}

// Cycle 当前（或最近一次）周期编号
func (pc *PhaseController) Cycle() uint64 {
	return pc.cycle.Load()
}

// update 以 CAS 循环应用 fn，返回迁移前后的状态
func (pc *PhaseController) update(fn func(State) State) (from, to State) {
	for {
		from = pc.Load()
		to = fn(from)
		if pc.state.CAS(uint64(from), uint64(to)) {
			return from, to
		}
	}
}

// awaitDrain 自旋等待，直到桶 b 的计数不大于 n。
// 前 spin 次纯自旋，之后每次检查前让出处理器。
func (pc *PhaseController) awaitDrain(b bucket, n int) {
	for i := 0; pc.Load().count(b) > n; i++ {
		if i >= pc.spin {
			runtime.Gosched()
		}
	}
}

// StartCollection NotCollecting -> Collecting。
//
// 回收器先放入一个令牌计数，等待其他线程全部在安全点进入 Collecting，
// 然后翻转活动代并撤回令牌，放行所有等待中的线程。
// self 非空时（combined 模式）在同一次 CAS 中把 self 移入 Collecting。
func (pc *PhaseController) StartCollection(self *Thread) {
	pc.update(func(s State) State {
		assert(s.Phase() == NotCollecting, "start_collection", "global phase is %s", s.Phase())
		s = s.withPhase(Collecting).add(bucketOutOfCollection, 1)
		if self != nil {
			s = s.move(bucketOf(self.phase), bucketInCollection)
		}
		return s
	})
	if self != nil {
		self.setPhase(Collecting)
	}

	pc.awaitDrain(bucketOutOfCollection, 1)
	pc.active.Store(pc.active.Load() ^ 1)
	pc.cycle.Inc()

	pc.update(func(s State) State { return s.add(bucketOutOfCollection, -1) })
}

// EndCollectionStartRestoreSnapshot Collecting -> RestoringSnapshot。
//
// 所有线程离开 Collecting 之后、放行之前调用 whileBlocked（合并扫描链表），
// 此时没有变更线程能修改任何扫描链表。
func (pc *PhaseController) EndCollectionStartRestoreSnapshot(self *Thread, whileBlocked func()) {
	pc.update(func(s State) State {
		assert(s.Phase() == Collecting, "end_collection", "global phase is %s", s.Phase())
		s = s.withPhase(RestoringSnapshot).add(bucketInCollection, 1)
		if self != nil {
			s = s.move(bucketOf(self.phase), bucketInSweep)
		}
		return s
	})
	if self != nil {
		self.setPhase(RestoringSnapshot)
	}

	pc.awaitDrain(bucketInCollection, 1)
	if whileBlocked != nil {
		whileBlocked()
	}

	pc.update(func(s State) State { return s.add(bucketInCollection, -1) })
}

// EndSweep RestoringSnapshot -> NotCollecting。
//
// 等待所有线程确认离开 RestoringSnapshot 后执行 finalize，然后撤回令牌。
// 进入 NotCollecting 的线程无需自旋等待。
func (pc *PhaseController) EndSweep(self *Thread, finalize func()) {
	pc.update(func(s State) State {
		assert(s.Phase() == RestoringSnapshot, "end_sweep", "global phase is %s", s.Phase())
		s = s.withPhase(NotCollecting).add(bucketInSweep, 1)
		if self != nil {
			s = s.move(bucketOf(self.phase), bucketOutOfCollection)
		}
		return s
	})
	if self != nil {
		self.setPhase(NotCollecting)
	}

	pc.awaitDrain(bucketInSweep, 1)
	if finalize != nil {
		finalize()
	}

	pc.update(func(s State) State { return s.add(bucketInSweep, -1) })
}

// awaitBarrier 线程刚进入阶段 p 后，等待上一个阶段的计数排空
func (pc *PhaseController) awaitBarrier(p Phase) {
	switch p {
	case Collecting:
		pc.awaitDrain(bucketOutOfCollection, 0)
	case RestoringSnapshot:
		pc.awaitDrain(bucketInCollection, 0)
	}
}
