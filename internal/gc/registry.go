package gc

import (
	"runtime"
	"sync/atomic"

	uatomic "go.uber.org/atomic"

	"github.com/tangzhangming/pauseless/internal/lockfree"
)

// maxClaimAttempts 注册时争用线程槽的最大尝试次数
const maxClaimAttempts = 1 << 12

// threadSlot 线程表中的一项。
// ScanLists 在第一次被认领时创建，之后由后来的认领者复用，
// 槽位释放后其中的对象仍由回收器照常扫描。
type threadSlot struct {
	claimed uatomic.Bool
	lists   atomic.Pointer[ScanLists]
}

// registry 固定大小的线程表
type registry struct {
	slots *lockfree.FIFO[threadSlot]
}

func newRegistry(n int) *registry {
	return &registry{slots: lockfree.NewFIFO[threadSlot](n)}
}

// claim 认领一个空闲线程槽，并保证其 ScanLists 已创建
func (r *registry) claim(h *Heap) (int32, *ScanLists) {
	for attempt := 0; attempt < maxClaimAttempts; attempt++ {
		i := r.slots.PopFree()
		if i == lockfree.Nil {
			runtime.Gosched()
			continue
		}
		s := r.slots.At(i)
		if !s.claimed.CAS(false, true) {
			fatalf("register", "thread slot %d popped while claimed", i)
		}
		lists := s.lists.Load()
		if lists == nil {
			lists = newScanLists(h)
			s.lists.Store(lists)
		}
		return i, lists
	}
	fatalf("register", "no free thread slot after %d attempts (max %d threads)", maxClaimAttempts, r.slots.Cap())
	return lockfree.Nil, nil
}

func (r *registry) release(i int32) {
	s := r.slots.At(i)
	if !s.claimed.CAS(true, false) {
		fatalf("exit", "thread slot %d released twice", i)
	}
	r.slots.PushFree(i)
}

// forEach 遍历所有已创建的 ScanLists（包括已释放槽位上的）
func (r *registry) forEach(fn func(*ScanLists)) {
	for i := 0; i < r.slots.Cap(); i++ {
		if l := r.slots.At(int32(i)).lists.Load(); l != nil {
			fn(l)
		}
	}
}

// claimed 当前被认领的槽位数
func (r *registry) claimed() int {
	n := 0
	for i := 0; i < r.slots.Cap(); i++ {
		if r.slots.At(int32(i)).claimed.Load() {
			n++
		}
	}
	return n
}
