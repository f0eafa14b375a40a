// Package lockfree 提供基于 CAS 的无锁数据结构。
//
// FIFO 建立在一块预分配的链接数组之上，同时维护两条链表：
//   - fifo: 通用链表，供调用方批量交接（例如回收后待释放的槽位）
//   - free: 空闲链表，初始时包含全部槽位
//
// 两个表头都是 64 位字：低 32 位为下标，高 32 位为 ABA 代数。
// 每次成功的 CAS 都会递增代数，因此 pop 不会被 ABA 问题欺骗。
package lockfree

import (
	"go.uber.org/atomic"
	"golang.org/x/sys/cpu"
)

// Nil 空链表标记
const Nil int32 = -1

// link 链接数组中的一个元素
type link[T any] struct {
	data T
	next atomic.Int32
}

// FIFO 固定容量的无锁链表对
type FIFO[T any] struct {
	fifo atomic.Uint64
	_    cpu.CacheLinePad
	free atomic.Uint64
	_    cpu.CacheLinePad

	links []link[T]
}

func pack(head int32, aba uint32) uint64 {
	return uint64(uint32(head)) | uint64(aba)<<32
}

func unpack(v uint64) (head int32, aba uint32) {
	return int32(uint32(v)), uint32(v >> 32)
}

// NewFIFO 创建容量为 n 的 FIFO，所有下标都在空闲链表中，fifo 链表为空。
// 空闲链表按下标从高到低弹出。
func NewFIFO[T any](n int) *FIFO[T] {
	if n <= 0 {
		panic("lockfree: capacity must be positive")
	}
	f := &FIFO[T]{links: make([]link[T], n)}
	for i := range f.links {
		f.links[i].next.Store(int32(i) - 1)
	}
	f.fifo.Store(pack(Nil, 0))
	f.free.Store(pack(int32(n-1), 0))
	return f
}

// Cap 返回容量
func (f *FIFO[T]) Cap() int {
	return len(f.links)
}

// At 返回下标 i 处的数据指针。
// 数据由当前持有该下标的一方独占访问。
func (f *FIFO[T]) At(i int32) *T {
	return &f.links[i].data
}

// Next 返回下标 i 在其所在链表中的后继。
// 只在链表被 Steal 之后、由窃取方遍历时有意义。
func (f *FIFO[T]) Next(i int32) int32 {
	return f.links[i].next.Load()
}

// PushFIFO 将下标压入 fifo 链表
func (f *FIFO[T]) PushFIFO(i int32) { f.push(&f.fifo, i) }

// PopFIFO 从 fifo 链表弹出一个下标，链表为空时返回 Nil
func (f *FIFO[T]) PopFIFO() int32 { return f.pop(&f.fifo) }

// StealFIFO 原子地摘下整条 fifo 链表，返回其表头（可能为 Nil）
func (f *FIFO[T]) StealFIFO() int32 { return f.steal(&f.fifo) }

// PushFree 将下标归还到空闲链表
func (f *FIFO[T]) PushFree(i int32) { f.push(&f.free, i) }

// PopFree 从空闲链表取出一个下标，耗尽时返回 Nil
func (f *FIFO[T]) PopFree() int32 { return f.pop(&f.free) }

// StealFree 原子地摘下整条空闲链表
func (f *FIFO[T]) StealFree() int32 { return f.steal(&f.free) }

func (f *FIFO[T]) push(head *atomic.Uint64, i int32) {
	for {
		old := head.Load()
		h, aba := unpack(old)
		f.links[i].next.Store(h)
		if head.CAS(old, pack(i, aba+1)) {
			return
		}
	}
}

func (f *FIFO[T]) pop(head *atomic.Uint64) int32 {
	for {
		old := head.Load()
		h, aba := unpack(old)
		if h == Nil {
			return Nil
		}
		next := f.links[h].next.Load()
		if head.CAS(old, pack(next, aba+1)) {
			return h
		}
	}
}

func (f *FIFO[T]) steal(head *atomic.Uint64) int32 {
	for {
		old := head.Load()
		h, aba := unpack(old)
		if h == Nil {
			return Nil
		}
		if head.CAS(old, pack(Nil, aba+1)) {
			return h
		}
	}
}
