package container

import (
	"github.com/tangzhangming/pauseless/internal/gc"
)

// Vector 可增长的引用向量，元素存放在一个 Array 中
type Vector struct {
	data gc.Cell
	n    int
}

// NewVector 分配空向量，初始容量为 capacity
func NewVector(t *gc.Thread, capacity int) gc.Ref {
	v := &Vector{}
	if capacity > 0 {
		t.Init(&v.data, NewArray(t, capacity))
	}
	return t.New(v)
}

func (v *Vector) NumFields() int       { return 1 }
func (v *Vector) Field(i int) *gc.Cell { return &v.data }
func (v *Vector) Size() uintptr        { return 32 }

// Len 元素个数
func (v *Vector) Len() int { return v.n }

// Cap 当前容量
func (v *Vector) Cap(t *gc.Thread) int {
	if a := v.backing(t); a != nil {
		return a.Len()
	}
	return 0
}

func (v *Vector) backing(t *gc.Thread) *Array {
	r := v.data.Load()
	if r == gc.Nil {
		return nil
	}
	return gc.As[*Array](t.Heap(), r)
}

// At 返回第 i 个元素
func (v *Vector) At(t *gc.Thread, i int) gc.Ref {
	v.check(i)
	return v.backing(t).At(i)
}

// Set 修改第 i 个元素
func (v *Vector) Set(t *gc.Thread, i int, r gc.Ref) {
	v.check(i)
	v.backing(t).Set(t, i, r)
}

func (v *Vector) check(i int) {
	if i < 0 || i >= v.n {
		panic("container: vector index out of range")
	}
}

// Append 追加元素。
// 容量不足时分配两倍大小的新数组并逐个复制，复制过程中会经过安全点，
// 因此向量本身必须被持有。
func (v *Vector) Append(t *gc.Thread, r gc.Ref) {
	old := v.backing(t)
	if old != nil && v.n < old.Len() {
		old.Set(t, v.n, r)
		v.n++
		return
	}

	size := 8
	if old != nil {
		size = old.Len() * 2
	}
	nr := NewArray(t, size)
	next := gc.As[*Array](t.Heap(), nr)
	// 新元素先写入，之后的安全点不会让它失效
	next.Set(t, v.n, r)
	hold := t.NewRoot(nr)
	for i := 0; i < v.n; i++ {
		next.Set(t, i, old.At(i))
		t.Safepoint()
	}
	t.Store(&v.data, nr)
	hold.Drop()
	v.n++
}
