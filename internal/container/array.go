// Package container 提供建立在托管堆上的可回收容器。
//
// 所有容器都是单一所有者的：同一时刻只有一个线程修改某个容器。
// 会在内部经过安全点的操作（Vector 扩容、HashTable 重建）要求容器本身
// 被根句柄或可达对象持有。
package container

import (
	"github.com/tangzhangming/pauseless/internal/gc"
)

// refSize 一个引用单元的计量字节数
const refSize = 8

// Array 定长引用数组
type Array struct {
	cells []gc.Cell
}

// NewArray 分配长度为 n 的数组，元素均为 Nil
func NewArray(t *gc.Thread, n int) gc.Ref {
	r := t.New(&Array{cells: make([]gc.Cell, n)})
	t.LogArrayAlloc(refSize, n)
	return r
}

func (a *Array) NumFields() int       { return len(a.cells) }
func (a *Array) Field(i int) *gc.Cell { return &a.cells[i] }

// Size 只计量数组头，元素由 LogArrayAlloc 计量
func (a *Array) Size() uintptr { return 24 }

// Len 长度
func (a *Array) Len() int { return len(a.cells) }

// At 返回第 i 个元素
func (a *Array) At(i int) gc.Ref { return a.cells[i].Load() }

// Set 写入第 i 个元素
func (a *Array) Set(t *gc.Thread, i int, r gc.Ref) { t.Store(&a.cells[i], r) }
