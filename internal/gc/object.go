package gc

// Object 托管对象。
//
// 回收器只通过这个接口枚举对象的引用字段，不关心具体布局。
// 字段数量在对象生命周期内不得改变。
type Object interface {
	NumFields() int
	Field(i int) *Cell
}

// Sized 可选：报告对象的近似字节数，用于分配计量
type Sized interface {
	Size() uintptr
}

// Finalizer 可选：对象被清除时由回收器调用
type Finalizer interface {
	Finalize()
}

// Survivor 可选：对象在一次回收中存活时由回收器调用
type Survivor interface {
	AfterCollection()
}

// defaultObjectSize 未实现 Sized 的对象按此大小计量
const defaultObjectSize = 64

func objectSize(o Object) uintptr {
	if s, ok := o.(Sized); ok {
		return s.Size()
	}
	return defaultObjectSize + uintptr(o.NumFields())*8
}
