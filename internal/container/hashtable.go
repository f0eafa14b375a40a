package container

import (
	"github.com/tangzhangming/pauseless/internal/gc"
)

// InitialHashSize 哈希表默认初始大小
const InitialHashSize = 64

// HashTable 以 String 为键的开放寻址哈希表。
//
// 条目存放在一个 Array 中：第 i 个条目的键在 2i，值在 2i+1。
// 使用线性探测；删除只打墓碑标记，不移动其他条目。
// 表大小始终是 2 的幂，(used+wasted)*4 超过大小时翻倍重建。
type HashTable struct {
	data gc.Cell

	size   int
	used   int
	wasted int

	// skip 墓碑标记，与当前 data 一一对应
	skip []bool
}

// NewHashTable 分配哈希表，size 向上取整到 2 的幂
func NewHashTable(t *gc.Thread, size int) gc.Ref {
	if size < 4 {
		size = 4
	}
	n := 1
	for n < size {
		n <<= 1
	}
	h := &HashTable{size: n, skip: make([]bool, n)}
	t.Init(&h.data, NewArray(t, 2*n))
	return t.New(h)
}

func (h *HashTable) NumFields() int       { return 1 }
func (h *HashTable) Field(i int) *gc.Cell { return &h.data }
func (h *HashTable) Size() uintptr        { return 48 + uintptr(h.size) }

// Len 条目数
func (h *HashTable) Len() int { return h.used }

// Buckets 当前表大小
func (h *HashTable) Buckets() int { return h.size }

func (h *HashTable) entries(t *gc.Thread) *Array {
	return gc.As[*Array](t.Heap(), h.data.Load())
}

// find 查找键 s。
// 找到时返回其下标；否则返回可用于插入的下标（forInsert 时优先复用遇到的第一个墓碑）。
func (h *HashTable) find(t *gc.Thread, a *Array, hash uint64, s string, forInsert bool) (int, bool) {
	mask := h.size - 1
	start := int(hash) & mask
	tomb := -1
	i := start
	for {
		k := a.At(2 * i)
		switch {
		case k == gc.Nil && !h.skip[i]:
			if tomb >= 0 {
				return tomb, false
			}
			return i, false
		case h.skip[i]:
			if forInsert && tomb < 0 {
				tomb = i
			}
		default:
			ks := gc.As[*String](t.Heap(), k)
			if ks.hash == hash && ks.s == s {
				return i, true
			}
		}
		i = (i + 1) & mask
		if i == start {
			return tomb, false
		}
	}
}

// Get 按键对象查找
func (h *HashTable) Get(t *gc.Thread, key gc.Ref) (gc.Ref, bool) {
	k := gc.As[*String](t.Heap(), key)
	return h.Lookup(t, k.s)
}

// Lookup 按字符串内容查找
func (h *HashTable) Lookup(t *gc.Thread, s string) (gc.Ref, bool) {
	a := h.entries(t)
	i, ok := h.find(t, a, HashString(s), s, false)
	if !ok {
		return gc.Nil, false
	}
	return a.At(2*i + 1), true
}

// Contains 是否包含键
func (h *HashTable) Contains(t *gc.Thread, s string) bool {
	_, ok := h.Lookup(t, s)
	return ok
}

// Put 插入或覆盖，返回是否为新键。
// 插入可能触发重建，重建过程中会经过安全点，因此哈希表本身必须被持有。
func (h *HashTable) Put(t *gc.Thread, key, value gc.Ref) bool {
	k := gc.As[*String](t.Heap(), key)
	a := h.entries(t)
	i, found := h.find(t, a, k.hash, k.s, true)
	if i < 0 {
		panic("container: hash table full")
	}
	if found {
		a.Set(t, 2*i+1, value)
		return false
	}
	if h.skip[i] {
		h.skip[i] = false
		h.wasted--
	}
	a.Set(t, 2*i, key)
	a.Set(t, 2*i+1, value)
	h.used++
	if (h.used+h.wasted)*4 > h.size {
		h.grow(t)
	}
	return true
}

// Delete 删除键，返回是否存在
func (h *HashTable) Delete(t *gc.Thread, s string) bool {
	a := h.entries(t)
	i, ok := h.find(t, a, HashString(s), s, false)
	if !ok {
		return false
	}
	h.skip[i] = true
	a.Set(t, 2*i, gc.Nil)
	a.Set(t, 2*i+1, gc.Nil)
	h.used--
	h.wasted++
	return true
}

// grow 翻倍并重新插入全部条目。旧数组在重建期间由根句柄持有。
func (h *HashTable) grow(t *gc.Thread) {
	oldRef := h.data.Load()
	hold := t.NewRoot(oldRef)
	old := gc.As[*Array](t.Heap(), oldRef)
	oldSize := h.size

	h.size <<= 1
	h.used, h.wasted = 0, 0
	h.skip = make([]bool, h.size)
	t.Store(&h.data, NewArray(t, 2*h.size))

	a := h.entries(t)
	for i := 0; i < oldSize; i++ {
		t.Safepoint()
		k := old.At(2 * i)
		if k == gc.Nil {
			continue
		}
		ks := gc.As[*String](t.Heap(), k)
		j, _ := h.find(t, a, ks.hash, ks.s, true)
		a.Set(t, 2*j, k)
		a.Set(t, 2*j+1, old.At(2*i+1))
		h.used++
	}
	hold.Drop()
}
