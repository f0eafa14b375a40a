// Package ring 实现基于下标的侵入式循环双向链表。
//
// 节点存放在调用方提供的 Arena 中，链接是 uint32 下标而不是指针。
// 每条链表都有一个哨兵节点，空链表即哨兵自环。插入、摘除、整表拼接都是 O(1)。
//
// 本包不做同步：同一条链表在同一时刻只能被一方修改。
package ring

// Node 链表节点（嵌入到 Arena 的元素中）
type Node struct {
	prev     uint32
	next     uint32
	sentinel bool
}

// Prev 前驱下标
func (n *Node) Prev() uint32 { return n.prev }

// Next 后继下标
func (n *Node) Next() uint32 { return n.next }

// Sentinel 是否为哨兵
func (n *Node) Sentinel() bool { return n.sentinel }

// Arena 节点存储
type Arena interface {
	Node(i uint32) *Node
}

// Init 将 s 初始化为空链表的哨兵
func Init(a Arena, s uint32) {
	n := a.Node(s)
	n.prev, n.next, n.sentinel = s, s, true
}

// Empty 判断以 s 为哨兵的链表是否为空
func Empty(a Arena, s uint32) bool {
	return a.Node(s).next == s
}

// InsertAfter 将 i 插入到 at 之后
func InsertAfter(a Arena, at, i uint32) {
	an := a.Node(at)
	n := a.Node(i)
	n.sentinel = false
	n.prev = at
	n.next = an.next
	a.Node(an.next).prev = i
	an.next = i
}

// InsertBefore 将 i 插入到 at 之前
func InsertBefore(a Arena, at, i uint32) {
	InsertAfter(a, a.Node(at).prev, i)
}

// Unlink 将 i 从所在链表摘除，摘除后 i 自环
func Unlink(a Arena, i uint32) {
	n := a.Node(i)
	a.Node(n.prev).next = n.next
	a.Node(n.next).prev = n.prev
	n.prev, n.next = i, i
}

// Splice 将 src 链表的全部节点整体移动到 dst 哨兵之后，src 变为空表。
// 返回被移动区间的首尾节点；src 为空时 ok 为 false。
func Splice(a Arena, src, dst uint32) (first, last uint32, ok bool) {
	sn := a.Node(src)
	dn := a.Node(dst)
	if !sn.sentinel || !dn.sentinel {
		panic("ring: splice endpoints must be sentinels")
	}
	if sn.next == src {
		return 0, 0, false
	}
	first, last = sn.next, sn.prev

	a.Node(first).prev = dst
	a.Node(last).next = dn.next
	a.Node(dn.next).prev = last
	dn.next = first

	sn.next, sn.prev = src, src
	return first, last, true
}

// Len 统计链表长度（O(n)）
func Len(a Arena, s uint32) int {
	n := 0
	for i := a.Node(s).next; i != s; i = a.Node(i).next {
		n++
	}
	return n
}

// Cursor 链表游标。
// 游标预先记录后继，因此可以摘除当前节点后继续前进。
type Cursor struct {
	a    Arena
	s    uint32
	cur  uint32
	next uint32
}

// Iterate 返回位于哨兵 s 上的游标，第一次 Next 后指向首个节点
func Iterate(a Arena, s uint32) *Cursor {
	return &Cursor{a: a, s: s, cur: s, next: a.Node(s).next}
}

// Next 前进到下一个节点，回到哨兵时返回 false
func (c *Cursor) Next() bool {
	c.cur = c.next
	if c.cur == c.s {
		return false
	}
	c.next = c.a.Node(c.cur).next
	return true
}

// Index 当前节点下标
func (c *Cursor) Index() uint32 {
	return c.cur
}

// Remove 摘除当前节点，之后仍可调用 Next
func (c *Cursor) Remove() {
	if c.cur == c.s {
		panic("ring: cannot remove sentinel through cursor")
	}
	Unlink(c.a, c.cur)
}
