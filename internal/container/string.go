package container

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"

	"github.com/tangzhangming/pauseless/internal/gc"
)

// String 不可变字符串对象，没有引用字段
type String struct {
	s    string
	hash uint64
}

// NewString 分配字符串对象
func NewString(t *gc.Thread, s string) gc.Ref {
	return t.New(&String{s: s, hash: HashString(s)})
}

// HashString 内容哈希：BLAKE2b-256 摘要的前 8 字节
func HashString(s string) uint64 {
	sum := blake2b.Sum256([]byte(s))
	return binary.LittleEndian.Uint64(sum[:8])
}

func (s *String) NumFields() int       { return 0 }
func (s *String) Field(i int) *gc.Cell { return nil }
func (s *String) Size() uintptr        { return 32 + uintptr(len(s.s)) }

// Value 字符串内容
func (s *String) Value() string { return s.s }

// Hash 内容哈希
func (s *String) Hash() uint64 { return s.hash }

func (s *String) String() string { return s.s }
