package gc

import "fmt"

// ProtocolError 回收协议违例。
//
// 协议违例是编程错误而不是可恢复的条件：它总是以 panic 的形式抛出，
// 从不作为返回值跨越回收器边界。
type ProtocolError struct {
	Op  string // 触发违例的操作
	Msg string
}

func (e *ProtocolError) Error() string {
	return "pauseless: " + e.Op + ": " + e.Msg
}

func fatalf(op, format string, args ...interface{}) {
	panic(&ProtocolError{Op: op, Msg: fmt.Sprintf(format, args...)})
}

func assert(cond bool, op, format string, args ...interface{}) {
	if !cond {
		fatalf(op, format, args...)
	}
}
