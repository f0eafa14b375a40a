package gc

// LogAlloc 记录一次分配的字节数。
// 线程本地累计达到 FlushBytes 时汇总到全局计数；全局计数达到 TriggerBytes 时触发回收。
func (t *Thread) LogAlloc(size uintptr) {
	t.pending += int64(size)
	if t.pending >= t.gc.cfg.FlushBytes {
		t.flush()
	}
}

// LogArrayAlloc 记录一次数组分配
func (t *Thread) LogArrayAlloc(elem uintptr, count int) {
	t.LogAlloc(elem * uintptr(count))
}

func (t *Thread) flush() {
	n := t.pending
	if n == 0 {
		return
	}
	t.pending = 0
	t.gc.account(n)
}

// account 汇总分配字节，达到阈值时清零并通知回收器
func (g *GC) account(n int64) {
	limit := g.cfg.TriggerBytes
	total := g.allocated.Add(n)
	if limit <= 0 || total < limit {
		return
	}
	if g.allocated.CAS(total, 0) {
		g.Trigger()
	}
}

// Trigger 请求一次回收。
// dedicated 模式向回收器发送事件（已有未处理事件时合并）；combined 模式设置标志，
// 由线程在下一个安全点处理。
func (g *GC) Trigger() {
	g.triggers.Inc()
	if g.cfg.Combined {
		g.pending.Store(true)
		return
	}
	select {
	case g.events <- struct{}{}:
	default:
	}
}
