package gc

// barrierFunc 写屏障：把 r 写入单元 c
type barrierFunc func(c *Cell, r Ref)

func doubleStoreBarrier(c *Cell, r Ref) { c.doubleStore(r) }

func singleStoreBarrier(c *Cell, r Ref) { c.singleStore(r) }

func notMutatingBarrier(_ *Cell, _ Ref) {
	fatalf("store", "store while not mutating")
}

// barrierFor 返回线程阶段 p 对应的写屏障
func barrierFor(p Phase) barrierFunc {
	switch p {
	case Collecting:
		return singleStoreBarrier
	case NotCollecting, RestoringSnapshot:
		return doubleStoreBarrier
	default:
		return notMutatingBarrier
	}
}
