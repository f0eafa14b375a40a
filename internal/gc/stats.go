package gc

import (
	"time"

	"go.uber.org/atomic"
)

// Stats 回收统计快照
type Stats struct {
	Cycles   uint64 `json:"cycles"`
	Triggers uint64 `json:"triggers"`

	HeapSlots int   `json:"heap_slots"`
	UsedSlots int64 `json:"used_slots"`
	Objects   int64 `json:"objects"`
	Roots     int64 `json:"roots"`
	Threads   int   `json:"threads"`

	TotalMarked uint64 `json:"total_marked"`
	TotalFreed  uint64 `json:"total_freed"`

	LastMarked     int `json:"last_marked"`
	LastFreed      int `json:"last_freed"`
	LastFreedRoots int `json:"last_freed_roots"`
	LastRestored   int `json:"last_restored"`

	LastCycle   time.Duration `json:"last_cycle_ns"`
	LastMark    time.Duration `json:"last_mark_ns"`
	LastSweep   time.Duration `json:"last_sweep_ns"`
	LastRestore time.Duration `json:"last_restore_ns"`
	MaxCycle    time.Duration `json:"max_cycle_ns"`
	TotalCycle  time.Duration `json:"total_cycle_ns"`
}

// cycleStats 一次周期的结果
type cycleStats struct {
	cycle    uint64
	marked   int
	sweep    sweepResult
	restored int
	released int

	mark, sweepTime, restore, total time.Duration
}

// collectorStats 回收器累计统计，只由持有周期锁的一方写入
type collectorStats struct {
	totalMarked atomic.Uint64
	totalFreed  atomic.Uint64

	last     cycleStats
	maxCycle time.Duration
	total    time.Duration
}

func (cs *collectorStats) record(c cycleStats) {
	cs.totalMarked.Add(uint64(c.marked))
	cs.totalFreed.Add(uint64(c.sweep.freed))
	cs.last = c
	cs.total += c.total
	if c.total > cs.maxCycle {
		cs.maxCycle = c.total
	}
}
