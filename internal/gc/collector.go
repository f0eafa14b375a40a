// Package gc 实现一个并发（无全局停顿）的快照式追踪垃圾回收器。
//
// 多个注册线程（goroutine）在共享的托管堆上分配对象、修改引用图，
// 回收器与它们并发运行，只在阶段切换时通过短暂的握手同步：
//
//	NotCollecting --StartCollection--> Collecting
//	  标记：沿冻结的快照值从根出发
//	  清除：冻结代中未标记的对象
//	Collecting --EndCollectionStartRestoreSnapshot--> RestoringSnapshot
//	  合并：冻结代拼回活动代（握手期间）
//	  恢复：live 复制到 snapshot
//	RestoringSnapshot --EndSweep--> NotCollecting
//	  释放隔离的槽位
//
// 每个引用单元（Cell）同时保存 live 和 snapshot 两个值。Collecting 期间的写入只改 live，
// 所以标记看到的是回收开始时刻的引用图（snapshot-at-the-beginning）。
//
// 回收器有两种运行方式：
//   - dedicated: Start 启动一个后台 goroutine，由分配计量触发周期
//   - combined: 唯一的注册线程在安全点内联执行周期
package gc

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sys/cpu"
)

// ErrCombined combined 模式下没有后台回收器
var ErrCombined = errors.New("pauseless: collector runs inline in combined mode")

// GC 回收器实例。不同实例之间完全独立。
type GC struct {
	cfg Config
	log *zap.Logger

	pc   *PhaseController
	heap *Heap
	reg  *registry

	_         cpu.CacheLinePad
	allocated atomic.Int64
	_         cpu.CacheLinePad

	// events 容量为 1 的事件通道：多次触发合并为一次
	events chan struct{}
	// pending combined 模式的触发标志
	pending atomic.Bool

	triggers     atomic.Uint64
	participants atomic.Int32

	// mu 串行化回收周期，变更线程从不获取
	mu sync.Mutex

	running atomic.Bool
	stop    chan struct{}
	done    chan struct{}

	statsMu sync.Mutex
	stats   collectorStats
}

// Option 回收器选项
type Option func(*GC)

// WithLogger 设置日志记录器（默认不输出）
func WithLogger(l *zap.Logger) Option {
	return func(g *GC) {
		if l != nil {
			g.log = l
		}
	}
}

// New 创建回收器
func New(cfg Config, opts ...Option) (*GC, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid collector config: %w", err)
	}
	g := &GC{
		cfg:    cfg,
		log:    zap.NewNop(),
		pc:     newPhaseController(cfg.HandshakeSpin),
		heap:   newHeap(cfg.HeapSlots),
		reg:    newRegistry(cfg.MaxThreads),
		events: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.log = g.log.Named("gc")
	return g, nil
}

// Config 返回配置
func (g *GC) Config() Config { return g.cfg }

// Heap 托管堆
func (g *GC) Heap() *Heap { return g.heap }

// Phases 阶段控制器
func (g *GC) Phases() *PhaseController { return g.pc }

// Register 把调用方 goroutine 注册为变更线程，返回时线程处于当前全局阶段
func (g *GC) Register() *Thread {
	if n := g.participants.Inc(); g.cfg.Combined && n > 1 {
		g.participants.Dec()
		fatalf("register", "combined mode allows a single thread")
	}
	i, lists := g.reg.claim(g.heap)
	t := &Thread{gc: g, slot: i, lists: lists}
	t.join(true)
	return t
}

// ============================================================================
// 后台回收器
// ============================================================================

// Start 启动后台回收 goroutine
func (g *GC) Start() error {
	if g.cfg.Combined {
		return ErrCombined
	}
	if !g.running.CAS(false, true) {
		return nil
	}
	g.stop = make(chan struct{})
	g.done = make(chan struct{})
	go g.loop(g.stop, g.done)
	g.log.Info("collector started",
		zap.Int("max_threads", g.cfg.MaxThreads),
		zap.Int("heap_slots", g.cfg.HeapSlots),
		zap.Int64("trigger_bytes", g.cfg.TriggerBytes))
	return nil
}

// Stop 停止后台回收 goroutine。正在进行的周期会先完成。
func (g *GC) Stop() {
	if !g.running.CAS(true, false) {
		return
	}
	close(g.stop)
	<-g.done
	g.log.Info("collector stopped", zap.Uint64("cycles", g.pc.Cycle()))
}

func (g *GC) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		case <-g.events:
			g.Collect()
		}
	}
}

// Collect 同步执行一次回收周期（dedicated 模式）。
// 调用方不能是处于变更状态的注册线程，否则握手永远无法完成；
// 注册线程应使用 Thread.Collect。
func (g *GC) Collect() {
	if g.cfg.Combined {
		fatalf("collect", "use Thread.Collect in combined mode")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.runCycle(nil)
}

// collectInline combined 模式下由线程自身执行周期
func (g *GC) collectInline(self *Thread) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.runCycle(self)
}

// runCycle 执行一个完整周期。self 非空时为 combined 模式。
func (g *GC) runCycle(self *Thread) {
	var cs cycleStats
	start := time.Now()

	g.pc.StartCollection(self)
	cs.cycle = g.pc.Cycle()
	g.log.Debug("cycle start", zap.Uint64("cycle", cs.cycle), zap.Stringer("state", g.pc.Load()))

	t := time.Now()
	cs.marked = g.markAll(cs.cycle)
	cs.mark = time.Since(t)

	t = time.Now()
	cs.sweep = g.sweepAll()
	cs.sweepTime = time.Since(t)

	var spans []span
	g.pc.EndCollectionStartRestoreSnapshot(self, func() {
		spans = g.mergeAll()
	})

	t = time.Now()
	cs.restored = g.restoreAll(spans, self != nil)
	cs.restore = time.Since(t)

	g.pc.EndSweep(self, func() {
		cs.released = g.heap.releaseQuarantine()
	})
	cs.total = time.Since(start)

	g.statsMu.Lock()
	g.stats.record(cs)
	g.statsMu.Unlock()

	g.log.Debug("cycle end",
		zap.Uint64("cycle", cs.cycle),
		zap.Int("marked", cs.marked),
		zap.Int("survived", cs.sweep.survived),
		zap.Int("freed", cs.sweep.freed),
		zap.Int("freed_roots", cs.sweep.freedRoots),
		zap.Int("restored", cs.restored),
		zap.Int("released", cs.released),
		zap.Duration("mark", cs.mark),
		zap.Duration("sweep", cs.sweepTime),
		zap.Duration("restore", cs.restore),
		zap.Duration("total", cs.total))
}

// Stats 返回统计快照
func (g *GC) Stats() Stats {
	g.statsMu.Lock()
	defer g.statsMu.Unlock()
	last := g.stats.last
	return Stats{
		Cycles:         g.pc.Cycle(),
		Triggers:       g.triggers.Load(),
		HeapSlots:      g.heap.Cap(),
		UsedSlots:      g.heap.Used(),
		Objects:        g.heap.Objects(),
		Roots:          g.heap.Roots(),
		Threads:        g.reg.claimed(),
		TotalMarked:    g.stats.totalMarked.Load(),
		TotalFreed:     g.stats.totalFreed.Load(),
		LastMarked:     last.marked,
		LastFreed:      last.sweep.freed,
		LastFreedRoots: last.sweep.freedRoots,
		LastRestored:   last.restored,
		LastCycle:      last.total,
		LastMark:       last.mark,
		LastSweep:      last.sweepTime,
		LastRestore:    last.restore,
		MaxCycle:       g.stats.maxCycle,
		TotalCycle:     g.stats.total,
	}
}
