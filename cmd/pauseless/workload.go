package main

import (
	"fmt"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/tangzhangming/pauseless/internal/container"
	"github.com/tangzhangming/pauseless/internal/gc"
)

// pair 两个引用字段的随机图节点
type pair struct {
	first  gc.Cell
	second gc.Cell
}

func (p *pair) NumFields() int { return 2 }

func (p *pair) Field(i int) *gc.Cell {
	if i == 0 {
		return &p.first
	}
	return &p.second
}

// finalized 被回收的 pair 数
var finalized atomic.Uint64

func (p *pair) Finalize() { finalized.Inc() }

// ============================================================================
// stress
// ============================================================================

// runStress 多个变更线程在共享数组和各自的哈希表上随机修改引用，
// dedicated 回收器按分配量触发。结束后做一次完整回收并校验可达性。
func runStress(args []string) error {
	f, err := loadConfig()
	if err != nil {
		return err
	}
	if err := workloadFlags("stress", args, f); err != nil {
		return err
	}
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	cfg := f.GC()
	cfg.Combined = false
	if cfg.MaxThreads <= f.Stress.Threads {
		cfg.MaxThreads = f.Stress.Threads + 1
	}
	g, err := gc.New(cfg, gc.WithLogger(log))
	if err != nil {
		return err
	}
	if err := g.Start(); err != nil {
		return err
	}

	host := g.Register()
	shared := container.NewArray(host, f.Stress.Objects)
	host.NewRoot(shared)
	host.LeaveMutation()

	start := time.Now()
	deadline := start.Add(time.Duration(f.Stress.Duration))
	var mutations atomic.Uint64
	var wg sync.WaitGroup
	for i := 0; i < f.Stress.Threads; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			mutate(g, shared, f.Stress.Objects, rand.New(rand.NewSource(seed)), deadline, &mutations)
		}(f.Stress.Seed + int64(i))
	}
	wg.Wait()
	elapsed := time.Since(start)
	g.Stop()

	g.Collect()
	report := &Report{
		Command:  "stress",
		Elapsed:  elapsed,
		Threads:  f.Stress.Threads,
		Mutation: mutations.Load(),
		Stats:    g.Stats(),
		Audit:    g.Audit(),
	}
	host.EnterMutation()
	host.Exit()

	log.Info("stress finished",
		zap.Uint64("mutations", report.Mutation),
		zap.Uint64("finalized", finalized.Load()),
		zap.Int("reachable", report.Audit.Reachable))
	return printReport(report)
}

// mutate 单个变更线程的工作循环
func mutate(g *gc.GC, shared gc.Ref, objects int, rnd *rand.Rand, deadline time.Time, mutations *atomic.Uint64) {
	th := g.Register()
	defer th.Exit()

	table := container.NewHashTable(th, 16)
	hold := th.NewRoot(table)
	defer hold.Drop()
	arr := gc.As[*container.Array](th.Heap(), shared)

	for i := 0; time.Now().Before(deadline); i++ {
		n := th.New(&pair{})
		p := gc.As[*pair](th.Heap(), n)
		th.Store(&p.first, arr.At(rnd.Intn(arr.Len())))
		th.Store(&p.second, n)

		switch rnd.Intn(8) {
		case 0:
			key := fmt.Sprintf("k%d", rnd.Intn(objects))
			gc.As[*container.HashTable](th.Heap(), table).Put(th, container.NewString(th, key), n)
		case 1:
			key := fmt.Sprintf("k%d", rnd.Intn(objects))
			gc.As[*container.HashTable](th.Heap(), table).Delete(th, key)
		case 2:
			arr.Set(th, rnd.Intn(arr.Len()), gc.Nil)
		default:
			arr.Set(th, rnd.Intn(arr.Len()), n)
		}
		mutations.Inc()
		th.Safepoint()

		if i%1024 == 0 {
			th.LeaveMutation()
			runtime.Gosched()
			th.EnterMutation()
		}
	}
}

// ============================================================================
// demo
// ============================================================================

// runDemo 单线程随机图：每个根指向一个 pair，反复随机连接，再替换一半的根。
// 线程在自己的安全点上内联执行回收。
func runDemo(args []string) error {
	f, err := loadConfig()
	if err != nil {
		return err
	}
	if err := workloadFlags("demo", args, f); err != nil {
		return err
	}
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	cfg := f.GC()
	cfg.Combined = true
	g, err := gc.New(cfg, gc.WithLogger(log))
	if err != nil {
		return err
	}
	th := g.Register()
	defer th.Exit()

	rnd := rand.New(rand.NewSource(f.Stress.Seed))
	n := f.Stress.Objects
	bunch := make([]*gc.Root, n)
	for i := range bunch {
		th.Safepoint()
		bunch[i] = th.NewRoot(th.New(&pair{}))
	}

	start := time.Now()
	deadline := start.Add(time.Duration(f.Stress.Duration))
	var mutations uint64
	for rounds := 0; time.Now().Before(deadline); rounds++ {
		for i := range bunch {
			th.Safepoint()
			p := gc.As[*pair](th.Heap(), bunch[i].Get())
			th.Store(&p.first, bunch[rnd.Intn(n)].Get())
			th.Store(&p.second, bunch[rnd.Intn(n)].Get())
			mutations += 2
		}
		for i := 0; i < n/2; i++ {
			th.Safepoint()
			bunch[i].Set(th.New(&pair{}))
			mutations++
		}
		log.Debug("demo round", zap.Int("round", rounds), zap.Uint64("finalized", finalized.Load()))
	}
	elapsed := time.Since(start)

	th.Collect()
	th.LeaveMutation()
	report := &Report{
		Command:  "demo",
		Elapsed:  elapsed,
		Threads:  1,
		Mutation: mutations,
		Stats:    g.Stats(),
		Audit:    g.Audit(),
	}
	th.EnterMutation()
	return printReport(report)
}
