package gc

import (
	"fmt"
	"math"

	"go.uber.org/multierr"
	"golang.org/x/sys/cpu"
)

// Config 回收器配置
type Config struct {
	// MaxThreads 线程表大小（同时注册的线程上限）
	MaxThreads int

	// HeapSlots 托管堆槽位数，每个线程槽额外占用 4 个哨兵槽位
	HeapSlots int

	// TriggerBytes 全局分配计数达到该值时触发回收，0 表示只手动回收
	TriggerBytes int64

	// FlushBytes 线程本地分配计数的汇总粒度
	FlushBytes int64

	// Combined 单线程模式：唯一的变更线程同时充当回收器
	Combined bool

	// HandshakeSpin 握手等待时让出处理器前的忙等次数
	HandshakeSpin int
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		MaxThreads:    64,
		HeapSlots:     1 << 20,
		TriggerBytes:  8 << 20,
		FlushBytes:    4 << 10,
		HandshakeSpin: 64,
	}
}

// Validate 检查配置，返回所有问题的合并错误
func (c Config) Validate() error {
	var err error
	if c.MaxThreads < 1 || c.MaxThreads > MaxThreadLimit {
		err = multierr.Append(err, fmt.Errorf("max threads %d out of range [1, %d]", c.MaxThreads, MaxThreadLimit))
	}
	if c.HeapSlots <= 4*c.MaxThreads || c.HeapSlots >= math.MaxInt32 {
		err = multierr.Append(err, fmt.Errorf("heap slots %d out of range (%d, %d)", c.HeapSlots, 4*c.MaxThreads, math.MaxInt32))
	}
	if c.TriggerBytes < 0 {
		err = multierr.Append(err, fmt.Errorf("trigger bytes must not be negative, got %d", c.TriggerBytes))
	}
	if c.FlushBytes <= 0 {
		err = multierr.Append(err, fmt.Errorf("flush bytes must be positive, got %d", c.FlushBytes))
	}
	if c.HandshakeSpin < 0 {
		err = multierr.Append(err, fmt.Errorf("handshake spin must not be negative, got %d", c.HandshakeSpin))
	}
	return err
}

// HardwareDoubleCAS 报告当前 CPU 是否支持 128 位 CAS。
// Cell 的打包编码只需要 64 位原子操作，这里仅用于诊断输出。
func HardwareDoubleCAS() bool {
	return cpu.X86.HasCX16 || cpu.ARM64.HasATOMICS
}
