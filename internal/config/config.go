// Package config 读写 pauseless.toml 配置文件
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"go.uber.org/multierr"

	"github.com/tangzhangming/pauseless/internal/gc"
)

// 常量定义
const (
	FileName = "pauseless.toml" // 配置文件名
)

// File 配置文件
type File struct {
	Collector CollectorSection `toml:"collector"`
	Stress    StressSection    `toml:"stress"`
}

// CollectorSection 回收器配置
type CollectorSection struct {
	// MaxThreads 同时注册的线程上限
	MaxThreads int `toml:"max_threads"`

	// HeapSlots 托管堆槽位数
	HeapSlots int `toml:"heap_slots"`

	// TriggerBytes 触发回收的分配字节数（0 表示只手动回收）
	TriggerBytes int64 `toml:"trigger_bytes"`

	// FlushBytes 线程本地分配计数的汇总粒度
	FlushBytes int64 `toml:"flush_bytes"`

	// Combined 单线程模式
	Combined bool `toml:"combined"`

	// HandshakeSpin 握手时让出处理器前的忙等次数
	HandshakeSpin int `toml:"handshake_spin"`
}

// StressSection 压力测试参数
type StressSection struct {
	Threads  int      `toml:"threads"`
	Objects  int      `toml:"objects"`
	Duration Duration `toml:"duration"`
	Seed     int64    `toml:"seed"`
}

// Duration 以 "10s"、"1m30s" 形式书写的时长
type Duration time.Duration

// UnmarshalText 解析时长字符串
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", b, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalText 输出时长字符串
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Default 默认配置
func Default() *File {
	c := gc.DefaultConfig()
	return &File{
		Collector: CollectorSection{
			MaxThreads:    c.MaxThreads,
			HeapSlots:     c.HeapSlots,
			TriggerBytes:  c.TriggerBytes,
			FlushBytes:    c.FlushBytes,
			Combined:      c.Combined,
			HandshakeSpin: c.HandshakeSpin,
		},
		Stress: StressSection{
			Threads:  4,
			Objects:  1024,
			Duration: Duration(5 * time.Second),
			Seed:     1,
		},
	}
}

// Load 从文件加载配置。文件中未出现的键保留默认值，未知的键视为错误。
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse 解析配置内容并校验
func Parse(data []byte) (*File, error) {
	f := Default()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(f); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return f, nil
}

// Validate 检查配置，返回所有问题
func (f *File) Validate() error {
	err := f.Collector.gc().Validate()
	if f.Stress.Threads < 1 {
		err = multierr.Append(err, fmt.Errorf("stress threads must be positive, got %d", f.Stress.Threads))
	}
	if f.Stress.Objects < 1 {
		err = multierr.Append(err, fmt.Errorf("stress objects must be positive, got %d", f.Stress.Objects))
	}
	if f.Stress.Duration <= 0 {
		err = multierr.Append(err, fmt.Errorf("stress duration must be positive, got %s", time.Duration(f.Stress.Duration)))
	}
	return err
}

// GC 转换为回收器配置
func (f *File) GC() gc.Config {
	return f.Collector.gc()
}

func (c CollectorSection) gc() gc.Config {
	return gc.Config{
		MaxThreads:    c.MaxThreads,
		HeapSlots:     c.HeapSlots,
		TriggerBytes:  c.TriggerBytes,
		FlushBytes:    c.FlushBytes,
		Combined:      c.Combined,
		HandshakeSpin: c.HandshakeSpin,
	}
}

// Save 保存配置到文件
func (f *File) Save(path string) error {
	content, err := f.render()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// render 生成带注释的配置文件内容。
// 每个值先用 toml 编码，保证字符串和时长的转义与解析一致。
func (f *File) render() (string, error) {
	var sb strings.Builder
	var err error
	entry := func(comment, key string, v interface{}) {
		b, e := toml.Marshal(map[string]interface{}{key: v})
		if e != nil {
			err = multierr.Append(err, fmt.Errorf("failed to encode %s: %w", key, e))
			return
		}
		sb.WriteString("# " + comment + "\n")
		sb.Write(b)
		sb.WriteString("\n")
	}

	sb.WriteString("[collector]\n")
	entry("同时注册的线程上限", "max_threads", f.Collector.MaxThreads)
	entry("托管堆槽位数（每个线程额外占用 4 个哨兵槽位）", "heap_slots", f.Collector.HeapSlots)
	entry("分配达到该字节数时触发回收，0 表示只手动回收", "trigger_bytes", f.Collector.TriggerBytes)
	entry("线程本地分配计数的汇总粒度", "flush_bytes", f.Collector.FlushBytes)
	entry("单线程模式：变更线程在安全点内联执行回收", "combined", f.Collector.Combined)
	entry("握手等待时让出处理器前的忙等次数", "handshake_spin", f.Collector.HandshakeSpin)

	sb.WriteString("[stress]\n")
	entry("变更线程数", "threads", f.Stress.Threads)
	entry("每个线程维护的对象数", "objects", f.Stress.Objects)
	entry("运行时长", "duration", f.Stress.Duration)
	entry("随机数种子", "seed", f.Stress.Seed)

	if err != nil {
		return "", err
	}
	return sb.String(), nil
}

// FindConfigFile 从指定路径向上查找配置文件，找不到时返回空字符串
func FindConfigFile(startPath string) string {
	info, err := os.Stat(startPath)
	if err != nil {
		return ""
	}

	dir := startPath
	if !info.IsDir() {
		dir = filepath.Dir(startPath)
	}
	dir, err = filepath.Abs(dir)
	if err != nil {
		return ""
	}

	for {
		p := filepath.Join(dir, FileName)
		if _, err := os.Stat(p); err == nil {
			return p
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
