// pauseless - 并发快照式垃圾回收器的压力测试与演示工具
//
// 用法:
//   pauseless stress [options]     # 多线程压力测试，结束后校验可达性
//   pauseless demo [options]       # 单线程（combined 模式）随机引用演示
//   pauseless config [path]        # 生成默认配置文件

package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"

	"github.com/tangzhangming/pauseless/internal/config"
	"github.com/tangzhangming/pauseless/internal/gc"
)

// 版本信息
const (
	Version = "0.1.0"
	Name    = "pauseless"
)

// 命令行选项
var (
	helpFlag    = flag.Bool("help", false, "显示帮助信息")
	versionFlag = flag.Bool("version", false, "显示版本信息")
	verboseFlag = flag.Bool("verbose", false, "详细输出（开发模式日志，包含每个回收周期）")
	jsonFlag    = flag.Bool("json", false, "以 JSON 输出统计结果")
	configFlag  = flag.String("config", "", "配置文件路径（默认向上查找 "+config.FileName+"）")
)

func main() {
	flag.Usage = usage
	flag.Parse()

	if *helpFlag {
		usage()
		os.Exit(0)
	}

	if *versionFlag {
		fmt.Printf("%s version %s (hardware double CAS: %v)\n", Name, Version, gc.HardwareDoubleCAS())
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	cmd := args[0]
	cmdArgs := args[1:]

	var err error
	switch cmd {
	case "stress":
		err = runStress(cmdArgs)
	case "demo":
		err = runDemo(cmdArgs)
	case "config":
		err = writeConfig(cmdArgs)
	case "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "未知命令: %s\n", cmd)
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `%s - 并发快照式垃圾回收器 v%s

用法:
  %s [全局选项] <命令> [选项]

命令:
  stress    多线程压力测试（dedicated 回收器）
  demo      单线程随机引用演示（combined 模式）
  config    生成默认配置文件
  help      显示帮助信息

全局选项:
`, Name, Version, Name)
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
命令选项:
  -threads N      变更线程数
  -objects N      每个线程维护的对象数
  -duration D     运行时长，如 10s
  -seed N         随机数种子

示例:
  # 8 个线程运行 30 秒
  %s stress -threads 8 -duration 30s

  # 使用指定配置并输出 JSON
  %s -config ./pauseless.toml -json stress

  # 生成配置文件
  %s config ./pauseless.toml
`, Name, Name, Name)
}

// newLogger 根据 -verbose 创建日志记录器
func newLogger() (*zap.Logger, error) {
	if *verboseFlag {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

// loadConfig 读取 -config 指定的配置，未指定时向上查找，找不到则使用默认值
func loadConfig() (*config.File, error) {
	path := *configFlag
	if path == "" {
		path = config.FindConfigFile(".")
	}
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// workloadFlags 解析子命令选项并覆盖配置
func workloadFlags(name string, args []string, f *config.File) error {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	threads := fs.Int("threads", f.Stress.Threads, "变更线程数")
	objects := fs.Int("objects", f.Stress.Objects, "每个线程维护的对象数")
	duration := fs.Duration("duration", time.Duration(f.Stress.Duration), "运行时长")
	seed := fs.Int64("seed", f.Stress.Seed, "随机数种子")
	if err := fs.Parse(args); err != nil {
		return err
	}
	f.Stress.Threads = *threads
	f.Stress.Objects = *objects
	f.Stress.Duration = config.Duration(*duration)
	f.Stress.Seed = *seed
	return f.Validate()
}

// writeConfig 生成默认配置文件
func writeConfig(args []string) error {
	path := config.FileName
	if len(args) > 0 {
		path = args[0]
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("文件已存在: %s", path)
	}
	if err := config.Default().Save(path); err != nil {
		return err
	}
	fmt.Printf("配置已写入: %s\n", path)
	return nil
}

// Report 一次运行的结果
type Report struct {
	Command  string        `json:"command"`
	Elapsed  time.Duration `json:"elapsed_ns"`
	Threads  int           `json:"threads"`
	Mutation uint64        `json:"mutations"`
	Stats    gc.Stats      `json:"stats"`
	Audit    gc.Audit      `json:"audit"`
}

// OK 堆中对象数与可达数一致
func (r *Report) OK() bool {
	return r.Audit.Objects == r.Audit.Reachable &&
		int64(r.Audit.Objects) == r.Audit.Counted &&
		r.Audit.Divergent == 0
}

func printReport(r *Report) error {
	if *jsonFlag {
		data, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		fmt.Println(string(data))
	} else {
		s := r.Stats
		fmt.Printf("%s: %d 个线程，运行 %s，%d 次变更\n", r.Command, r.Threads, r.Elapsed.Round(time.Millisecond), r.Mutation)
		fmt.Printf("  回收周期: %d（触发 %d 次），最长 %s，平均 %s\n",
			s.Cycles, s.Triggers, s.MaxCycle, avg(s.TotalCycle, s.Cycles))
		fmt.Printf("  标记: %d  回收: %d\n", s.TotalMarked, s.TotalFreed)
		fmt.Printf("  堆: %d/%d 槽位，%d 个对象，%d 个根\n", s.UsedSlots, s.HeapSlots, s.Objects, s.Roots)
		fmt.Printf("  校验: 对象 %d，可达 %d，不一致单元 %d\n", r.Audit.Objects, r.Audit.Reachable, r.Audit.Divergent)
	}
	if !r.OK() {
		return fmt.Errorf("heap audit failed: %d objects, %d reachable, %d divergent cells",
			r.Audit.Objects, r.Audit.Reachable, r.Audit.Divergent)
	}
	return nil
}

func avg(total time.Duration, n uint64) time.Duration {
	if n == 0 {
		return 0
	}
	return total / time.Duration(n)
}
