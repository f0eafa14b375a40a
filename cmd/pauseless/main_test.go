package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/tangzhangming/pauseless/internal/config"
)

// smallConfig 写入一个小堆配置并让 -config 指向它
func smallConfig(t *testing.T) {
	t.Helper()
	f := config.Default()
	f.Collector.MaxThreads = 8
	f.Collector.HeapSlots = 1 << 18
	f.Collector.TriggerBytes = 32 << 10
	f.Collector.FlushBytes = 1 << 10
	f.Stress.Threads = 2
	f.Stress.Objects = 64
	f.Stress.Duration = config.Duration(100 * time.Millisecond)

	path := filepath.Join(t.TempDir(), config.FileName)
	if err := f.Save(path); err != nil {
		t.Fatal(err)
	}
	old := *configFlag
	*configFlag = path
	t.Cleanup(func() { *configFlag = old })
}

func TestWorkloadFlagsOverrideConfig(t *testing.T) {
	f := config.Default()
	err := workloadFlags("stress", []string{"-threads", "3", "-duration", "2s"}, f)
	if err != nil {
		t.Fatalf("workloadFlags failed: %v", err)
	}
	if f.Stress.Threads != 3 {
		t.Errorf("Expected 3 threads, got %d", f.Stress.Threads)
	}
	if time.Duration(f.Stress.Duration) != 2*time.Second {
		t.Errorf("Expected 2s, got %s", time.Duration(f.Stress.Duration))
	}
	if f.Stress.Objects != config.Default().Stress.Objects {
		t.Errorf("Unset flag should keep config value, got %d", f.Stress.Objects)
	}

	if err := workloadFlags("stress", []string{"-threads", "0"}, config.Default()); err == nil {
		t.Error("Expected validation error for zero threads")
	}
}

func TestStressPassesAudit(t *testing.T) {
	smallConfig(t)
	if err := runStress(nil); err != nil {
		t.Fatalf("stress failed: %v", err)
	}
}

func TestDemoPassesAudit(t *testing.T) {
	smallConfig(t)
	if err := runDemo([]string{"-objects", "128", "-duration", "50ms"}); err != nil {
		t.Fatalf("demo failed: %v", err)
	}
}

func TestWriteConfigRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), config.FileName)
	if err := writeConfig([]string{path}); err != nil {
		t.Fatalf("writeConfig failed: %v", err)
	}
	if _, err := config.Load(path); err != nil {
		t.Errorf("Written config should load: %v", err)
	}
	if err := writeConfig([]string{path}); err == nil {
		t.Error("Expected error when the file exists")
	}
}
