package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/zoeyai/pointsight/pkg/vision/cv"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Capture.Rate != 1.0 {
		t.Errorf("默认采集频率应为 1.0, 实际为 %v", config.Capture.Rate)
	}
	if config.Capture.UseROI {
		t.Error("默认不应启用 ROI")
	}
	if config.Capture.ROI != [4]int{0, 0, 800, 600} {
		t.Errorf("默认 ROI 错误: %v", config.Capture.ROI)
	}
	if config.MatchMethod() != cv.MatchMethodTemplate {
		t.Errorf("默认匹配方法应为 template_matching, 实际为 %s", config.Matching.Method)
	}
	if config.Matching.Threshold != 0.8 {
		t.Errorf("默认阈值应为 0.8, 实际为 %v", config.Matching.Threshold)
	}
	if config.Cursor.Speed != 5.0 || !config.Cursor.Smooth {
		t.Errorf("默认光标配置错误: %+v", config.Cursor)
	}
	if fixed := config.Normalize(); len(fixed) != 0 {
		t.Errorf("默认配置不应被修正: %v", fixed)
	}
}

func TestNormalize(t *testing.T) {
	config := DefaultConfig()
	config.Capture.Rate = 120
	config.Capture.ROI = [4]int{10, 10, -5, 20}
	config.Matching.Method = " Feature_Matching "
	config.Matching.Threshold = 0.01
	config.Cursor.Speed = 0
	config.Application.ActiveTargetIDs = nil
	config.Application.TargetsFile = ""

	fixed := config.Normalize()
	if len(fixed) != 6 {
		t.Errorf("应修正 6 个字段, 实际 %v", fixed)
	}
	if config.Capture.Rate != MaxCaptureRate {
		t.Errorf("采集频率应收敛为 %v, 实际 %v", MaxCaptureRate, config.Capture.Rate)
	}
	if config.Capture.ROI[2] != 0 {
		t.Errorf("负宽度应修正为 0: %v", config.Capture.ROI)
	}
	if config.MatchMethod() != cv.MatchMethodFeature || config.Matching.Method != "feature_matching" {
		t.Errorf("匹配方法应规范化: %q", config.Matching.Method)
	}
	if config.Matching.Threshold != MinThreshold {
		t.Errorf("阈值应收敛为 %v, 实际 %v", MinThreshold, config.Matching.Threshold)
	}
	if config.Cursor.Speed != MinCursorSpeed {
		t.Errorf("速度应收敛为 %v, 实际 %v", MinCursorSpeed, config.Cursor.Speed)
	}
	if config.Application.ActiveTargetIDs == nil {
		t.Error("ActiveTargetIDs 不应为 nil")
	}
	if config.Application.TargetsFile != "targets.pb" {
		t.Errorf("TargetsFile 应恢复默认值: %q", config.Application.TargetsFile)
	}
}

func TestNormalizeUnknownMethod(t *testing.T) {
	config := DefaultConfig()
	config.Matching.Method = "sift"
	config.Normalize()
	if config.Matching.Method != string(cv.MatchMethodTemplate) {
		t.Errorf("未知方法应回退为 template_matching, 实际 %q", config.Matching.Method)
	}
}

func TestROIRect(t *testing.T) {
	c := CaptureConfig{UseROI: true, ROI: [4]int{10, 20, 100, 50}}
	r := c.ROIRect()
	if r.Min.X != 10 || r.Min.Y != 20 || r.Dx() != 100 || r.Dy() != 50 {
		t.Errorf("ROIRect 错误: %v", r)
	}

	c.UseROI = false
	if !c.ROIRect().Empty() {
		t.Error("未启用 ROI 时应返回空矩形")
	}

	c = CaptureConfig{UseROI: true, ROI: [4]int{0, 0, 0, 10}}
	if !c.ROIRect().Empty() {
		t.Error("零宽 ROI 应返回空矩形")
	}
}

func TestManagerSaveAndLoad(t *testing.T) {
	tempDir := t.TempDir()
	manager := NewManagerWithDir(tempDir)

	if manager.Exists() {
		t.Error("初始时配置文件不应存在")
	}

	config := DefaultConfig()
	config.Capture.Rate = 5
	config.Capture.UseROI = true
	config.Capture.ROI = [4]int{100, 200, 300, 400}
	config.Matching.Method = string(cv.MatchMethodFeature)
	config.Matching.Threshold = 0.6
	config.Cursor.Smooth = false
	config.Application.ActiveTargetIDs = []string{"a", "b"}

	if err := manager.Save(config); err != nil {
		t.Fatalf("保存配置失败: %v", err)
	}
	if !manager.Exists() {
		t.Error("保存后配置文件应存在")
	}

	loaded, err := manager.Load()
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}

	if loaded.Capture != config.Capture {
		t.Errorf("Capture 不匹配: 期望 %+v, 实际 %+v", config.Capture, loaded.Capture)
	}
	if loaded.Matching != config.Matching {
		t.Errorf("Matching 不匹配: 期望 %+v, 实际 %+v", config.Matching, loaded.Matching)
	}
	if loaded.Cursor != config.Cursor {
		t.Errorf("Cursor 不匹配: 期望 %+v, 实际 %+v", config.Cursor, loaded.Cursor)
	}
	if len(loaded.Application.ActiveTargetIDs) != 2 || loaded.Application.ActiveTargetIDs[1] != "b" {
		t.Errorf("ActiveTargetIDs 不匹配: %v", loaded.Application.ActiveTargetIDs)
	}
}

func TestManagerLoadMergesDefaults(t *testing.T) {
	tempDir := t.TempDir()
	manager := NewManagerWithDir(tempDir)

	partial := `{"matching": {"threshold": 2.5}, "cursor": {"speed": 8}}`
	if err := os.WriteFile(manager.GetConfigFile(), []byte(partial), 0600); err != nil {
		t.Fatalf("创建测试文件失败: %v", err)
	}

	config, err := manager.Load()
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}

	if config.Matching.Threshold != MaxThreshold {
		t.Errorf("越界阈值应被收敛为 %v, 实际 %v", MaxThreshold, config.Matching.Threshold)
	}
	if config.Matching.Method != string(cv.MatchMethodTemplate) {
		t.Errorf("缺失的 method 应保留默认值, 实际 %q", config.Matching.Method)
	}
	if config.Cursor.Speed != 8 || !config.Cursor.Smooth {
		t.Errorf("Cursor 合并错误: %+v", config.Cursor)
	}
	if config.Capture.Rate != 1.0 {
		t.Errorf("缺失的 capture 段应保留默认值: %+v", config.Capture)
	}
}

func TestManagerClear(t *testing.T) {
	tempDir := t.TempDir()
	manager := NewManagerWithDir(tempDir)

	if err := manager.Save(DefaultConfig()); err != nil {
		t.Fatalf("保存配置失败: %v", err)
	}
	if !manager.Exists() {
		t.Fatal("保存后配置文件应存在")
	}

	if err := manager.Clear(); err != nil {
		t.Fatalf("清除配置失败: %v", err)
	}
	if manager.Exists() {
		t.Error("清除后配置文件不应存在")
	}

	// 清除不存在的文件不应报错
	if err := manager.Clear(); err != nil {
		t.Errorf("清除不存在的配置不应报错: %v", err)
	}
}

func TestManagerLoadNonExistent(t *testing.T) {
	manager := NewManagerWithDir(t.TempDir())

	config, err := manager.Load()
	if err != nil {
		t.Fatalf("加载不存在的配置不应报错: %v", err)
	}
	if config.Matching.Threshold != DefaultConfig().Matching.Threshold {
		t.Errorf("应返回默认配置")
	}
}

func TestManagerLoadCorruptedFile(t *testing.T) {
	tempDir := t.TempDir()
	manager := NewManagerWithDir(tempDir)

	configFile := filepath.Join(tempDir, "config.json")
	if err := os.WriteFile(configFile, []byte("not valid json"), 0600); err != nil {
		t.Fatalf("创建测试文件失败: %v", err)
	}

	config, err := manager.Load()
	if err == nil {
		t.Error("加载损坏的配置应返回错误")
	}
	if config == nil {
		t.Fatal("即使出错也应返回默认配置")
	}
	if config.Capture.Rate != 1.0 {
		t.Errorf("出错时应返回默认配置: %+v", config.Capture)
	}

	t.Logf("加载损坏配置的错误: %v", err)
}

func TestManagerPaths(t *testing.T) {
	tempDir := t.TempDir()
	manager := NewManagerWithDir(tempDir)

	if manager.GetConfigDir() != tempDir {
		t.Errorf("GetConfigDir 应为 %s", tempDir)
	}
	if manager.GetConfigFile() != filepath.Join(tempDir, "config.json") {
		t.Errorf("GetConfigFile 错误: %s", manager.GetConfigFile())
	}

	config := DefaultConfig()
	if got := manager.TargetsPath(config); got != filepath.Join(tempDir, "targets.pb") {
		t.Errorf("相对 TargetsFile 应基于配置目录: %s", got)
	}

	abs := filepath.Join(t.TempDir(), "other.pb")
	config.Application.TargetsFile = abs
	if got := manager.TargetsPath(config); got != abs {
		t.Errorf("绝对路径应原样返回: %s", got)
	}
}

func TestDefaultManager(t *testing.T) {
	manager := GetDefaultManager()
	if manager == nil {
		t.Fatal("GetDefaultManager 返回 nil")
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("无法获取用户目录: %v", err)
	}
	expectedDir := filepath.Join(homeDir, ".pointsight")
	if manager.GetConfigDir() != expectedDir {
		t.Errorf("默认配置目录应为 %s, 实际为 %s", expectedDir, manager.GetConfigDir())
	}
}

func TestConfigFilePermissions(t *testing.T) {
	manager := NewManagerWithDir(t.TempDir())

	if err := manager.Save(DefaultConfig()); err != nil {
		t.Fatalf("保存配置失败: %v", err)
	}

	info, err := os.Stat(manager.GetConfigFile())
	if err != nil {
		t.Fatalf("获取文件信息失败: %v", err)
	}

	// 在某些系统上权限可能略有不同
	if perm := info.Mode().Perm(); perm&0077 != 0 {
		t.Logf("警告: 配置文件权限为 %o", perm)
	}
}

func BenchmarkSaveLoad(b *testing.B) {
	manager := NewManagerWithDir(b.TempDir())
	config := DefaultConfig()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		manager.Save(config)
		manager.Load()
	}
}
