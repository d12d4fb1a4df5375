package main

import (
	"bytes"
	"flag"
	"image"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gocv.io/x/gocv"

	"github.com/zoeyai/pointsight/internal/logger"
	"github.com/zoeyai/pointsight/pkg/config"
	"github.com/zoeyai/pointsight/pkg/target"
	"github.com/zoeyai/pointsight/pkg/vision/cv"
)

func TestParseRect(t *testing.T) {
	r, err := parseRect("10, 20,30,40")
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if r != image.Rect(10, 20, 40, 60) {
		t.Errorf("区域错误: %v", r)
	}

	for _, bad := range []string{"", "1,2,3", "a,b,c,d", "0,0,0,10", "0,0,10,-1"} {
		if _, err := parseRect(bad); err == nil {
			t.Errorf("parseRect(%q) 应返回错误", bad)
		}
	}
}

func TestApplyOverrides(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	o, set, err := parseFlags(fs, []string{
		"-method", "feature_matching",
		"-threshold", "0.7",
		"-roi", "0,0,640,480",
		"-smooth=false",
	})
	if err != nil {
		t.Fatalf("解析参数失败: %v", err)
	}

	cfg := config.DefaultConfig()
	if err := applyOverrides(cfg, o, set); err != nil {
		t.Fatalf("应用参数失败: %v", err)
	}

	if cfg.MatchMethod() != cv.MatchMethodFeature {
		t.Errorf("method 未生效: %s", cfg.Matching.Method)
	}
	if cfg.Matching.Threshold != 0.7 {
		t.Errorf("threshold 未生效: %v", cfg.Matching.Threshold)
	}
	if !cfg.Capture.UseROI || cfg.Capture.ROI != [4]int{0, 0, 640, 480} {
		t.Errorf("roi 未生效: %+v", cfg.Capture)
	}
	if cfg.Cursor.Smooth {
		t.Error("smooth 未生效")
	}
	// 未显式设置的参数保持配置值
	if cfg.Cursor.Speed != 5.0 || cfg.Capture.Rate != 1.0 || !cfg.Application.FollowCursor {
		t.Errorf("未设置的参数不应覆盖配置: %+v %+v", cfg.Cursor, cfg.Capture)
	}
}

func TestApplyOverridesErrors(t *testing.T) {
	tests := [][]string{
		{"-method", "sift"},
		{"-roi", "1,2"},
	}
	for _, args := range tests {
		fs := flag.NewFlagSet("test", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		o, set, err := parseFlags(fs, args)
		if err != nil {
			t.Fatalf("解析参数失败: %v", err)
		}
		if err := applyOverrides(config.DefaultConfig(), o, set); err == nil {
			t.Errorf("%v 应返回错误", args)
		}
	}
}

func TestRoiFull(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	o, set, _ := parseFlags(fs, []string{"-roi", "full"})

	cfg := config.DefaultConfig()
	cfg.Capture.UseROI = true
	if err := applyOverrides(cfg, o, set); err != nil {
		t.Fatalf("应用参数失败: %v", err)
	}
	if cfg.Capture.UseROI {
		t.Error("-roi full 应关闭 ROI")
	}
}

func newTestApp(t *testing.T) *app {
	t.Helper()
	dir := t.TempDir()
	mgr := config.NewManagerWithDir(dir)
	store := target.NewStore(filepath.Join(dir, "targets.pb"))
	t.Cleanup(store.Close)
	extractor := cv.NewFeatureExtractor(cv.DefaultORBConfig())
	t.Cleanup(extractor.Close)

	return &app{
		cfg:       config.DefaultConfig(),
		mgr:       mgr,
		store:     store,
		extractor: extractor,
		log:       logger.NewWithWriter(io.Discard),
	}
}

func TestListTargetsEmpty(t *testing.T) {
	a := newTestApp(t)
	var buf bytes.Buffer
	if err := a.listTargets(&buf); err != nil {
		t.Fatalf("列出目标失败: %v", err)
	}
	if !strings.Contains(buf.String(), "目标库为空") {
		t.Errorf("空库输出错误: %q", buf.String())
	}
}

func TestAddTargetRequiresRect(t *testing.T) {
	a := newTestApp(t)
	if err := a.addTarget("x", "shot.png", ""); err == nil {
		t.Error("缺少 -rect 应返回错误")
	}
	if err := a.addTarget("x", filepath.Join(t.TempDir(), "missing.png"), "0,0,10,10"); err == nil {
		t.Error("截图文件不存在应返回错误")
	}
}

func TestMatchImageWithoutActiveTargets(t *testing.T) {
	a := newTestApp(t)
	if err := a.matchImage(filepath.Join(t.TempDir(), "missing.png"), ""); err == nil {
		t.Error("图片不存在应返回错误")
	}
}

func TestSetActiveSyncsConfig(t *testing.T) {
	a := newTestApp(t)

	if err := a.setActive("nothing", true); err == nil {
		t.Error("不存在的目标应返回错误")
	}
	if a.mgr.Exists() {
		t.Error("失败的操作不应写入配置")
	}
}

func TestTargetCommandsRoundTrip(t *testing.T) {
	a := newTestApp(t)
	dir := t.TempDir()

	rng := rand.New(rand.NewSource(7))
	data := make([]byte, 200*150*3)
	for i := range data {
		data[i] = byte(60 + rng.Intn(130))
	}
	shot, err := cv.NewMatFromBytesCopy(150, 200, gocv.MatTypeCV8UC3, data)
	if err != nil {
		t.Fatalf("创建截图失败: %v", err)
	}
	defer shot.Close()

	shotPath := filepath.Join(dir, "shot.png")
	if err := cv.WriteImage(shotPath, shot); err != nil {
		t.Fatalf("保存截图失败: %v", err)
	}

	if err := a.addTarget("按钮", shotPath, "50,40,48,32"); err != nil {
		t.Fatalf("添加目标失败: %v", err)
	}

	var buf bytes.Buffer
	if err := a.listTargets(&buf); err != nil {
		t.Fatalf("列出目标失败: %v", err)
	}
	if !strings.Contains(buf.String(), "按钮") || !strings.Contains(buf.String(), "50,40 48x32") {
		t.Errorf("列表缺少目标: %q", buf.String())
	}

	if err := a.setActive("按钮", true); err != nil {
		t.Fatalf("激活失败: %v", err)
	}
	saved, err := a.mgr.Load()
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	if len(saved.Application.ActiveTargetIDs) != 1 {
		t.Errorf("激活列表应同步到配置: %v", saved.Application.ActiveTargetIDs)
	}

	out := filepath.Join(dir, "result.png")
	if err := a.matchImage(shotPath, out); err != nil {
		t.Fatalf("匹配失败: %v", err)
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("应保存绘制结果: %v", err)
	}

	tg, err := a.store.Find("按钮")
	if err != nil {
		t.Fatalf("查找目标失败: %v", err)
	}
	if tg.DetectionCount != 1 {
		t.Errorf("命中次数应为 1, 实际 %d", tg.DetectionCount)
	}

	if err := a.renameTarget("按钮", "确定"); err != nil {
		t.Fatalf("重命名失败: %v", err)
	}
	if err := a.removeTarget("确定"); err != nil {
		t.Fatalf("删除失败: %v", err)
	}
	if a.store.Len() != 0 {
		t.Errorf("删除后目标库应为空")
	}
	saved, _ = a.mgr.Load()
	if len(saved.Application.ActiveTargetIDs) != 0 {
		t.Errorf("删除后激活列表应同步清空: %v", saved.Application.ActiveTargetIDs)
	}
}

func TestDisplayNote(t *testing.T) {
	if note := displayNote(1, image.Rectangle{}); note != "" {
		t.Errorf("单显示器不应提示: %q", note)
	}
	if note := displayNote(2, image.Rect(0, 0, 800, 600)); note != "" {
		t.Errorf("指定区域时不应提示: %q", note)
	}
	if note := displayNote(3, image.Rectangle{}); !strings.Contains(note, "3 个显示器") {
		t.Errorf("多显示器应提示: %q", note)
	}
}
