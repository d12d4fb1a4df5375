package screen

import (
	"image"
	"strings"
	"testing"
)

func TestPermissionsInstructions(t *testing.T) {
	all := Permissions{Accessibility: true, ScreenRecording: true}
	if !all.Granted() || all.Instructions() != "" {
		t.Error("全部授权时不应有说明")
	}

	p := Permissions{Accessibility: false, ScreenRecording: true}
	msg := p.Instructions()
	if p.Granted() {
		t.Error("缺少辅助功能时不应视为全部授权")
	}
	if !strings.Contains(msg, "辅助功能") || strings.Contains(msg, "屏幕录制 (") {
		t.Errorf("说明应只包含缺失的权限: %q", msg)
	}
}

func TestScaleInt(t *testing.T) {
	tests := []struct {
		value  int
		factor float64
		want   int
	}{
		{100, 1.0, 100},
		{100, 1.5, 150},
		{101, 0.5, 51},
		{100, 0, 100},
		{100, -2, 100},
	}
	for _, tt := range tests {
		if got := scaleInt(tt.value, tt.factor); got != tt.want {
			t.Errorf("scaleInt(%d, %v) = %d, want %d", tt.value, tt.factor, got, tt.want)
		}
	}
}

func TestMatchesWindow(t *testing.T) {
	tests := []struct {
		title, owner, filter string
		want                 bool
	}{
		{"Untitled - Notepad", "notepad", "", true},
		{"Untitled - Notepad", "notepad", "notepad", true},
		{"Inbox", "Thunderbird", "thunder", true},
		{"Inbox", "Thunderbird", "chrome", false},
	}
	for _, tt := range tests {
		if got := matchesWindow(tt.title, tt.owner, tt.filter); got != tt.want {
			t.Errorf("matchesWindow(%q, %q, %q) = %v, 期望 %v", tt.title, tt.owner, tt.filter, got, tt.want)
		}
	}
}

func TestPickWindow(t *testing.T) {
	windows := []Window{
		{PID: 1, Title: "隐藏", Bounds: image.Rect(0, 0, 0, 0)},
		{PID: 2, Title: "编辑器", Bounds: image.Rect(10, 20, 810, 620)},
	}
	w, ok := pickWindow(windows)
	if !ok || w.PID != 2 {
		t.Errorf("应选择第一个有面积的窗口, 实际 %v", w)
	}

	if _, ok := pickWindow(windows[:1]); ok {
		t.Error("全部窗口为空时不应命中")
	}
}

func TestFindWindowEmptyName(t *testing.T) {
	if _, err := FindWindow("  "); err == nil {
		t.Error("空窗口名应返回错误")
	}
}
