package process

import (
	"testing"
	"time"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   uint64
		want string
	}{
		{0, "0B"},
		{512, "512B"},
		{1024, "1.0KB"},
		{1536, "1.5KB"},
		{85 * 1024 * 1024, "85.0MB"},
		{3 << 30, "3.0GB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.in); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestUsageString(t *testing.T) {
	u := Usage{CPUPercent: 12.34, RSS: 2048}
	if got := u.String(); got != "cpu 12.3% rss 2.0KB" {
		t.Errorf("Usage.String() = %q", got)
	}
}

func TestSamplerSelf(t *testing.T) {
	s, err := NewSampler(time.Hour)
	if err != nil {
		t.Skipf("当前平台无法读取进程信息: %v", err)
	}

	first, err := s.Sample()
	if err != nil {
		t.Skipf("当前平台无法采样: %v", err)
	}
	if first.RSS == 0 {
		t.Error("当前进程 RSS 不应为 0")
	}

	// 间隔内返回缓存值
	s.cached.RSS = 42
	second, _ := s.Sample()
	if second.RSS != 42 {
		t.Errorf("间隔内应返回缓存值, 实际 %d", second.RSS)
	}

	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	third, err := s.Sample()
	if err != nil {
		t.Fatalf("采样失败: %v", err)
	}
	if third.RSS == 42 {
		t.Error("超过间隔后应重新采样")
	}
}
