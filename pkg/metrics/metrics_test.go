package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveCycle(t *testing.T) {
	m := New()

	m.ObserveCycle(10*time.Millisecond, []string{"按钮"}, true)
	m.ObserveCycle(12*time.Millisecond, []string{"按钮", "图标"}, false)
	m.ObserveCycle(8*time.Millisecond, nil, false)

	if got := testutil.ToFloat64(m.frames); got != 3 {
		t.Errorf("帧数应为 3, 实际 %v", got)
	}
	if got := testutil.ToFloat64(m.detections.WithLabelValues("按钮")); got != 2 {
		t.Errorf("按钮命中应为 2, 实际 %v", got)
	}
	if got := testutil.ToFloat64(m.detections.WithLabelValues("图标")); got != 1 {
		t.Errorf("图标命中应为 1, 实际 %v", got)
	}
	if got := testutil.ToFloat64(m.moves); got != 1 {
		t.Errorf("指针移动应为 1, 实际 %v", got)
	}
	if n := testutil.CollectAndCount(m.cycleSeconds); n != 1 {
		t.Errorf("耗时直方图应有 1 个序列, 实际 %d", n)
	}
}

func TestCaptureErrorAndUsage(t *testing.T) {
	m := New()
	m.CaptureError()
	m.SetProcessUsage(12.5, 4096)

	if got := testutil.ToFloat64(m.captureErrors); got != 1 {
		t.Errorf("采集失败应为 1, 实际 %v", got)
	}
	if got := testutil.ToFloat64(m.cpuPercent); got != 12.5 {
		t.Errorf("CPU 应为 12.5, 实际 %v", got)
	}
	if got := testutil.ToFloat64(m.rssBytes); got != 4096 {
		t.Errorf("RSS 应为 4096, 实际 %v", got)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveCycle(time.Millisecond, []string{"按钮"}, false)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{"pointsight_frames_total 1", "pointsight_detections_total{target=\"按钮\"} 1"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("输出缺少 %q", want)
		}
	}
}
