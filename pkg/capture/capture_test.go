package capture

import (
	"errors"
	"image"
	"image/color"
	"testing"
	"time"
)

type fakeScreen struct {
	calls []image.Rectangle
	color color.Color
	err   error
}

func (f *fakeScreen) grab(rect image.Rectangle) (image.Image, error) {
	f.calls = append(f.calls, rect)
	if f.err != nil {
		return nil, f.err
	}
	w, h := 64, 48
	if !rect.Empty() {
		w, h = rect.Dx(), rect.Dy()
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, f.color)
		}
	}
	return img, nil
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestSource(rate float64, roi image.Rectangle) (*ScreenSource, *fakeScreen, *fakeClock) {
	fs := &fakeScreen{color: color.RGBA{R: 200, G: 100, B: 50, A: 255}}
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := NewScreenSource(rate, roi,
		WithGrabFunc(fs.grab),
		WithClock(clock.now),
		WithScreenSize(func() (int, int) { return 1920, 1080 }),
	)
	return s, fs, clock
}

func TestClampRateAndInterval(t *testing.T) {
	tests := []struct {
		rate     float64
		want     float64
		interval time.Duration
	}{
		{1, 1, time.Second},
		{0, MinRate, 10 * time.Second},
		{-3, MinRate, 10 * time.Second},
		{100, MaxRate, time.Second / 30},
		{4, 4, 250 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := ClampRate(tt.rate); got != tt.want {
			t.Errorf("ClampRate(%v) = %v, want %v", tt.rate, got, tt.want)
		}
		if got := Interval(tt.rate); got != tt.interval {
			t.Errorf("Interval(%v) = %v, want %v", tt.rate, got, tt.interval)
		}
	}
}

func TestCaptureThrottle(t *testing.T) {
	s, fs, clock := newTestSource(2, image.Rectangle{})
	defer s.Close()

	frame, ok, err := s.Capture(false)
	if err != nil || !ok {
		t.Fatalf("首次采集应成功: ok=%v err=%v", ok, err)
	}
	frame.Close()

	clock.advance(100 * time.Millisecond)
	if _, ok, err := s.Capture(false); ok || err != nil {
		t.Errorf("间隔未到时不应采集: ok=%v err=%v", ok, err)
	}

	frame, ok, _ = s.Capture(true)
	if !ok {
		t.Error("force 时应立即采集")
	}
	frame.Close()

	clock.advance(499 * time.Millisecond)
	if _, ok, _ := s.Capture(false); ok {
		t.Error("force 采集后应重新计时")
	}

	clock.advance(time.Millisecond)
	frame, ok, _ = s.Capture(false)
	if !ok {
		t.Error("间隔到达后应采集")
	}
	frame.Close()

	if len(fs.calls) != 3 {
		t.Errorf("应截图 3 次, 实际 %d 次", len(fs.calls))
	}
}

func TestCaptureFrameIsBGR(t *testing.T) {
	s, _, _ := newTestSource(1, image.Rectangle{})
	defer s.Close()

	frame, ok, err := s.Capture(true)
	if err != nil || !ok {
		t.Fatalf("采集失败: %v", err)
	}
	defer frame.Close()

	if frame.Cols() != 64 || frame.Rows() != 48 || frame.Channels() != 3 {
		t.Fatalf("帧尺寸错误: %dx%dx%d", frame.Cols(), frame.Rows(), frame.Channels())
	}
	px := frame.GetVecbAt(10, 10)
	if px[0] != 50 || px[1] != 100 || px[2] != 200 {
		t.Errorf("像素应为 BGR 顺序 [50 100 200], 实际 %v", px)
	}
}

func TestCaptureROI(t *testing.T) {
	roi := image.Rect(100, 50, 132, 74)
	s, fs, _ := newTestSource(1, roi)
	defer s.Close()

	if w, h := s.Dimensions(); w != 32 || h != 24 {
		t.Errorf("ROI 尺寸错误: %dx%d", w, h)
	}
	if o := s.Origin(); o != roi.Min {
		t.Errorf("Origin 应为 ROI 左上角, 实际 %v", o)
	}

	frame, _, err := s.Capture(true)
	if err != nil {
		t.Fatalf("采集失败: %v", err)
	}
	frame.Close()
	if fs.calls[0] != roi {
		t.Errorf("截图区域应为 ROI, 实际 %v", fs.calls[0])
	}

	s.SetROI(image.Rectangle{})
	if w, h := s.Dimensions(); w != 1920 || h != 1080 {
		t.Errorf("全屏尺寸错误: %dx%d", w, h)
	}
	if o := s.Origin(); o != (image.Point{}) {
		t.Errorf("全屏 Origin 应为原点, 实际 %v", o)
	}
}

func TestCaptureError(t *testing.T) {
	s, fs, _ := newTestSource(1, image.Rectangle{})
	defer s.Close()

	fs.err = errors.New("boom")
	if _, ok, err := s.Capture(true); err == nil || ok {
		t.Errorf("截图失败应返回错误: ok=%v err=%v", ok, err)
	}
	if _, ok := s.LastFrame(); ok {
		t.Error("失败的采集不应留下帧")
	}
}

func TestCaptureErrorKeepsRate(t *testing.T) {
	s, fs, clock := newTestSource(2, image.Rectangle{})
	defer s.Close()

	fs.err = errors.New("boom")
	if _, _, err := s.Capture(false); err == nil {
		t.Fatal("截图失败应返回错误")
	}

	clock.advance(100 * time.Millisecond)
	if _, ok, err := s.Capture(false); ok || err != nil {
		t.Errorf("失败后间隔未到时不应重试: ok=%v err=%v", ok, err)
	}
	if len(fs.calls) != 1 {
		t.Errorf("间隔内应只截图 1 次, 实际 %d 次", len(fs.calls))
	}

	fs.err = nil
	clock.advance(400 * time.Millisecond)
	frame, ok, err := s.Capture(false)
	if err != nil || !ok {
		t.Fatalf("间隔到达后应重试成功: ok=%v err=%v", ok, err)
	}
	frame.Close()
}

func TestLastFrame(t *testing.T) {
	s, _, _ := newTestSource(1, image.Rectangle{})
	defer s.Close()

	if _, ok := s.LastFrame(); ok {
		t.Error("采集前不应有帧")
	}

	frame, _, err := s.Capture(true)
	if err != nil {
		t.Fatalf("采集失败: %v", err)
	}
	frame.Close()

	last, ok := s.LastFrame()
	if !ok {
		t.Fatal("采集后应有最近一帧")
	}
	defer last.Close()
	if last.Cols() != 64 || last.Rows() != 48 {
		t.Errorf("最近一帧尺寸错误: %dx%d", last.Cols(), last.Rows())
	}
}

func TestSetRate(t *testing.T) {
	s, _, _ := newTestSource(1, image.Rectangle{})
	defer s.Close()

	s.SetRate(1000)
	if s.Rate() != MaxRate {
		t.Errorf("频率应收敛为 %v, 实际 %v", MaxRate, s.Rate())
	}
	s.SetRate(0.01)
	if s.Rate() != MinRate {
		t.Errorf("频率应收敛为 %v, 实际 %v", MinRate, s.Rate())
	}
}

func TestToRGBAOffsetImage(t *testing.T) {
	src := image.NewNRGBA(image.Rect(10, 20, 14, 23))
	src.Set(10, 20, color.NRGBA{R: 1, G: 2, B: 3, A: 255})

	dst := toRGBA(src)
	if dst.Bounds() != image.Rect(0, 0, 4, 3) {
		t.Fatalf("应平移到原点: %v", dst.Bounds())
	}
	if c := dst.RGBAAt(0, 0); c.R != 1 || c.G != 2 || c.B != 3 {
		t.Errorf("像素错误: %v", c)
	}
}
