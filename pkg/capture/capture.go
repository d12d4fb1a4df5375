// Package capture 提供限速的屏幕帧来源
package capture

import (
	"fmt"
	"image"
	"sync"
	"time"

	"gocv.io/x/gocv"
	"golang.org/x/image/draw"

	"github.com/zoeyai/pointsight/pkg/screen"
	"github.com/zoeyai/pointsight/pkg/vision/cv"
)

// 采集频率范围 (帧/秒)
const (
	MinRate = 0.1
	MaxRate = 30.0
)

// Source 帧来源
// Capture 在距离上次采集不足一个间隔且 force 为 false 时返回 ok=false，
// 返回的帧由调用方负责 Close
type Source interface {
	Capture(force bool) (frame gocv.Mat, ok bool, err error)
}

// GrabFunc 截取指定区域，区域为空时截取全屏
type GrabFunc func(rect image.Rectangle) (image.Image, error)

// Option 配置选项
type Option func(*ScreenSource)

// WithGrabFunc 替换截图实现
func WithGrabFunc(fn GrabFunc) Option {
	return func(s *ScreenSource) {
		s.grab = fn
	}
}

// WithClock 替换时钟
func WithClock(now func() time.Time) Option {
	return func(s *ScreenSource) {
		s.now = now
	}
}

// WithScreenSize 替换屏幕尺寸查询
func WithScreenSize(fn func() (int, int)) Option {
	return func(s *ScreenSource) {
		s.screenSize = fn
	}
}

// ClampRate 将采集频率收敛到 [MinRate, MaxRate]
func ClampRate(rate float64) float64 {
	if rate != rate || rate < MinRate {
		return MinRate
	}
	if rate > MaxRate {
		return MaxRate
	}
	return rate
}

// Interval 返回给定频率对应的采集间隔
func Interval(rate float64) time.Duration {
	return time.Duration(float64(time.Second) / ClampRate(rate))
}

// ScreenSource 基于 robotgo 截图的帧来源，输出 BGR 帧
type ScreenSource struct {
	mu         sync.Mutex
	rate       float64
	roi        image.Rectangle
	grab       GrabFunc
	screenSize func() (int, int)
	now        func() time.Time
	lastTime   time.Time
	lastFrame  gocv.Mat
	hasFrame   bool
}

// NewScreenSource 创建屏幕帧来源，roi 为空表示全屏
func NewScreenSource(rate float64, roi image.Rectangle, opts ...Option) *ScreenSource {
	s := &ScreenSource{
		rate:       ClampRate(rate),
		roi:        roi.Canon(),
		grab:       screen.Grab,
		screenSize: screen.Size,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Rate 当前采集频率
func (s *ScreenSource) Rate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rate
}

// SetRate 设置采集频率，超出范围会被收敛
func (s *ScreenSource) SetRate(rate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rate = ClampRate(rate)
}

// ROI 当前采集区域，空矩形表示全屏
func (s *ScreenSource) ROI() image.Rectangle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roi
}

// SetROI 设置采集区域，空矩形表示全屏
func (s *ScreenSource) SetROI(roi image.Rectangle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roi = roi.Canon()
}

// Origin 帧左上角在屏幕上的位置，用于把帧内坐标换算为屏幕坐标
func (s *ScreenSource) Origin() image.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.roi.Empty() {
		return image.Point{}
	}
	return s.roi.Min
}

// Dimensions 返回采集区域宽高
func (s *ScreenSource) Dimensions() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.roi.Empty() {
		return s.roi.Dx(), s.roi.Dy()
	}
	return s.screenSize()
}

// Capture 采集一帧
func (s *ScreenSource) Capture(force bool) (gocv.Mat, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if !force && !s.lastTime.IsZero() && now.Sub(s.lastTime) < Interval(s.rate) {
		return gocv.Mat{}, false, nil
	}
	// 失败的截图也计入间隔，持续失败时按采集频率重试
	s.lastTime = now

	img, err := s.grab(s.roi)
	if err != nil {
		return gocv.Mat{}, false, err
	}
	if img == nil || img.Bounds().Empty() {
		return gocv.Mat{}, false, fmt.Errorf("截图为空")
	}

	frame, err := cv.ImageToMat(toRGBA(img))
	if err != nil {
		return gocv.Mat{}, false, err
	}

	if s.hasFrame {
		s.lastFrame.Close()
	}
	s.lastFrame = frame.Clone()
	s.hasFrame = true

	return frame, true, nil
}

// LastFrame 返回最近一帧的副本
func (s *ScreenSource) LastFrame() (gocv.Mat, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasFrame {
		return gocv.Mat{}, false
	}
	return s.lastFrame.Clone(), true
}

// Close 释放缓存的帧
func (s *ScreenSource) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hasFrame {
		s.lastFrame.Close()
		s.hasFrame = false
	}
}

// toRGBA 统一为原点在 (0,0) 的 RGBA 图像
// 不同平台的截图可能是 BGRA 包装类型或带偏移的子图
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}
