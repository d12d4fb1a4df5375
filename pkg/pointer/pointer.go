// Package pointer 将鼠标指针移动到检测到的目标
package pointer

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/zoeyai/pointsight/pkg/vision/cv"
)

// 速度范围
const (
	MinSpeed = 1.0
	MaxSpeed = 10.0
)

// 平滑移动时长范围
const (
	minSmoothDuration = 100 * time.Millisecond
	maxSmoothDuration = 2 * time.Second
	// 每单位速度每秒移动的像素数
	pixelsPerSpeed = 200.0
	stepInterval   = 10 * time.Millisecond
)

// 鼠标按键
const (
	ButtonLeft   = "left"
	ButtonRight  = "right"
	ButtonMiddle = "center"
)

// Option 配置选项
type Option func(*Controller)

// WithDriver 替换底层驱动
func WithDriver(d Driver) Option {
	return func(c *Controller) {
		c.driver = d
	}
}

// WithLogFunc 设置日志函数
func WithLogFunc(fn cv.LogFunc) Option {
	return func(c *Controller) {
		c.logf = fn
	}
}

// WithSleep 替换平滑移动中的等待函数
func WithSleep(fn func(time.Duration)) Option {
	return func(c *Controller) {
		c.sleep = fn
	}
}

// Controller 指针控制器
type Controller struct {
	mu     sync.Mutex
	driver Driver
	speed  float64
	smooth bool
	logf   cv.LogFunc
	sleep  func(time.Duration)
}

// NewController 创建指针控制器，speed 范围 [1, 10]
func NewController(speed float64, smooth bool, opts ...Option) *Controller {
	c := &Controller{
		speed:  ClampSpeed(speed),
		smooth: smooth,
		sleep:  time.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.driver == nil {
		c.driver = NewRobotDriver()
	}
	return c
}

// ClampSpeed 将速度收敛到 [MinSpeed, MaxSpeed]
func ClampSpeed(speed float64) float64 {
	if speed != speed || speed < MinSpeed {
		return MinSpeed
	}
	if speed > MaxSpeed {
		return MaxSpeed
	}
	return speed
}

// SmoothDuration 根据距离和速度估算平滑移动时长，范围 [0.1s, 2s]
func SmoothDuration(distance, speed float64) time.Duration {
	d := time.Duration(distance / (pixelsPerSpeed * ClampSpeed(speed)) * float64(time.Second))
	if d < minSmoothDuration {
		return minSmoothDuration
	}
	if d > maxSmoothDuration {
		return maxSmoothDuration
	}
	return d
}

// Speed 当前速度
func (c *Controller) Speed() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speed
}

// SetSpeed 设置速度
func (c *Controller) SetSpeed(speed float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.speed = ClampSpeed(speed)
	c.debug("指针速度: %.1f", c.speed)
}

// Smooth 是否平滑移动
func (c *Controller) Smooth() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.smooth
}

// SetSmooth 设置是否平滑移动
func (c *Controller) SetSmooth(smooth bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.smooth = smooth
}

// MoveTo 移动指针到指定位置，坐标超出屏幕时收敛到边缘
// 返回实际到达的位置
func (c *Controller) MoveTo(x, y int) cv.Point {
	c.mu.Lock()
	defer c.mu.Unlock()

	w, h := c.driver.ScreenSize()
	target := cv.Point{X: clampInt(x, 0, w-1), Y: clampInt(y, 0, h-1)}

	if c.smooth {
		fromX, fromY := c.driver.Location()
		c.glide(cv.Point{X: fromX, Y: fromY}, target)
	} else {
		c.driver.Move(target.X, target.Y)
	}

	c.debug("指针移动到 (%d, %d)", target.X, target.Y)
	return target
}

// glide 按缓动曲线分步移动，总时长由 SmoothDuration 决定
func (c *Controller) glide(from, to cv.Point) {
	dx, dy := float64(to.X-from.X), float64(to.Y-from.Y)
	duration := SmoothDuration(math.Hypot(dx, dy), c.speed)

	steps := int(duration / stepInterval)
	if steps < 1 {
		steps = 1
	}
	for i := 1; i <= steps; i++ {
		t := easeInOut(float64(i) / float64(steps))
		c.driver.Move(from.X+int(math.Round(dx*t)), from.Y+int(math.Round(dy*t)))
		if i < steps {
			c.sleep(stepInterval)
		}
	}
}

// MoveToDetection 移动到检测框中心，offset 为帧在屏幕上的左上角
func (c *Controller) MoveToDetection(d cv.Detection, offset cv.Point) cv.Point {
	center := d.Center()
	return c.MoveTo(center.X+offset.X, center.Y+offset.Y)
}

// Click 在当前位置点击
func (c *Controller) Click(button string) error {
	switch button {
	case "":
		button = ButtonLeft
	case ButtonLeft, ButtonRight, ButtonMiddle:
	default:
		return fmt.Errorf("不支持的鼠标按键: %s", button)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.driver.Click(button, false)
	c.debug("点击 %s", button)
	return nil
}

// Location 当前指针位置
func (c *Controller) Location() cv.Point {
	c.mu.Lock()
	defer c.mu.Unlock()
	x, y := c.driver.Location()
	return cv.Point{X: x, Y: y}
}

func (c *Controller) debug(format string, args ...interface{}) {
	if c.logf != nil {
		c.logf("DEBUG", fmt.Sprintf(format, args...))
	}
}

func easeInOut(t float64) float64 {
	return t * t * (3 - 2*t)
}

func clampInt(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
