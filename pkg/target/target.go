// Package target 管理用户采集的视觉目标及其持久化
package target

import (
	"errors"
	"fmt"
	"image"
	"time"

	"gocv.io/x/gocv"

	"github.com/zoeyai/pointsight/pkg/vision/cv"
)

// ErrNotFound 目标不存在
var ErrNotFound = errors.New("目标不存在")

// Box 目标在原始截图中的位置 (x, y, width, height)
type Box struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Rect 转换为 image.Rectangle
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.Width, b.Y+b.Height)
}

// BoxFromRect 从 image.Rectangle 创建 Box
func BoxFromRect(r image.Rectangle) Box {
	r = r.Canon()
	return Box{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
}

func (b Box) String() string {
	return fmt.Sprintf("%d,%d %dx%d", b.X, b.Y, b.Width, b.Height)
}

// Target 一个可被定位的视觉目标
type Target struct {
	ID             string
	Name           string
	Method         cv.MatchMethod
	Descriptor     cv.Descriptor
	BoundingBox    Box
	Image          gocv.Mat
	CreatedAt      time.Time
	LastDetectedAt *time.Time
	DetectionCount int
	Active         bool
}

// Close 释放目标持有的图像与特征
func (t *Target) Close() {
	if t.Descriptor != nil {
		t.Descriptor.Close()
	}
	t.Image.Close()
}

func (t *Target) String() string {
	return fmt.Sprintf("%s (%s, %s)", t.Name, t.ID, t.Method)
}
