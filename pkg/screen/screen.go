// Package screen 封装屏幕截图与坐标空间换算
//
// 截图得到的是物理像素，匹配结果也在物理像素空间；
// robotgo 的鼠标输入坐标在部分平台上是逻辑坐标，移动前需要经过 ToInput 换算。
package screen

import (
	"fmt"
	"image"

	"github.com/go-vgo/robotgo"
)

// Grab 截取屏幕区域，rect 为空时截取全屏
// rect 使用物理像素坐标
func Grab(rect image.Rectangle) (image.Image, error) {
	if rect.Empty() {
		img, err := robotgo.CaptureImg()
		if err != nil {
			return nil, fmt.Errorf("截屏失败: %w", err)
		}
		return img, nil
	}

	r := RegionToInput(rect)
	img, err := robotgo.CaptureImg(r.Min.X, r.Min.Y, r.Dx(), r.Dy())
	if err != nil {
		return nil, fmt.Errorf("截取区域失败: %w", err)
	}
	return img, nil
}

// Size 获取屏幕尺寸（物理像素，与截图分辨率一致）
func Size() (width, height int) {
	return PhysicalSize()
}

// DisplayCount 获取显示器数量
func DisplayCount() int {
	return robotgo.DisplaysNum()
}

// scaleInt 缩放整数值
func scaleInt(value int, factor float64) int {
	if factor <= 0 {
		return value
	}
	return int(float64(value)*factor + 0.5)
}
