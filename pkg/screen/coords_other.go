//go:build !windows

package screen

import (
	"image"

	"github.com/go-vgo/robotgo"
)

// ToInput 非 Windows 平台截图坐标与输入坐标一致
func ToInput(x, y int) (int, int) {
	return x, y
}

// FromInput 非 Windows 平台截图坐标与输入坐标一致
func FromInput(x, y int) (int, int) {
	return x, y
}

// RegionToInput 非 Windows 平台无需缩放
func RegionToInput(r image.Rectangle) image.Rectangle {
	return r
}

// Scale 返回截图像素与输入坐标的比例，非 Windows 平台为 1
func Scale() (float64, float64) {
	return 1.0, 1.0
}

// ResetScale 非 Windows 平台无操作
func ResetScale() {}

// PhysicalSize 获取物理屏幕尺寸
// macOS Retina 由 robotgo 自行处理
func PhysicalSize() (width, height int) {
	return robotgo.GetScreenSize()
}
