//go:build windows

package screen

import (
	"image"
	"math"
	"sync"
	"syscall"

	"github.com/go-vgo/robotgo"
)

// Windows 下存在两个坐标空间:
//   - 截图像素: robotgo.CaptureImg 总是返回物理像素
//   - 输入坐标: robotgo.Move 使用 GetScreenSize 所在的空间，可能是逻辑像素
//
// scale = 截图尺寸 / GetScreenSize 尺寸，首次使用时探测并缓存。

var (
	scaleMu       sync.Mutex
	scaleX        float64
	scaleY        float64
	scaleDetected bool
)

var (
	user32              = syscall.NewLazyDLL("user32.dll")
	gdi32               = syscall.NewLazyDLL("gdi32.dll")
	procGetDpiForWindow = user32.NewProc("GetDpiForWindow")
	procGetDesktop      = user32.NewProc("GetDesktopWindow")
	procGetDC           = user32.NewProc("GetDC")
	procReleaseDC       = user32.NewProc("ReleaseDC")
	procGetDeviceCaps   = gdi32.NewProc("GetDeviceCaps")
)

const logPixelsX = 88

// dpiScale 获取系统 DPI 缩放比例，截图失败时作为兜底
func dpiScale() float64 {
	dpi := 0
	if procGetDpiForWindow.Find() == nil {
		if hwnd, _, _ := procGetDesktop.Call(); hwnd != 0 {
			if d, _, _ := procGetDpiForWindow.Call(hwnd); d > 0 {
				dpi = int(d)
			}
		}
	}
	if dpi == 0 && procGetDC.Find() == nil && procGetDeviceCaps.Find() == nil {
		if dc, _, _ := procGetDC.Call(0); dc != 0 {
			if d, _, _ := procGetDeviceCaps.Call(dc, uintptr(logPixelsX)); d > 0 {
				dpi = int(d)
			}
			procReleaseDC.Call(0, dc)
		}
	}
	if dpi <= 0 {
		return 1.0
	}
	return normalizeScale(float64(dpi) / 96.0)
}

// Scale 返回截图像素与输入坐标的比例
func Scale() (float64, float64) {
	scaleMu.Lock()
	defer scaleMu.Unlock()

	if !scaleDetected {
		scaleX, scaleY = detectScale()
		scaleDetected = true
	}
	return scaleX, scaleY
}

func detectScale() (float64, float64) {
	reportedW, reportedH := robotgo.GetScreenSize()
	if reportedW <= 0 || reportedH <= 0 {
		return 1.0, 1.0
	}

	img, err := robotgo.CaptureImg()
	if err != nil || img == nil {
		s := dpiScale()
		return s, s
	}

	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return 1.0, 1.0
	}
	return normalizeScale(float64(b.Dx()) / float64(reportedW)),
		normalizeScale(float64(b.Dy()) / float64(reportedH))
}

func normalizeScale(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0.5 || v > 4.0 {
		return 1.0
	}
	if math.Abs(v-1.0) < 0.05 {
		return 1.0
	}
	return v
}

// ResetScale 清除缓存，显示设置变化后调用
func ResetScale() {
	scaleMu.Lock()
	defer scaleMu.Unlock()
	scaleDetected = false
}

// ToInput 截图坐标 → robotgo 输入坐标
func ToInput(x, y int) (int, int) {
	sx, sy := Scale()
	return scaleInt(x, 1.0/sx), scaleInt(y, 1.0/sy)
}

// FromInput robotgo 输入坐标 → 截图坐标
func FromInput(x, y int) (int, int) {
	sx, sy := Scale()
	return scaleInt(x, sx), scaleInt(y, sy)
}

// RegionToInput 将截图区域换算为输入坐标区域，非空区域至少保留 1 像素
func RegionToInput(r image.Rectangle) image.Rectangle {
	sx, sy := Scale()
	x, y := scaleInt(r.Min.X, 1.0/sx), scaleInt(r.Min.Y, 1.0/sy)
	w, h := scaleInt(r.Dx(), 1.0/sx), scaleInt(r.Dy(), 1.0/sy)
	if r.Dx() > 0 && w < 1 {
		w = 1
	}
	if r.Dy() > 0 && h < 1 {
		h = 1
	}
	return image.Rect(x, y, x+w, y+h)
}

// PhysicalSize 获取物理屏幕尺寸（与截图分辨率一致）
func PhysicalSize() (width, height int) {
	w, h := robotgo.GetScreenSize()
	sx, sy := Scale()
	return scaleInt(w, sx), scaleInt(h, sy)
}
