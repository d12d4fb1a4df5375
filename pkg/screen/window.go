package screen

import (
	"fmt"
	"image"
	"strings"

	"github.com/go-vgo/robotgo"
)

// Window 顶层窗口信息，Bounds 使用截图像素坐标
type Window struct {
	PID    int
	Title  string
	Owner  string
	Bounds image.Rectangle
}

func (w Window) String() string {
	return fmt.Sprintf("%s [%s pid=%d] %v", w.Title, w.Owner, w.PID, w.Bounds)
}

// Windows 列出可见窗口，filter 非空时按标题或进程名做不区分大小写的包含匹配
func Windows(filter string) ([]Window, error) {
	return listWindows(strings.ToLower(strings.TrimSpace(filter)))
}

// FindWindow 查找第一个匹配的窗口
func FindWindow(filter string) (Window, error) {
	if strings.TrimSpace(filter) == "" {
		return Window{}, fmt.Errorf("窗口名称不能为空")
	}
	windows, err := Windows(filter)
	if err != nil {
		return Window{}, err
	}
	w, ok := pickWindow(windows)
	if !ok {
		return Window{}, fmt.Errorf("未找到标题包含 %q 的窗口", filter)
	}
	return w, nil
}

// ActivateWindow 将窗口置于前台
func ActivateWindow(w Window) error {
	if err := robotgo.ActivePid(w.PID); err != nil {
		return fmt.Errorf("激活窗口失败: %w", err)
	}
	return nil
}

// matchesWindow filter 须已转为小写
func matchesWindow(title, owner, filter string) bool {
	if filter == "" {
		return true
	}
	return strings.Contains(strings.ToLower(title), filter) ||
		strings.Contains(strings.ToLower(owner), filter)
}

// pickWindow 选择第一个有面积的窗口
func pickWindow(windows []Window) (Window, bool) {
	for _, w := range windows {
		if !w.Bounds.Empty() {
			return w, true
		}
	}
	return Window{}, false
}
