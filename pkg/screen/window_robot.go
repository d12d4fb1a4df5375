//go:build !windows

package screen

import (
	"fmt"
	"image"

	"github.com/go-vgo/robotgo"
)

// listWindows 通过 robotgo 遍历进程获取窗口
func listWindows(filter string) ([]Window, error) {
	pids, err := robotgo.Pids()
	if err != nil {
		return nil, fmt.Errorf("获取进程列表失败: %w", err)
	}

	var windows []Window
	for _, pid := range pids {
		title := robotgo.GetTitle(pid)
		if title == "" {
			continue
		}
		owner, _ := robotgo.FindName(pid)
		if !matchesWindow(title, owner, filter) {
			continue
		}

		x, y, w, h := robotgo.GetBounds(pid)
		x0, y0 := FromInput(x, y)
		x1, y1 := FromInput(x+w, y+h)
		windows = append(windows, Window{
			PID:    pid,
			Title:  title,
			Owner:  owner,
			Bounds: image.Rect(x0, y0, x1, y1),
		})
	}
	return windows, nil
}
