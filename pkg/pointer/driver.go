package pointer

import (
	"github.com/go-vgo/robotgo"

	"github.com/zoeyai/pointsight/pkg/screen"
)

// Driver 底层鼠标操作，坐标均为截图像素空间
type Driver interface {
	ScreenSize() (width, height int)
	Location() (x, y int)
	Move(x, y int)
	Click(button string, double bool)
}

// robotDriver 基于 robotgo 的实现
type robotDriver struct{}

// NewRobotDriver 创建 robotgo 驱动
func NewRobotDriver() Driver {
	return robotDriver{}
}

func (robotDriver) ScreenSize() (int, int) {
	return screen.Size()
}

func (robotDriver) Location() (int, int) {
	return screen.FromInput(robotgo.Location())
}

func (robotDriver) Move(x, y int) {
	robotgo.Move(screen.ToInput(x, y))
}

func (robotDriver) Click(button string, double bool) {
	robotgo.Click(button, double)
}
