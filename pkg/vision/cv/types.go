package cv

import (
	"fmt"
	"image"
	"strings"
)

// Point 表示二维坐标点
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Detection 一次匹配得到的检测结果
// 坐标为帧内像素坐标，宽高非负，置信度范围 [0, 1]
type Detection struct {
	X          int     `json:"x"`
	Y          int     `json:"y"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Confidence float64 `json:"confidence"`
}

// Center 返回检测框中心点 (x + w/2, y + h/2)
func (d Detection) Center() Point {
	return Point{X: d.X + d.Width/2, Y: d.Y + d.Height/2}
}

// Rect 转换为 image.Rectangle
func (d Detection) Rect() image.Rectangle {
	return image.Rect(d.X, d.Y, d.X+d.Width, d.Y+d.Height)
}

// Area 返回检测框面积
func (d Detection) Area() int {
	return d.Width * d.Height
}

// IoU 计算两个检测框的交并比
func (d Detection) IoU(other Detection) float64 {
	inter := d.Rect().Intersect(other.Rect())
	interArea := inter.Dx() * inter.Dy()
	union := d.Area() + other.Area() - interArea
	if union <= 0 {
		return 0
	}
	return float64(interArea) / float64(union)
}

func (d Detection) String() string {
	return fmt.Sprintf("(%d, %d, %dx%d, %.2f)", d.X, d.Y, d.Width, d.Height, d.Confidence)
}

// MatchMethod 匹配方法
type MatchMethod string

const (
	// MatchMethodTemplate 像素模板匹配（归一化互相关）
	MatchMethodTemplate MatchMethod = "template_matching"
	// MatchMethodFeature ORB 特征点匹配 + 单应性定位
	MatchMethodFeature MatchMethod = "feature_matching"
)

// MatchMethods 所有可用的匹配方法
var MatchMethods = []MatchMethod{
	MatchMethodTemplate,
	MatchMethodFeature,
}

// Valid 是否为已知方法
func (m MatchMethod) Valid() bool {
	return m == MatchMethodTemplate || m == MatchMethodFeature
}

// ParseMatchMethod 解析匹配方法字符串
func ParseMatchMethod(s string) (MatchMethod, error) {
	m := MatchMethod(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return MatchMethodTemplate, fmt.Errorf("未知的匹配方法: %s", s)
	}
	return m, nil
}

// LogFunc 日志函数类型，level 取值 DEBUG / INFO / WARN / ERROR
type LogFunc func(level, message string)

func (f LogFunc) log(level, format string, args ...interface{}) {
	if f == nil {
		return
	}
	f(level, fmt.Sprintf(format, args...))
}
