// Package overlay 在帧上绘制检测结果，用于调试和结果预览
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"os"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"github.com/lucasb-eyer/go-colorful"
	"gocv.io/x/gocv"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/zoeyai/pointsight/pkg/vision/cv"
)

// Labeled 带名称的检测结果
type Labeled struct {
	Name      string
	Detection cv.Detection
}

// Label 生成标签文本，如 "按钮: 0.87"
func Label(name string, confidence float64) string {
	return fmt.Sprintf("%s: %.2f", name, confidence)
}

// 系统中文字体，按顺序尝试
var systemFontPaths = []string{
	"/System/Library/Fonts/Supplemental/Arial Unicode.ttf",
	"/Library/Fonts/Arial Unicode.ttf",
	"C:\\Windows\\Fonts\\simhei.ttf",
	"/usr/share/fonts/truetype/droid/DroidSansFallbackFull.ttf",
}

// Option 配置选项
type Option func(*Renderer)

// WithBoxColor 设置检测框颜色
func WithBoxColor(c color.RGBA) Option {
	return func(r *Renderer) {
		r.boxColor = c
	}
}

// ParseColor 解析 "#rrggbb" 或 "#rgb" 形式的颜色
func ParseColor(s string) (color.RGBA, error) {
	c, err := colorful.Hex(s)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("无效的颜色 %q: %w", s, err)
	}
	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}, nil
}

// WithFontSize 设置标签字号
func WithFontSize(size float64) Option {
	return func(r *Renderer) {
		if size > 0 {
			r.fontSize = size
		}
	}
}

// WithSystemFont 优先使用系统中文字体，找不到时使用内置字体
func WithSystemFont() Option {
	return func(r *Renderer) {
		if f := loadSystemFont(systemFontPaths); f != nil {
			r.font = f
		}
	}
}

// Renderer 检测结果绘制器
type Renderer struct {
	font      *truetype.Font
	fontSize  float64
	boxColor  color.RGBA
	textColor color.RGBA
	thickness int
}

// NewRenderer 创建绘制器，默认绿色检测框、内置 Go Regular 字体
func NewRenderer(opts ...Option) (*Renderer, error) {
	f, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("加载内置字体失败: %w", err)
	}

	r := &Renderer{
		font:      f,
		fontSize:  14,
		boxColor:  color.RGBA{0, 255, 0, 255},
		textColor: color.RGBA{0, 0, 0, 255},
		thickness: 2,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Draw 在帧的副本上绘制检测框和标签，返回新的 BGR 帧
func (r *Renderer) Draw(frame gocv.Mat, items []Labeled) (gocv.Mat, error) {
	if frame.Empty() {
		return gocv.NewMat(), fmt.Errorf("帧为空")
	}

	canvas := toBGR(frame)
	defer canvas.Close()

	for _, it := range items {
		gocv.Rectangle(&canvas, it.Detection.Rect(), r.boxColor, r.thickness)
	}

	img, err := canvas.ToImage()
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("帧转换失败: %w", err)
	}
	rgba := image.NewRGBA(img.Bounds())
	draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)

	for _, it := range items {
		r.drawLabel(rgba, it)
	}

	out, err := gocv.ImageToMatRGB(rgba)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("帧转换失败: %w", err)
	}
	return out, nil
}

// drawLabel 在检测框上方绘制带底色的标签，上方空间不足时画在框内
func (r *Renderer) drawLabel(dst *image.RGBA, it Labeled) {
	text := Label(it.Name, it.Detection.Confidence)

	face := truetype.NewFace(r.font, &truetype.Options{Size: r.fontSize, DPI: 72, Hinting: font.HintingFull})
	defer face.Close()

	width := font.MeasureString(face, text).Ceil()
	metrics := face.Metrics()
	height := (metrics.Ascent + metrics.Descent).Ceil()
	pad := 2

	x := it.Detection.X
	top := it.Detection.Y - height - 2*pad
	if top < 0 {
		top = it.Detection.Y
	}
	bg := image.Rect(x, top, x+width+2*pad, top+height+2*pad)
	draw.Draw(dst, bg.Intersect(dst.Bounds()), image.NewUniform(r.boxColor), image.Point{}, draw.Src)

	c := freetype.NewContext()
	c.SetDPI(72)
	c.SetFont(r.font)
	c.SetFontSize(r.fontSize)
	c.SetClip(dst.Bounds())
	c.SetDst(dst)
	c.SetSrc(image.NewUniform(r.textColor))
	c.SetHinting(font.HintingFull)

	pt := freetype.Pt(x+pad, top+pad+metrics.Ascent.Ceil())
	c.DrawString(text, pt)
}

// Draw 使用默认绘制器绘制
func Draw(frame gocv.Mat, items []Labeled) (gocv.Mat, error) {
	r, err := NewRenderer()
	if err != nil {
		return gocv.NewMat(), err
	}
	return r.Draw(frame, items)
}

func toBGR(src gocv.Mat) gocv.Mat {
	dst := gocv.NewMat()
	switch src.Channels() {
	case 1:
		gocv.CvtColor(src, &dst, gocv.ColorGrayToBGR)
	case 4:
		gocv.CvtColor(src, &dst, gocv.ColorBGRAToBGR)
	default:
		src.CopyTo(&dst)
	}
	return dst
}

func loadSystemFont(paths []string) *truetype.Font {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if f, err := truetype.Parse(data); err == nil {
			return f
		}
	}
	return nil
}
