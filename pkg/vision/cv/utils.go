package cv

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"runtime"

	"gocv.io/x/gocv"
)

// ReadImage 读取图像文件 (BGR)
func ReadImage(filename string) (gocv.Mat, error) {
	mat := gocv.IMRead(filename, gocv.IMReadColor)
	if mat.Empty() {
		return mat, fmt.Errorf("无法读取图像: %s", filename)
	}
	return mat, nil
}

// WriteImage 保存图像文件
func WriteImage(filename string, img gocv.Mat) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("创建目录失败: %w", err)
	}

	if ok := gocv.IMWrite(filename, img); !ok {
		return fmt.Errorf("保存图像失败: %s", filename)
	}
	return nil
}

// EncodePNG 将 Mat 编码为 PNG 字节
func EncodePNG(img gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncode(gocv.PNGFileExt, img)
	if err != nil {
		return nil, fmt.Errorf("PNG 编码失败: %w", err)
	}
	defer buf.Close()

	data := buf.GetBytes()
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// DecodeImage 从字节解码图像，保留原始通道数
func DecodeImage(data []byte) (gocv.Mat, error) {
	mat, err := gocv.IMDecode(data, gocv.IMReadUnchanged)
	if err != nil {
		return mat, fmt.Errorf("图像解码失败: %w", err)
	}
	if mat.Empty() {
		return mat, fmt.Errorf("图像解码失败: 数据无效")
	}
	return mat, nil
}

// ToGray 转换为单通道亮度图
func ToGray(src gocv.Mat) gocv.Mat {
	dst := gocv.NewMat()
	switch src.Channels() {
	case 1:
		src.CopyTo(&dst)
	case 4:
		gocv.CvtColor(src, &dst, gocv.ColorBGRAToGray)
	default:
		gocv.CvtColor(src, &dst, gocv.ColorBGRToGray)
	}
	return dst
}

// CropImage 裁剪图像，区域超出部分会被截断
func CropImage(img gocv.Mat, rect image.Rectangle) (gocv.Mat, error) {
	bounds := image.Rect(0, 0, img.Cols(), img.Rows())
	rect = rect.Intersect(bounds)
	if rect.Empty() {
		return gocv.NewMat(), fmt.Errorf("裁剪区域为空或超出图像范围")
	}

	region := img.Region(rect)
	defer region.Close()
	return region.Clone(), nil
}

// ImageToMat 将 image.Image 转换为 BGR 格式的 gocv.Mat
func ImageToMat(img image.Image) (gocv.Mat, error) {
	if img == nil {
		return gocv.Mat{}, fmt.Errorf("图像为空")
	}
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("图像转换失败: %w", err)
	}
	return mat, nil
}

// NewMatFromBytesCopy 从字节创建 Mat，数据会被复制，不引用 Go 内存
func NewMatFromBytesCopy(rows, cols int, mt gocv.MatType, data []byte) (gocv.Mat, error) {
	view, err := gocv.NewMatFromBytes(rows, cols, mt, data)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("创建 Mat 失败: %w", err)
	}
	defer view.Close()

	mat := view.Clone()
	runtime.KeepAlive(data)
	return mat, nil
}
