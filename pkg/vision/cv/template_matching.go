package cv

import (
	"math"

	"gocv.io/x/gocv"
)

// CorrelationMatcher 模板匹配器（TM_CCOEFF_NORMED）
// 每个达到阈值的位置都会产生一个候选框，结果必须经过 Suppress 去重
type CorrelationMatcher struct {
	logf LogFunc
}

// NewCorrelationMatcher 创建模板匹配器
func NewCorrelationMatcher(logf LogFunc) *CorrelationMatcher {
	return &CorrelationMatcher{logf: logf}
}

// Match 在 frame 中查找所有相关系数 >= threshold 的模板位置
func (c *CorrelationMatcher) Match(tmpl, frame gocv.Mat, threshold float64) (detections []Detection) {
	defer recoverMatch(c.logf, "模板匹配", &detections)

	if tmpl.Empty() || frame.Empty() {
		return nil
	}

	h, w := tmpl.Rows(), tmpl.Cols()
	if err := checkSourceLargerThanSearch(frame, tmpl); err != nil {
		c.logf.log("WARN", "模板 %dx%d 大于帧 %dx%d，跳过匹配", w, h, frame.Cols(), frame.Rows())
		return nil
	}

	result := c.getTemplateResultMatrix(tmpl, frame)
	defer result.Close()

	scores, err := result.DataPtrFloat32()
	if err != nil {
		c.logf.log("ERROR", "读取匹配结果失败: %v", err)
		return nil
	}

	cols := result.Cols()
	for i, s := range scores {
		score := float64(s)
		if math.IsNaN(score) || math.IsInf(score, 0) || score < threshold {
			continue
		}
		detections = append(detections, Detection{
			X:          i % cols,
			Y:          i / cols,
			Width:      w,
			Height:     h,
			Confidence: clampUnit(score),
		})
	}

	c.logf.log("DEBUG", "模板匹配候选 %d 个 (threshold=%.2f)", len(detections), threshold)
	return detections
}

// getTemplateResultMatrix 计算相关系数矩阵，大小 (fH-tH+1) x (fW-tW+1)
// 通道数不一致时两者都先转为灰度
func (c *CorrelationMatcher) getTemplateResultMatrix(tmpl, frame gocv.Mat) gocv.Mat {
	src, search := frame, tmpl
	if tmpl.Channels() != frame.Channels() {
		srcGray := ToGray(frame)
		searchGray := ToGray(tmpl)
		defer srcGray.Close()
		defer searchGray.Close()
		src, search = srcGray, searchGray
	}

	mask := gocv.NewMat()
	defer mask.Close()

	result := gocv.NewMat()
	gocv.MatchTemplate(src, search, &result, gocv.TmCcoeffNormed, mask)
	return result
}

// checkSourceLargerThanSearch 检查源图像是否不小于搜索图像
func checkSourceLargerThanSearch(source, search gocv.Mat) error {
	if source.Rows() < search.Rows() || source.Cols() < search.Cols() {
		return &ImageSizeError{
			SourceSize: [2]int{source.Cols(), source.Rows()},
			SearchSize: [2]int{search.Cols(), search.Rows()},
		}
	}
	return nil
}

// ImageSizeError 图像尺寸错误
type ImageSizeError struct {
	SourceSize [2]int
	SearchSize [2]int
}

func (e *ImageSizeError) Error() string {
	return "搜索图像尺寸大于源图像"
}

func clampUnit(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
