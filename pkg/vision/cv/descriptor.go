package cv

import (
	"fmt"

	"gocv.io/x/gocv"
)

// Descriptor 目标的可匹配视觉特征
// 只有 *TemplateDescriptor 与 *FeatureSet 两种实现
type Descriptor interface {
	// Method 返回该特征对应的匹配方法
	Method() MatchMethod
	// Close 释放持有的 Mat
	Close()

	sealed()
}

// TemplateDescriptor 模板特征：目标图像本身 (H x W x C, 8 位)
type TemplateDescriptor struct {
	Image gocv.Mat
}

// NewTemplateDescriptor 从图像创建模板特征（内部克隆）
func NewTemplateDescriptor(img gocv.Mat) *TemplateDescriptor {
	return &TemplateDescriptor{Image: img.Clone()}
}

func (t *TemplateDescriptor) Method() MatchMethod { return MatchMethodTemplate }

func (t *TemplateDescriptor) Close() {
	t.Image.Close()
}

func (t *TemplateDescriptor) sealed() {}

// FeatureSet 特征点特征：灰度参考图、关键点以及一一对应的二进制描述子
type FeatureSet struct {
	// Image 灰度参考图
	Image gocv.Mat
	// Keypoints 关键点序列
	Keypoints []gocv.KeyPoint
	// Descriptors 描述子矩阵，每行对应一个关键点 (CV_8U)
	Descriptors gocv.Mat
}

func (f *FeatureSet) Method() MatchMethod { return MatchMethodFeature }

func (f *FeatureSet) Close() {
	f.Image.Close()
	f.Descriptors.Close()
}

func (f *FeatureSet) sealed() {}

// Size 返回参考图宽高
func (f *FeatureSet) Size() (int, int) {
	return f.Image.Cols(), f.Image.Rows()
}

// ORBConfig ORB 检测器参数
// 构建 FeatureSet 与匹配帧时必须使用同一份配置
type ORBConfig struct {
	Features      int
	ScaleFactor   float32
	Levels        int
	EdgeThreshold int
	FirstLevel    int
	WTAK          int
	PatchSize     int
	FastThreshold int
}

// DefaultORBConfig 与 OpenCV ORB 默认值一致
func DefaultORBConfig() ORBConfig {
	return ORBConfig{
		Features:      500,
		ScaleFactor:   1.2,
		Levels:        8,
		EdgeThreshold: 31,
		FirstLevel:    0,
		WTAK:          2,
		PatchSize:     31,
		FastThreshold: 20,
	}
}

// FeatureExtractor 特征提取器
// 每个实例持有自己的 ORB 检测器，不可跨 goroutine 共享
type FeatureExtractor struct {
	cfg ORBConfig
	orb gocv.ORB
}

// NewFeatureExtractor 创建特征提取器
func NewFeatureExtractor(cfg ORBConfig) *FeatureExtractor {
	return &FeatureExtractor{
		cfg: cfg,
		orb: gocv.NewORBWithParams(
			cfg.Features,
			cfg.ScaleFactor,
			cfg.Levels,
			cfg.EdgeThreshold,
			cfg.FirstLevel,
			cfg.WTAK,
			gocv.ORBScoreTypeHarris,
			cfg.PatchSize,
			cfg.FastThreshold,
		),
	}
}

// Config 返回检测器参数
func (e *FeatureExtractor) Config() ORBConfig {
	return e.cfg
}

// DetectAndCompute 在灰度图上检测关键点并计算描述子
func (e *FeatureExtractor) DetectAndCompute(gray gocv.Mat) ([]gocv.KeyPoint, gocv.Mat) {
	mask := gocv.NewMat()
	defer mask.Close()
	return e.orb.DetectAndCompute(gray, mask)
}

// Extract 按匹配方法从图像构建特征
func (e *FeatureExtractor) Extract(method MatchMethod, img gocv.Mat) (Descriptor, error) {
	if img.Empty() {
		return nil, fmt.Errorf("图像为空，无法提取特征")
	}

	switch method {
	case MatchMethodTemplate:
		return NewTemplateDescriptor(img), nil
	case MatchMethodFeature:
		gray := ToGray(img)
		kp, desc := e.DetectAndCompute(gray)
		return &FeatureSet{Image: gray, Keypoints: kp, Descriptors: desc}, nil
	default:
		return nil, fmt.Errorf("未知的匹配方法: %s", method)
	}
}

// Close 释放资源
func (e *FeatureExtractor) Close() {
	e.orb.Close()
}
