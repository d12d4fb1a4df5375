package cv

import (
	"fmt"
	"time"

	"gocv.io/x/gocv"
)

// Matcher 匹配入口
// 按特征类型分派到模板匹配或特征点匹配，结果统一经过 Suppress
// 实例持有 ORB 检测器，不可跨 goroutine 共享
type Matcher struct {
	method           MatchMethod
	overlapThreshold float64
	logf             LogFunc

	extractor     *FeatureExtractor
	ownsExtractor bool
	seed          *int

	correlation *CorrelationMatcher
	geometric   *GeometricMatcher
}

// Option 匹配器选项
type Option func(*Matcher)

// WithLogFunc 设置诊断日志输出
func WithLogFunc(fn LogFunc) Option {
	return func(m *Matcher) {
		m.logf = fn
	}
}

// WithOverlapThreshold 设置去重 IoU 阈值
func WithOverlapThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.overlapThreshold = threshold
	}
}

// WithExtractor 使用外部特征提取器（调用方负责 Close）
func WithExtractor(e *FeatureExtractor) Option {
	return func(m *Matcher) {
		m.extractor = e
	}
}

// WithRANSACSeed 固定 RANSAC 随机种子
func WithRANSACSeed(seed int) Option {
	return func(m *Matcher) {
		m.seed = &seed
	}
}

// NewMatcher 创建匹配器，未知方法回退为模板匹配
func NewMatcher(method MatchMethod, opts ...Option) *Matcher {
	m := &Matcher{
		method:           method,
		overlapThreshold: DefaultOverlapThreshold,
	}
	for _, opt := range opts {
		opt(m)
	}

	if !m.method.Valid() {
		m.logf.log("WARN", "未知的匹配方法 '%s'，使用 %s", method, MatchMethodTemplate)
		m.method = MatchMethodTemplate
	}

	if m.extractor == nil {
		m.extractor = NewFeatureExtractor(DefaultORBConfig())
		m.ownsExtractor = true
	}

	m.correlation = NewCorrelationMatcher(m.logf)
	m.geometric = NewGeometricMatcher(m.extractor, m.logf)
	if m.seed != nil {
		m.geometric.SetRANSACSeed(*m.seed)
	}
	return m
}

// Method 返回当前匹配方法
func (m *Matcher) Method() MatchMethod {
	return m.method
}

// Extractor 返回特征提取器
func (m *Matcher) Extractor() *FeatureExtractor {
	return m.extractor
}

// Extract 用当前方法与检测器配置从图像构建特征
func (m *Matcher) Extract(img gocv.Mat) (Descriptor, error) {
	return m.extractor.Extract(m.method, img)
}

// FindMatches 在帧中查找目标，返回去重后的检测结果（按置信度降序）
// 输入无效时返回空结果并输出诊断日志，不会返回错误
func (m *Matcher) FindMatches(desc Descriptor, frame gocv.Mat, threshold float64) (results []Detection) {
	defer recoverMatch(m.logf, "匹配", &results)

	if desc == nil {
		m.logf.log("WARN", "目标特征为空，无法匹配")
		return nil
	}
	if frame.Empty() {
		m.logf.log("WARN", "帧图像为空，无法匹配")
		return nil
	}
	if desc.Method() != m.method {
		m.logf.log("WARN", "目标特征类型 %s 与匹配方法 %s 不一致", desc.Method(), m.method)
		return nil
	}

	startTime := time.Now()

	var raw []Detection
	switch d := desc.(type) {
	case *TemplateDescriptor:
		if d == nil {
			m.logf.log("WARN", "目标特征为空，无法匹配")
			return nil
		}
		raw = m.correlation.Match(d.Image, frame, threshold)
	case *FeatureSet:
		if d == nil {
			m.logf.log("WARN", "目标特征为空，无法匹配")
			return nil
		}
		raw = m.geometric.Match(d, frame, threshold)
	}

	results = Suppress(raw, m.overlapThreshold)
	m.logf.log("DEBUG", "%s: 候选 %d 个，去重后 %d 个，耗时 %dms",
		m.method, len(raw), len(results), time.Since(startTime).Milliseconds())
	return results
}

// Close 释放资源
func (m *Matcher) Close() {
	if m.ownsExtractor && m.extractor != nil {
		m.extractor.Close()
		m.extractor = nil
	}
}

// recoverMatch 在匹配器边界捕获异常并转为空结果
func recoverMatch(logf LogFunc, name string, out *[]Detection) {
	if r := recover(); r != nil {
		logf.log("ERROR", "%s异常: %v", name, r)
		*out = nil
	}
}

func (m *Matcher) String() string {
	return fmt.Sprintf("Matcher(%s, overlap=%.2f)", m.method, m.overlapThreshold)
}
