package cv

import (
	"math"
	"sort"

	"gocv.io/x/gocv"
)

const (
	// MinKeypoints 参考图或帧的最少关键点数
	MinKeypoints = 4
	// MinGoodMatches 交叉验证后最少匹配对数，同时作为置信度的归一化分母
	MinGoodMatches = 10
	// MaxWorkingMatches 参与单应性估计的最多匹配对数
	MaxWorkingMatches = 50
	// RANSACReprojThreshold RANSAC 内点重投影容差（像素）
	RANSACReprojThreshold = 5.0

	ransacMaxIters   = 2000
	ransacConfidence = 0.995
)

// GeometricMatcher 特征点匹配器
// ORB 描述子 + 汉明距离交叉验证 + RANSAC 单应性，每次最多返回一个结果
type GeometricMatcher struct {
	extractor *FeatureExtractor
	logf      LogFunc
	seed      *int
}

// NewGeometricMatcher 创建特征点匹配器
// extractor 必须与构建 FeatureSet 时使用的配置一致
func NewGeometricMatcher(extractor *FeatureExtractor, logf LogFunc) *GeometricMatcher {
	return &GeometricMatcher{extractor: extractor, logf: logf}
}

// SetRANSACSeed 固定 RANSAC 随机种子，便于复现
func (g *GeometricMatcher) SetRANSACSeed(seed int) {
	g.seed = &seed
}

// Match 在 frame 中定位 FeatureSet 对应的目标
func (g *GeometricMatcher) Match(fs *FeatureSet, frame gocv.Mat, threshold float64) (detections []Detection) {
	defer recoverMatch(g.logf, "特征点匹配", &detections)

	if fs == nil || fs.Image.Empty() || frame.Empty() {
		return nil
	}
	if len(fs.Keypoints) < MinKeypoints || fs.Descriptors.Empty() {
		g.logf.log("DEBUG", "参考图特征点不足: %d", len(fs.Keypoints))
		return nil
	}

	gray := ToGray(frame)
	defer gray.Close()

	kpFrame, descFrame := g.extractor.DetectAndCompute(gray)
	defer descFrame.Close()

	if len(kpFrame) < MinKeypoints || descFrame.Empty() {
		g.logf.log("DEBUG", "帧特征点不足: %d", len(kpFrame))
		return nil
	}
	if fs.Descriptors.Type() != descFrame.Type() || fs.Descriptors.Cols() != descFrame.Cols() {
		g.logf.log("WARN", "描述子格式不一致，参考图与帧可能使用了不同的检测器配置")
		return nil
	}

	matcher := gocv.NewBFMatcherWithParams(gocv.NormHamming, true)
	defer matcher.Close()

	working := selectWorkingSet(matcher.Match(fs.Descriptors, descFrame))
	if working == nil {
		g.logf.log("DEBUG", "有效匹配少于 %d 对", MinGoodMatches)
		return nil
	}

	H, inliers := g.findHomography(fs.Keypoints, kpFrame, working)
	defer H.Close()
	if H.Empty() {
		g.logf.log("DEBUG", "未找到单应性矩阵")
		return nil
	}

	w, h := fs.Size()
	corners := []gocv.Point2f{
		{X: 0, Y: 0},
		{X: 0, Y: float32(h - 1)},
		{X: float32(w - 1), Y: float32(h - 1)},
		{X: float32(w - 1), Y: 0},
	}

	box, ok := boundingBox(perspectiveTransform(corners, H))
	if !ok {
		return nil
	}

	box.Confidence = math.Min(1.0, float64(inliers)/MinGoodMatches)
	if box.Confidence < threshold {
		return nil
	}

	g.logf.log("DEBUG", "特征点匹配成功: %s, 内点 %d/%d", box, inliers, len(working))
	return []Detection{box}
}

// findHomography 估计参考图到帧的单应性矩阵，返回矩阵与内点数
func (g *GeometricMatcher) findHomography(kpRef, kpFrame []gocv.KeyPoint, matches []gocv.DMatch) (gocv.Mat, int) {
	srcMat := gocv.NewMatWithSize(len(matches), 1, gocv.MatTypeCV32FC2)
	dstMat := gocv.NewMatWithSize(len(matches), 1, gocv.MatTypeCV32FC2)
	defer srcMat.Close()
	defer dstMat.Close()

	for i, m := range matches {
		srcMat.SetFloatAt(i, 0, float32(kpRef[m.QueryIdx].X))
		srcMat.SetFloatAt(i, 1, float32(kpRef[m.QueryIdx].Y))
		dstMat.SetFloatAt(i, 0, float32(kpFrame[m.TrainIdx].X))
		dstMat.SetFloatAt(i, 1, float32(kpFrame[m.TrainIdx].Y))
	}

	if g.seed != nil {
		gocv.SetRNGSeed(*g.seed)
	}

	mask := gocv.NewMat()
	defer mask.Close()
	H := gocv.FindHomography(srcMat, dstMat, gocv.HomographyMethodRANSAC, RANSACReprojThreshold, &mask, ransacMaxIters, ransacConfidence)

	return H, countInliers(mask)
}

// selectWorkingSet 按距离升序排序，少于 MinGoodMatches 返回 nil，最多保留 MaxWorkingMatches 个
func selectWorkingSet(matches []gocv.DMatch) []gocv.DMatch {
	if len(matches) < MinGoodMatches {
		return nil
	}

	sorted := make([]gocv.DMatch, len(matches))
	copy(sorted, matches)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Distance < sorted[j].Distance
	})

	if len(sorted) > MaxWorkingMatches {
		sorted = sorted[:MaxWorkingMatches]
	}
	return sorted
}

func countInliers(mask gocv.Mat) int {
	if mask.Empty() {
		return 0
	}
	inliers := 0
	for i := 0; i < mask.Rows(); i++ {
		if mask.GetUCharAt(i, 0) > 0 {
			inliers++
		}
	}
	return inliers
}

// boundingBox 投影角点取整后的外接矩形（包含端点像素）
func boundingBox(corners []gocv.Point2f) (Detection, bool) {
	if len(corners) == 0 {
		return Detection{}, false
	}

	minX, minY := math.MaxInt32, math.MaxInt32
	maxX, maxY := math.MinInt32, math.MinInt32
	for _, pt := range corners {
		x, y := float64(pt.X), float64(pt.Y)
		if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
			return Detection{}, false
		}
		ix, iy := int(x), int(y)
		minX, maxX = min(minX, ix), max(maxX, ix)
		minY, maxY = min(minY, iy), max(maxY, iy)
	}

	return Detection{
		X:      minX,
		Y:      minY,
		Width:  maxX - minX + 1,
		Height: maxY - minY + 1,
	}, true
}

// perspectiveTransform 透视变换
func perspectiveTransform(pts []gocv.Point2f, H gocv.Mat) []gocv.Point2f {
	h00, h01, h02 := H.GetDoubleAt(0, 0), H.GetDoubleAt(0, 1), H.GetDoubleAt(0, 2)
	h10, h11, h12 := H.GetDoubleAt(1, 0), H.GetDoubleAt(1, 1), H.GetDoubleAt(1, 2)
	h20, h21, h22 := H.GetDoubleAt(2, 0), H.GetDoubleAt(2, 1), H.GetDoubleAt(2, 2)

	result := make([]gocv.Point2f, len(pts))
	for i, pt := range pts {
		x, y := float64(pt.X), float64(pt.Y)

		w := h20*x + h21*y + h22
		if w == 0 {
			nan := float32(math.NaN())
			result[i] = gocv.Point2f{X: nan, Y: nan}
			continue
		}
		result[i].X = float32((h00*x + h01*y + h02) / w)
		result[i].Y = float32((h10*x + h11*y + h12) / w)
	}

	return result
}
