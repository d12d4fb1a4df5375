package cv

import (
	"sort"
)

// DefaultOverlapThreshold 默认去重交并比阈值
const DefaultOverlapThreshold = 0.3

// Suppress 非极大值抑制
// 按置信度降序（同分保持输入顺序）依次保留最高者，并丢弃与其 IoU 大于 overlapThreshold 的候选
func Suppress(candidates []Detection, overlapThreshold float64) []Detection {
	if len(candidates) == 0 {
		return nil
	}

	sorted := make([]Detection, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	suppressed := make([]bool, len(sorted))
	var keep []Detection
	for i, best := range sorted {
		if suppressed[i] {
			continue
		}
		keep = append(keep, best)

		for j := i + 1; j < len(sorted); j++ {
			if !suppressed[j] && best.IoU(sorted[j]) > overlapThreshold {
				suppressed[j] = true
			}
		}
	}

	return keep
}

// Best 返回置信度最高的检测结果
func Best(detections []Detection) (Detection, bool) {
	if len(detections) == 0 {
		return Detection{}, false
	}
	best := detections[0]
	for _, d := range detections[1:] {
		if d.Confidence > best.Confidence {
			best = d
		}
	}
	return best, true
}
