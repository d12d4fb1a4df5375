// Package cv 提供目标定位的匹配引擎
//
// 支持以下匹配方法:
//   - 模板匹配 (template_matching): 归一化互相关，逐像素搜索
//   - 特征点匹配 (feature_matching): ORB 描述子 + RANSAC 单应性
//
// 两种方法的原始候选都会经过非极大值抑制 (IoU) 去重。
// 所有调用都是同步、无状态的；Matcher 持有 ORB 检测器，每个 goroutine 使用独立实例。
//
// 基本用法:
//
//	m := cv.NewMatcher(cv.MatchMethodTemplate, cv.WithLogFunc(logFn))
//	defer m.Close()
//
//	desc, err := m.Extract(targetImage)
//	if err != nil {
//	    return err
//	}
//	defer desc.Close()
//
//	detections := m.FindMatches(desc, frame, 0.8)
//	if best, ok := cv.Best(detections); ok {
//	    fmt.Printf("找到位置: %v\n", best.Center())
//	}
package cv
