// Package session 实现检测循环: 采集帧、匹配激活目标、记录检测并移动指针
package session

import (
	"context"
	"fmt"
	"image"
	"path/filepath"
	"strings"
	"time"

	"gocv.io/x/gocv"

	"github.com/zoeyai/pointsight/internal/logger"
	"github.com/zoeyai/pointsight/pkg/capture"
	"github.com/zoeyai/pointsight/pkg/metrics"
	"github.com/zoeyai/pointsight/pkg/overlay"
	"github.com/zoeyai/pointsight/pkg/process"
	"github.com/zoeyai/pointsight/pkg/target"
	"github.com/zoeyai/pointsight/pkg/vision/cv"
)

// FrameSource 带屏幕偏移的帧来源
type FrameSource interface {
	capture.Source
	Origin() image.Point
}

// Targets 会话使用的目标库操作
type Targets interface {
	ActiveIDs() []string
	Get(id string) (*target.Target, error)
	RecordDetection(id string) error
}

// Pointer 指针移动
type Pointer interface {
	MoveToDetection(d cv.Detection, offset cv.Point) cv.Point
}

// Result 单个目标在一帧中的匹配结果
type Result struct {
	TargetID   string
	Name       string
	Detections []cv.Detection
}

// Cycle 一次检测的结果
type Cycle struct {
	Results []Result
	// Moved 指针移动到的位置，未移动时为 nil
	Moved   *cv.Point
	Elapsed time.Duration
}

// Found 命中的目标数
func (c Cycle) Found() int {
	n := 0
	for _, r := range c.Results {
		if len(r.Detections) > 0 {
			n++
		}
	}
	return n
}

// FoundNames 命中目标的名称
func (c Cycle) FoundNames() []string {
	var names []string
	for _, r := range c.Results {
		if len(r.Detections) > 0 {
			names = append(names, r.Name)
		}
	}
	return names
}

// Summary 用于日志的简要描述
func (c Cycle) Summary() string {
	var parts []string
	for _, r := range c.Results {
		if best, ok := cv.Best(r.Detections); ok {
			parts = append(parts, fmt.Sprintf("%s=%v", r.Name, best))
		}
	}
	if len(parts) == 0 {
		return fmt.Sprintf("0/%d", len(c.Results))
	}
	return fmt.Sprintf("%d/%d %s", c.Found(), len(c.Results), strings.Join(parts, " "))
}

// Options 会话配置
type Options struct {
	// Method 匹配方法，与之不一致的目标会被跳过；为空时使用模板匹配
	Method    cv.MatchMethod
	Threshold float64
	// Follow 命中时移动指针
	Follow bool
	// OverlayDir 非空时把命中的帧绘制结果保存为 PNG
	OverlayDir string
	// PollInterval 帧来源限速时的轮询间隔
	PollInterval time.Duration
	// Metrics 可选的 Prometheus 指标
	Metrics *metrics.Metrics
	// Overlay 绘制结果图时附加的选项
	Overlay []overlay.Option
}

// Session 检测会话，不能在多个 goroutine 间共享
type Session struct {
	source    FrameSource
	targets   Targets
	pointer   Pointer
	matcher   *cv.Matcher
	opts      Options
	log       *logger.Logger
	sampler   *process.Sampler
	renderer  *overlay.Renderer
	cycles    int
}

// New 创建会话
// extractor 必须与构建目标特征时使用的配置一致，由调用方负责关闭；pointer 可为 nil
func New(source FrameSource, targets Targets, pointer Pointer, extractor *cv.FeatureExtractor, opts Options, log *logger.Logger) *Session {
	if log == nil {
		log = logger.Default()
	}
	if opts.Method == "" {
		opts.Method = cv.MatchMethodTemplate
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 20 * time.Millisecond
	}

	s := &Session{
		source:    source,
		targets:   targets,
		pointer:   pointer,
		opts:      opts,
		log:       log,
	}

	mopts := []cv.Option{cv.WithLogFunc(log.LogFunc())}
	if extractor != nil {
		mopts = append(mopts, cv.WithExtractor(extractor))
	}
	s.matcher = cv.NewMatcher(opts.Method, mopts...)

	sampler, err := process.NewSampler(time.Second)
	if err != nil {
		log.Warn("无法采样进程资源: %v", err)
	} else {
		s.sampler = sampler
	}
	return s
}

// Close 释放匹配器
func (s *Session) Close() {
	if s.matcher != nil {
		s.matcher.Close()
		s.matcher = nil
	}
}

// Cycles 已完成的检测次数
func (s *Session) Cycles() int {
	return s.cycles
}

// Run 持续检测直到 ctx 取消，返回 ctx.Err()
func (s *Session) Run(ctx context.Context) error {
	s.log.Info("检测开始: %s, 阈值 %.2f, 跟随指针 %v", s.matcher.Method(), s.opts.Threshold, s.opts.Follow)
	defer func() {
		s.log.Info("检测结束: 共 %d 帧", s.cycles)
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		frame, ok, err := s.source.Capture(false)
		if err != nil {
			s.log.Error("采集失败: %v", err)
			if s.opts.Metrics != nil {
				s.opts.Metrics.CaptureError()
			}
		}
		if ok {
			origin := s.source.Origin()
			s.RunOnce(frame, origin)
			frame.Close()
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.opts.PollInterval):
		}
	}
}

// RunOnce 对一帧执行一次检测
// origin 为帧左上角在屏幕上的位置
func (s *Session) RunOnce(frame gocv.Mat, origin image.Point) Cycle {
	start := time.Now()
	var cycle Cycle

	for _, id := range s.targets.ActiveIDs() {
		t, err := s.targets.Get(id)
		if err != nil {
			s.log.Warn("激活目标不可用: %v", err)
			continue
		}

		// 特征类型与配置的方法不一致时 FindMatches 返回空结果
		dets := s.matcher.FindMatches(t.Descriptor, frame, s.opts.Threshold)
		cycle.Results = append(cycle.Results, Result{TargetID: t.ID, Name: t.Name, Detections: dets})
		if len(dets) == 0 {
			continue
		}

		if err := s.targets.RecordDetection(t.ID); err != nil {
			s.log.Warn("记录检测失败: %v", err)
		}

		// 只跟随第一个命中的目标
		if s.opts.Follow && s.pointer != nil && cycle.Moved == nil {
			best, _ := cv.Best(dets)
			p := s.pointer.MoveToDetection(best, cv.Point{X: origin.X, Y: origin.Y})
			cycle.Moved = &p
		}
	}

	cycle.Elapsed = time.Since(start)
	s.cycles++
	s.report(cycle)
	if s.opts.Metrics != nil {
		s.opts.Metrics.ObserveCycle(cycle.Elapsed, cycle.FoundNames(), cycle.Moved != nil)
	}

	if s.opts.OverlayDir != "" && cycle.Found() > 0 {
		if err := s.writeOverlay(frame, cycle); err != nil {
			s.log.Warn("保存检测结果图失败: %v", err)
		}
	}
	return cycle
}

func (s *Session) report(c Cycle) {
	detail := c.Summary()
	if s.sampler != nil {
		if usage, err := s.sampler.Sample(); err == nil {
			detail += " | " + usage.String()
			if s.opts.Metrics != nil {
				s.opts.Metrics.SetProcessUsage(usage.CPUPercent, usage.RSS)
			}
		}
	}
	if c.Moved != nil {
		detail += fmt.Sprintf(" | 指针 (%d, %d)", c.Moved.X, c.Moved.Y)
	}

	ms := float64(c.Elapsed.Microseconds()) / 1000
	if c.Found() > 0 {
		s.log.LogEvent("DET", true, ms, detail)
	} else {
		s.log.Debug("DET  | -- | %6.1fms | %s", ms, detail)
	}
}

func (s *Session) writeOverlay(frame gocv.Mat, c Cycle) error {
	if s.renderer == nil {
		opts := append([]overlay.Option{overlay.WithSystemFont()}, s.opts.Overlay...)
		r, err := overlay.NewRenderer(opts...)
		if err != nil {
			return err
		}
		s.renderer = r
	}

	out, err := s.renderer.Draw(frame, Labels(c))
	if err != nil {
		return err
	}
	defer out.Close()

	name := fmt.Sprintf("det_%s_%04d.png", time.Now().Format("20060102_150405"), s.cycles)
	return cv.WriteImage(filepath.Join(s.opts.OverlayDir, name), out)
}

// Labels 将检测结果转换为绘制用的标签
func Labels(c Cycle) []overlay.Labeled {
	var items []overlay.Labeled
	for _, r := range c.Results {
		for _, d := range r.Detections {
			items = append(items, overlay.Labeled{Name: r.Name, Detection: d})
		}
	}
	return items
}
