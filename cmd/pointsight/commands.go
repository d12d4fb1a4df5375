package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"gocv.io/x/gocv"

	"github.com/zoeyai/pointsight/internal/logger"
	"github.com/zoeyai/pointsight/pkg/capture"
	"github.com/zoeyai/pointsight/pkg/config"
	"github.com/zoeyai/pointsight/pkg/metrics"
	"github.com/zoeyai/pointsight/pkg/overlay"
	"github.com/zoeyai/pointsight/pkg/pointer"
	"github.com/zoeyai/pointsight/pkg/screen"
	"github.com/zoeyai/pointsight/pkg/session"
	"github.com/zoeyai/pointsight/pkg/target"
	"github.com/zoeyai/pointsight/pkg/vision/cv"
)

type app struct {
	cfg       *config.Config
	mgr       *config.Manager
	store     *target.Store
	extractor *cv.FeatureExtractor
	log       *logger.Logger
	overlay   []overlay.Option
}

// dispatch 按参数执行对应操作，未指定操作时按 auto_start 决定是否开始检测
func (a *app) dispatch(o *options) error {
	switch {
	case o.add != "":
		return a.addTarget(o.add, o.imagePath, o.rect)
	case o.list:
		return a.listTargets(os.Stdout)
	case o.rename != "":
		return a.renameTarget(o.rename, o.newName)
	case o.remove != "":
		return a.removeTarget(o.remove)
	case o.activate != "":
		return a.setActive(o.activate, true)
	case o.deactivate != "":
		return a.setActive(o.deactivate, false)
	case o.windows:
		return listWindows(os.Stdout)
	case o.match != "":
		return a.matchImage(o.match, o.out)
	case o.run || a.cfg.Application.AutoStart:
		return a.runLoop(o)
	default:
		printHelp()
		return nil
	}
}

func (a *app) addTarget(name, imagePath, rectSpec string) error {
	if rectSpec == "" {
		return errors.New("添加目标需要 -rect x,y,w,h")
	}
	rect, err := parseRect(rectSpec)
	if err != nil {
		return err
	}

	var shot gocv.Mat
	if imagePath != "" {
		shot, err = cv.ReadImage(imagePath)
	} else {
		src := capture.NewScreenSource(a.cfg.Capture.Rate, image.Rectangle{})
		defer src.Close()
		shot, _, err = src.Capture(true)
	}
	if err != nil {
		return err
	}
	defer shot.Close()

	patch, err := cv.CropImage(shot, rect)
	if err != nil {
		return err
	}
	defer patch.Close()

	box := target.BoxFromRect(rect.Intersect(image.Rect(0, 0, shot.Cols(), shot.Rows())))
	t, err := a.store.Add(name, a.cfg.MatchMethod(), box, patch, a.extractor)
	if err != nil {
		return err
	}

	if fs, ok := t.Descriptor.(*cv.FeatureSet); ok && len(fs.Keypoints) < cv.MinKeypoints {
		a.log.Warn("目标 %s 只有 %d 个特征点，特征点匹配可能无法命中", name, len(fs.Keypoints))
	}
	a.log.Info("已添加目标 %s (%s, %s, %s)", t.Name, t.ID, t.Method, t.BoundingBox)
	return nil
}

func (a *app) listTargets(w io.Writer) error {
	targets := a.store.All()
	if len(targets) == 0 {
		fmt.Fprintln(w, "目标库为空")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\t名称\t方法\t区域\t激活\t命中次数\t最近命中")
	for _, t := range targets {
		last := "-"
		if t.LastDetectedAt != nil {
			last = t.LastDetectedAt.Format("2006-01-02 15:04:05")
		}
		active := ""
		if t.Active {
			active = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			t.ID, t.Name, t.Method, t.BoundingBox, active, t.DetectionCount, last)
	}
	return tw.Flush()
}

func (a *app) renameTarget(key, name string) error {
	t, err := a.store.Find(key)
	if err != nil {
		return err
	}
	if err := a.store.Rename(t.ID, name); err != nil {
		return err
	}
	a.log.Info("目标 %s 已重命名为 %s", t.ID, name)
	return nil
}

func (a *app) removeTarget(key string) error {
	t, err := a.store.Find(key)
	if err != nil {
		return err
	}
	id, name := t.ID, t.Name
	if err := a.store.Remove(id); err != nil {
		return err
	}
	a.log.Info("已删除目标 %s (%s)", name, id)
	return a.syncActive()
}

func (a *app) setActive(key string, active bool) error {
	t, err := a.store.Find(key)
	if err != nil {
		return err
	}
	if err := a.store.SetActive(t.ID, active); err != nil {
		return err
	}
	a.log.Info("目标 %s 激活状态: %v", t.Name, active)
	return a.syncActive()
}

// syncActive 将激活目标列表同步到配置文件
func (a *app) syncActive() error {
	a.cfg.Application.ActiveTargetIDs = a.store.ActiveIDs()
	return a.mgr.Save(a.cfg)
}

func (a *app) newSession(src session.FrameSource, ptr session.Pointer, overlayDir string, m *metrics.Metrics) *session.Session {
	return session.New(src, a.store, ptr, a.extractor, session.Options{
		Method:     a.cfg.MatchMethod(),
		Threshold:  a.cfg.Matching.Threshold,
		Follow:     a.cfg.Application.FollowCursor && ptr != nil,
		OverlayDir: overlayDir,
		Metrics:    m,
		Overlay:    a.overlay,
	}, a.log)
}

func (a *app) matchImage(path, out string) error {
	frame, err := cv.ReadImage(path)
	if err != nil {
		return err
	}
	defer frame.Close()

	if len(a.store.ActiveIDs()) == 0 {
		return errors.New("没有激活的目标，请先使用 -activate")
	}

	s := a.newSession(stillSource{}, nil, "", nil)
	defer s.Close()
	cycle := s.RunOnce(frame, image.Point{})

	for _, r := range cycle.Results {
		if len(r.Detections) == 0 {
			fmt.Printf("%s: 未找到\n", r.Name)
			continue
		}
		for _, d := range r.Detections {
			c := d.Center()
			fmt.Printf("%s: %v 中心 (%d, %d)\n", r.Name, d, c.X, c.Y)
		}
	}

	if err := a.store.Save(); err != nil {
		a.log.Warn("保存检测统计失败: %v", err)
	}

	if out != "" {
		r, err := overlay.NewRenderer(append([]overlay.Option{overlay.WithSystemFont()}, a.overlay...)...)
		if err != nil {
			return err
		}
		img, err := r.Draw(frame, session.Labels(cycle))
		if err != nil {
			return err
		}
		defer img.Close()
		if err := cv.WriteImage(out, img); err != nil {
			return err
		}
		a.log.Info("结果已保存到 %s", out)
	}
	return nil
}

func (a *app) runLoop(o *options) error {
	if len(a.store.ActiveIDs()) == 0 {
		return errors.New("没有激活的目标，请先使用 -activate")
	}
	if !checkPermissions(a.log) {
		return errors.New("缺少系统权限")
	}

	roi := a.cfg.Capture.ROIRect()
	if o.window != "" {
		w, err := screen.FindWindow(o.window)
		if err != nil {
			return err
		}
		if err := screen.ActivateWindow(w); err != nil {
			a.log.Warn("%v", err)
		}
		sw, sh := screen.Size()
		roi = w.Bounds.Intersect(image.Rect(0, 0, sw, sh))
		if roi.Empty() {
			return fmt.Errorf("窗口不在屏幕范围内: %s", w)
		}
		a.log.Info("采集窗口 %s", w)
	}

	if note := displayNote(screen.DisplayCount(), roi); note != "" {
		a.log.Info("%s", note)
	}

	src := capture.NewScreenSource(a.cfg.Capture.Rate, roi)
	defer src.Close()
	w, h := src.Dimensions()
	a.log.Info("采集区域 %dx%d, %.1f 帧/秒", w, h, src.Rate())

	var ptr session.Pointer
	if a.cfg.Application.FollowCursor {
		ptr = pointer.NewController(a.cfg.Cursor.Speed, a.cfg.Cursor.Smooth, pointer.WithLogFunc(a.log.LogFunc()))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if o.metrics != "" {
		m = metrics.New()
		go func() {
			if err := m.Serve(ctx, o.metrics); err != nil {
				a.log.Error("指标服务失败: %v", err)
			}
		}()
		a.log.Info("指标地址 http://%s/metrics", o.metrics)
	}

	s := a.newSession(src, ptr, o.overlayDir, m)
	defer s.Close()

	fmt.Println("[INFO] 按 Ctrl+C 退出")
	err := s.Run(ctx)

	if saveErr := a.store.Save(); saveErr != nil {
		a.log.Warn("保存检测统计失败: %v", saveErr)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// displayNote 多显示器且未指定区域时提示只采集主显示器
func displayNote(displays int, roi image.Rectangle) string {
	if displays > 1 && roi.Empty() {
		return fmt.Sprintf("检测到 %d 个显示器，只采集主显示器，可用 -roi 或 -window 指定区域", displays)
	}
	return ""
}

func listWindows(w io.Writer) error {
	windows, err := screen.Windows("")
	if err != nil {
		return err
	}
	if len(windows) == 0 {
		fmt.Fprintln(w, "未找到可见窗口")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PID\t进程\t标题\t区域")
	for _, win := range windows {
		b := win.Bounds
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d,%d,%d,%d\n", win.PID, win.Owner, win.Title, b.Min.X, b.Min.Y, b.Dx(), b.Dy())
	}
	return tw.Flush()
}

// stillSource 单张图片模式下不产生新帧
type stillSource struct{}

func (stillSource) Capture(bool) (gocv.Mat, bool, error) { return gocv.Mat{}, false, nil }

func (stillSource) Origin() image.Point { return image.Point{} }
