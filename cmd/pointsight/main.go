package main

import (
	"flag"
	"fmt"
	"image"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/zoeyai/pointsight/internal/logger"
	"github.com/zoeyai/pointsight/pkg/config"
	"github.com/zoeyai/pointsight/pkg/overlay"
	"github.com/zoeyai/pointsight/pkg/screen"
	"github.com/zoeyai/pointsight/pkg/target"
	"github.com/zoeyai/pointsight/pkg/vision/cv"
)

// 版本信息 (可通过 ldflags 注入)
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// options 命令行参数
type options struct {
	configDir string

	// 目标管理
	add        string
	imagePath  string
	rect       string
	list       bool
	rename     string
	newName    string
	remove     string
	activate   string
	deactivate string

	// 检测
	match      string
	out        string
	run        bool
	method     string
	threshold  float64
	rate       float64
	roi        string
	window     string
	windows    bool
	speed      float64
	smooth     bool
	follow     bool
	overlayDir string
	boxColor   string
	metrics    string

	logLevel    string
	logFile     string
	saveConfig  bool
	showVersion bool
	showHelp    bool
}

func parseFlags(fs *flag.FlagSet, args []string) (*options, map[string]bool, error) {
	o := &options{}
	fs.StringVar(&o.configDir, "config-dir", "", "配置目录 (默认 ~/.pointsight)")

	fs.StringVar(&o.add, "add", "", "添加目标，参数为目标名称")
	fs.StringVar(&o.imagePath, "image", "", "添加目标时使用的截图文件 (默认截取当前屏幕)")
	fs.StringVar(&o.rect, "rect", "", "目标在截图中的区域 x,y,w,h")
	fs.BoolVar(&o.list, "list", false, "列出所有目标")
	fs.StringVar(&o.rename, "rename", "", "重命名目标 (ID 或名称)，配合 -name")
	fs.StringVar(&o.newName, "name", "", "新名称")
	fs.StringVar(&o.remove, "remove", "", "删除目标 (ID 或名称)")
	fs.StringVar(&o.activate, "activate", "", "激活目标 (ID 或名称)")
	fs.StringVar(&o.deactivate, "deactivate", "", "取消激活目标 (ID 或名称)")

	fs.StringVar(&o.match, "match", "", "在图片中查找激活目标")
	fs.StringVar(&o.out, "out", "", "-match 时保存绘制结果的路径")
	fs.BoolVar(&o.run, "run", false, "持续检测屏幕")
	fs.StringVar(&o.method, "method", "", "匹配方法 (template_matching / feature_matching)")
	fs.Float64Var(&o.threshold, "threshold", 0, "置信度阈值 [0.1, 1.0]")
	fs.Float64Var(&o.rate, "rate", 0, "每秒采集帧数 [0.1, 30]")
	fs.StringVar(&o.roi, "roi", "", "采集区域 x,y,w,h，传 full 表示全屏")
	fs.StringVar(&o.window, "window", "", "持续检测时只采集标题或进程名包含该字符串的窗口")
	fs.BoolVar(&o.windows, "windows", false, "列出可见窗口")
	fs.Float64Var(&o.speed, "speed", 0, "指针速度 [1, 10]")
	fs.BoolVar(&o.smooth, "smooth", true, "平滑移动指针")
	fs.BoolVar(&o.follow, "follow", true, "命中时移动指针")
	fs.StringVar(&o.overlayDir, "overlay-dir", "", "持续检测时保存命中帧的目录")
	fs.StringVar(&o.boxColor, "box-color", "", "检测框颜色 #rrggbb")
	fs.StringVar(&o.metrics, "metrics-addr", "", "持续检测时在该地址提供 /metrics，如 :9090")

	fs.StringVar(&o.logLevel, "log-level", "INFO", "日志级别 (DEBUG / INFO / WARN / ERROR)")
	fs.StringVar(&o.logFile, "log-file", "", "同时输出日志到文件")
	fs.BoolVar(&o.saveConfig, "save", false, "保存配置到本地")
	fs.BoolVar(&o.showVersion, "version", false, "显示版本信息")
	fs.BoolVar(&o.showHelp, "help", false, "显示帮助信息")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	return o, set, nil
}

func main() {
	fs := flag.NewFlagSet("pointsight", flag.ExitOnError)
	fs.Usage = printHelp
	opts, set, err := parseFlags(fs, os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	if opts.showVersion {
		printVersion()
		return
	}
	if opts.showHelp {
		printHelp()
		return
	}

	log := logger.Default()
	log.SetLevel(logger.ParseLevel(opts.logLevel))
	if opts.logFile != "" {
		if err := log.SetFile(opts.logFile); err != nil {
			fmt.Printf("[WARN] %v\n", err)
		}
	}
	defer log.Close()

	mgr := config.GetDefaultManager()
	if opts.configDir != "" {
		mgr = config.NewManagerWithDir(opts.configDir)
	}

	cfg, err := mgr.Load()
	if err != nil {
		log.Warn("加载配置失败: %v", err)
	}

	// 命令行参数优先级高于配置文件
	if err := applyOverrides(cfg, opts, set); err != nil {
		fmt.Printf("[ERROR] %v\n", err)
		os.Exit(2)
	}
	for _, field := range cfg.Normalize() {
		log.Warn("配置项 %s 超出范围，已修正", field)
	}

	if opts.saveConfig {
		if err := mgr.Save(cfg); err != nil {
			log.Warn("保存配置失败: %v", err)
		} else {
			log.Info("配置已保存到 %s", mgr.GetConfigFile())
		}
	}

	store := target.NewStore(mgr.TargetsPath(cfg))
	defer store.Close()
	if err := store.Load(); err != nil {
		log.Error("加载目标库失败: %v", err)
	}

	extractor := cv.NewFeatureExtractor(cv.DefaultORBConfig())
	defer extractor.Close()

	app := &app{
		cfg:       cfg,
		mgr:       mgr,
		store:     store,
		extractor: extractor,
		log:       log,
	}
	if opts.boxColor != "" {
		c, err := overlay.ParseColor(opts.boxColor)
		if err != nil {
			log.Warn("%v，使用默认颜色", err)
		} else {
			app.overlay = append(app.overlay, overlay.WithBoxColor(c))
		}
	}

	if err := app.dispatch(opts); err != nil {
		log.Error("%v", err)
		log.Close()
		os.Exit(1)
	}
}

// applyOverrides 将显式设置的参数写入配置
func applyOverrides(cfg *config.Config, o *options, set map[string]bool) error {
	if set["method"] {
		m, err := cv.ParseMatchMethod(o.method)
		if err != nil {
			return err
		}
		cfg.Matching.Method = string(m)
	}
	if set["threshold"] {
		cfg.Matching.Threshold = o.threshold
	}
	if set["rate"] {
		cfg.Capture.Rate = o.rate
	}
	if set["roi"] {
		if strings.EqualFold(o.roi, "full") {
			cfg.Capture.UseROI = false
		} else {
			r, err := parseRect(o.roi)
			if err != nil {
				return fmt.Errorf("-roi: %w", err)
			}
			cfg.Capture.UseROI = true
			cfg.Capture.ROI = [4]int{r.Min.X, r.Min.Y, r.Dx(), r.Dy()}
		}
	}
	if set["speed"] {
		cfg.Cursor.Speed = o.speed
	}
	if set["smooth"] {
		cfg.Cursor.Smooth = o.smooth
	}
	if set["follow"] {
		cfg.Application.FollowCursor = o.follow
	}
	return nil
}

// parseRect 解析 "x,y,w,h"
func parseRect(s string) (image.Rectangle, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return image.Rectangle{}, fmt.Errorf("区域格式应为 x,y,w,h: %q", s)
	}

	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return image.Rectangle{}, fmt.Errorf("区域格式应为 x,y,w,h: %q", s)
		}
		v[i] = n
	}
	if v[2] <= 0 || v[3] <= 0 {
		return image.Rectangle{}, fmt.Errorf("区域宽高必须为正数: %q", s)
	}
	return image.Rect(v[0], v[1], v[0]+v[2], v[1]+v[3]), nil
}

// printVersion 打印版本信息
func printVersion() {
	fmt.Printf("PointSight v%s\n", Version)
	fmt.Printf("Build Time: %s\n", BuildTime)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}

// printHelp 打印帮助信息
func printHelp() {
	fmt.Println("PointSight - 基于图像定位的指针控制工具")
	fmt.Println()
	fmt.Println("用法:")
	fmt.Println("  pointsight [选项]")
	fmt.Println()
	fmt.Println("目标管理:")
	fmt.Println("  -add string          添加目标，参数为目标名称")
	fmt.Println("  -image string        添加目标时使用的截图文件 (默认截取当前屏幕)")
	fmt.Println("  -rect x,y,w,h        目标在截图中的区域")
	fmt.Println("  -list                列出所有目标")
	fmt.Println("  -rename ID -name N   重命名目标")
	fmt.Println("  -remove ID           删除目标")
	fmt.Println("  -activate ID         激活目标")
	fmt.Println("  -deactivate ID       取消激活目标")
	fmt.Println()
	fmt.Println("检测:")
	fmt.Println("  -match string        在图片中查找激活目标")
	fmt.Println("  -out string          -match 时保存绘制结果的路径")
	fmt.Println("  -run                 持续检测屏幕 (Ctrl+C 退出)")
	fmt.Println("  -method string       匹配方法 (template_matching / feature_matching)")
	fmt.Println("  -threshold float     置信度阈值 [0.1, 1.0]")
	fmt.Println("  -rate float          每秒采集帧数 [0.1, 30]")
	fmt.Println("  -roi x,y,w,h|full    采集区域")
	fmt.Println("  -window string       只采集指定窗口 (标题或进程名)")
	fmt.Println("  -windows             列出可见窗口")
	fmt.Println("  -speed float         指针速度 [1, 10]")
	fmt.Println("  -smooth=false        瞬间移动指针")
	fmt.Println("  -follow=false        命中时不移动指针")
	fmt.Println("  -overlay-dir string  保存命中帧的目录")
	fmt.Println("  -box-color string    检测框颜色 #rrggbb")
	fmt.Println("  -metrics-addr string 提供 Prometheus 指标的地址")
	fmt.Println()
	fmt.Println("其他:")
	fmt.Println("  -config-dir string   配置目录")
	fmt.Println("  -log-level string    日志级别 (DEBUG / INFO / WARN / ERROR)")
	fmt.Println("  -log-file string     同时输出日志到文件")
	fmt.Println("  -save                保存配置到本地")
	fmt.Println("  -version             显示版本信息")
	fmt.Println("  -help                显示帮助信息")
	fmt.Println()
	fmt.Println("示例:")
	fmt.Println("  # 从截图中框选目标")
	fmt.Println("  pointsight -add 提交按钮 -image shot.png -rect 120,80,64,32")
	fmt.Println()
	fmt.Println("  # 激活目标并持续检测")
	fmt.Println("  pointsight -activate 提交按钮")
	fmt.Println("  pointsight -run -rate 5 -threshold 0.85")
	fmt.Println()
	fmt.Printf("配置文件位置: %s\n", config.GetDefaultManager().GetConfigFile())
}

// checkPermissions 检查截屏与鼠标控制权限
func checkPermissions(log *logger.Logger) bool {
	if runtime.GOOS != "darwin" {
		return true
	}
	p := screen.CheckPermissions()
	log.Info("辅助功能权限: %v, 屏幕录制权限: %v", p.Accessibility, p.ScreenRecording)
	if p.Granted() {
		return true
	}
	fmt.Println()
	fmt.Println(p.Instructions())
	fmt.Println()
	return false
}
