package config

import (
	"encoding/json"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zoeyai/pointsight/pkg/vision/cv"
)

// 取值范围
const (
	MinCaptureRate = 0.1
	MaxCaptureRate = 30.0
	MinThreshold   = 0.1
	MaxThreshold   = 1.0
	MinCursorSpeed = 1.0
	MaxCursorSpeed = 10.0
)

// CaptureConfig 屏幕采集配置
type CaptureConfig struct {
	Rate   float64 `json:"rate"`    // 每秒帧数
	UseROI bool    `json:"use_roi"` // 是否只采集感兴趣区域
	ROI    [4]int  `json:"roi"`     // x, y, width, height
}

// ROIRect 返回感兴趣区域矩形，未启用或区域无效时返回空矩形
func (c CaptureConfig) ROIRect() image.Rectangle {
	if !c.UseROI || c.ROI[2] <= 0 || c.ROI[3] <= 0 {
		return image.Rectangle{}
	}
	return image.Rect(c.ROI[0], c.ROI[1], c.ROI[0]+c.ROI[2], c.ROI[1]+c.ROI[3])
}

// MatchingConfig 匹配配置
type MatchingConfig struct {
	Method    string  `json:"method"`
	Threshold float64 `json:"threshold"`
}

// CursorConfig 光标控制配置
type CursorConfig struct {
	Speed  float64 `json:"speed"`
	Smooth bool    `json:"smooth"`
}

// ApplicationConfig 应用配置
type ApplicationConfig struct {
	AutoStart       bool     `json:"auto_start"`
	FollowCursor    bool     `json:"follow_cursor"`
	ActiveTargetIDs []string `json:"active_target_ids"`
	TargetsFile     string   `json:"targets_file"` // 相对路径基于配置目录
}

// Config 应用完整配置
type Config struct {
	Capture     CaptureConfig     `json:"capture"`
	Matching    MatchingConfig    `json:"matching"`
	Cursor      CursorConfig      `json:"cursor"`
	Application ApplicationConfig `json:"application"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Capture: CaptureConfig{
			Rate:   1.0,
			UseROI: false,
			ROI:    [4]int{0, 0, 800, 600},
		},
		Matching: MatchingConfig{
			Method:    string(cv.MatchMethodTemplate),
			Threshold: 0.8,
		},
		Cursor: CursorConfig{
			Speed:  5.0,
			Smooth: true,
		},
		Application: ApplicationConfig{
			AutoStart:       false,
			FollowCursor:    true,
			ActiveTargetIDs: []string{},
			TargetsFile:     "targets.pb",
		},
	}
}

// MatchMethod 返回解析后的匹配方法
func (c *Config) MatchMethod() cv.MatchMethod {
	m, err := cv.ParseMatchMethod(c.Matching.Method)
	if err != nil {
		return cv.MatchMethodTemplate
	}
	return m
}

// Normalize 将越界的值收敛到合法范围，返回被修正的字段
func (c *Config) Normalize() []string {
	var fixed []string

	if r := clamp(c.Capture.Rate, MinCaptureRate, MaxCaptureRate); r != c.Capture.Rate {
		c.Capture.Rate = r
		fixed = append(fixed, "capture.rate")
	}
	if c.Capture.ROI[2] < 0 || c.Capture.ROI[3] < 0 {
		c.Capture.ROI[2] = max(c.Capture.ROI[2], 0)
		c.Capture.ROI[3] = max(c.Capture.ROI[3], 0)
		fixed = append(fixed, "capture.roi")
	}

	if m, err := cv.ParseMatchMethod(c.Matching.Method); err != nil || string(m) != c.Matching.Method {
		c.Matching.Method = string(m)
		fixed = append(fixed, "matching.method")
	}
	if th := clamp(c.Matching.Threshold, MinThreshold, MaxThreshold); th != c.Matching.Threshold {
		c.Matching.Threshold = th
		fixed = append(fixed, "matching.threshold")
	}

	if s := clamp(c.Cursor.Speed, MinCursorSpeed, MaxCursorSpeed); s != c.Cursor.Speed {
		c.Cursor.Speed = s
		fixed = append(fixed, "cursor.speed")
	}

	if c.Application.ActiveTargetIDs == nil {
		c.Application.ActiveTargetIDs = []string{}
	}
	if strings.TrimSpace(c.Application.TargetsFile) == "" {
		c.Application.TargetsFile = DefaultConfig().Application.TargetsFile
		fixed = append(fixed, "application.targets_file")
	}

	return fixed
}

// clamp 收敛到 [lo, hi]，NaN 视为 lo
func clamp(v, lo, hi float64) float64 {
	if v != v || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Manager 配置管理器
type Manager struct {
	configDir  string
	configFile string
	mu         sync.RWMutex
}

// NewManager 创建配置管理器
func NewManager() *Manager {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return NewManagerWithDir(filepath.Join(homeDir, ".pointsight"))
}

// NewManagerWithDir 使用指定目录创建配置管理器
func NewManagerWithDir(configDir string) *Manager {
	return &Manager{
		configDir:  configDir,
		configFile: filepath.Join(configDir, "config.json"),
	}
}

// Load 加载配置
// 文件不存在时返回默认配置；文件中缺失的字段保留默认值
func (m *Manager) Load() (*Config, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, err := os.Stat(m.configFile); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(m.configFile)
	if err != nil {
		return DefaultConfig(), fmt.Errorf("读取配置文件失败: %w", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return DefaultConfig(), fmt.Errorf("解析配置文件失败: %w", err)
	}
	config.Normalize()

	return config, nil
}

// Save 保存配置
func (m *Manager) Save(config *Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(m.configDir, 0755); err != nil {
		return fmt.Errorf("创建配置目录失败: %w", err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}

	if err := os.WriteFile(m.configFile, data, 0600); err != nil {
		return fmt.Errorf("写入配置文件失败: %w", err)
	}

	return nil
}

// Clear 清除配置
func (m *Manager) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := os.Stat(m.configFile); os.IsNotExist(err) {
		return nil
	}

	return os.Remove(m.configFile)
}

// GetConfigDir 获取配置目录
func (m *Manager) GetConfigDir() string {
	return m.configDir
}

// GetConfigFile 获取配置文件路径
func (m *Manager) GetConfigFile() string {
	return m.configFile
}

// TargetsPath 解析目标库文件路径
func (m *Manager) TargetsPath(config *Config) string {
	p := config.Application.TargetsFile
	if p == "" {
		p = DefaultConfig().Application.TargetsFile
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.configDir, p)
}

// Exists 检查配置文件是否存在
func (m *Manager) Exists() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, err := os.Stat(m.configFile)
	return err == nil
}

// 全局配置管理器
var defaultManager = NewManager()

// GetDefaultManager 获取默认配置管理器
func GetDefaultManager() *Manager {
	return defaultManager
}

// Load 使用默认管理器加载配置
func Load() (*Config, error) {
	return defaultManager.Load()
}

// Save 使用默认管理器保存配置
func Save(config *Config) error {
	return defaultManager.Save(config)
}
