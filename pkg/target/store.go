package target

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"github.com/zoeyai/pointsight/pkg/vision/cv"
)

// Store 基于文件的目标库
// 增删改操作会立即写回文件；检测统计只更新内存，由调用方择机 Save
type Store struct {
	mu      sync.RWMutex
	path    string
	targets map[string]*Target
	now     func() time.Time
}

// NewStore 创建目标库，调用 Load 读取已有数据
func NewStore(path string) *Store {
	return &Store{
		path:    path,
		targets: make(map[string]*Target),
		now:     time.Now,
	}
}

// Path 返回目标库文件路径
func (s *Store) Path() string {
	return s.path
}

// Load 从文件加载目标
// 文件不存在时得到空库；文件损坏时清空并返回错误
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closeAll()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("读取目标库失败: %w", err)
	}

	targets, err := decodeLibrary(data)
	if err != nil {
		return fmt.Errorf("解析目标库失败: %w", err)
	}
	for _, t := range targets {
		if old, ok := s.targets[t.ID]; ok {
			old.Close()
		}
		s.targets[t.ID] = t
	}
	return nil
}

// Save 将所有目标写入文件
func (s *Store) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	data, err := encodeLibrary(s.sortedLocked())
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("创建目标库目录失败: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("写入目标库失败: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("写入目标库失败: %w", err)
	}
	return nil
}

// Add 从图像创建目标并保存，保存失败时不保留该目标
// 特征由 extractor 按 method 提取，image 会被克隆
func (s *Store) Add(name string, method cv.MatchMethod, box Box, image gocv.Mat, extractor *cv.FeatureExtractor) (*Target, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("目标名称不能为空")
	}
	if extractor == nil {
		return nil, fmt.Errorf("未提供特征提取器")
	}

	desc, err := extractor.Extract(method, image)
	if err != nil {
		return nil, fmt.Errorf("提取目标特征失败: %w", err)
	}

	t := &Target{
		ID:          uuid.NewString(),
		Name:        name,
		Method:      method,
		Descriptor:  desc,
		BoundingBox: box,
		Image:       image.Clone(),
		CreatedAt:   s.now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.targets[t.ID] = t
	if err := s.saveLocked(); err != nil {
		delete(s.targets, t.ID)
		t.Close()
		return nil, err
	}
	return t, nil
}

// Remove 删除目标
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.targets[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.targets, id)
	t.Close()
	return s.saveLocked()
}

// Rename 重命名目标
func (s *Store) Rename(id, name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("目标名称不能为空")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.targets[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	t.Name = name
	return s.saveLocked()
}

// Get 获取目标，返回的目标不应被修改
func (s *Store) Get(id string) (*Target, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.targets[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return t, nil
}

// Find 按 ID 或名称查找目标，ID 支持唯一前缀
func (s *Store) Find(key string) (*Target, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if t, ok := s.targets[key]; ok {
		return t, nil
	}

	var found []*Target
	for _, t := range s.sortedLocked() {
		if t.Name == key || (len(key) >= 4 && strings.HasPrefix(t.ID, key)) {
			found = append(found, t)
		}
	}
	switch len(found) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	case 1:
		return found[0], nil
	default:
		return nil, fmt.Errorf("匹配到 %d 个目标，请使用完整 ID: %s", len(found), key)
	}
}

// All 按创建时间返回所有目标
func (s *Store) All() []*Target {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedLocked()
}

// Len 目标数量
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.targets)
}

// SetActive 设置目标是否参与检测
func (s *Store) SetActive(id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.targets[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if t.Active == active {
		return nil
	}
	t.Active = active
	return s.saveLocked()
}

// ActiveIDs 返回所有激活目标的 ID，按创建时间排序
func (s *Store) ActiveIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := []string{}
	for _, t := range s.sortedLocked() {
		if t.Active {
			ids = append(ids, t.ID)
		}
	}
	return ids
}

// RecordDetection 记录一次检测：计数加一并更新最近检测时间
func (s *Store) RecordDetection(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.targets[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	now := s.now()
	t.LastDetectedAt = &now
	t.DetectionCount++
	return nil
}

// Close 释放所有目标持有的资源
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeAll()
}

func (s *Store) closeAll() {
	for id, t := range s.targets {
		t.Close()
		delete(s.targets, id)
	}
}

func (s *Store) sortedLocked() []*Target {
	list := make([]*Target, 0, len(s.targets))
	for _, t := range s.targets {
		list = append(list, t)
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
	return list
}
