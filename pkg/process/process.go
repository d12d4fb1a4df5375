// Package process 采样当前进程的资源占用，用于检测循环的统计日志
package process

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// Usage 进程资源占用
type Usage struct {
	CPUPercent float64 `json:"cpu_percent"`
	RSS        uint64  `json:"rss"`
}

func (u Usage) String() string {
	return fmt.Sprintf("cpu %.1f%% rss %s", u.CPUPercent, FormatBytes(u.RSS))
}

// Sampler 按最小间隔采样，间隔内重复调用返回缓存值
type Sampler struct {
	mu     sync.Mutex
	proc   *process.Process
	every  time.Duration
	now    func() time.Time
	last   time.Time
	cached Usage
	valid  bool
}

// NewSampler 创建当前进程的采样器
func NewSampler(every time.Duration) (*Sampler, error) {
	return NewSamplerForPID(int32(os.Getpid()), every)
}

// NewSamplerForPID 创建指定进程的采样器
func NewSamplerForPID(pid int32, every time.Duration) (*Sampler, error) {
	proc, err := process.NewProcess(pid)
	if err != nil {
		return nil, fmt.Errorf("获取进程 %d 失败: %w", pid, err)
	}
	// 首次调用只建立基准
	proc.Percent(0)

	return &Sampler{
		proc:  proc,
		every: every,
		now:   time.Now,
	}, nil
}

// Sample 返回当前资源占用
func (s *Sampler) Sample() (Usage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.valid && now.Sub(s.last) < s.every {
		return s.cached, nil
	}

	cpu, err := s.proc.Percent(0)
	if err != nil {
		return s.cached, fmt.Errorf("获取 CPU 占用失败: %w", err)
	}
	mem, err := s.proc.MemoryInfo()
	if err != nil {
		return s.cached, fmt.Errorf("获取内存占用失败: %w", err)
	}

	s.cached = Usage{CPUPercent: cpu, RSS: mem.RSS}
	s.last = now
	s.valid = true
	return s.cached, nil
}

// FormatBytes 格式化字节数
func FormatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := uint64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%cB", float64(n)/float64(div), "KMGTPE"[exp])
}
