package screen

import "strings"

// Permissions 系统权限状态
type Permissions struct {
	Accessibility   bool `json:"accessibility"`
	ScreenRecording bool `json:"screen_recording"`
}

// Granted 是否全部授权
func (p Permissions) Granted() bool {
	return p.Accessibility && p.ScreenRecording
}

// Instructions 返回缺失权限的授权说明，全部授权时为空
func (p Permissions) Instructions() string {
	if p.Granted() {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("需要授权以下权限才能正常工作:\n")
	if !p.ScreenRecording {
		sb.WriteString("  - 屏幕录制 (用于截屏定位目标): 系统设置 > 隐私与安全性 > 屏幕录制\n")
	}
	if !p.Accessibility {
		sb.WriteString("  - 辅助功能 (用于移动鼠标): 系统设置 > 隐私与安全性 > 辅助功能\n")
	}
	sb.WriteString("授权后需要重启程序才能生效。")
	return sb.String()
}
