//go:build !darwin

package screen

// CheckPermissions 非 macOS 系统不需要额外授权
func CheckPermissions() Permissions {
	return Permissions{Accessibility: true, ScreenRecording: true}
}
