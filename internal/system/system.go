// Package system derives the editor/platform identification stamped onto
// session records.
package system

import (
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v3/host"

	"github.com/afklabs/afkmon/internal/session"
)

// DetectEditor classifies an editor application name as "cursor" or "vscode".
// Cursor is a VS Code fork, so anything that isn't recognizably Cursor is
// reported as vscode.
func DetectEditor(appName string) string {
	if strings.Contains(strings.ToLower(appName), "cursor") {
		return "cursor"
	}
	return "vscode"
}

// Platform returns the host platform identifier in the collector's expected
// vocabulary (linux, darwin, win32).
func Platform() string {
	goos := runtime.GOOS
	if info, err := host.Info(); err == nil && info.OS != "" {
		goos = info.OS
	}
	if goos == "windows" {
		return "win32"
	}
	return goos
}

// Info builds the SystemInfo for records produced on this host.
func Info(appName string) session.SystemInfo {
	return session.SystemInfo{
		Editor:   DetectEditor(appName),
		Platform: Platform(),
	}
}
