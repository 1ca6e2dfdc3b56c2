package notify

import (
	"context"
	"os/exec"
	"runtime"
	"strings"
)

// Desktop shows run summaries as native desktop notifications.
// Platforms without a known notifier are ignored.
type Desktop struct {
	goos string
	run  func(ctx context.Context, name string, args ...string) error
}

// NewDesktop creates a notifier for the current platform
func NewDesktop() *Desktop {
	return &Desktop{
		goos: runtime.GOOS,
		run: func(ctx context.Context, name string, args ...string) error {
			return exec.CommandContext(ctx, name, args...).Run()
		},
	}
}

func (d *Desktop) Send(ctx context.Context, n Notification) error {
	name, args, ok := desktopCommand(d.goos, n)
	if !ok {
		return nil
	}
	return d.run(ctx, name, args...)
}

// desktopCommand returns the program that displays n on goos
func desktopCommand(goos string, n Notification) (string, []string, bool) {
	switch goos {
	case "darwin":
		return "osascript", []string{"-e", appleScript(n)}, true
	case "linux":
		args := []string{"--app-name", "checklist-orch", "--icon", desktopIcon(n.Level)}
		if n.Level == LevelError {
			args = append(args, "--urgency", "critical")
		}
		return "notify-send", append(args, n.Title, n.Message), true
	default:
		return "", nil, false
	}
}

var appleScriptEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", " ")

func appleScript(n Notification) string {
	return `display notification "` + appleScriptEscaper.Replace(n.Message) +
		`" with title "` + appleScriptEscaper.Replace(n.Title) + `"`
}

func desktopIcon(l Level) string {
	switch l {
	case LevelSuccess:
		return "dialog-positive"
	case LevelWarning:
		return "dialog-warning"
	case LevelError:
		return "dialog-error"
	default:
		return "dialog-information"
	}
}
