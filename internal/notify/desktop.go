// Package notify gives audible and visual feedback outside the voice
// channel: an earcon when listening starts and desktop notifications.
package notify

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

const appName = "JARVIS"

// Desktop posts notifications through notify-send.
type Desktop struct {
	Icon string
}

func (d Desktop) Notify(ctx context.Context, title, body string) error {
	args := []string{"--app-name", appName, "--expire-time", "4000"}
	if d.Icon != "" {
		args = append(args, "--icon", d.Icon)
	}
	args = append(args, title, body)

	out, err := exec.CommandContext(ctx, "notify-send", args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("notify-send: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}
