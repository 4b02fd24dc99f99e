// Package system performs the local actions JARVIS handles without the
// language model: volume, camera, screenshots, launching apps and sites.
package system

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"

	"jarvis/internal/audio"
)

const (
	PhotoDir      = "output/photos"
	ScreenshotDir = "output/screenshots"

	DefaultStep   = 10
	stampLayout   = "20060102_150405"
	defaultCamera = "/dev/video0"
)

var ErrNoTool = errors.New("no suitable tool installed")

// Starter launches a program without waiting for it.
type Starter func(name string, args ...string) error

func ExecStarter(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go cmd.Wait()
	return nil
}

type Config struct {
	Root         string
	CameraDevice string
	CameraWidth  int
	CameraHeight int
}

type Controller struct {
	cfg   Config
	fs    afero.Fs
	run   audio.Runner
	start Starter
	now   func() time.Time
}

func New(cfg Config, fs afero.Fs, run audio.Runner, start Starter) *Controller {
	if cfg.CameraDevice == "" {
		cfg.CameraDevice = defaultCamera
	}
	if run == nil {
		run = audio.ExecRunner
	}
	if start == nil {
		start = ExecStarter
	}
	return &Controller{cfg: cfg, fs: fs, run: run, start: start, now: time.Now}
}

// pactl first, ALSA mixer when PulseAudio/PipeWire is missing.
func (c *Controller) mixer(ctx context.Context, pactl []string, amixer []string) error {
	_, err := c.run(ctx, "pactl", pactl...)
	if err == nil {
		return nil
	}
	log.Debug("pactl failed, trying amixer", "err", err)

	if _, err2 := c.run(ctx, "amixer", amixer...); err2 != nil {
		return fmt.Errorf("set volume: %w", errors.Join(err, err2))
	}
	return nil
}

func (c *Controller) VolumeUp(ctx context.Context, step int) error {
	if step <= 0 {
		step = DefaultStep
	}
	return c.mixer(ctx,
		[]string{"set-sink-volume", "@DEFAULT_SINK@", fmt.Sprintf("+%d%%", step)},
		[]string{"-q", "sset", "Master", fmt.Sprintf("%d%%+", step)})
}

func (c *Controller) VolumeDown(ctx context.Context, step int) error {
	if step <= 0 {
		step = DefaultStep
	}
	return c.mixer(ctx,
		[]string{"set-sink-volume", "@DEFAULT_SINK@", fmt.Sprintf("-%d%%", step)},
		[]string{"-q", "sset", "Master", fmt.Sprintf("%d%%-", step)})
}

func (c *Controller) Mute(ctx context.Context) error {
	return c.mixer(ctx,
		[]string{"set-sink-mute", "@DEFAULT_SINK@", "toggle"},
		[]string{"-q", "sset", "Master", "toggle"})
}

// SetVolume sets the default sink to level percent, clamped to 0..100.
func (c *Controller) SetVolume(ctx context.Context, level int) error {
	level = max(0, min(100, level))
	return c.mixer(ctx,
		[]string{"set-sink-volume", "@DEFAULT_SINK@", fmt.Sprintf("%d%%", level)},
		[]string{"-q", "sset", "Master", fmt.Sprintf("%d%%", level)})
}

var appRe = regexp.MustCompile(`^[a-z0-9][a-z0-9._+-]*$`)

var appAliases = map[string]string{
	"navegador":   "firefox",
	"browser":     "firefox",
	"navigateur":  "firefox",
	"terminal":    "x-terminal-emulator",
	"calculadora": "gnome-calculator",
	"calculator":  "gnome-calculator",
	"arquivos":    "nautilus",
	"archivos":    "nautilus",
	"files":       "nautilus",
	"editor":      "gnome-text-editor",
	"code":        "code",
	"vscode":      "code",
}

// AppName maps a spoken application name to an executable.
func AppName(spoken string) (string, bool) {
	name := strings.ToLower(strings.TrimSpace(spoken))
	name = strings.Trim(name, ".!?,")
	if alias, ok := appAliases[name]; ok {
		return alias, true
	}
	name = strings.ReplaceAll(name, " ", "-")
	return name, appRe.MatchString(name)
}

func (c *Controller) OpenApp(spoken string) (string, error) {
	name, ok := AppName(spoken)
	if !ok {
		return "", fmt.Errorf("invalid application name %q", spoken)
	}
	if err := c.start(name); err != nil {
		return name, fmt.Errorf("start %s: %w", name, err)
	}
	return name, nil
}

// SiteURL turns "youtube" or "github.com/foo" into a full URL.
func SiteURL(site string) string {
	site = strings.TrimSpace(strings.Trim(strings.TrimSpace(site), ".!?,"))
	if strings.Contains(site, "://") {
		return site
	}
	site = strings.ReplaceAll(strings.ToLower(site), " ", "")
	host := site
	if i := strings.IndexByte(site, '/'); i >= 0 {
		host = site[:i]
	}
	if !strings.Contains(host, ".") {
		site = host + ".com" + site[len(host):]
	}
	return "https://" + site
}

func (c *Controller) OpenURL(site string) (string, error) {
	u := SiteURL(site)
	if _, err := url.ParseRequestURI(u); err != nil {
		return "", fmt.Errorf("invalid url %q: %w", u, err)
	}
	if err := c.start("xdg-open", u); err != nil {
		return u, fmt.Errorf("open %s: %w", u, err)
	}
	return u, nil
}

func SearchURL(query string) string {
	return "https://www.google.com/search?q=" + url.QueryEscape(strings.TrimSpace(query))
}

func (c *Controller) SearchWeb(query string) error {
	if strings.TrimSpace(query) == "" {
		return errors.New("empty search query")
	}
	return c.start("xdg-open", SearchURL(query))
}

func (c *Controller) output(dir, kind, ext string) (string, error) {
	full := filepath.Join(c.cfg.Root, dir)
	if err := c.fs.MkdirAll(full, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	name := fmt.Sprintf("jarvis_%s_%s.%s", kind, c.now().Format(stampLayout), ext)
	return filepath.Join(full, name), nil
}

var screenshotTools = []struct {
	name string
	args func(path string) []string
}{
	{"grim", func(p string) []string { return []string{p} }},
	{"gnome-screenshot", func(p string) []string { return []string{"-f", p} }},
	{"scrot", func(p string) []string { return []string{"-o", p} }},
	{"import", func(p string) []string { return []string{"-window", "root", p} }},
}

// Screenshot saves the screen under output/screenshots and returns the
// file path.
func (c *Controller) Screenshot(ctx context.Context) (string, error) {
	path, err := c.output(ScreenshotDir, "screenshot", "png")
	if err != nil {
		return "", err
	}

	var errs []error
	for _, tool := range screenshotTools {
		if _, err := c.run(ctx, tool.name, tool.args(path)...); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", tool.name, err))
			continue
		}
		log.Info("screenshot saved", "path", path, "tool", tool.name)
		return path, nil
	}
	return "", fmt.Errorf("%w: %w", ErrNoTool, errors.Join(errs...))
}

// Photo grabs one frame from the camera with ffmpeg into output/photos.
func (c *Controller) Photo(ctx context.Context) (string, error) {
	path, err := c.output(PhotoDir, "photo", "jpg")
	if err != nil {
		return "", err
	}

	args := []string{"-hide_banner", "-loglevel", "error", "-y", "-f", "v4l2"}
	if c.cfg.CameraWidth > 0 && c.cfg.CameraHeight > 0 {
		args = append(args, "-video_size", fmt.Sprintf("%dx%d", c.cfg.CameraWidth, c.cfg.CameraHeight))
	}
	args = append(args, "-i", c.cfg.CameraDevice, "-frames:v", "1", path)

	if _, err := c.run(ctx, "ffmpeg", args...); err != nil {
		return "", fmt.Errorf("capture photo from %s: %w", c.cfg.CameraDevice, err)
	}

	log.Info("photo saved", "path", path)
	return path, nil
}

type Info struct {
	Hostname string
	OS       string
	CPUs     int
	Load1    float64 // 1-minute load average, 0 when unknown
}

func (c *Controller) Info() Info {
	host, _ := os.Hostname()
	info := Info{Hostname: host, OS: runtime.GOOS, CPUs: runtime.NumCPU()}

	data, err := afero.ReadFile(c.fs, "/proc/loadavg")
	if err != nil {
		return info
	}
	if fields := strings.Fields(string(data)); len(fields) > 0 {
		info.Load1, _ = strconv.ParseFloat(fields[0], 64)
	}
	return info
}
