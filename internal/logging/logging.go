package logging

import (
	"fmt"
	"io"
	log "log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	slogmulti "github.com/samber/slog-multi"
	"github.com/spf13/afero"
)

var levelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

func ParseLevel(s string) (log.Level, error) {
	lvl, ok := levelMap[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return log.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
	return lvl, nil
}

type Options struct {
	Level   log.Level
	Console io.Writer // defaults to os.Stdout
	Dir     string    // daily log file directory, empty disables the file
	NoColor bool
	Now     func() time.Time
	Fs      afero.Fs // defaults to the OS filesystem
}

// Setup installs the default logger: a colored console handler at
// opt.Level and, when opt.Dir is set, a plain text file handler at debug
// level writing to <Dir>/jarvis_YYYYMMDD.log. The returned closer closes
// the file.
func Setup(opt Options) (*log.Logger, io.Closer, error) {
	if opt.Console == nil {
		opt.Console = os.Stdout
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	if opt.Fs == nil {
		opt.Fs = afero.NewOsFs()
	}

	console := tint.NewHandler(opt.Console, &tint.Options{
		Level:      opt.Level,
		TimeFormat: time.TimeOnly,
		NoColor:    opt.NoColor,
	})

	if opt.Dir == "" {
		l := log.New(console)
		log.SetDefault(l)
		return l, io.NopCloser(nil), nil
	}

	if err := opt.Fs.MkdirAll(opt.Dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}

	path := FileName(opt.Dir, opt.Now())
	f, err := opt.Fs.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	file := log.NewTextHandler(f, &log.HandlerOptions{
		Level:     log.LevelDebug,
		AddSource: true,
	})

	l := log.New(slogmulti.Fanout(console, file))
	log.SetDefault(l)

	return l, f, nil
}

func FileName(dir string, t time.Time) string {
	return filepath.Join(dir, "jarvis_"+t.Format("20060102")+".log")
}
