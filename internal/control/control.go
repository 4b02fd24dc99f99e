// Package control answers the requests jarvis-ctl sends over the control
// socket by driving the session and the user config.
package control

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"jarvis/internal/audio"
	"jarvis/internal/config"
	"jarvis/internal/ipc"
	"jarvis/internal/jarvis"
	"jarvis/internal/lang"
	"jarvis/internal/tts"
	"jarvis/pkg/audioconv"
	"jarvis/pkg/stt"
)

const maxFileSeconds = 120

var errSecretKey = errors.New("openrouter.api_key is read from OPENROUTER_API_KEY, edit .env instead")

// Assistant is the part of the session the control socket drives.
type Assistant interface {
	Trigger(ctx context.Context) error
	Submit(text string, l lang.Code) (string, error)
	Speak(ctx context.Context, text string, l lang.Code) error
	SetLanguage(c lang.Code) error
	Language() lang.Code
	Status() jarvis.Status
	Stop()
	History() []jarvis.Entry
	ClearHistory()
}

// ModelLister is the language model endpoint's catalogue.
type ModelLister interface {
	Models(ctx context.Context) ([]string, error)
}

var errNoModel = errors.New("no language model configured, set OPENROUTER_API_KEY")

type Handler struct {
	Session     Assistant
	Transcriber stt.Transcriber
	Models      ModelLister // nil without an API key
	Fs          afero.Fs
	Voice       func(tts.Settings) // applies voice.* changes, may be nil

	mu      sync.Mutex
	cfg     *config.Config
	cfgPath string
}

// New returns a handler editing cfg, which is saved to path on changes.
// Session must be set before the first request.
func New(cfg *config.Config, path string) *Handler {
	return &Handler{cfg: cfg, cfgPath: path}
}

func (c *Handler) Handle(ctx context.Context, req ipc.Request) ipc.Response {
	switch req.Cmd {
	case ipc.CmdPing:
		return ipc.OK("pong")

	case ipc.CmdTrigger:
		if err := c.Session.Trigger(ctx); err != nil {
			return ipc.Fail(err)
		}
		return ipc.OK("listening")

	case ipc.CmdSay:
		l, err := optionalLang(req.Lang)
		if err != nil {
			return ipc.Fail(err)
		}
		id, err := c.Session.Submit(req.Text, l)
		if err != nil {
			return ipc.Fail(err)
		}
		return ipc.OK(id)

	case ipc.CmdSpeak:
		l, err := optionalLang(req.Lang)
		if err != nil {
			return ipc.Fail(err)
		}
		if strings.TrimSpace(req.Text) == "" {
			return ipc.Fail(jarvis.ErrEmptyCommand)
		}
		if err := c.Session.Speak(ctx, req.Text, l); err != nil {
			return ipc.Fail(err)
		}
		return ipc.OK("")

	case ipc.CmdLang:
		raw := req.Lang
		if raw == "" {
			raw = req.Text
		}
		if raw == "" {
			return ipc.OK(string(c.Session.Language()))
		}
		l, ok := lang.Parse(raw)
		if !ok {
			return ipc.Fail(fmt.Errorf("%w: %q", jarvis.ErrUnsupported, raw))
		}
		if err := c.Session.SetLanguage(l); err != nil {
			return ipc.Fail(err)
		}
		return ipc.OK(string(l))

	case ipc.CmdStatus:
		st := c.Session.Status()
		return ipc.OK(string(st.State)).WithStatus(st)

	case ipc.CmdStop:
		c.Session.Stop()
		return ipc.OK("stopped")

	case ipc.CmdFile:
		text, err := c.transcribeFile(ctx, req)
		if err != nil {
			return ipc.Fail(err)
		}
		return ipc.OK(text)

	case ipc.CmdConfigGet:
		return c.configGet(req.Key)

	case ipc.CmdConfigSet:
		return c.configSet(req.Key, req.Value)

	case ipc.CmdHistory:
		return ipc.OK(formatHistory(c.Session.History()))

	case ipc.CmdClear:
		c.Session.ClearHistory()
		return ipc.OK("history cleared")

	case ipc.CmdModels:
		if c.Models == nil {
			return ipc.Fail(errNoModel)
		}
		ids, err := c.Models.Models(ctx)
		if err != nil {
			return ipc.Fail(err)
		}
		return ipc.OK(strings.Join(ids, "\n"))
	}

	return ipc.Fail(fmt.Errorf("unknown command %q", req.Cmd))
}

// formatHistory renders one "15:04:05 user [pt-BR]: text" line per entry.
func formatHistory(entries []jarvis.Entry) string {
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s %s [%s]: %s", e.At.Format(time.TimeOnly), e.Role, e.Language, e.Content)
	}
	return b.String()
}

func optionalLang(raw string) (lang.Code, error) {
	if raw == "" {
		return "", nil
	}
	l, ok := lang.Parse(raw)
	if !ok {
		return "", fmt.Errorf("%w: %q", jarvis.ErrUnsupported, raw)
	}
	return l, nil
}

// transcribeFile decodes the file named in req.Text, transcribes it and
// queues the text as a command.
func (c *Handler) transcribeFile(ctx context.Context, req ipc.Request) (string, error) {
	path := strings.TrimSpace(req.Text)
	if path == "" {
		return "", errors.New("file path required")
	}
	l, err := optionalLang(req.Lang)
	if err != nil {
		return "", err
	}
	if l == "" {
		l = c.Session.Language()
	}

	pcm, err := audioconv.DecodeFile(ctx, c.Fs, path, audioconv.Options{MaxSamples: maxFileSeconds * audio.SampleRate})
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", path, err)
	}
	log.Info("file decoded", "path", path, "seconds", audio.FrameDuration(len(pcm)))

	res, err := c.Transcriber.Transcribe(ctx, pcm, stt.Options{Language: l.Whisper()})
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	if _, err := c.Session.Submit(res.Text, l); err != nil {
		return "", err
	}
	return res.Text, nil
}

func (c *Handler) configGet(key string) ipc.Response {
	if key == "" {
		return ipc.Fail(errors.New("key required"))
	}
	if isSecret(key) {
		c.mu.Lock()
		set := c.cfg.OpenRouter.APIKey != ""
		c.mu.Unlock()
		if set {
			return ipc.OK("<set>")
		}
		return ipc.OK("<unset>")
	}

	c.mu.Lock()
	res, err := c.cfg.Get(key)
	c.mu.Unlock()
	if err != nil {
		return ipc.Fail(err)
	}
	return ipc.OK(res.Raw)
}

// configSet changes one key, persists the user file and applies what can
// change at runtime.
func (c *Handler) configSet(key, value string) ipc.Response {
	if key == "" {
		return ipc.Fail(errors.New("key required"))
	}
	if isSecret(key) {
		return ipc.Fail(errSecretKey)
	}

	c.mu.Lock()
	if err := c.cfg.SetString(key, value); err != nil {
		c.mu.Unlock()
		return ipc.Fail(err)
	}
	if err := c.cfg.Save(c.Fs, c.cfgPath); err != nil {
		c.mu.Unlock()
		return ipc.Fail(fmt.Errorf("save config: %w", err))
	}
	snap := *c.cfg
	c.mu.Unlock()

	log.Info("config changed", "key", key)

	switch {
	case key == "languages.default":
		if err := c.Session.SetLanguage(snap.Language()); err != nil {
			return ipc.Fail(err)
		}
	case strings.HasPrefix(key, "voice.") && c.Voice != nil:
		c.Voice(tts.Settings{Rate: snap.Voice.Rate, Volume: snap.Voice.Volume})
	}

	res, err := snap.Get(key)
	if err != nil {
		return ipc.Fail(err)
	}
	return ipc.OK(res.Raw)
}

// PersistLanguage stores a language switch made by voice or socket as the
// new languages.default, the language the next run starts in.
func (c *Handler) PersistLanguage(l lang.Code) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfg.Language() == l {
		return
	}
	c.cfg.Languages.Default = string(l)
	if err := c.cfg.Save(c.Fs, c.cfgPath); err != nil {
		log.Warn("persist language", "lang", l, "err", err)
	}
}

func isSecret(key string) bool {
	return strings.EqualFold(strings.TrimSpace(key), "openrouter.api_key")
}
