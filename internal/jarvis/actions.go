package jarvis

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"path/filepath"
	"time"

	"jarvis/internal/lang"
	"jarvis/internal/llm"
)

func (s *Session) process(ctx context.Context, cmd command) {
	start := time.Now()

	s.mu.Lock()
	s.processing = true
	s.mu.Unlock()
	s.emitStatus()

	defer func() {
		s.mu.Lock()
		s.processing = false
		s.mu.Unlock()
		s.emitStatus()
	}()

	log.Info("command", "id", cmd.id, "text", cmd.text, "lang", cmd.lang)
	s.emit(Event{Kind: EventCommand, Text: cmd.text, Language: cmd.lang, CommandID: cmd.id})
	s.record(llm.RoleUser, cmd.text, cmd.lang)

	reply, l, err := s.respond(ctx, cmd)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.fail(cmd.id, cmd.lang, err)
		reply, l = lang.Say(cmd.lang, lang.Apology), cmd.lang
	}

	s.record(llm.RoleAssistant, reply, l)
	s.emit(Event{Kind: EventResponse, Text: reply, Language: l, CommandID: cmd.id})
	log.Info("response", "id", cmd.id, "took", time.Since(start))

	if err := s.Speak(ctx, reply, l); err != nil {
		log.Warn("speak failed", "id", cmd.id, "err", err)
	}

	if cmd.voice && s.opt.AutoListen && ctx.Err() == nil {
		if err := s.Trigger(ctx); err != nil && !errors.Is(err, ErrBusy) {
			log.Debug("auto listen", "err", err)
		}
	}
}

// respond answers cmd and reports the language of the answer, which
// differs from the command's after a language switch.
func (s *Session) respond(ctx context.Context, cmd command) (string, lang.Code, error) {
	if act, ok := Route(cmd.text); ok {
		log.Debug("local action", "id", cmd.id, "action", act.Kind)
		return s.perform(ctx, act, cmd.lang)
	}
	reply, err := s.ask(ctx, cmd)
	return reply, cmd.lang, err
}

func (s *Session) perform(ctx context.Context, act Action, l lang.Code) (string, lang.Code, error) {
	if act.Kind == ActLanguage {
		if err := s.SetLanguage(act.Lang); err != nil {
			return "", l, err
		}
		return lang.Say(act.Lang, lang.LanguageChanged), act.Lang, nil
	}

	sys := s.deps.System
	if sys == nil {
		return "", l, ErrNoSystem
	}

	switch act.Kind {
	case ActPhoto:
		path, err := sys.Photo(ctx)
		if err != nil {
			log.Warn("photo failed", "err", err)
			return lang.Say(l, lang.CameraUnavailable), l, nil
		}
		return lang.Say(l, lang.PhotoTaken, filepath.Base(path)), l, nil

	case ActScreenshot:
		path, err := sys.Screenshot(ctx)
		if err != nil {
			return "", l, fmt.Errorf("screenshot: %w", err)
		}
		return lang.Say(l, lang.ScreenshotTaken, filepath.Base(path)), l, nil

	case ActVolumeUp:
		if err := sys.VolumeUp(ctx, act.Level); err != nil {
			return "", l, err
		}
		return lang.Say(l, lang.VolumeUp), l, nil

	case ActVolumeDown:
		if err := sys.VolumeDown(ctx, act.Level); err != nil {
			return "", l, err
		}
		return lang.Say(l, lang.VolumeDown), l, nil

	case ActMute:
		if err := sys.Mute(ctx); err != nil {
			return "", l, err
		}
		return lang.Say(l, lang.Muted), l, nil

	case ActVolumeSet:
		if err := sys.SetVolume(ctx, act.Level); err != nil {
			return "", l, err
		}
		return lang.Say(l, lang.VolumeSet, act.Level), l, nil

	case ActOpenApp:
		name, err := sys.OpenApp(act.Arg)
		if err != nil {
			log.Warn("open app failed", "app", act.Arg, "err", err)
			return lang.Say(l, lang.ActionFailed), l, nil
		}
		return lang.Say(l, lang.Opening, name), l, nil

	case ActOpenSite:
		if _, err := sys.OpenURL(act.Arg); err != nil {
			log.Warn("open site failed", "site", act.Arg, "err", err)
			return lang.Say(l, lang.ActionFailed), l, nil
		}
		return lang.Say(l, lang.Opening, act.Arg), l, nil

	case ActSearch:
		if err := sys.SearchWeb(act.Arg); err != nil {
			log.Warn("search failed", "query", act.Arg, "err", err)
			return lang.Say(l, lang.ActionFailed), l, nil
		}
		return lang.Say(l, lang.Searching, act.Arg), l, nil

	case ActSystemInfo:
		info := sys.Info()
		return lang.Say(l, lang.SystemInfo, info.OS, info.CPUs, info.Load1), l, nil
	}

	return "", l, fmt.Errorf("unhandled action %s", act.Kind)
}

// ask sends the persona prompt and the recent conversation, which already
// ends with cmd, to the model. Model failures answer with the fallback
// phrase instead of an error.
func (s *Session) ask(ctx context.Context, cmd command) (string, error) {
	if s.deps.LLM == nil {
		return lang.Say(cmd.lang, lang.NotConfigured), nil
	}

	recent := s.tail(s.opt.ContextMessages)
	msgs := make([]llm.Message, 0, len(recent)+1)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: lang.SystemPrompt(cmd.lang)})
	for _, e := range recent {
		msgs = append(msgs, llm.Message{Role: e.Role, Content: e.Content})
	}

	reply, err := s.deps.LLM.Chat(ctx, msgs)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		log.Warn("model request failed", "id", cmd.id, "err", err)
		s.emit(Event{Kind: EventError, CommandID: cmd.id, Language: cmd.lang, Err: err.Error()})
		return lang.Say(cmd.lang, lang.Fallback), nil
	}
	return reply, nil
}
