package jarvis

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"jarvis/internal/audio"
	"jarvis/internal/lang"
	"jarvis/pkg/stt"
)

// Run drives the session until ctx is done: a worker drains the command
// queue and, with voice activation on, a second loop waits for the wake
// word. It returns once every goroutine it started has exited.
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.runCtx != nil {
		s.mu.Unlock()
		return errors.New("session already running")
	}
	s.runCtx = ctx
	s.mu.Unlock()

	log.Info("session started",
		"lang", s.Language(),
		"voice_activation", s.opt.VoiceActivation && s.deps.Wake != nil,
		"stt", s.deps.Transcriber.Name(),
		"llm", s.deps.LLM != nil,
	)
	s.emitStatus()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.worker(ctx)
	}()

	if s.opt.VoiceActivation && s.deps.Wake != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.wakeLoop(ctx)
		}()
	}

	<-ctx.Done()

	s.mu.Lock()
	s.stopping = true
	s.mu.Unlock()

	s.Stop()
	wg.Wait()
	s.bg.Wait()

	log.Info("session stopped")
	return nil
}

func (s *Session) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-s.queue:
			s.process(ctx, cmd)
		}
	}
}

func (s *Session) wakeLoop(ctx context.Context) {
	for ctx.Err() == nil {
		s.mu.Lock()
		busy := s.busyLocked() || len(s.queue) > 0
		s.mu.Unlock()
		if busy {
			sleep(ctx, s.opt.IdlePoll)
			continue
		}

		lctx, cancel := context.WithCancel(ctx)
		s.mu.Lock()
		s.wakeCancel = cancel
		s.mu.Unlock()

		ev, ok, err := s.deps.Wake.Listen(lctx)

		s.mu.Lock()
		s.wakeCancel = nil
		s.mu.Unlock()
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if lctx.Err() != nil {
				continue
			}
			log.Warn("wake listen failed", "err", err)
			sleep(ctx, s.opt.WakeBackoff)
			continue
		}
		if !ok {
			continue
		}

		log.Info("wake word", "heard", ev.Heard)
		s.emit(Event{Kind: EventWakeWord, Text: ev.Heard, Language: s.Language()})

		if ev.Remainder != "" {
			if _, err := s.submit(ev.Remainder, "", true); err != nil {
				log.Warn("inline command dropped", "err", err)
			}
			continue
		}

		cctx, ok := s.acquireListening(ctx)
		if !ok {
			continue
		}
		s.capture(cctx)
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// acquireListening claims the microphone for one command capture and
// returns the context that Stop cancels.
func (s *Session) acquireListening(parent context.Context) (context.Context, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listening || s.speaking {
		return nil, false
	}
	return s.listenLocked(parent), true
}

func (s *Session) listenLocked(parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)
	s.listening = true
	s.captureCancel = cancel
	return ctx
}

// Trigger starts a command capture without the wake word. It returns as
// soon as listening has begun; the command is processed in the
// background.
func (s *Session) Trigger(context.Context) error {
	s.mu.Lock()
	switch {
	case s.runCtx == nil || s.stopping:
		s.mu.Unlock()
		return ErrNotRunning
	case s.listening || s.speaking:
		s.mu.Unlock()
		return ErrBusy
	}
	ctx := s.listenLocked(s.runCtx)
	if s.wakeCancel != nil {
		// release the microphone held by the wake window
		s.wakeCancel()
	}
	s.bg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.bg.Done()
		s.capture(ctx)
	}()
	return nil
}

// capture records one command, transcribes it and queues it. ctx comes
// from listenLocked; capture releases the listening flag when done.
func (s *Session) capture(ctx context.Context) {
	s.mu.Lock()
	l := s.lang
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.captureCancel != nil {
			s.captureCancel()
		}
		s.listening = false
		s.captureCancel = nil
		s.mu.Unlock()
		s.emitStatus()
	}()

	s.emitStatus()
	s.cue(ctx, l)

	s.duck(ctx)
	pcm, err := s.deps.Capturer.Capture(ctx)
	s.restore()

	switch {
	case errors.Is(err, audio.ErrNoSpeech), errors.Is(err, stt.ErrNoSpeech):
		log.Info("no speech captured")
		return
	case ctx.Err() != nil:
		log.Debug("capture cancelled")
		return
	case err != nil:
		s.fail("", l, fmt.Errorf("capture: %w", err))
		return
	}

	s.saveRecording(pcm)

	res, err := s.deps.Transcriber.Transcribe(ctx, pcm, s.opt.STTOptions(l))
	switch {
	case errors.Is(err, stt.ErrNoSpeech), errors.Is(err, stt.ErrNoAudio):
		log.Info("nothing recognized")
		return
	case err != nil:
		if ctx.Err() == nil {
			s.fail("", l, fmt.Errorf("transcribe: %w", err))
		}
		return
	}

	log.Info("heard", "text", res.Text, "lang", res.Language)
	if _, err := s.submit(res.Text, l, true); err != nil {
		log.Warn("command dropped", "err", err)
	}
}

func (s *Session) cue(ctx context.Context, l lang.Code) {
	if s.deps.Earcon != nil {
		if err := s.deps.Earcon.Play(); err != nil {
			log.Debug("earcon", "err", err)
		}
	}
	if s.deps.Notifier != nil {
		if err := s.deps.Notifier.Notify(ctx, "JARVIS", lang.Say(l, lang.Listening)); err != nil {
			log.Debug("notify", "err", err)
		}
	}
}

func (s *Session) duck(ctx context.Context) {
	if s.deps.Ducker == nil {
		return
	}
	if err := s.deps.Ducker.Duck(ctx); err != nil {
		log.Debug("duck", "err", err)
	}
}

// restore runs on its own context so cancelled captures still bring the
// other streams back.
func (s *Session) restore() {
	if s.deps.Ducker == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.deps.Ducker.Restore(ctx); err != nil {
		log.Debug("restore", "err", err)
	}
}

func (s *Session) saveRecording(pcm []float32) {
	if s.opt.RecordDir == "" || s.deps.Fs == nil {
		return
	}
	path := audio.RecordingName(s.opt.RecordDir, "command", s.opt.Now())
	if err := audio.WriteWAV(s.deps.Fs, path, pcm); err != nil {
		log.Warn("save recording", "path", path, "err", err)
		return
	}
	log.Debug("recording saved", "path", path)
}

// Submit queues a typed command. An empty language means the session's
// current one. It returns the command id used in emitted events.
func (s *Session) Submit(text string, l lang.Code) (string, error) {
	return s.submit(text, l, false)
}

func (s *Session) submit(text string, l lang.Code, voice bool) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyCommand
	}
	if l == "" {
		l = s.Language()
	}
	if !l.Valid() {
		return "", ErrUnsupported
	}

	cmd := command{id: uuid.NewString(), text: text, lang: l, voice: voice}
	select {
	case s.queue <- cmd:
		log.Debug("command queued", "id", cmd.id, "voice", voice)
		return cmd.id, nil
	default:
		return "", ErrQueueFull
	}
}

// Speak says text right away, outside the command queue. Calls are
// serialized.
func (s *Session) Speak(ctx context.Context, text string, l lang.Code) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if l == "" {
		l = s.Language()
	}

	s.speakMu.Lock()
	defer s.speakMu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.speaking = true
	s.speakCancel = cancel
	s.mu.Unlock()
	s.emitStatus()

	s.duck(ctx)
	err := s.deps.Speaker.Speak(ctx, text, l)
	s.restore()

	s.mu.Lock()
	s.speaking = false
	s.speakCancel = nil
	s.mu.Unlock()
	s.emitStatus()

	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("speak: %w", err)
	}
	return nil
}

// Stop interrupts speech and capture and drops queued commands.
func (s *Session) Stop() {
	s.mu.Lock()
	capture, speak := s.captureCancel, s.speakCancel
	s.mu.Unlock()

	if capture != nil {
		capture()
	}
	if speak != nil {
		speak()
	}
	s.deps.Speaker.Stop()

	dropped := 0
drain:
	for {
		select {
		case <-s.queue:
			dropped++
		default:
			break drain
		}
	}
	if dropped > 0 {
		log.Info("dropped queued commands", "count", dropped)
	}
}

func (s *Session) fail(id string, l lang.Code, err error) {
	log.Error("command failed", "id", id, "err", err)
	s.emit(Event{Kind: EventError, CommandID: id, Language: l, Err: err.Error()})
}
