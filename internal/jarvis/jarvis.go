// Package jarvis is the voice session: it waits for the wake word or a
// manual trigger, captures and transcribes a command, answers it locally
// or through the language model, and speaks the reply.
package jarvis

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/spf13/afero"

	"jarvis/internal/lang"
	"jarvis/internal/llm"
	"jarvis/internal/system"
	"jarvis/internal/tts"
	"jarvis/internal/wake"
	"jarvis/pkg/stt"
)

var (
	ErrBusy         = errors.New("assistant is busy")
	ErrNotRunning   = errors.New("session is not running")
	ErrQueueFull    = errors.New("command queue is full")
	ErrEmptyCommand = errors.New("empty command")
	ErrUnsupported  = errors.New("unsupported language")
	ErrNoSystem     = errors.New("system actions unavailable")
)

type State string

const (
	StateIdle       State = "idle"
	StateListening  State = "listening"
	StateProcessing State = "processing"
	StateSpeaking   State = "speaking"
)

type Capturer interface {
	Capture(ctx context.Context) ([]float32, error)
}

type WakeDetector interface {
	Listen(ctx context.Context) (wake.Event, bool, error)
}

type Chatter interface {
	Chat(ctx context.Context, msgs []llm.Message) (string, error)
}

type System interface {
	VolumeUp(ctx context.Context, step int) error
	VolumeDown(ctx context.Context, step int) error
	Mute(ctx context.Context) error
	SetVolume(ctx context.Context, level int) error
	OpenApp(name string) (string, error)
	OpenURL(site string) (string, error)
	SearchWeb(query string) error
	Screenshot(ctx context.Context) (string, error)
	Photo(ctx context.Context) (string, error)
	Info() system.Info
}

type Ducker interface {
	Duck(ctx context.Context) error
	Restore(ctx context.Context) error
}

type Cue interface {
	Play() error
}

type Notifier interface {
	Notify(ctx context.Context, title, body string) error
}

// Deps are the session's collaborators. Capturer, Transcriber and Speaker
// are required; a nil LLM makes every free-form question answer with the
// "not configured" phrase.
type Deps struct {
	Capturer    Capturer
	Transcriber stt.Transcriber
	Wake        WakeDetector
	LLM         Chatter
	Speaker     tts.Speaker
	System      System
	Ducker      Ducker
	Earcon      Cue
	Notifier    Notifier
	Fs          afero.Fs // where recordings are dumped
}

type Options struct {
	Language        lang.Code
	VoiceActivation bool
	AutoListen      bool // listen again after answering a spoken command
	HistorySize     int
	ContextMessages int // history entries sent to the model
	QueueSize       int
	RecordDir       string // non-empty saves every command capture as wav
	WakeBackoff     time.Duration
	IdlePoll        time.Duration
	STTOptions      func(lang.Code) stt.Options
	OnLanguage      func(lang.Code)
	Now             func() time.Time
}

func (o *Options) defaults() {
	if !o.Language.Valid() {
		o.Language = lang.Default
	}
	if o.HistorySize <= 0 {
		o.HistorySize = 50
	}
	if o.ContextMessages <= 0 {
		o.ContextMessages = 6
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 16
	}
	if o.WakeBackoff <= 0 {
		o.WakeBackoff = time.Second
	}
	if o.IdlePoll <= 0 {
		o.IdlePoll = 100 * time.Millisecond
	}
	if o.STTOptions == nil {
		o.STTOptions = func(c lang.Code) stt.Options { return stt.Options{Language: c.Whisper()} }
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

type Entry struct {
	Role     llm.Role  `json:"role"`
	Content  string    `json:"content"`
	Language lang.Code `json:"language"`
	At       time.Time `json:"at"`
}

type command struct {
	id    string
	text  string
	lang  lang.Code
	voice bool
}

type Session struct {
	deps Deps
	opt  Options

	queue chan command

	mu            sync.Mutex
	lang          lang.Code
	listening     bool
	speaking      bool
	processing    bool
	history       []Entry
	runCtx        context.Context
	stopping      bool
	captureCancel context.CancelFunc
	wakeCancel    context.CancelFunc
	speakCancel   context.CancelFunc
	bg            sync.WaitGroup

	speakMu sync.Mutex

	subsMu  sync.Mutex
	subs    map[int]chan Event
	nextSub int
}

func New(deps Deps, opt Options) (*Session, error) {
	if deps.Capturer == nil || deps.Transcriber == nil || deps.Speaker == nil {
		return nil, errors.New("capturer, transcriber and speaker are required")
	}
	opt.defaults()

	return &Session{
		deps:  deps,
		opt:   opt,
		queue: make(chan command, opt.QueueSize),
		lang:  opt.Language,
		subs:  make(map[int]chan Event),
	}, nil
}

func (s *Session) Language() lang.Code {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lang
}

func (s *Session) SetLanguage(c lang.Code) error {
	if !c.Valid() {
		return ErrUnsupported
	}

	s.mu.Lock()
	changed := s.lang != c
	s.lang = c
	s.mu.Unlock()

	if changed {
		if s.opt.OnLanguage != nil {
			s.opt.OnLanguage(c)
		}
		s.emitStatus()
	}
	return nil
}

// stateLocked derives the visible state; speaking wins over listening, which
// wins over processing.
func (s *Session) stateLocked() State {
	switch {
	case s.speaking:
		return StateSpeaking
	case s.listening:
		return StateListening
	case s.processing:
		return StateProcessing
	}
	return StateIdle
}

func (s *Session) busyLocked() bool {
	return s.listening || s.speaking || s.processing
}

type Status struct {
	State           State     `json:"state"`
	Language        lang.Code `json:"language"`
	Listening       bool      `json:"listening"`
	Speaking        bool      `json:"speaking"`
	Processing      bool      `json:"processing"`
	Queued          int       `json:"queued"`
	History         int       `json:"history"`
	LLM             bool      `json:"llm"`
	Transcriber     string    `json:"transcriber"`
	VoiceActivation bool      `json:"voice_activation"`
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Status{
		State:           s.stateLocked(),
		Language:        s.lang,
		Listening:       s.listening,
		Speaking:        s.speaking,
		Processing:      s.processing,
		Queued:          len(s.queue),
		History:         len(s.history),
		LLM:             s.deps.LLM != nil,
		Transcriber:     s.deps.Transcriber.Name(),
		VoiceActivation: s.opt.VoiceActivation && s.deps.Wake != nil,
	}
}

func (s *Session) record(role llm.Role, content string, l lang.Code) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, Entry{Role: role, Content: content, Language: l, At: s.opt.Now()})
	if over := len(s.history) - s.opt.HistorySize; over > 0 {
		s.history = append(s.history[:0:0], s.history[over:]...)
	}
}

// History returns a copy of the conversation, oldest first.
func (s *Session) History() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry(nil), s.history...)
}

func (s *Session) ClearHistory() {
	s.mu.Lock()
	s.history = nil
	s.mu.Unlock()
}

// tail returns the last n entries.
func (s *Session) tail(n int) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > len(s.history) {
		n = len(s.history)
	}
	return append([]Entry(nil), s.history[len(s.history)-n:]...)
}
