package jarvis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"

	"jarvis/internal/audio"
	"jarvis/internal/lang"
	"jarvis/internal/llm"
	"jarvis/internal/system"
	"jarvis/internal/wake"
	"jarvis/pkg/stt"
)

type fakeCapturer struct {
	pcm   []float32
	err   error
	block bool // wait for cancellation instead of returning
}

func (f *fakeCapturer) Capture(ctx context.Context) ([]float32, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.pcm, f.err
}

type fakeSTT struct {
	text string
	err  error
}

func (f *fakeSTT) Name() string { return "fake" }

func (f *fakeSTT) Transcribe(context.Context, []float32, stt.Options) (stt.Result, error) {
	if f.err != nil {
		return stt.Result{}, f.err
	}
	return stt.Result{Text: f.text}, nil
}

type utterance struct {
	text string
	lang lang.Code
}

type fakeSpeaker struct {
	spoken chan utterance
	mu     sync.Mutex
	stops  int
}

func newSpeaker() *fakeSpeaker { return &fakeSpeaker{spoken: make(chan utterance, 16)} }

func (f *fakeSpeaker) Speak(_ context.Context, text string, l lang.Code) error {
	f.spoken <- utterance{text, l}
	return nil
}

func (f *fakeSpeaker) Stop() {
	f.mu.Lock()
	f.stops++
	f.mu.Unlock()
}

type fakeLLM struct {
	mu    sync.Mutex
	reply string
	err   error
	calls [][]llm.Message
}

func (f *fakeLLM) Chat(_ context.Context, msgs []llm.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, msgs)
	return f.reply, f.err
}

func (f *fakeLLM) last() []llm.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return nil
	}
	return f.calls[len(f.calls)-1]
}

type fakeSystem struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeSystem) note(c string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	return f.err
}

func (f *fakeSystem) VolumeUp(context.Context, int) error   { return f.note("up") }
func (f *fakeSystem) VolumeDown(context.Context, int) error { return f.note("down") }
func (f *fakeSystem) Mute(context.Context) error            { return f.note("mute") }
func (f *fakeSystem) SetVolume(_ context.Context, l int) error {
	return f.note("set")
}
func (f *fakeSystem) OpenApp(n string) (string, error) { return n, f.note("app:" + n) }
func (f *fakeSystem) OpenURL(s string) (string, error) { return s, f.note("url:" + s) }
func (f *fakeSystem) SearchWeb(q string) error         { return f.note("search:" + q) }
func (f *fakeSystem) Screenshot(context.Context) (string, error) {
	return "/x/output/screenshots/jarvis_screenshot_1.png", f.note("screenshot")
}
func (f *fakeSystem) Photo(context.Context) (string, error) {
	return "/x/output/photos/jarvis_photo_1.jpg", f.note("photo")
}
func (f *fakeSystem) Info() system.Info { return system.Info{OS: "linux", CPUs: 4, Load1: 0.5} }

func (f *fakeSystem) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeWake struct {
	events chan wake.Event
}

func (f *fakeWake) Listen(ctx context.Context) (wake.Event, bool, error) {
	select {
	case <-ctx.Done():
		return wake.Event{}, false, ctx.Err()
	case ev := <-f.events:
		return ev, true, nil
	}
}

type fakeDucker struct {
	mu              sync.Mutex
	ducks, restores int
}

func (f *fakeDucker) Duck(context.Context) error {
	f.mu.Lock()
	f.ducks++
	f.mu.Unlock()
	return nil
}

func (f *fakeDucker) Restore(context.Context) error {
	f.mu.Lock()
	f.restores++
	f.mu.Unlock()
	return nil
}

type harness struct {
	s       *Session
	events  <-chan Event
	speaker *fakeSpeaker
}

func start(t *testing.T, deps Deps, opt Options) *harness {
	t.Helper()

	sp := newSpeaker()
	if deps.Speaker == nil {
		deps.Speaker = sp
	}
	if deps.Capturer == nil {
		deps.Capturer = &fakeCapturer{}
	}
	if deps.Transcriber == nil {
		deps.Transcriber = &fakeSTT{}
	}

	s, err := New(deps, opt)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	events, unsubscribe := s.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run: %v", err)
			}
		case <-time.After(3 * time.Second):
			t.Error("Run did not return")
		}
		unsubscribe()
	})

	waitFor(t, events, func(ev Event) bool { return ev.Kind == EventStatus })
	return &harness{s: s, events: events, speaker: sp}
}

func waitFor(t *testing.T, events <-chan Event, match func(Event) bool) Event {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case ev := <-events:
			if match(ev) {
				return ev
			}
		case <-timeout:
			t.Fatal("timed out waiting for event")
			return Event{}
		}
	}
}

func kind(k EventKind) func(Event) bool {
	return func(ev Event) bool { return ev.Kind == k }
}

func (h *harness) said(t *testing.T) utterance {
	t.Helper()
	select {
	case u := <-h.speaker.spoken:
		return u
	case <-time.After(3 * time.Second):
		t.Fatal("nothing spoken")
		return utterance{}
	}
}

func TestSubmit_AsksModel(t *testing.T) {
	model := &fakeLLM{reply: "Paris, senhor."}
	h := start(t, Deps{LLM: model}, Options{})

	id, err := h.s.Submit("qual a capital da França?", "")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	cmd := waitFor(t, h.events, kind(EventCommand))
	if cmd.CommandID != id || cmd.Language != lang.PtBR {
		t.Fatalf("command event = %+v", cmd)
	}
	resp := waitFor(t, h.events, kind(EventResponse))
	if resp.Text != "Paris, senhor." || resp.CommandID != id {
		t.Fatalf("response event = %+v", resp)
	}

	if u := h.said(t); u.text != "Paris, senhor." || u.lang != lang.PtBR {
		t.Fatalf("spoken = %+v", u)
	}

	msgs := model.last()
	if len(msgs) != 2 || msgs[0].Role != llm.RoleSystem || msgs[0].Content != lang.SystemPrompt(lang.PtBR) {
		t.Fatalf("messages = %+v", msgs)
	}
	if msgs[1].Role != llm.RoleUser || msgs[1].Content != "qual a capital da França?" {
		t.Fatalf("user message = %+v", msgs[1])
	}

	hist := h.s.History()
	if len(hist) != 2 || hist[1].Role != llm.RoleAssistant {
		t.Fatalf("history = %+v", hist)
	}
}

func TestSubmit_NotConfigured(t *testing.T) {
	h := start(t, Deps{}, Options{Language: lang.EnUS})

	if _, err := h.s.Submit("tell me a joke", ""); err != nil {
		t.Fatal(err)
	}
	resp := waitFor(t, h.events, kind(EventResponse))
	if resp.Text != lang.Say(lang.EnUS, lang.NotConfigured) {
		t.Fatalf("response = %q", resp.Text)
	}
}

func TestSubmit_ModelFailure(t *testing.T) {
	h := start(t, Deps{LLM: &fakeLLM{err: errors.New("502 bad gateway")}}, Options{})

	if _, err := h.s.Submit("oi", lang.EsES); err != nil {
		t.Fatal(err)
	}
	ev := waitFor(t, h.events, kind(EventError))
	if ev.Err != "502 bad gateway" {
		t.Fatalf("error event = %+v", ev)
	}
	resp := waitFor(t, h.events, kind(EventResponse))
	if resp.Text != lang.Say(lang.EsES, lang.Fallback) || resp.Language != lang.EsES {
		t.Fatalf("response = %+v", resp)
	}
}

func TestSubmit_LocalActions(t *testing.T) {
	sys := &fakeSystem{}
	model := &fakeLLM{reply: "unused"}
	h := start(t, Deps{LLM: model, System: sys}, Options{})

	steps := []struct {
		text, reply, call string
	}{
		{"aumentar o volume", "Volume aumentado.", "up"},
		{"tire uma foto", "Foto capturada e salva como jarvis_photo_1.jpg.", "photo"},
		{"abrir youtube", "Abrindo youtube.", "url:youtube"},
		{"informações do sistema", "Sistema linux com 4 processadores. Carga média 0.50.", ""},
	}
	for _, st := range steps {
		if _, err := h.s.Submit(st.text, ""); err != nil {
			t.Fatal(err)
		}
		resp := waitFor(t, h.events, kind(EventResponse))
		if resp.Text != st.reply {
			t.Fatalf("%q answered %q, want %q", st.text, resp.Text, st.reply)
		}
		h.said(t)
	}

	calls := sys.snapshot()
	want := []string{"up", "photo", "url:youtube"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v", calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("calls = %v", calls)
		}
	}
	if model.last() != nil {
		t.Fatal("model must not be asked for local actions")
	}
}

func TestSubmit_ActionError(t *testing.T) {
	sys := &fakeSystem{err: errors.New("pactl missing")}
	h := start(t, Deps{System: sys}, Options{})

	if _, err := h.s.Submit("mute", ""); err != nil {
		t.Fatal(err)
	}
	waitFor(t, h.events, kind(EventError))
	resp := waitFor(t, h.events, kind(EventResponse))
	if resp.Text != lang.Say(lang.PtBR, lang.Apology) {
		t.Fatalf("response = %q", resp.Text)
	}

	if _, err := h.s.Submit("tirar foto", ""); err != nil {
		t.Fatal(err)
	}
	resp = waitFor(t, h.events, kind(EventResponse))
	if resp.Text != lang.Say(lang.PtBR, lang.CameraUnavailable) {
		t.Fatalf("response = %q", resp.Text)
	}
}

func TestLanguageSwitch(t *testing.T) {
	var persisted lang.Code
	var mu sync.Mutex
	h := start(t, Deps{}, Options{OnLanguage: func(c lang.Code) {
		mu.Lock()
		persisted = c
		mu.Unlock()
	}})

	if _, err := h.s.Submit("mudar idioma para inglês", ""); err != nil {
		t.Fatal(err)
	}
	resp := waitFor(t, h.events, kind(EventResponse))
	if resp.Text != "Language changed to English." || resp.Language != lang.EnUS {
		t.Fatalf("response = %+v", resp)
	}
	if u := h.said(t); u.lang != lang.EnUS {
		t.Fatalf("spoken in %s", u.lang)
	}
	if h.s.Language() != lang.EnUS {
		t.Fatalf("language = %s", h.s.Language())
	}
	mu.Lock()
	defer mu.Unlock()
	if persisted != lang.EnUS {
		t.Fatalf("persisted = %q", persisted)
	}

	if err := h.s.SetLanguage("xx-XX"); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("err = %v", err)
	}
}

func TestTrigger(t *testing.T) {
	model := &fakeLLM{reply: "São três horas."}
	ducker := &fakeDucker{}
	fs := afero.NewMemMapFs()
	h := start(t, Deps{
		Capturer:    &fakeCapturer{pcm: make([]float32, 1600)},
		Transcriber: &fakeSTT{text: "que horas são?"},
		LLM:         model,
		Ducker:      ducker,
		Fs:          fs,
	}, Options{RecordDir: "/rec"})

	if err := h.s.Trigger(t.Context()); err != nil {
		t.Fatalf("Trigger: %v", err)
	}

	waitFor(t, h.events, func(ev Event) bool { return ev.Kind == EventStatus && ev.Status == StateListening })
	cmd := waitFor(t, h.events, kind(EventCommand))
	if cmd.Text != "que horas são?" {
		t.Fatalf("command = %+v", cmd)
	}
	h.said(t)

	files, _ := afero.ReadDir(fs, "/rec")
	if len(files) != 1 {
		t.Fatalf("recordings = %d", len(files))
	}

	// once for the capture, once while speaking
	deadline := time.Now().Add(3 * time.Second)
	for {
		ducker.mu.Lock()
		ducks, restores := ducker.ducks, ducker.restores
		ducker.mu.Unlock()
		if ducks == 2 && restores == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("ducks=%d restores=%d", ducks, restores)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestTrigger_BusyAndStop(t *testing.T) {
	h := start(t, Deps{Capturer: &fakeCapturer{block: true}}, Options{})

	if err := h.s.Trigger(t.Context()); err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	waitFor(t, h.events, func(ev Event) bool { return ev.Status == StateListening })

	if err := h.s.Trigger(t.Context()); !errors.Is(err, ErrBusy) {
		t.Fatalf("second Trigger = %v", err)
	}
	if st := h.s.Status(); st.State != StateListening || !st.Listening {
		t.Fatalf("status = %+v", st)
	}

	h.s.Stop()
	waitFor(t, h.events, func(ev Event) bool { return ev.Status == StateIdle })

	if err := h.s.Trigger(t.Context()); err != nil {
		t.Fatalf("Trigger after stop: %v", err)
	}
}

func TestTrigger_NoSpeech(t *testing.T) {
	h := start(t, Deps{Capturer: &fakeCapturer{err: audio.ErrNoSpeech}}, Options{})

	if err := h.s.Trigger(t.Context()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, h.events, func(ev Event) bool { return ev.Status == StateListening })
	ev := waitFor(t, h.events, func(ev Event) bool { return ev.Kind != EventStatus || ev.Status == StateIdle })
	if ev.Kind != EventStatus {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestWakeWord_InlineCommand(t *testing.T) {
	sys := &fakeSystem{}
	w := &fakeWake{events: make(chan wake.Event, 1)}
	h := start(t, Deps{Wake: w, System: sys}, Options{VoiceActivation: true})

	w.events <- wake.Event{Keyword: "jarvis", Heard: "Jarvis, pesquisar receitas de bolo", Remainder: "pesquisar receitas de bolo"}

	ev := waitFor(t, h.events, kind(EventWakeWord))
	if ev.Text != "Jarvis, pesquisar receitas de bolo" {
		t.Fatalf("wake event = %+v", ev)
	}
	resp := waitFor(t, h.events, kind(EventResponse))
	if resp.Text != "Pesquisando por receitas de bolo." {
		t.Fatalf("response = %q", resp.Text)
	}
	if calls := sys.snapshot(); len(calls) != 1 || calls[0] != "search:receitas de bolo" {
		t.Fatalf("calls = %v", calls)
	}
}

func TestWakeWord_CapturesCommand(t *testing.T) {
	w := &fakeWake{events: make(chan wake.Event, 1)}
	h := start(t, Deps{
		Wake:        w,
		Capturer:    &fakeCapturer{pcm: make([]float32, 10)},
		Transcriber: &fakeSTT{text: "volume para 30"},
		System:      &fakeSystem{},
	}, Options{VoiceActivation: true})

	w.events <- wake.Event{Keyword: "jarvis", Heard: "Jarvis."}

	waitFor(t, h.events, kind(EventWakeWord))
	resp := waitFor(t, h.events, kind(EventResponse))
	if resp.Text != "Volume ajustado para 30 por cento." {
		t.Fatalf("response = %q", resp.Text)
	}
}

func TestHistory(t *testing.T) {
	model := &fakeLLM{reply: "ok"}
	h := start(t, Deps{LLM: model}, Options{HistorySize: 4, ContextMessages: 3})

	for _, q := range []string{"um", "dois", "três"} {
		if _, err := h.s.Submit(q, ""); err != nil {
			t.Fatal(err)
		}
		waitFor(t, h.events, kind(EventResponse))
		h.said(t)
	}

	hist := h.s.History()
	if len(hist) != 4 || hist[0].Content != "dois" || hist[3].Content != "ok" {
		t.Fatalf("history = %+v", hist)
	}

	msgs := model.last()
	if len(msgs) != 4 || msgs[1].Content != "dois" || msgs[2].Content != "ok" || msgs[3].Content != "três" {
		t.Fatalf("context = %+v", msgs)
	}

	h.s.ClearHistory()
	if len(h.s.History()) != 0 {
		t.Fatal("history not cleared")
	}
}

func TestSubmit_Validation(t *testing.T) {
	s, err := New(Deps{Capturer: &fakeCapturer{}, Transcriber: &fakeSTT{}, Speaker: newSpeaker()}, Options{QueueSize: 1})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.Submit("   ", ""); !errors.Is(err, ErrEmptyCommand) {
		t.Fatalf("empty: %v", err)
	}
	if _, err := s.Submit("hi", "klingon"); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("language: %v", err)
	}
	if _, err := s.Submit("one", ""); err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := s.Submit("two", ""); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("full: %v", err)
	}
	if st := s.Status(); st.Queued != 1 || st.State != StateIdle || st.LLM {
		t.Fatalf("status = %+v", st)
	}

	s.Stop()
	if st := s.Status(); st.Queued != 0 {
		t.Fatalf("queue not drained: %+v", st)
	}

	if err := s.Trigger(t.Context()); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("Trigger before Run = %v", err)
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	if _, err := New(Deps{}, Options{}); err == nil {
		t.Fatal("expected error")
	}
}
