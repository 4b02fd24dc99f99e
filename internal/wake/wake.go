// Package wake spots the wake word by transcribing short windows of
// microphone audio and matching the text.
package wake

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"jarvis/internal/audio"
	"jarvis/pkg/stt"
)

type Event struct {
	Keyword   string
	Heard     string // full transcript of the window
	Remainder string // what followed the wake word, if anything
	Language  string // language reported by the transcriber
	At        time.Time
}

type Capturer interface {
	Window(ctx context.Context, d time.Duration) ([]float32, error)
}

type Config struct {
	Word    string
	Window  time.Duration
	MinRMS  float64 // windows quieter than this are not transcribed
	Options func() stt.Options
	Now     func() time.Time
}

type Detector struct {
	cfg Config
	cap Capturer
	tr  stt.Transcriber
}

func NewDetector(cfg Config, c Capturer, tr stt.Transcriber) *Detector {
	if cfg.Word == "" {
		cfg.Word = "jarvis"
	}
	if cfg.Window <= 0 {
		cfg.Window = 2 * time.Second
	}
	if cfg.Options == nil {
		cfg.Options = func() stt.Options { return stt.Options{Language: "auto"} }
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Detector{cfg: cfg, cap: c, tr: tr}
}

func (d *Detector) Word() string { return d.cfg.Word }

// Listen captures one window and reports whether it contained the wake
// word. Silent windows return (Event{}, false, nil).
func (d *Detector) Listen(ctx context.Context) (Event, bool, error) {
	pcm, err := d.cap.Window(ctx, d.cfg.Window)
	if err != nil {
		return Event{}, false, err
	}

	if audio.RMS(pcm) < d.cfg.MinRMS {
		return Event{}, false, nil
	}

	res, err := d.tr.Transcribe(ctx, pcm, d.cfg.Options())
	if errors.Is(err, stt.ErrNoSpeech) {
		return Event{}, false, nil
	}
	if err != nil {
		return Event{}, false, err
	}

	rest, ok := Match(res.Text, d.cfg.Word)
	if !ok {
		return Event{}, false, nil
	}

	return Event{
		Keyword:   d.cfg.Word,
		Heard:     res.Text,
		Remainder: rest,
		Language:  res.Language,
		At:        d.cfg.Now(),
	}, true, nil
}

type token struct {
	norm string
	end  int // byte offset just past the token in the original text
}

var fold = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize lowercases s and strips diacritics, so "Járvis" == "jarvis".
func Normalize(s string) string {
	out, _, err := transform.String(fold, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

func tokenize(s string) []token {
	var (
		toks  []token
		start = -1
	)
	flush := func(end int) {
		if start >= 0 {
			toks = append(toks, token{norm: Normalize(s[start:end]), end: end})
			start = -1
		}
	}

	for i, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		flush(i)
	}
	flush(len(s))

	return toks
}

// Match finds the wake word (one or more words) in text on word
// boundaries, ignoring case, accents and punctuation. The returned
// remainder is the original text following the first match, with
// immediate repeats of the wake word ("jarvis jarvis ...") skipped.
func Match(text, word string) (string, bool) {
	want := tokenize(word)
	if len(want) == 0 {
		return "", false
	}
	have := tokenize(text)

	hitAt := func(i int) bool {
		if i+len(want) > len(have) {
			return false
		}
		for j := range want {
			if have[i+j].norm != want[j].norm {
				return false
			}
		}
		return true
	}

	found := -1
	for i := 0; i+len(want) <= len(have); i++ {
		if hitAt(i) {
			found = i
			break
		}
	}
	if found < 0 {
		return "", false
	}
	for hitAt(found + len(want)) {
		found += len(want)
	}
	found += len(want) - 1

	rest := text[have[found].end:]
	rest = strings.TrimLeftFunc(rest, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	})
	return strings.TrimSpace(rest), true
}
