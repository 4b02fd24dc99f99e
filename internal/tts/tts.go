// Package tts turns reply text into speech. Engines live in
// subpackages; this package holds the text shaping they share.
package tts

import (
	"context"
	log "log/slog"
	"regexp"
	"strings"
	"unicode"

	"jarvis/internal/lang"
)

type Speaker interface {
	// Speak blocks until the text has been played or ctx is done.
	Speak(ctx context.Context, text string, l lang.Code) error
	// Stop interrupts whatever is playing right now.
	Stop()
}

// Settings mirror the voice section of the config file.
type Settings struct {
	Rate   int     // words per minute
	Volume float64 // 0..1
}

func (s Settings) Normalized() Settings {
	if s.Rate < 80 {
		s.Rate = 80
	}
	if s.Rate > 450 {
		s.Rate = 450
	}
	if s.Volume < 0 {
		s.Volume = 0
	}
	if s.Volume > 1 {
		s.Volume = 1
	}
	return s
}

// Amplitude maps Volume onto the 0..200 scale used by eSpeak.
func (s Settings) Amplitude() int {
	return int(s.Normalized().Volume*200 + 0.5)
}

var (
	reLink     = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	reCode     = regexp.MustCompile("```[^`]*```")
	reURL      = regexp.MustCompile(`https?://\S+`)
	reHeader   = regexp.MustCompile(`(?m)^\s{0,3}#{1,6}\s*`)
	reBullet   = regexp.MustCompile(`(?m)^\s*(?:[-*+]|\d+\.)\s+`)
	// paired markers only: "5 * 3" and snake_case survive
	reEmphasis = regexp.MustCompile(`\*\*(\S(?:[^*]*?\S)?)\*\*|__(\S(?:[^_]*?\S)?)__|\*(\S(?:[^*]*?\S)?)\*|\b_(\S(?:[^_]*?\S)?)_\b|~~(\S(?:[^~]*?\S)?)~~|` + "`([^`]+)`")
)

// Prepare strips markdown, links and emoji so the synthesizer reads
// only words, and collapses whitespace.
func Prepare(text string) string {
	text = reCode.ReplaceAllString(text, " ")
	text = reLink.ReplaceAllString(text, "$1")
	text = reURL.ReplaceAllString(text, " ")
	text = reHeader.ReplaceAllString(text, "")
	text = reBullet.ReplaceAllString(text, "")
	text = reEmphasis.ReplaceAllString(text, "$1$2$3$4$5$6")

	text = strings.Map(func(r rune) rune {
		switch {
		case r == '\u200d' || r == '\ufe0f':
			return -1
		case unicode.Is(unicode.So, r) || unicode.Is(unicode.Sk, r):
			return -1
		case r >= 0x1F000:
			return -1
		}
		return r
	}, text)

	return strings.Join(strings.Fields(text), " ")
}

// Chunks splits prepared text at sentence ends, keeping every chunk
// under max bytes where a sentence boundary allows it.
func Chunks(text string, max int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if max <= 0 {
		max = 300
	}

	var sentences []string
	start := 0
	for i, r := range text {
		if r != '.' && r != '!' && r != '?' && r != ';' {
			continue
		}
		next := i + 1
		if next < len(text) && text[next] != ' ' {
			continue
		}
		sentences = append(sentences, strings.TrimSpace(text[start:next]))
		start = next
	}
	if tail := strings.TrimSpace(text[start:]); tail != "" {
		sentences = append(sentences, tail)
	}

	var (
		out []string
		cur strings.Builder
	)
	for _, s := range sentences {
		if s == "" {
			continue
		}
		if cur.Len() > 0 && cur.Len()+1+len(s) > max {
			out = append(out, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(s)
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

// Silent logs what would have been said. The daemon falls back to it
// when no synthesizer is available.
type Silent struct {
	Logger *log.Logger
}

func (s Silent) Speak(ctx context.Context, text string, l lang.Code) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	lg := s.Logger
	if lg == nil {
		lg = log.Default()
	}
	lg.Info("say", "lang", l, "text", Prepare(text))
	return nil
}

func (Silent) Stop() {}
