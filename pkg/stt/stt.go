// Package stt turns captured speech into text. Backends implement
// Transcriber; the whisper subpackage runs whisper.cpp locally and Remote
// calls an OpenAI-compatible transcription endpoint.
package stt

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"
)

var (
	ErrNoSpeech = errors.New("no speech in audio")
	ErrNoAudio  = errors.New("no audio samples provided")
)

type Options struct {
	Language        string        // e.g. "auto", "en", "pt"
	TranslateToEn   bool          // if true, translate non-EN -> EN
	Threads         int           // <=0 => NumCPU()
	InitialPrompt   string        // optional prefix prompt, biases vocabulary
	TokenTimestamps bool          // include per-token timestamps
	MaxTokens       uint          // 0 = no limit
	BeamSize        int           // 0 = greedy
	SplitOnWord     bool          // split on word boundaries
	Temperature     float32       // 0 = default
	Duration        time.Duration // max duration (optional)
}

type Segment struct {
	Text     string
	StartSec float64
	EndSec   float64
}

type Result struct {
	Text     string
	Segments []Segment
	Language string // detected or forced
}

// Transcriber converts 16 kHz mono float32 PCM to text.
type Transcriber interface {
	Name() string
	Transcribe(ctx context.Context, pcm16k []float32, opt Options) (Result, error)
}

// annotationRe matches the markers whisper emits for non-speech:
// "[BLANK_AUDIO]", "(music)", "*coughs*".
var annotationRe = regexp.MustCompile(`\[[^\]]*\]|\([^()]*\)|\*[^*]*\*`)

// CleanSegments strips non-speech annotations, drops segments left empty
// and repeated segments, and joins the rest.
func CleanSegments(in []Segment) ([]Segment, string) {
	seen := make(map[string]bool)
	out := make([]Segment, 0, len(in))
	parts := make([]string, 0, len(in))

	for _, s := range in {
		text := stripAnnotations(s.Text)
		if text == "" || seen[text] {
			continue
		}
		seen[text] = true

		s.Text = text
		out = append(out, s)
		parts = append(parts, text)
	}

	return out, strings.Join(parts, " ")
}

func stripAnnotations(s string) string {
	return strings.Join(strings.Fields(annotationRe.ReplaceAllString(s, " ")), " ")
}
