package stt

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	openai "github.com/openai/openai-go/v3"
	"github.com/spf13/afero"
)

const DefaultRemoteModel = "whisper-1"

// Remote transcribes through the /audio/transcriptions endpoint of an
// OpenAI-compatible API.
type Remote struct {
	client openai.Client
	model  string
}

func NewRemote(client openai.Client, model string) *Remote {
	if model == "" {
		model = DefaultRemoteModel
	}
	return &Remote{client: client, model: model}
}

func (r *Remote) Name() string { return "remote:" + r.model }

func (r *Remote) Transcribe(ctx context.Context, pcm16k []float32, opt Options) (Result, error) {
	if len(pcm16k) == 0 {
		return Result{}, ErrNoAudio
	}

	data, err := EncodeWAV(pcm16k)
	if err != nil {
		return Result{}, err
	}

	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(data), "speech.wav", "audio/wav"),
		Model: openai.AudioModel(r.model),
	}
	if opt.Language != "" && opt.Language != "auto" {
		params.Language = openai.String(opt.Language)
	}
	if opt.InitialPrompt != "" {
		params.Prompt = openai.String(opt.InitialPrompt)
	}
	if opt.Temperature != 0 {
		params.Temperature = openai.Float(float64(opt.Temperature))
	}

	resp, err := r.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return Result{}, fmt.Errorf("transcription request: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return Result{}, ErrNoSpeech
	}

	segs, text := CleanSegments([]Segment{{Text: text}})
	if text == "" {
		return Result{}, ErrNoSpeech
	}

	return Result{
		Text:     text,
		Segments: segs,
		Language: opt.Language,
	}, nil
}

// EncodeWAV renders 16 kHz mono PCM as a 16-bit wav file in memory.
func EncodeWAV(pcm16k []float32) ([]byte, error) {
	f, err := afero.NewMemMapFs().Create("speech.wav")
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ints := make([]int, len(pcm16k))
	for i, x := range pcm16k {
		v := float64(x)
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		ints[i] = int(v * 32767)
	}

	enc := wav.NewEncoder(f, 16000, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: 16000},
		Data:           ints,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("finish wav: %w", err)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return io.ReadAll(f)
}
