package mic

import (
	"context"
	"fmt"
	log "log/slog"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"jarvis/internal/audio"
)

var ErrNoSpeech = audio.ErrNoSpeech

// Recorder reads the default input device. Only one capture runs at a
// time; concurrent callers wait for the device.
type Recorder struct {
	mu  sync.Mutex
	cfg audio.EndpointConfig
}

func NewRecorder(cfg audio.EndpointConfig) *Recorder {
	return &Recorder{cfg: cfg}
}

func (r *Recorder) Init() error {
	return portaudio.Initialize()
}

func (r *Recorder) Close() {
	portaudio.Terminate()
}

// Capture records one utterance: it waits for speech, then stops after
// the configured trailing silence or maximum length.
func (r *Recorder) Capture(ctx context.Context) ([]float32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ep := audio.NewEndpointer(r.cfg)

	err := r.stream(ctx, func(frame []float32) bool {
		st := ep.Push(frame)
		return st == audio.Done || st == audio.TimedOut
	})
	if err != nil {
		return nil, err
	}

	switch ep.State() {
	case audio.TimedOut, audio.Waiting:
		return nil, ErrNoSpeech
	}

	pcm := ep.Samples()
	log.Debug("Captured utterance", "samples", len(pcm), "seconds", audio.FrameDuration(len(pcm)))

	return pcm, nil
}

// Window records exactly d of audio, used for wake-word polling.
func (r *Recorder) Window(ctx context.Context, d time.Duration) ([]float32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	want := int(d.Seconds() * audio.SampleRate)
	out := make([]float32, 0, want)

	err := r.stream(ctx, func(frame []float32) bool {
		out = append(out, frame...)
		return len(out) >= want
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

func (r *Recorder) stream(ctx context.Context, onFrame func([]float32) bool) error {
	buf := make([]float32, audio.FrameSize)

	stream, err := portaudio.OpenDefaultStream(1, 0, audio.SampleRate, len(buf), buf)
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("start stream: %w", err)
	}
	defer stream.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := stream.Read(); err != nil {
			return fmt.Errorf("read stream: %w", err)
		}

		frame := append([]float32(nil), buf...)
		if onFrame(frame) {
			return nil
		}
	}
}
