package notify

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
)

// Earcon plays a short mp3 cue when the assistant starts listening.
type Earcon struct {
	Path string

	once    sync.Once
	initErr error
	rate    beep.SampleRate
}

func NewEarcon(path string) *Earcon {
	return &Earcon{Path: path}
}

// Play blocks until the cue has finished.
func (e *Earcon) Play() error {
	f, err := os.Open(e.Path)
	if err != nil {
		return fmt.Errorf("open earcon: %w", err)
	}

	streamer, format, err := mp3.Decode(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("decode earcon: %w", err)
	}
	defer streamer.Close()

	e.once.Do(func() {
		e.rate = format.SampleRate
		e.initErr = speaker.Init(format.SampleRate, format.SampleRate.N(time.Second/10))
	})
	if e.initErr != nil {
		return fmt.Errorf("init speaker: %w", e.initErr)
	}

	var s beep.Streamer = streamer
	if format.SampleRate != e.rate {
		s = beep.Resample(4, format.SampleRate, e.rate, streamer)
	}

	done := make(chan struct{})
	speaker.Play(beep.Seq(s, beep.Callback(func() {
		close(done)
	})))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		speaker.Clear()
	}
	return nil
}
