package audio

import (
	"errors"
	"time"
)

// ErrNoSpeech is returned by capturers when the no-speech timeout ran out.
var ErrNoSpeech = errors.New("no speech detected")

type State int

const (
	Waiting State = iota
	Speaking
	Done
	TimedOut
)

func (s State) String() string {
	switch s {
	case Waiting:
		return "waiting"
	case Speaking:
		return "speaking"
	case Done:
		return "done"
	case TimedOut:
		return "timed-out"
	}
	return "unknown"
}

type EndpointConfig struct {
	Threshold   float64       // RMS above which a frame counts as speech
	Silence     time.Duration // trailing silence that ends an utterance
	MaxDuration time.Duration // hard cap on the utterance length
	NoSpeech    time.Duration // give up when nothing is said; 0 waits forever
	PreRoll     time.Duration // audio kept from before the onset
}

func DefaultEndpointConfig() EndpointConfig {
	return EndpointConfig{
		Threshold:   0.015,
		Silence:     600 * time.Millisecond,
		MaxDuration: 10 * time.Second,
		NoSpeech:    5 * time.Second,
		PreRoll:     300 * time.Millisecond,
	}
}

func samplesFor(d time.Duration) int {
	return int(d.Seconds() * SampleRate)
}

// Endpointer cuts one utterance out of a stream of frames.
type Endpointer struct {
	cfg   EndpointConfig
	state State
	flux  *FluxDetector
	pre   *Ring
	out   []float32

	waited  int
	spoken  int
	silence int
}

func NewEndpointer(cfg EndpointConfig) *Endpointer {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultEndpointConfig().Threshold
	}
	if cfg.Silence <= 0 {
		cfg.Silence = DefaultEndpointConfig().Silence
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = DefaultEndpointConfig().MaxDuration
	}

	return &Endpointer{
		cfg:  cfg,
		flux: NewFluxDetector(),
		pre:  NewRing(samplesFor(cfg.PreRoll)),
	}
}

// Push feeds one frame and returns the resulting state. Once Done or
// TimedOut, further frames are ignored.
func (e *Endpointer) Push(frame []float32) State {
	if e.state == Done || e.state == TimedOut {
		return e.state
	}

	rms := RMS(frame)
	onset := e.flux.Onset(frame)

	switch e.state {
	case Waiting:
		if rms > e.cfg.Threshold || (onset && rms > e.cfg.Threshold/2) {
			e.state = Speaking
			if e.cfg.PreRoll > 0 {
				e.out = append(e.out, e.pre.Read()...)
			}
			e.out = append(e.out, frame...)
			e.spoken += len(frame)
			break
		}

		if e.cfg.PreRoll > 0 {
			e.pre.Add(frame)
		}
		e.waited += len(frame)
		if e.cfg.NoSpeech > 0 && e.waited >= samplesFor(e.cfg.NoSpeech) {
			e.state = TimedOut
		}

	case Speaking:
		e.out = append(e.out, frame...)
		e.spoken += len(frame)

		if rms > e.cfg.Threshold {
			e.silence = 0
		} else {
			e.silence += len(frame)
		}

		if e.silence >= samplesFor(e.cfg.Silence) || e.spoken >= samplesFor(e.cfg.MaxDuration) {
			e.state = Done
		}
	}

	return e.state
}

func (e *Endpointer) State() State { return e.state }

// Samples returns the utterance captured so far, pre-roll included.
func (e *Endpointer) Samples() []float32 { return e.out }
