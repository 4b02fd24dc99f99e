package audio

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
)

func tone(n int, amp float64, freq float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(amp * math.Sin(2*math.Pi*freq*float64(i)/SampleRate))
	}
	return out
}

func silence(n int) []float32 { return make([]float32, n) }

func TestRMS(t *testing.T) {
	if RMS(nil) != 0 {
		t.Fatal("RMS(nil) should be 0")
	}
	got := RMS([]float32{0.5, -0.5, 0.5, -0.5})
	if math.Abs(got-0.5) > 1e-9 {
		t.Fatalf("RMS = %v, want 0.5", got)
	}
}

func TestInt16Conversions(t *testing.T) {
	in := []float32{0, 0.5, -0.5, 1, -1, 2}
	back := Int16ToFloat32(Float32ToInt16(in))

	want := []float32{0, 0.5, -0.5, 1, -1, 1}
	for i := range want {
		if math.Abs(float64(back[i]-want[i])) > 1e-3 {
			t.Errorf("sample %d = %v, want %v", i, back[i], want[i])
		}
	}
}

func TestDownmixAndResample(t *testing.T) {
	mono := Downmix([]float32{1, 0, 0.5, 0.5}, 2)
	if len(mono) != 2 || mono[0] != 0.5 || mono[1] != 0.5 {
		t.Fatalf("Downmix = %v", mono)
	}

	in := make([]float32, 48000)
	out := ResampleLinear(in, 48000, 16000)
	if len(out) != 16000 {
		t.Fatalf("resampled len = %d, want 16000", len(out))
	}

	same := ResampleLinear(in, 16000, 16000)
	if len(same) != len(in) {
		t.Fatal("equal rates should not resample")
	}
}

func TestRing(t *testing.T) {
	t.Run("partial fill returns what was added", func(t *testing.T) {
		r := NewRing(4)
		r.Add([]float32{1, 2})
		if got := r.Read(); len(got) != 2 || got[0] != 1 || got[1] != 2 {
			t.Fatalf("Read = %v", got)
		}
	})

	t.Run("wraps keeping the newest samples in order", func(t *testing.T) {
		r := NewRing(10)
		for i := 0; i < 20; i++ {
			r.Add([]float32{float32(i)})
		}

		got := r.Read()
		for i := 0; i < 10; i++ {
			if got[i] != float32(10+i) {
				t.Fatalf("Read = %v", got)
			}
		}
		if r.Len() != 10 {
			t.Fatalf("Len = %d", r.Len())
		}
	})

	t.Run("reset empties", func(t *testing.T) {
		r := NewRing(3)
		r.Add([]float32{1, 2, 3, 4})
		r.Reset()
		if r.Len() != 0 || len(r.Read()) != 0 {
			t.Fatal("ring not empty after reset")
		}
	})
}

func TestFluxDetector_OnsetOnToneAfterSilence(t *testing.T) {
	d := NewFluxDetector()

	for i := 0; i < 5; i++ {
		if d.Onset(silence(FrameSize)) {
			t.Fatal("silence must not be an onset")
		}
	}
	if !d.Onset(tone(FrameSize, 0.5, 440)) {
		t.Fatal("tone after silence should be an onset")
	}
}

func TestEndpointer(t *testing.T) {
	cfg := EndpointConfig{
		Threshold:   0.05,
		Silence:     100 * time.Millisecond,
		MaxDuration: time.Second,
		NoSpeech:    200 * time.Millisecond,
		PreRoll:     40 * time.Millisecond,
	}

	t.Run("utterance ends after trailing silence", func(t *testing.T) {
		e := NewEndpointer(cfg)

		for i := 0; i < 3; i++ {
			if st := e.Push(silence(FrameSize)); st != Waiting {
				t.Fatalf("state = %v, want waiting", st)
			}
		}
		for i := 0; i < 10; i++ {
			if st := e.Push(tone(FrameSize, 0.3, 440)); st != Speaking {
				t.Fatalf("state = %v, want speaking", st)
			}
		}

		var st State
		frames := 0
		for st != Done {
			st = e.Push(silence(FrameSize))
			frames++
			if frames > 10 {
				t.Fatal("endpointer never finished")
			}
		}
		if frames != 5 {
			t.Fatalf("finished after %d silent frames, want 5", frames)
		}

		// 2 frames of pre-roll + 10 speech + 5 silence
		if got, want := len(e.Samples()), 17*FrameSize; got != want {
			t.Fatalf("samples = %d, want %d", got, want)
		}
	})

	t.Run("times out without speech", func(t *testing.T) {
		e := NewEndpointer(cfg)

		var st State
		for i := 0; i < 10; i++ {
			st = e.Push(silence(FrameSize))
		}
		if st != TimedOut {
			t.Fatalf("state = %v, want timed-out", st)
		}
		if len(e.Samples()) != 0 {
			t.Fatal("timed out endpointer should hold no samples")
		}
	})

	t.Run("caps long utterances", func(t *testing.T) {
		e := NewEndpointer(cfg)

		var st State
		n := 0
		for st != Done {
			st = e.Push(tone(FrameSize, 0.3, 440))
			n++
			if n > 100 {
				t.Fatal("max duration not enforced")
			}
		}
		if n != 50 {
			t.Fatalf("stopped after %d frames, want 50", n)
		}
	})
}

func TestWriteWAV(t *testing.T) {
	fs := afero.NewMemMapFs()
	path := RecordingName("/out/recordings", "command", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))

	if !strings.HasSuffix(path, "jarvis_command_20260102_030405.000.wav") {
		t.Fatalf("name = %q", path)
	}

	if err := WriteWAV(fs, path, tone(1600, 0.2, 440)); err != nil {
		t.Fatalf("WriteWAV: %v", err)
	}

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data[:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Fatalf("not a wav header: %q", data[:12])
	}
	if len(data) < 44+1600*2 {
		t.Fatalf("file too short: %d bytes", len(data))
	}
}

const sinkInputs = `Sink Input #42
	Driver: protocol-native.c
	Volume: front-left: 52428 /  80% / -5.81 dB,   front-right: 52428 /  80% / -5.81 dB
	Properties:
		application.name = "Firefox"
Sink Input #43
	Volume: front-left: 65536 / 100% / 0.00 dB
	Properties:
		application.name = "jarvis"
`

type fakePactl struct {
	calls []string
}

func (f *fakePactl) run(_ context.Context, name string, args ...string) ([]byte, error) {
	call := name + " " + strings.Join(args, " ")
	f.calls = append(f.calls, call)

	if strings.HasPrefix(call, "pactl list sink-inputs") {
		return []byte(sinkInputs), nil
	}
	return nil, nil
}

func TestParseSinkInputs(t *testing.T) {
	got := parseSinkInputs(sinkInputs)
	if len(got) != 2 {
		t.Fatalf("parsed %d streams", len(got))
	}
	if got[0] != (streamInfo{ID: 42, Volume: 80, AppName: "Firefox"}) {
		t.Fatalf("first = %+v", got[0])
	}
}

func TestDucker_DuckAndRestoreSkipsSelf(t *testing.T) {
	f := &fakePactl{}
	d := NewDucker(DuckerConfig{SelfNames: []string{"jarvis"}, Factor: 0.25, MinVolume: 10}, f.run)

	if err := d.Duck(t.Context()); err != nil {
		t.Fatalf("Duck: %v", err)
	}
	if !d.Active() {
		t.Fatal("ducker should be active")
	}
	// second call is a no-op
	if err := d.Duck(t.Context()); err != nil {
		t.Fatal(err)
	}

	if err := d.Restore(t.Context()); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	want := []string{
		"pactl list sink-inputs",
		"pactl set-sink-input-volume 42 20%",
		"pactl list sink-inputs",
		"pactl set-sink-input-volume 42 80%",
	}
	if fmt.Sprint(f.calls) != fmt.Sprint(want) {
		t.Fatalf("calls = %q\nwant    %q", f.calls, want)
	}
}

func TestDucker_ListFailure(t *testing.T) {
	d := NewDucker(DuckerConfig{}, func(context.Context, string, ...string) ([]byte, error) {
		return nil, errors.New("no pulse")
	})
	if err := d.Duck(t.Context()); err == nil {
		t.Fatal("expected error")
	}
	if d.Active() {
		t.Fatal("failed duck must not mark active")
	}
}
