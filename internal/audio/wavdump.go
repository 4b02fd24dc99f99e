package audio

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	wave "github.com/zenwerk/go-wave"
)

// WriteWAV stores pcm as a 16-bit mono wav file at path.
func WriteWAV(fs afero.Fs, path string, pcm []float32) error {
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	f, err := fs.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	w, err := wave.NewWriter(wave.WriterParam{
		Out:           f,
		Channel:       1,
		SampleRate:    SampleRate,
		BitsPerSample: 16,
	})
	if err != nil {
		f.Close()
		return fmt.Errorf("wav writer: %w", err)
	}

	if _, err := w.WriteSample16(Float32ToInt16(pcm)); err != nil {
		w.Close()
		return fmt.Errorf("write samples: %w", err)
	}

	// closes f as well
	return w.Close()
}

// RecordingName is the file a captured utterance is dumped to.
func RecordingName(dir, kind string, t time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("jarvis_%s_%s.wav", kind, t.Format("20060102_150405.000")))
}
