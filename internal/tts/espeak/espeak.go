// Package espeak speaks through libespeak-ng.
package espeak

/*
#cgo LDFLAGS: -lespeak-ng
#include <stdlib.h>
#include <espeak-ng/speak_lib.h>

static int
jarvis_espeak_init(void)
{
	return espeak_Initialize(AUDIO_OUTPUT_SYNCH_PLAYBACK, 500, NULL, 0);
}

static int
jarvis_espeak_say(const char *text, const char *voice, int rate, int volume)
{
	if (!text || !voice)
	{ return -1; }

	if (espeak_SetVoiceByName(voice) != EE_OK)
	{
		espeak_VOICE specs = { .languages = voice };
		if (espeak_SetVoiceByProperties(&specs) != EE_OK)
		{ return -2; }
	}
	espeak_SetParameter(espeakRATE, rate, 0);
	espeak_SetParameter(espeakVOLUME, volume, 0);

	if (espeak_Synth(text, 0, 0, POS_CHARACTER, 0, espeakCHARS_AUTO, NULL, NULL) != EE_OK)
	{ return -3; }
	return espeak_Synchronize() == EE_OK ? 0 : -4;
}

static void
jarvis_espeak_cancel(void)
{
	espeak_Cancel();
}
*/
import "C"

import (
	"context"
	"fmt"
	log "log/slog"
	"sync"
	"sync/atomic"
	"unsafe"

	"jarvis/internal/lang"
	"jarvis/internal/tts"
)

const maxChunk = 300

type Speaker struct {
	mu       sync.Mutex
	settings tts.Settings
	stopped  atomic.Bool
}

var initOnce = sync.OnceValue(func() error {
	if rc := C.jarvis_espeak_init(); rc < 0 {
		return fmt.Errorf("espeak init failed: %d", int(rc))
	}
	return nil
})

func New(s tts.Settings) (*Speaker, error) {
	if err := initOnce(); err != nil {
		return nil, err
	}
	return &Speaker{settings: s.Normalized()}, nil
}

func (s *Speaker) SetSettings(set tts.Settings) {
	s.mu.Lock()
	s.settings = set.Normalized()
	s.mu.Unlock()
}

// Speak plays text chunk by chunk; Stop or ctx cancel take effect at the
// current chunk.
func (s *Speaker) Speak(ctx context.Context, text string, l lang.Code) error {
	chunks := tts.Chunks(tts.Prepare(text), maxChunk)
	if len(chunks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped.Store(false)

	stop := context.AfterFunc(ctx, s.Stop)
	defer stop()

	cvoice := C.CString(l.Voice())
	defer C.free(unsafe.Pointer(cvoice))

	for _, chunk := range chunks {
		if s.stopped.Load() {
			break
		}

		ctext := C.CString(chunk)
		rc := C.jarvis_espeak_say(ctext, cvoice, C.int(s.settings.Rate), C.int(s.settings.Amplitude()))
		C.free(unsafe.Pointer(ctext))

		if rc != 0 {
			return fmt.Errorf("espeak say failed: %d", int(rc))
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if s.stopped.Load() {
		log.Debug("speech interrupted", "voice", l.Voice())
	}
	return nil
}

func (s *Speaker) Stop() {
	s.stopped.Store(true)
	C.jarvis_espeak_cancel()
}
