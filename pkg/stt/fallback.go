package stt

import (
	"context"
	"errors"
	log "log/slog"
)

// Fallback tries Primary and, when it fails for any reason other than
// silence or cancellation, Secondary.
type Fallback struct {
	Primary   Transcriber
	Secondary Transcriber
}

func (f *Fallback) Name() string {
	return f.Primary.Name() + "+" + f.Secondary.Name()
}

func (f *Fallback) Transcribe(ctx context.Context, pcm []float32, opt Options) (Result, error) {
	res, err := f.Primary.Transcribe(ctx, pcm, opt)
	if err == nil || errors.Is(err, ErrNoSpeech) || errors.Is(err, ErrNoAudio) || ctx.Err() != nil {
		return res, err
	}

	log.Warn("Primary transcriber failed, falling back",
		"primary", f.Primary.Name(), "secondary", f.Secondary.Name(), "err", err)

	return f.Secondary.Transcribe(ctx, pcm, opt)
}
