//go:build opus

package audioconv

import (
	"io"

	popus "github.com/pekim/opus"

	"jarvis/internal/audio"
)

const opusRate = 48000

func decodeOpus(r io.ReadSeeker) ([]float32, error) {
	dec, err := popus.NewDecoder(r)
	if err != nil {
		return nil, err
	}
	defer dec.Destroy()

	ch := dec.ChannelCount()
	if ch <= 0 {
		ch = 1
	}

	var (
		pcm []float32
		buf = make([]int16, opusRate*ch/2)
	)
	for {
		// n counts samples per channel
		n, err := dec.Read(buf)
		if n > 0 {
			pcm = append(pcm, audio.Int16ToFloat32(buf[:n*ch])...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	return toMono16k(pcm, ch, opusRate), nil
}
