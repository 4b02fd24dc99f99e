package audio

// Ring keeps the most recent samples so the start of an utterance, heard
// before the detector fired, is not lost.
type Ring struct {
	buf  []float32
	head int
	full bool
}

func NewRing(size int) *Ring {
	if size < 1 {
		size = 1
	}
	return &Ring{buf: make([]float32, size)}
}

func (r *Ring) Add(samples []float32) {
	for _, s := range samples {
		r.buf[r.head] = s
		r.head = (r.head + 1) % len(r.buf)
		if r.head == 0 {
			r.full = true
		}
	}
}

// Read returns the buffered samples, oldest first.
func (r *Ring) Read() []float32 {
	if !r.full {
		return append([]float32(nil), r.buf[:r.head]...)
	}
	out := make([]float32, len(r.buf))
	n := copy(out, r.buf[r.head:])
	copy(out[n:], r.buf[:r.head])
	return out
}

func (r *Ring) Len() int {
	if r.full {
		return len(r.buf)
	}
	return r.head
}

func (r *Ring) Reset() {
	r.head = 0
	r.full = false
}
