package vad

// PreRoll keeps the most recent chunks of audio heard before speech
// triggers, so utterance onset is not clipped. Capacity is a sample count
// (duration times source rate); oldest chunks are evicted first and the cap
// is enforced on every append.
type PreRoll struct {
	chunks   [][]float32
	total    int
	capacity int
}

func NewPreRoll(capacitySamples int) *PreRoll {
	return &PreRoll{capacity: capacitySamples}
}

func (p *PreRoll) Append(chunk []float32) {
	if len(chunk) == 0 {
		return
	}
	p.chunks = append(p.chunks, chunk)
	p.total += len(chunk)

	for p.total > p.capacity && len(p.chunks) > 1 {
		p.total -= len(p.chunks[0])
		p.chunks[0] = nil
		p.chunks = p.chunks[1:]
	}
	if p.total > p.capacity {
		last := p.chunks[0]
		p.chunks[0] = last[len(last)-p.capacity:]
		p.total = p.capacity
	}
}

// Flush returns the buffered samples in arrival order and empties the ring.
func (p *PreRoll) Flush() []float32 {
	if p.total == 0 {
		return nil
	}
	out := make([]float32, 0, p.total)
	for _, c := range p.chunks {
		out = append(out, c...)
	}
	p.Reset()
	return out
}

func (p *PreRoll) Len() int {
	return p.total
}

func (p *PreRoll) Reset() {
	p.chunks = nil
	p.total = 0
}
