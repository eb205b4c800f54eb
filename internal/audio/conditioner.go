package audio

import "math"

// highPassAlpha gives a ~300 Hz cutoff at 8 kHz for the first-order IIR
// y[i] = alpha * (y[i-1] + x[i] - x[i-1]).
const (
	highPassAlpha = 0.94
	rmsSmoothing  = 0.1
)

// Conditioner measures the speech energy of a sample stream: a single-pole
// high-pass filter strips DC and rumble, then the RMS of each chunk is
// folded into an exponential moving average. Filter memory persists across
// chunks for the life of the stream; one Conditioner per stream.
//
// The input samples are not modified. The filtered signal exists only to
// drive the energy estimate; the raw samples continue downstream untouched.
type Conditioner struct {
	prevInput  float64
	prevOutput float64
	smoothed   float64
}

func NewConditioner() *Conditioner {
	return &Conditioner{}
}

// Process returns the smoothed RMS after folding in the chunk. This value is
// the externally observable audio level and the segmenter's energy input.
func (c *Conditioner) Process(samples []float32) float64 {
	if len(samples) == 0 {
		return c.smoothed
	}

	var sumSquares float64
	for _, s := range samples {
		x := float64(s)
		y := highPassAlpha * (c.prevOutput + x - c.prevInput)
		c.prevInput = x
		c.prevOutput = y
		sumSquares += y * y
	}

	instant := math.Sqrt(sumSquares / float64(len(samples)))
	c.smoothed = rmsSmoothing*instant + (1-rmsSmoothing)*c.smoothed
	return c.smoothed
}

func (c *Conditioner) Level() float64 {
	return c.smoothed
}

func (c *Conditioner) Reset() {
	c.prevInput = 0
	c.prevOutput = 0
	c.smoothed = 0
}
