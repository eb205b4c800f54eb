package audio

import "encoding/binary"

// Decoder converts PCM16LE payload bytes into normalized float32 samples.
// Notifications can split a sample across a boundary, so a dangling odd byte
// is carried into the next call rather than dropped.
type Decoder struct {
	pending    byte
	hasPending bool
}

func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode returns the complete samples available so far. It never blocks and
// never loses a byte permanently; an odd trailing byte is emitted once its
// pair arrives in a later payload.
func (d *Decoder) Decode(payload []byte) []float32 {
	if len(payload) == 0 {
		return nil
	}

	data := payload
	if d.hasPending {
		data = make([]byte, 0, len(payload)+1)
		data = append(data, d.pending)
		data = append(data, payload...)
		d.hasPending = false
	}

	if len(data)%2 != 0 {
		d.pending = data[len(data)-1]
		d.hasPending = true
		data = data[:len(data)-1]
	}

	if len(data) == 0 {
		return nil
	}

	samples := make([]float32, len(data)/2)
	for i := range samples {
		s := int16(binary.LittleEndian.Uint16(data[i*2:]))
		samples[i] = float32(s) / 32768.0
	}
	return samples
}

func (d *Decoder) Reset() {
	d.pending = 0
	d.hasPending = false
}
