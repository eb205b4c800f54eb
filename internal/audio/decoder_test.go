package audio

import (
	"encoding/binary"
	"math"
	"testing"
)

func encodeInt16LE(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func TestDecoder_Basic(t *testing.T) {
	d := NewDecoder()
	got := d.Decode(encodeInt16LE([]int16{0, 16384, -16384, 32767, -32768}))
	want := []float32{0, 0.5, -0.5, 32767.0 / 32768.0, -1.0}
	if len(got) != len(want) {
		t.Fatalf("decoded %d samples, want %d", len(got), len(want))
	}
	for i := range want {
		if math.Abs(float64(got[i]-want[i])) > 1e-6 {
			t.Errorf("sample %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestDecoder_EmptyPayload(t *testing.T) {
	d := NewDecoder()
	if got := d.Decode(nil); got != nil {
		t.Errorf("Decode(nil) = %v, want nil", got)
	}
	if got := d.Decode([]byte{}); got != nil {
		t.Errorf("Decode(empty) = %v, want nil", got)
	}
}

func TestDecoder_OddByteCarry(t *testing.T) {
	d := NewDecoder()
	// 0x4000 = 16384 split across two payloads
	got := d.Decode([]byte{0x00})
	if len(got) != 0 {
		t.Fatalf("expected no samples from lone byte, got %d", len(got))
	}
	got = d.Decode([]byte{0x40})
	if len(got) != 1 {
		t.Fatalf("expected 1 sample after pairing, got %d", len(got))
	}
	if math.Abs(float64(got[0]-0.5)) > 1e-6 {
		t.Errorf("paired sample = %v, want 0.5", got[0])
	}
}

func TestDecoder_ArbitrarySplits(t *testing.T) {
	src := make([]int16, 64)
	for i := range src {
		src[i] = int16(i*500 - 16000)
	}
	raw := encodeInt16LE(src)

	splits := [][]int{
		{1}, // single-byte deliveries
		{3},
		{5, 1, 7},
		{128},
	}
	for _, sizes := range splits {
		d := NewDecoder()
		var got []float32
		pos, si := 0, 0
		for pos < len(raw) {
			n := sizes[si%len(sizes)]
			si++
			if pos+n > len(raw) {
				n = len(raw) - pos
			}
			got = append(got, d.Decode(raw[pos:pos+n])...)
			pos += n
		}
		if len(got) != len(src) {
			t.Fatalf("splits %v: decoded %d samples, want %d", sizes, len(got), len(src))
		}
		for i, s := range src {
			want := float32(s) / 32768.0
			if math.Abs(float64(got[i]-want)) > 1e-6 {
				t.Fatalf("splits %v: sample %d = %v, want %v", sizes, i, got[i], want)
			}
		}
	}
}

func TestDecoder_Reset(t *testing.T) {
	d := NewDecoder()
	d.Decode([]byte{0x7F})
	d.Reset()
	got := d.Decode([]byte{0x00, 0x40})
	if len(got) != 1 {
		t.Fatalf("expected 1 sample after reset, got %d", len(got))
	}
	if math.Abs(float64(got[0]-0.5)) > 1e-6 {
		t.Errorf("stale pending byte survived reset: %v", got[0])
	}
}
