package vad

import "testing"

func chunkOf(n int, v float32) []float32 {
	c := make([]float32, n)
	for i := range c {
		c[i] = v
	}
	return c
}

func TestPreRoll_AppendAndFlush(t *testing.T) {
	p := NewPreRoll(4000)
	p.Append([]float32{1, 2})
	p.Append([]float32{3})
	got := p.Flush()
	if len(got) != 3 || got[0] != 1 || got[2] != 3 {
		t.Errorf("Flush() = %v", got)
	}
	if p.Len() != 0 {
		t.Errorf("Len() after flush = %d", p.Len())
	}
	if p.Flush() != nil {
		t.Error("second flush should be nil")
	}
}

func TestPreRoll_EvictsOldestFirst(t *testing.T) {
	p := NewPreRoll(100)
	p.Append(chunkOf(60, 1))
	p.Append(chunkOf(60, 2))
	if p.Len() > 100 {
		t.Fatalf("Len() = %d exceeds cap", p.Len())
	}
	got := p.Flush()
	for _, s := range got {
		if s != 2 {
			t.Fatalf("oldest chunk survived eviction: %v", got)
		}
	}
}

func TestPreRoll_CapEnforcedOnEveryAppend(t *testing.T) {
	p := NewPreRoll(100)
	for i := 0; i < 50; i++ {
		p.Append(chunkOf(40, float32(i)))
		if p.Len() > 100 {
			t.Fatalf("append %d: Len() = %d exceeds cap", i, p.Len())
		}
	}
}

func TestPreRoll_OversizedSingleChunkTrimmedToTail(t *testing.T) {
	p := NewPreRoll(10)
	big := make([]float32, 25)
	for i := range big {
		big[i] = float32(i)
	}
	p.Append(big)
	if p.Len() != 10 {
		t.Fatalf("Len() = %d, want 10", p.Len())
	}
	got := p.Flush()
	if got[0] != 15 || got[9] != 24 {
		t.Errorf("expected newest tail kept, got %v", got)
	}
}

func TestPreRoll_EmptyChunkIgnored(t *testing.T) {
	p := NewPreRoll(100)
	p.Append(nil)
	p.Append([]float32{})
	if p.Len() != 0 {
		t.Errorf("Len() = %d, want 0", p.Len())
	}
}

func TestPreRoll_Reset(t *testing.T) {
	p := NewPreRoll(100)
	p.Append(chunkOf(50, 1))
	p.Reset()
	if p.Len() != 0 || p.Flush() != nil {
		t.Error("reset did not clear buffer")
	}
}
