package transport

// Framer tracks packet and chunk sequence numbers across notifications and
// keeps a best-effort count of frames lost on the radio link. The count is a
// metric, not an exact figure: a chunk gap inside one packet counts as a
// single drop regardless of how many chunks went missing, and counting at
// the uint16 packet-id wraparound is approximate.
type Framer struct {
	lastPacketID   uint16
	lastChunkIndex uint8
	primed         bool
	dropped        int64
}

func NewFramer() *Framer {
	return &Framer{}
}

// Ingest accounts for the packet in the loss estimate and returns its
// payload bytes. Payloads are forwarded independently; the decoder pairs
// bytes across notification boundaries, so no end-of-frame signal is needed.
func (f *Framer) Ingest(p *Packet) []byte {
	if !f.primed {
		f.lastPacketID = p.PacketID
		f.lastChunkIndex = p.ChunkIndex
		f.primed = true
		if p.ChunkIndex > 0 {
			f.dropped += int64(p.ChunkIndex)
		}
		return p.Payload
	}

	if p.PacketID == f.lastPacketID {
		if p.ChunkIndex != f.lastChunkIndex+1 {
			f.dropped++
		}
	} else {
		gap := p.PacketID - f.lastPacketID
		if gap > 1 {
			f.dropped += int64(gap - 1)
		}
		if p.ChunkIndex > 0 {
			f.dropped += int64(p.ChunkIndex)
		}
	}

	f.lastPacketID = p.PacketID
	f.lastChunkIndex = p.ChunkIndex
	return p.Payload
}

func (f *Framer) Dropped() int64 {
	return f.dropped
}

func (f *Framer) Reset() {
	f.lastPacketID = 0
	f.lastChunkIndex = 0
	f.primed = false
	f.dropped = 0
}
