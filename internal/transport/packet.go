// Package transport reassembles the BLE notification stream produced by
// Friend-compatible wearable firmware. Each notification carries a 3-byte
// header [packetId:uint16le, chunkIndex:uint8] followed by PCM16LE payload
// bytes; a codec frame may be split across several notifications.
package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const headerSize = 3

var ErrShortPacket = errors.New("notification shorter than header")

type Packet struct {
	PacketID   uint16
	ChunkIndex uint8
	Payload    []byte
}

// ParsePacket rejects notifications that carry no payload bytes beyond the
// header. Callers drop those silently; an empty notification is not fatal.
func ParsePacket(data []byte) (*Packet, error) {
	if len(data) <= headerSize {
		return nil, ErrShortPacket
	}
	return &Packet{
		PacketID:   binary.LittleEndian.Uint16(data[0:2]),
		ChunkIndex: data[2],
		Payload:    data[headerSize:],
	}, nil
}

// Encode builds the wire form of a packet. Used by the replay tool and tests;
// the firmware is the producer in production.
func (p *Packet) Encode() []byte {
	out := make([]byte, headerSize+len(p.Payload))
	binary.LittleEndian.PutUint16(out[0:2], p.PacketID)
	out[2] = p.ChunkIndex
	copy(out[headerSize:], p.Payload)
	return out
}

// Codec is the value of the firmware's read-only codec characteristic,
// announced once before streaming begins.
type Codec uint8

const (
	CodecPCM16kHz Codec = 0
	CodecPCM8kHz  Codec = 1
)

func ParseCodec(value uint8) (Codec, error) {
	switch Codec(value) {
	case CodecPCM16kHz, CodecPCM8kHz:
		return Codec(value), nil
	default:
		return 0, fmt.Errorf("unsupported codec value %d", value)
	}
}

func (c Codec) SampleRate() int {
	if c == CodecPCM8kHz {
		return 8000
	}
	return 16000
}

func (c Codec) String() string {
	switch c {
	case CodecPCM16kHz:
		return "pcm16/16000"
	case CodecPCM8kHz:
		return "pcm16/8000"
	default:
		return fmt.Sprintf("codec(%d)", uint8(c))
	}
}
