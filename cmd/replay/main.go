// replay streams a raw PCM16LE file to the server as if it were a wearable:
// JSON hello first, then the audio chopped into BLE-sized notifications at
// real-time pace. Useful for exercising the pipeline without hardware.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/eleven-am/wearable-voice/internal/transport"
	"github.com/gorilla/websocket"
)

const payloadBytes = 160

func main() {
	serverURL := flag.String("url", "ws://localhost:8080/v1/ws/audio", "server websocket URL")
	apiKey := flag.String("key", os.Getenv("DEVICE_API_KEY"), "device API key")
	codecValue := flag.Uint("codec", 1, "codec value (0 = 16kHz, 1 = 8kHz)")
	rate := flag.Float64("rate", 1.0, "playback speed multiplier")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: replay [flags] <audio.raw>")
		flag.PrintDefaults()
		os.Exit(1)
	}
	if *apiKey == "" {
		fmt.Fprintln(os.Stderr, "device API key required (-key or DEVICE_API_KEY)")
		os.Exit(1)
	}

	codec, err := transport.ParseCodec(uint8(*codecValue))
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid codec: %v\n", err)
		os.Exit(1)
	}

	data, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "read audio: %v\n", err)
		os.Exit(1)
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+*apiKey)
	conn, _, err := websocket.DefaultDialer.Dial(*serverURL, header)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dial: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	hello := fmt.Sprintf(`{"codec":%d}`, uint8(codec))
	if err := conn.WriteMessage(websocket.TextMessage, []byte(hello)); err != nil {
		fmt.Fprintf(os.Stderr, "hello: %v\n", err)
		os.Exit(1)
	}

	// One payload of 160 bytes is 80 samples; pace the writes so the server
	// sees wall-clock audio.
	samplesPerPacket := payloadBytes / 2
	interval := time.Duration(float64(samplesPerPacket) / float64(codec.SampleRate()) / *rate * float64(time.Second))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var packetID uint16 = 1
	sent := 0
	for off := 0; off < len(data); off += payloadBytes {
		end := off + payloadBytes
		if end > len(data) {
			end = len(data)
		}

		pkt := transport.Packet{PacketID: packetID, ChunkIndex: 0, Payload: data[off:end]}
		if err := conn.WriteMessage(websocket.BinaryMessage, pkt.Encode()); err != nil {
			fmt.Fprintf(os.Stderr, "write: %v\n", err)
			os.Exit(1)
		}
		packetID++
		sent++
		<-ticker.C
	}

	fmt.Printf("sent %d packets (%d bytes of audio) at %s\n", sent, len(data), codec)

	// Give the server time to run the silence window and finalize.
	time.Sleep(3 * time.Second)
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
