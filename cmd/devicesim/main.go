// devicesim pretends to be a Zing device: it opens a session against
// the bridge, streams an utterance as audio packets, ends the session,
// and records whatever audio comes back. Useful for poking at a running
// bridge without hardware.
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"net"
	"os"
	"time"

	"github.com/yudurobotics/zing-bridge/domain/entities"
	"github.com/yudurobotics/zing-bridge/internal/audio"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:9001", "bridge device gateway address")
	wavPath := flag.String("wav", "", "16 kHz mono WAV to stream (synthesizes a tone when empty)")
	outPath := flag.String("out", "reply.wav", "where to save the response audio")
	chunkBytes := flag.Int("chunk", 960, "bytes of PCM per audio packet")
	flag.Parse()

	pcm, err := loadPCM(*wavPath)
	if err != nil {
		log.Fatalf("load audio: %v", err)
	}

	conn, err := net.Dial("udp", *addr)
	if err != nil {
		log.Fatalf("dial bridge: %v", err)
	}
	defer conn.Close()

	var seq uint16
	send := func(pkt *entities.Packet) {
		if _, err := conn.Write(pkt.Encode()); err != nil {
			log.Fatalf("write: %v", err)
		}
	}

	// Open the session and wait for the bridge to say it is ready.
	send(entities.NewControlPacket(seq, entities.CmdSessionStart, 0))
	seq++
	if err := awaitControl(conn, entities.CmdServerReady, 2*time.Second); err != nil {
		log.Fatalf("session start: %v", err)
	}
	fmt.Println("session established, streaming utterance...")

	// Stream the utterance, pacing packets at roughly real time.
	interval := time.Duration(*chunkBytes/audio.BytesPerSamp) * time.Second / audio.SampleRate
	for off := 0; off < len(pcm); off += *chunkBytes {
		end := off + *chunkBytes
		if end > len(pcm) {
			end = len(pcm)
		}
		flags := uint8(0)
		if off == 0 {
			flags = entities.FlagStart
		}
		pkt := &entities.Packet{Seq: seq, Type: entities.PacketAudioUp, Flags: flags, Payload: pcm[off:end]}
		send(pkt)
		seq++
		time.Sleep(interval)
	}

	send(entities.NewControlPacket(seq, entities.CmdSessionEnd, 0))
	fmt.Println("utterance sent, waiting for response...")

	reply, err := collectResponse(conn, 30*time.Second)
	if err != nil {
		log.Fatalf("collect response: %v", err)
	}
	if len(reply) == 0 {
		fmt.Println("bridge returned no audio")
		return
	}
	if err := audio.WriteWAV(*outPath, reply, audio.SampleRate); err != nil {
		log.Fatalf("write %s: %v", *outPath, err)
	}
	fmt.Printf("saved %d bytes of response audio to %s\n", len(reply), *outPath)
}

// loadPCM reads the data chunk of a 16 kHz mono WAV, or synthesizes
// two seconds of a 440 Hz tone when no file is given.
func loadPCM(path string) ([]byte, error) {
	if path == "" {
		return tone(2*time.Second, 440), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(raw) <= 44 {
		return nil, fmt.Errorf("%s: too short to be a WAV file", path)
	}
	// Assume the canonical 44-byte header; good enough for a test tool.
	return raw[44:], nil
}

func tone(d time.Duration, hz float64) []byte {
	samples := int(d.Seconds() * audio.SampleRate)
	pcm := make([]byte, samples*audio.BytesPerSamp)
	for i := 0; i < samples; i++ {
		v := int16(12000 * math.Sin(2*math.Pi*hz*float64(i)/audio.SampleRate))
		pcm[i*2] = byte(v)
		pcm[i*2+1] = byte(v >> 8)
	}
	return pcm
}

func awaitControl(conn net.Conn, want entities.ControlCommand, timeout time.Duration) error {
	conn.SetReadDeadline(time.Now().Add(timeout))
	buf := make([]byte, 2048)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return err
		}
		pkt, err := entities.DecodePacket(buf[:n])
		if err != nil {
			continue
		}
		if cmd, ok := pkt.Control(); ok && cmd == want {
			return nil
		}
	}
}

// collectResponse gathers audio packets until the stream-end control
// arrives.
func collectResponse(conn net.Conn, timeout time.Duration) ([]byte, error) {
	conn.SetReadDeadline(time.Now().Add(timeout))
	buf := make([]byte, 4096)
	var pcm []byte
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return pcm, err
		}
		pkt, err := entities.DecodePacket(buf[:n])
		if err != nil {
			continue
		}
		switch pkt.Type {
		case entities.PacketAudioDown:
			pcm = append(pcm, pkt.Payload...)
		case entities.PacketControl:
			if cmd, ok := pkt.Control(); ok && cmd == entities.CmdStreamEnd {
				if pkt.IsUrgent() {
					return pcm, fmt.Errorf("bridge aborted the response")
				}
				return pcm, nil
			}
		}
	}
}
