// sensorsim pretends to be a Zing sensor node: it streams perception
// vectors for a chosen scenario over UDP and prints the affect reports
// the bridge echoes back.
package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"strings"
	"time"

	"github.com/yudurobotics/zing-bridge/domain/entities"
)

// scenarios are rough sketches of household moments.
var scenarios = map[string]entities.SensorVector{
	"calm":  {},
	"tired": {entities.ChannelBatteryLow: 0.95, entities.ChannelIdleTime: 0.8, entities.ChannelSoundEnergy: 0.05, entities.ChannelVoiceRate: 0.05, entities.ChannelMotionEnergy: 0.05},
	"angry": {entities.ChannelUnknownFace: 0.6, entities.ChannelSoundEnergy: 0.9, entities.ChannelVoiceRate: 0.8, entities.ChannelMotionEnergy: 0.7},
	"play":  {entities.ChannelPeopleCount: 0.6, entities.ChannelKnownFace: 0.8, entities.ChannelSoundEnergy: 0.6, entities.ChannelVoiceRate: 0.6, entities.ChannelMotionEnergy: 0.7},
}

func main() {
	addr := flag.String("addr", "127.0.0.1:9002", "bridge sensor UDP address")
	sensorID := flag.Uint("sensor", 1, "sensor identity to report as")
	scenario := flag.String("scenario", "calm", "one of: "+strings.Join(scenarioNames(), ", "))
	rate := flag.Duration("rate", 100*time.Millisecond, "interval between vectors")
	count := flag.Int("count", 50, "number of vectors to send")
	flag.Parse()

	vector, ok := scenarios[*scenario]
	if !ok {
		log.Fatalf("unknown scenario %q", *scenario)
	}

	conn, err := net.Dial("udp", *addr)
	if err != nil {
		log.Fatalf("dial bridge: %v", err)
	}
	defer conn.Close()

	go printReports(conn)

	var seq uint64
	for i := 0; i < *count; i++ {
		pkt := &entities.SensorPacket{
			SensorID:    uint32(*sensorID),
			TimestampUS: uint64(time.Now().UnixMicro()),
			DataType:    entities.DataTypeSensorVector,
			Seq:         seq,
			Payload:     vector.Encode(),
		}
		if _, err := conn.Write(pkt.Encode()); err != nil {
			log.Fatalf("write: %v", err)
		}
		seq++
		time.Sleep(*rate)
	}
	// Give the last report a moment to come back.
	time.Sleep(500 * time.Millisecond)
}

func printReports(conn net.Conn) {
	buf := make([]byte, 2048)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		report, err := entities.DecodeAffectReport(buf[:n])
		if err != nil {
			continue
		}
		fmt.Printf("sensor=%d seq=%d active=%v mode=%s v=%.2f a=%.2f d=%.2f\n",
			report.SensorID, report.Seq, report.Active,
			modeName(report.Kind, report.Valence, report.Arousal, report.Dominance),
			report.Valence, report.Arousal, report.Dominance)
	}
}

// modeName is only cosmetic; the authoritative mode lives on the
// bridge and is visible through its admin API.
func modeName(kind uint8, v, a, d float32) string {
	if kind == entities.ReportKindAudio {
		return "(audio)"
	}
	switch {
	case a > 0.6 && v < 0.35 && d > 0.5:
		return "angry"
	case a > 0.5 && v < 0.35 && d < 0.35:
		return "anxious"
	case a < 0.25 && v < 0.3 && d < 0.35:
		return "sad"
	case a < 0.2 && v < 0.4:
		return "tired"
	case a < 0.25 && v < 0.5:
		return "calm"
	case a > 0.7 && v > 0.6:
		return "energetic"
	case a > 0.45 && v > 0.55 && d > 0.45:
		return "playful"
	case a > 0.5 && v < 0.4:
		return "supportive"
	case v > 0.6:
		return "friendly"
	default:
		return "neutral"
	}
}

func scenarioNames() []string {
	names := make([]string, 0, len(scenarios))
	for name := range scenarios {
		names = append(names, name)
	}
	return names
}
