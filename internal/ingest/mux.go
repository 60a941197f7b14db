// Package ingest accepts sensor envelopes over UDP, TCP, and MQTT and
// feeds every transport through one decode path.
package ingest

import (
	"go.uber.org/zap"

	"github.com/yudurobotics/zing-bridge/domain/entities"
	"github.com/yudurobotics/zing-bridge/internal/stats"
)

// Sink consumes decoded sensor packets. The affect engine satisfies this.
type Sink interface {
	Ingest(pkt *entities.SensorPacket)
}

// Mux is the single decode-and-dispatch point shared by all transport
// listeners, so the engine never sees transport-specific shapes.
type Mux struct {
	logger *zap.Logger
	stats  *stats.Stats
	sink   Sink
}

func NewMux(logger *zap.Logger, st *stats.Stats, sink Sink) *Mux {
	return &Mux{logger: logger, stats: st, sink: sink}
}

// Handle decodes one raw envelope and forwards it. Malformed envelopes
// are dropped and counted, never propagated as faults. The decoded
// packet is returned so transports can track per-sensor origins.
func (m *Mux) Handle(transport string, raw []byte) (*entities.SensorPacket, error) {
	pkt, err := entities.DecodeSensorPacket(raw)
	if err != nil {
		m.stats.SensorMalformed()
		m.logger.Debug("malformed sensor envelope",
			zap.String("transport", transport),
			zap.Int("bytes", len(raw)),
			zap.Error(err),
		)
		return nil, err
	}
	m.stats.SensorPacket()
	m.sink.Ingest(pkt)
	return pkt, nil
}
