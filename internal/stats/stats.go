// Package stats collects lock-free counters for the bridge's hot paths
// and periodically reports throughput deltas.
package stats

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Stats holds cumulative counters. All methods are safe for concurrent
// use from packet workers.
type Stats struct {
	devicePackets   atomic.Uint64
	deviceMalformed atomic.Uint64
	audioPackets    atomic.Uint64
	audioBytes      atomic.Uint64

	sensorPackets   atomic.Uint64
	sensorMalformed atomic.Uint64
	sensorDropped   atomic.Uint64
	reportsSent     atomic.Uint64

	sessionsCreated  atomic.Uint64
	sessionsEvicted  atomic.Uint64
	sessionsRejected atomic.Uint64

	responsesRelayed atomic.Uint64
	responseBytes    atomic.Uint64
	modeChanges      atomic.Uint64
	upstreamErrors   atomic.Uint64
}

func New() *Stats {
	return &Stats{}
}

func (s *Stats) DevicePacket()          { s.devicePackets.Add(1) }
func (s *Stats) DeviceMalformed()       { s.deviceMalformed.Add(1) }
func (s *Stats) AudioPacket(n int)      { s.audioPackets.Add(1); s.audioBytes.Add(uint64(n)) }
func (s *Stats) SensorPacket()          { s.sensorPackets.Add(1) }
func (s *Stats) SensorMalformed()       { s.sensorMalformed.Add(1) }
func (s *Stats) SensorDropped()         { s.sensorDropped.Add(1) }
func (s *Stats) ReportSent()            { s.reportsSent.Add(1) }
func (s *Stats) SessionCreated()        { s.sessionsCreated.Add(1) }
func (s *Stats) SessionEvicted()        { s.sessionsEvicted.Add(1) }
func (s *Stats) SessionRejected()       { s.sessionsRejected.Add(1) }
func (s *Stats) ResponseRelayed(n int)  { s.responsesRelayed.Add(1); s.responseBytes.Add(uint64(n)) }
func (s *Stats) ModeChange()            { s.modeChanges.Add(1) }
func (s *Stats) UpstreamError()         { s.upstreamErrors.Add(1) }

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	DevicePackets    uint64 `json:"device_packets"`
	DeviceMalformed  uint64 `json:"device_malformed"`
	AudioPackets     uint64 `json:"audio_packets"`
	AudioBytes       uint64 `json:"audio_bytes"`
	SensorPackets    uint64 `json:"sensor_packets"`
	SensorMalformed  uint64 `json:"sensor_malformed"`
	SensorDropped    uint64 `json:"sensor_dropped"`
	ReportsSent      uint64 `json:"reports_sent"`
	SessionsCreated  uint64 `json:"sessions_created"`
	SessionsEvicted  uint64 `json:"sessions_evicted"`
	SessionsRejected uint64 `json:"sessions_rejected"`
	ResponsesRelayed uint64 `json:"responses_relayed"`
	ResponseBytes    uint64 `json:"response_bytes"`
	ModeChanges      uint64 `json:"mode_changes"`
	UpstreamErrors   uint64 `json:"upstream_errors"`
}

func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		DevicePackets:    s.devicePackets.Load(),
		DeviceMalformed:  s.deviceMalformed.Load(),
		AudioPackets:     s.audioPackets.Load(),
		AudioBytes:       s.audioBytes.Load(),
		SensorPackets:    s.sensorPackets.Load(),
		SensorMalformed:  s.sensorMalformed.Load(),
		SensorDropped:    s.sensorDropped.Load(),
		ReportsSent:      s.reportsSent.Load(),
		SessionsCreated:  s.sessionsCreated.Load(),
		SessionsEvicted:  s.sessionsEvicted.Load(),
		SessionsRejected: s.sessionsRejected.Load(),
		ResponsesRelayed: s.responsesRelayed.Load(),
		ResponseBytes:    s.responseBytes.Load(),
		ModeChanges:      s.modeChanges.Load(),
		UpstreamErrors:   s.upstreamErrors.Load(),
	}
}

// Report logs counter deltas every interval until ctx is done. Quiet
// intervals (no traffic at all) are skipped to keep logs readable.
func (s *Stats) Report(ctx context.Context, logger *zap.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	prev := s.Snapshot()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cur := s.Snapshot()
			if cur == prev {
				continue
			}
			secs := interval.Seconds()
			logger.Info("throughput",
				zap.Float64("device_pps", float64(cur.DevicePackets-prev.DevicePackets)/secs),
				zap.Float64("sensor_pps", float64(cur.SensorPackets-prev.SensorPackets)/secs),
				zap.Float64("audio_kbps", float64(cur.AudioBytes-prev.AudioBytes)*8/1000/secs),
				zap.Float64("response_kbps", float64(cur.ResponseBytes-prev.ResponseBytes)*8/1000/secs),
				zap.Uint64("malformed", (cur.DeviceMalformed-prev.DeviceMalformed)+(cur.SensorMalformed-prev.SensorMalformed)),
				zap.Uint64("dropped", cur.SensorDropped-prev.SensorDropped),
				zap.Uint64("mode_changes", cur.ModeChanges-prev.ModeChanges),
				zap.Uint64("upstream_errors", cur.UpstreamErrors-prev.UpstreamErrors),
				zap.Uint64("sessions_total", cur.SessionsCreated-cur.SessionsEvicted),
			)
			prev = cur
		}
	}
}
