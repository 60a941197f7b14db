// Package affect turns raw sensor traffic into an emotional state per
// device and steers the upstream speech provider when the mood changes.
package affect

import (
	"context"
	"encoding/binary"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yudurobotics/zing-bridge/domain/entities"
	"github.com/yudurobotics/zing-bridge/internal/stats"
)

// audioEnergyThreshold is the RMS level above which an audio-type
// sensor payload counts as voice activity.
const audioEnergyThreshold = 30.0

// emotionalActiveThreshold is the arousal level above which an
// emotional result counts as activity.
const emotionalActiveThreshold = 0.35

// ModeNotifier receives fire-and-forget prompt-mode updates. The
// upstream bridge satisfies this.
type ModeNotifier interface {
	UpdatePromptMode(ctx context.Context, sensorID uint32, mode entities.PromptMode) error
}

// Config tunes the engine's worker pool and hysteresis.
type Config struct {
	// Workers is the number of shard goroutines. Packets for one
	// sensor id always land on the same shard, preserving per-sensor
	// serialization.
	Workers int
	// QueueDepth is the per-shard inbox size. Overflow is dropped.
	QueueDepth int
	// Dwell is the minimum time the current mode must hold before a
	// different mode may replace it. Zero disables dwell.
	Dwell time.Duration
	// Persona is the initial personality trait.
	Persona entities.Persona
}

// Engine computes affect state from decoded sensor packets. Ingest is
// safe for concurrent use from all transport listeners.
type Engine struct {
	logger   *zap.Logger
	stats    *stats.Stats
	notifier ModeNotifier
	persona  *PersonaState
	smoother *Smoother
	dwell    time.Duration

	shards  []chan *entities.SensorPacket
	reports chan *entities.AffectReport

	mu     sync.RWMutex
	states map[uint32]*entities.AffectState

	quit      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func NewEngine(logger *zap.Logger, st *stats.Stats, notifier ModeNotifier, cfg Config) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 256
	}

	e := &Engine{
		logger:   logger,
		stats:    st,
		notifier: notifier,
		persona:  NewPersonaState(cfg.Persona),
		smoother: NewSmoother(),
		dwell:    cfg.Dwell,
		shards:   make([]chan *entities.SensorPacket, cfg.Workers),
		reports:  make(chan *entities.AffectReport, cfg.QueueDepth),
		states:   make(map[uint32]*entities.AffectState),
		quit:     make(chan struct{}),
	}
	for i := range e.shards {
		e.shards[i] = make(chan *entities.SensorPacket, cfg.QueueDepth)
		e.wg.Add(1)
		go e.worker(e.shards[i])
	}
	return e
}

// Persona exposes the runtime-switchable persona for the admin API.
func (e *Engine) Persona() *PersonaState { return e.persona }

// Reports yields one report per processed packet, for transports that
// echo activity back to the sensor. Closed by Close.
func (e *Engine) Reports() <-chan *entities.AffectReport { return e.reports }

// Ingest queues a decoded sensor packet on its sensor's shard. Packets
// are dropped when the shard inbox is full; sensors resend state
// continuously, so loss here only delays the next update.
func (e *Engine) Ingest(pkt *entities.SensorPacket) {
	shard := e.shards[int(pkt.SensorID)%len(e.shards)]
	select {
	case <-e.quit:
	case shard <- pkt:
	default:
		e.stats.SensorDropped()
	}
}

// State returns a copy of the last computed affect state for a sensor.
func (e *Engine) State(sensorID uint32) (entities.AffectState, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	st, ok := e.states[sensorID]
	if !ok {
		return entities.AffectState{}, false
	}
	return *st, true
}

// States returns copies of all known affect states.
func (e *Engine) States() []entities.AffectState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]entities.AffectState, 0, len(e.states))
	for _, st := range e.states {
		out = append(out, *st)
	}
	return out
}

// Close stops the workers and closes Reports.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		close(e.quit)
		e.wg.Wait()
		close(e.reports)
	})
}

func (e *Engine) worker(inbox <-chan *entities.SensorPacket) {
	defer e.wg.Done()
	for {
		select {
		case <-e.quit:
			return
		case pkt := <-inbox:
			e.process(pkt)
		}
	}
}

func (e *Engine) process(pkt *entities.SensorPacket) {
	var report *entities.AffectReport
	switch pkt.DataType {
	case entities.DataTypeSensorVector:
		report = e.processEmotional(pkt)
	default:
		// Unknown data types fall back to the audio energy path.
		report = e.processAudio(pkt)
	}

	select {
	case e.reports <- report:
	default:
		// Report echo is best-effort.
	}
}

func (e *Engine) processAudio(pkt *entities.SensorPacket) *entities.AffectReport {
	energy := rmsEnergy(pkt.Payload)
	return &entities.AffectReport{
		SensorID:  pkt.SensorID,
		Seq:       pkt.Seq,
		Active:    energy > audioEnergyThreshold,
		Kind:      entities.ReportKindAudio,
		Energy:    float32(energy),
		Threshold: audioEnergyThreshold,
	}
}

func (e *Engine) processEmotional(pkt *entities.SensorPacket) *entities.AffectReport {
	report := &entities.AffectReport{
		SensorID: pkt.SensorID,
		Seq:      pkt.Seq,
		Kind:     entities.ReportKindEmotional,
	}

	vec, err := entities.DecodeSensorVector(pkt.Payload)
	if err != nil {
		// Permissive: a short vector payload yields a zero triple
		// rather than an error.
		e.stats.SensorMalformed()
		return report
	}

	persona := e.persona.Get()
	deltas := personaDeltas[persona]
	e.smoother.Smooth(pkt.SensorID, &vec, persona)

	valence := weightedSum(vec, applyDeltas(valenceWeights, deltas.valence))
	arousal := weightedSum(vec, applyDeltas(arousalWeights, deltas.arousal))
	dominance := weightedSum(vec, applyDeltas(dominanceWeights, deltas.dominance))

	report.Active = arousal > emotionalActiveThreshold
	report.Valence = valence
	report.Arousal = arousal
	report.Dominance = dominance

	e.updateState(pkt.SensorID, arousal, valence, dominance)
	return report
}

// updateState applies the classified mode with hysteresis: a
// notification fires only when the mode actually changes, and an
// optional dwell keeps a fresh mode in place for a minimum period.
func (e *Engine) updateState(sensorID uint32, arousal, valence, dominance float32) {
	now := time.Now()
	mode := classifyMode(arousal, valence, dominance)

	e.mu.Lock()
	st, ok := e.states[sensorID]
	if !ok {
		st = &entities.AffectState{
			SensorID:  sensorID,
			Mode:      entities.ModeNeutral,
			ModeSince: now,
		}
		e.states[sensorID] = st
	}
	st.Arousal = float64(arousal)
	st.Valence = float64(valence)
	st.Dominance = float64(dominance)
	st.UpdatedAt = now

	changed := mode != st.Mode && (e.dwell == 0 || now.Sub(st.ModeSince) >= e.dwell)
	if changed {
		st.Mode = mode
		st.ModeSince = now
	}
	e.mu.Unlock()

	if !changed {
		return
	}

	e.stats.ModeChange()
	e.logger.Info("prompt mode changed",
		zap.Uint32("sensor_id", sensorID),
		zap.Stringer("mode", mode),
		zap.Float32("arousal", arousal),
		zap.Float32("valence", valence),
		zap.Float32("dominance", dominance),
	)

	// Fire-and-forget: the provider's acknowledgment is not awaited.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.notifier.UpdatePromptMode(ctx, sensorID, mode); err != nil {
			e.stats.UpstreamError()
			e.logger.Warn("prompt mode update failed",
				zap.Uint32("sensor_id", sensorID), zap.Error(err))
		}
	}()
}

// rmsEnergy interprets data as 16-bit LE PCM and returns its RMS level.
func rmsEnergy(data []byte) float64 {
	if len(data) < 2 {
		return 0
	}
	n := len(data) / 2
	var sumSq float64
	for i := 0; i < n; i++ {
		sample := float64(int16(binary.LittleEndian.Uint16(data[i*2 : i*2+2])))
		sumSq += sample * sample
	}
	return math.Sqrt(sumSq / float64(n))
}
