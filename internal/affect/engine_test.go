package affect

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/yudurobotics/zing-bridge/domain/entities"
	"github.com/yudurobotics/zing-bridge/internal/stats"
)

type recordingNotifier struct {
	mu    sync.Mutex
	modes []entities.PromptMode
}

func (r *recordingNotifier) UpdatePromptMode(_ context.Context, _ uint32, mode entities.PromptMode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modes = append(r.modes, mode)
	return nil
}

func (r *recordingNotifier) snapshot() []entities.PromptMode {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]entities.PromptMode, len(r.modes))
	copy(out, r.modes)
	return out
}

// waitForCalls polls until the notifier has at least n calls or the
// deadline passes.
func waitForCalls(t *testing.T, n *recordingNotifier, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(n.snapshot()) >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("notifier calls: got %d, want at least %d", len(n.snapshot()), want)
}

func newTestEngine(t *testing.T) (*Engine, *recordingNotifier) {
	t.Helper()
	notifier := &recordingNotifier{}
	e := NewEngine(zap.NewNop(), stats.New(), notifier, Config{Workers: 1, QueueDepth: 64})
	t.Cleanup(e.Close)
	return e, notifier
}

func vectorPacket(sensorID uint32, seq uint64, v entities.SensorVector) *entities.SensorPacket {
	return &entities.SensorPacket{
		SensorID: sensorID,
		DataType: entities.DataTypeSensorVector,
		Seq:      seq,
		Payload:  v.Encode(),
	}
}

func TestTiredVectorClassification(t *testing.T) {
	e, notifier := newTestEngine(t)

	// Drained battery, long idle, near-total stillness.
	var v entities.SensorVector
	v[entities.ChannelBatteryLow] = 0.95
	v[entities.ChannelIdleTime] = 0.8
	v[entities.ChannelSoundEnergy] = 0.05
	v[entities.ChannelVoiceRate] = 0.05
	v[entities.ChannelMotionEnergy] = 0.05

	e.process(vectorPacket(7, 1, v))

	st, ok := e.State(7)
	if !ok {
		t.Fatal("expected affect state for sensor 7")
	}
	if st.Mode != entities.ModeTired {
		t.Errorf("mode: got %v, want %v (arousal=%.3f valence=%.3f dominance=%.3f)",
			st.Mode, entities.ModeTired, st.Arousal, st.Valence, st.Dominance)
	}
	if st.Arousal >= 0.2 {
		t.Errorf("arousal=%.3f, expected < 0.2", st.Arousal)
	}
	if st.Valence >= 0.4 {
		t.Errorf("valence=%.3f, expected < 0.4", st.Valence)
	}

	waitForCalls(t, notifier, 1)
	if modes := notifier.snapshot(); modes[0] != entities.ModeTired {
		t.Errorf("notified mode: got %v, want %v", modes[0], entities.ModeTired)
	}
}

func TestAngryGuardPrecedence(t *testing.T) {
	e, _ := newTestEngine(t)

	// Stranger yelling, lots of commotion: high arousal, low valence,
	// high dominance. The Supportive guard also covers this region but
	// ranks below Angry.
	var v entities.SensorVector
	v[entities.ChannelUnknownFace] = 0.6
	v[entities.ChannelSoundEnergy] = 0.9
	v[entities.ChannelVoiceRate] = 0.8
	v[entities.ChannelMotionEnergy] = 0.7

	e.process(vectorPacket(8, 1, v))

	st, ok := e.State(8)
	if !ok {
		t.Fatal("expected affect state for sensor 8")
	}
	if st.Mode != entities.ModeAngry {
		t.Errorf("mode: got %v, want %v (arousal=%.3f valence=%.3f dominance=%.3f)",
			st.Mode, entities.ModeAngry, st.Arousal, st.Valence, st.Dominance)
	}
}

func TestModeNotifiedAtMostOncePerChange(t *testing.T) {
	e, notifier := newTestEngine(t)

	// idle_time stays zero so the smoother cannot drift the triple
	// between packets; the classified mode is stable.
	var v entities.SensorVector
	v[entities.ChannelUnknownFace] = 0.6
	v[entities.ChannelSoundEnergy] = 0.9
	v[entities.ChannelVoiceRate] = 0.8
	v[entities.ChannelMotionEnergy] = 0.7

	for i := 0; i < 50; i++ {
		e.process(vectorPacket(9, uint64(i), v))
	}

	waitForCalls(t, notifier, 1)
	time.Sleep(100 * time.Millisecond)
	if modes := notifier.snapshot(); len(modes) != 1 {
		t.Errorf("notifications: got %d (%v), want exactly 1", len(modes), modes)
	}
}

func TestDwellSuppressesRapidFlapping(t *testing.T) {
	notifier := &recordingNotifier{}
	e := NewEngine(zap.NewNop(), stats.New(), notifier, Config{
		Workers: 1, QueueDepth: 64, Dwell: time.Hour,
	})
	defer e.Close()

	angry := entities.SensorVector{}
	angry[entities.ChannelUnknownFace] = 0.6
	angry[entities.ChannelSoundEnergy] = 0.9
	angry[entities.ChannelVoiceRate] = 0.8
	angry[entities.ChannelMotionEnergy] = 0.7

	e.process(vectorPacket(10, 1, angry))

	// Mode was Neutral less than an hour ago, so even a clear Angry
	// reading must not flip it yet.
	st, _ := e.State(10)
	if st.Mode != entities.ModeNeutral {
		t.Errorf("mode: got %v, want Neutral under dwell", st.Mode)
	}
	if len(notifier.snapshot()) != 0 {
		t.Error("expected no notification while dwell holds")
	}
}

func TestAudioEnergyDetection(t *testing.T) {
	e, _ := newTestEngine(t)

	silence := &entities.SensorPacket{
		SensorID: 1, DataType: entities.DataTypeAudio, Seq: 1,
		Payload: make([]byte, 64),
	}
	e.process(silence)
	report := <-e.Reports()
	if report.Kind != entities.ReportKindAudio {
		t.Fatalf("kind: got %d, want audio", report.Kind)
	}
	if report.Active {
		t.Error("silence should be inactive")
	}

	loud := &entities.SensorPacket{
		SensorID: 1, DataType: entities.DataTypeAudio, Seq: 2,
		Payload: []byte{0xFF, 0x7F, 0xFF, 0x7F, 0xFF, 0x7F, 0xFF, 0x7F},
	}
	e.process(loud)
	report = <-e.Reports()
	if !report.Active {
		t.Errorf("full-scale signal should be active, energy=%f", report.Energy)
	}
	if report.Energy <= audioEnergyThreshold {
		t.Errorf("energy=%f, expected above threshold", report.Energy)
	}
}

func TestShortVectorPayloadIsPermissive(t *testing.T) {
	e, notifier := newTestEngine(t)

	pkt := &entities.SensorPacket{
		SensorID: 3, DataType: entities.DataTypeSensorVector, Seq: 1,
		Payload: make([]byte, 8),
	}
	e.process(pkt)

	report := <-e.Reports()
	if report.Valence != 0 || report.Arousal != 0 || report.Dominance != 0 {
		t.Errorf("short payload should yield a zero triple, got %+v", report)
	}
	if len(notifier.snapshot()) != 0 {
		t.Error("short payload must not trigger a mode change")
	}
}

func TestIngestRoutesThroughWorkers(t *testing.T) {
	e, _ := newTestEngine(t)

	var v entities.SensorVector
	v[entities.ChannelKnownFace] = 0.9
	v[entities.ChannelPeopleCount] = 0.8
	e.Ingest(vectorPacket(11, 1, v))

	select {
	case report := <-e.Reports():
		if report.SensorID != 11 {
			t.Errorf("sensor id: got %d, want 11", report.SensorID)
		}
		if report.Kind != entities.ReportKindEmotional {
			t.Errorf("kind: got %d, want emotional", report.Kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no report within deadline")
	}
}
