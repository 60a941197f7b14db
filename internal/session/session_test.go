package session

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/yudurobotics/zing-bridge/adapters/mock"
	"github.com/yudurobotics/zing-bridge/domain/entities"
	"github.com/yudurobotics/zing-bridge/domain/repositories"
	"github.com/yudurobotics/zing-bridge/internal/stats"
)

type recordingSender struct {
	mu   sync.Mutex
	sent map[string][]*entities.Packet
}

func newRecordingSender() *recordingSender {
	return &recordingSender{sent: make(map[string][]*entities.Packet)}
}

func (s *recordingSender) Send(endpoint string, pkt *entities.Packet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent[endpoint] = append(s.sent[endpoint], pkt)
}

func (s *recordingSender) packets(endpoint string) []*entities.Packet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*entities.Packet(nil), s.sent[endpoint]...)
}

func (s *recordingSender) controlCount(endpoint string, cmd entities.ControlCommand) int {
	n := 0
	for _, pkt := range s.packets(endpoint) {
		if got, ok := pkt.Control(); ok && got == cmd {
			n++
		}
	}
	return n
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newTestRegistry(t *testing.T, bridge repositories.UpstreamBridge, cfg Config, max int) (*Registry, *recordingSender) {
	t.Helper()
	sender := newRecordingSender()
	r := NewRegistry(zap.NewNop(), stats.New(), bridge, sender, cfg, max)
	t.Cleanup(r.Close)
	return r, sender
}

func controlPkt(seq uint16, cmd entities.ControlCommand) *entities.Packet {
	return entities.NewControlPacket(seq, cmd, 0)
}

func audioPkt(seq uint16, payload []byte) *entities.Packet {
	return &entities.Packet{Seq: seq, Type: entities.PacketAudioUp, Payload: payload}
}

const ep = "192.168.1.20:40000"

func TestSessionStartIsIdempotent(t *testing.T) {
	bridge := mock.NewBridge()
	r, sender := newTestRegistry(t, bridge, Config{}, 0)

	r.Dispatch(ep, controlPkt(0, entities.CmdSessionStart))
	waitFor(t, "server ready", func() bool {
		return sender.controlCount(ep, entities.CmdServerReady) == 1
	})

	if r.Len() != 1 {
		t.Fatalf("sessions: got %d, want 1", r.Len())
	}
	before := r.Snapshot()[0]
	if before.State != entities.SessionStateActive {
		t.Errorf("state: got %v, want active", before.State)
	}

	// Replayed starts must not create a second session or reset the
	// existing one.
	r.Dispatch(ep, controlPkt(1, entities.CmdSessionStart))
	r.Dispatch(ep, controlPkt(2, entities.CmdSessionStart))
	waitFor(t, "replay handled", func() bool {
		return sender.controlCount(ep, entities.CmdServerReady) == 3
	})

	if r.Len() != 1 {
		t.Errorf("sessions after replay: got %d, want 1", r.Len())
	}
	after := r.Snapshot()[0]
	if after.ID != before.ID {
		t.Error("replayed start must not replace the session")
	}
	if after.State != entities.SessionStateActive {
		t.Errorf("state after replay: got %v, want active", after.State)
	}
}

func TestAudioForwardedInReceiptOrder(t *testing.T) {
	bridge := mock.NewBridge()
	r, _ := newTestRegistry(t, bridge, Config{}, 0)

	r.Dispatch(ep, controlPkt(0, entities.CmdSessionStart))
	r.Dispatch(ep, audioPkt(1, []byte{1, 1}))
	r.Dispatch(ep, audioPkt(2, []byte{2, 2}))
	r.Dispatch(ep, audioPkt(3, []byte{3, 3}))

	var id string
	waitFor(t, "audio forwarded", func() bool {
		for _, info := range r.Snapshot() {
			id = info.ID
		}
		return id != "" && len(bridge.Pushed(id)) == 3
	})

	chunks := bridge.Pushed(id)
	want := [][]byte{{1, 1}, {2, 2}, {3, 3}}
	for i := range want {
		if !bytes.Equal(chunks[i], want[i]) {
			t.Errorf("chunk %d: got %v, want %v", i, chunks[i], want[i])
		}
	}
}

func TestOutOfOrderAudioStillForwarded(t *testing.T) {
	bridge := mock.NewBridge()
	r, _ := newTestRegistry(t, bridge, Config{}, 0)

	r.Dispatch(ep, controlPkt(0, entities.CmdSessionStart))
	// Receipt order wins; sequence numbers only feed loss diagnostics.
	r.Dispatch(ep, audioPkt(3, []byte{3}))
	r.Dispatch(ep, audioPkt(1, []byte{1}))
	r.Dispatch(ep, audioPkt(2, []byte{2}))

	var id string
	waitFor(t, "audio forwarded", func() bool {
		for _, info := range r.Snapshot() {
			id = info.ID
		}
		return id != "" && len(bridge.Pushed(id)) == 3
	})

	var total []byte
	for _, c := range bridge.Pushed(id) {
		total = append(total, c...)
	}
	if !bytes.Equal(total, []byte{3, 1, 2}) {
		t.Errorf("forwarded bytes: got %v, want receipt order 3,1,2", total)
	}
}

func TestSessionEndAckAndTeardownAfterFinalResponse(t *testing.T) {
	bridge := mock.NewBridge()
	r, sender := newTestRegistry(t, bridge, Config{}, 0)

	r.Dispatch(ep, controlPkt(0, entities.CmdSessionStart))
	r.Dispatch(ep, audioPkt(1, []byte{1, 2, 3, 4}))
	r.Dispatch(ep, controlPkt(2, entities.CmdSessionEnd))

	var id string
	waitFor(t, "utterance committed", func() bool {
		ended := bridge.Ended()
		if len(ended) != 1 {
			return false
		}
		id = ended[0]
		return true
	})

	if got := sender.controlCount(ep, entities.CmdAck); got != 1 {
		t.Errorf("acks: got %d, want exactly 1", got)
	}
	if !r.Lookup(ep) {
		t.Fatal("session should survive until the final response")
	}

	bridge.Emit(repositories.ResponseAudio{SessionID: id, PCM: []byte{9, 9}})
	bridge.Emit(repositories.ResponseAudio{SessionID: id, Final: true})
	go RelayResponses(r, bridge.Responses())

	waitFor(t, "session removed", func() bool { return !r.Lookup(ep) })

	if got := sender.controlCount(ep, entities.CmdStreamStart); got != 1 {
		t.Errorf("stream starts: got %d, want 1", got)
	}
	if got := sender.controlCount(ep, entities.CmdStreamEnd); got != 1 {
		t.Errorf("stream ends: got %d, want 1", got)
	}
}

func TestResponseChunkingUnderLimit(t *testing.T) {
	bridge := mock.NewBridge()
	r, sender := newTestRegistry(t, bridge, Config{ChunkBytes: 1400}, 0)

	r.Dispatch(ep, controlPkt(0, entities.CmdSessionStart))
	r.Dispatch(ep, controlPkt(1, entities.CmdSessionEnd))

	var id string
	waitFor(t, "utterance committed", func() bool {
		ended := bridge.Ended()
		if len(ended) == 1 {
			id = ended[0]
			return true
		}
		return false
	})

	pcm := make([]byte, 3000)
	bridge.Emit(repositories.ResponseAudio{SessionID: id, PCM: pcm})
	bridge.Emit(repositories.ResponseAudio{SessionID: id, Final: true})
	go RelayResponses(r, bridge.Responses())

	waitFor(t, "session removed", func() bool { return !r.Lookup(ep) })

	var audioDown []*entities.Packet
	for _, pkt := range sender.packets(ep) {
		if pkt.Type == entities.PacketAudioDown {
			audioDown = append(audioDown, pkt)
		}
	}
	if len(audioDown) != 3 {
		t.Fatalf("audio down packets: got %d, want 3", len(audioDown))
	}
	var total int
	for _, pkt := range audioDown {
		if len(pkt.Payload) > 1400 {
			t.Errorf("chunk exceeds limit: %d bytes", len(pkt.Payload))
		}
		total += len(pkt.Payload)
	}
	if total != 3000 {
		t.Errorf("relayed bytes: got %d, want 3000", total)
	}
	if audioDown[0].Seq+1 != audioDown[1].Seq || audioDown[1].Seq+1 != audioDown[2].Seq {
		t.Error("audio down seq must be consecutive")
	}
}

func TestCancelClearsAndStaysActive(t *testing.T) {
	bridge := mock.NewBridge()
	r, sender := newTestRegistry(t, bridge, Config{}, 0)

	r.Dispatch(ep, controlPkt(0, entities.CmdSessionStart))
	r.Dispatch(ep, audioPkt(1, []byte{1, 2}))
	r.Dispatch(ep, controlPkt(2, entities.CmdCancel))

	waitFor(t, "cancel reached upstream", func() bool {
		return len(bridge.Canceled()) == 1
	})
	waitFor(t, "cancel acked", func() bool {
		return sender.controlCount(ep, entities.CmdAck) == 1
	})

	info := r.Snapshot()[0]
	if info.State != entities.SessionStateActive {
		t.Errorf("state after cancel: got %v, want active", info.State)
	}

	// The session keeps working after a cancel.
	r.Dispatch(ep, audioPkt(3, []byte{7}))
	id := info.ID
	waitFor(t, "audio after cancel", func() bool {
		return len(bridge.Pushed(id)) == 1
	})
}

func TestUpstreamFailureTearsDownWithStreamEnd(t *testing.T) {
	bridge := mock.NewBridge()
	bridge.FailEnds(errors.New("upstream unreachable"))
	r, sender := newTestRegistry(t, bridge, Config{}, 0)

	r.Dispatch(ep, controlPkt(0, entities.CmdSessionStart))
	r.Dispatch(ep, audioPkt(1, []byte{1}))
	r.Dispatch(ep, controlPkt(2, entities.CmdSessionEnd))

	waitFor(t, "session torn down", func() bool { return !r.Lookup(ep) })

	if got := sender.controlCount(ep, entities.CmdStreamEnd); got != 1 {
		t.Errorf("stream ends: got %d, want 1 (device must not hang)", got)
	}
}

func TestOrphanPacketHandling(t *testing.T) {
	bridge := mock.NewBridge()
	r, sender := newTestRegistry(t, bridge, Config{}, 0)

	// Audio with no session is dropped and creates nothing.
	r.Dispatch(ep, audioPkt(1, []byte{1, 2}))
	if r.Len() != 0 {
		t.Error("audio must not create a session")
	}

	// End/cancel with no session are acknowledged as no-ops.
	r.Dispatch(ep, controlPkt(2, entities.CmdSessionEnd))
	r.Dispatch(ep, controlPkt(3, entities.CmdCancel))
	if got := sender.controlCount(ep, entities.CmdAck); got != 2 {
		t.Errorf("no-op acks: got %d, want 2", got)
	}

	// Heartbeats are echoed regardless of session state.
	r.Dispatch(ep, &entities.Packet{Seq: 77, Type: entities.PacketHeartbeat})
	pkts := sender.packets(ep)
	last := pkts[len(pkts)-1]
	if last.Type != entities.PacketHeartbeat || last.Seq != 77 {
		t.Errorf("heartbeat echo: got %v seq %d", last.Type, last.Seq)
	}
	if r.Len() != 0 {
		t.Error("orphan traffic must not create sessions")
	}
}

func TestHeartbeatEchoWithinSession(t *testing.T) {
	bridge := mock.NewBridge()
	r, sender := newTestRegistry(t, bridge, Config{}, 0)

	r.Dispatch(ep, controlPkt(0, entities.CmdSessionStart))
	r.Dispatch(ep, &entities.Packet{Seq: 55, Type: entities.PacketHeartbeat})

	waitFor(t, "heartbeat echo", func() bool {
		for _, pkt := range sender.packets(ep) {
			if pkt.Type == entities.PacketHeartbeat && pkt.Seq == 55 {
				return true
			}
		}
		return false
	})
}

func TestCapacityRejectionOmitsServerReady(t *testing.T) {
	bridge := mock.NewBridge()
	r, sender := newTestRegistry(t, bridge, Config{}, 1)

	r.Dispatch(ep, controlPkt(0, entities.CmdSessionStart))
	waitFor(t, "first session ready", func() bool {
		return sender.controlCount(ep, entities.CmdServerReady) == 1
	})

	second := "192.168.1.21:40000"
	r.Dispatch(second, controlPkt(0, entities.CmdSessionStart))
	time.Sleep(50 * time.Millisecond)

	if r.Len() != 1 {
		t.Errorf("sessions: got %d, want 1", r.Len())
	}
	if got := sender.controlCount(second, entities.CmdServerReady); got != 0 {
		t.Errorf("rejected start must omit SERVER_READY, got %d", got)
	}
}

func TestSweepEvictsIdleSessions(t *testing.T) {
	bridge := mock.NewBridge()
	r, _ := newTestRegistry(t, bridge, Config{LivenessWindow: 30 * time.Millisecond}, 0)

	r.Dispatch(ep, controlPkt(0, entities.CmdSessionStart))
	waitFor(t, "session created", func() bool { return r.Lookup(ep) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Sweep(ctx, 20*time.Millisecond)

	waitFor(t, "session evicted", func() bool { return !r.Lookup(ep) })
}

func TestSweepSparesActiveSessions(t *testing.T) {
	bridge := mock.NewBridge()
	r, _ := newTestRegistry(t, bridge, Config{LivenessWindow: time.Hour}, 0)

	r.Dispatch(ep, controlPkt(0, entities.CmdSessionStart))
	waitFor(t, "session created", func() bool { return r.Lookup(ep) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Sweep(ctx, 10*time.Millisecond)

	time.Sleep(60 * time.Millisecond)
	if !r.Lookup(ep) {
		t.Error("recently active session must survive the sweep")
	}
}

func TestPipelinedUtteranceDuringResponse(t *testing.T) {
	bridge := mock.NewBridge()
	r, _ := newTestRegistry(t, bridge, Config{}, 0)

	r.Dispatch(ep, controlPkt(0, entities.CmdSessionStart))
	r.Dispatch(ep, audioPkt(1, []byte{1}))
	r.Dispatch(ep, controlPkt(2, entities.CmdSessionEnd))

	var id string
	waitFor(t, "utterance committed", func() bool {
		ended := bridge.Ended()
		if len(ended) == 1 {
			id = ended[0]
			return true
		}
		return false
	})

	// Device starts speaking again before the response arrives.
	r.Dispatch(ep, audioPkt(3, []byte{2}))
	waitFor(t, "pipelined audio", func() bool {
		return len(bridge.Pushed(id)) == 2
	})

	// The final response of the previous utterance must not tear the
	// session down while a new utterance is open.
	bridge.Emit(repositories.ResponseAudio{SessionID: id, PCM: []byte{9}})
	bridge.Emit(repositories.ResponseAudio{SessionID: id, Final: true})
	go RelayResponses(r, bridge.Responses())

	time.Sleep(60 * time.Millisecond)
	if !r.Lookup(ep) {
		t.Fatal("pipelined session must survive the previous response")
	}
	info := r.Snapshot()[0]
	if info.State != entities.SessionStateActive {
		t.Errorf("state: got %v, want active", info.State)
	}
}
