// Package session implements the device-facing protocol: the per-device
// state machine, the endpoint-keyed registry, and the datagram gateway.
package session

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yudurobotics/zing-bridge/domain/entities"
	"github.com/yudurobotics/zing-bridge/domain/repositories"
	"github.com/yudurobotics/zing-bridge/internal/audio"
	"github.com/yudurobotics/zing-bridge/internal/stats"
)

// Sender delivers a packet to a device endpoint. Sends are
// fire-and-forget; loss is tolerated by the protocol.
type Sender interface {
	Send(endpoint string, pkt *entities.Packet)
}

// Config tunes per-session behavior.
type Config struct {
	// ChunkBytes caps the payload of one outbound AUDIO_DOWN packet.
	ChunkBytes int
	// InboxDepth buffers decoded packets per session worker.
	InboxDepth int
	// LivenessWindow is how long a session may stay silent before the
	// sweep evicts it.
	LivenessWindow time.Duration
	// UtteranceDir, when set, captures each completed utterance as a
	// WAV file for debugging.
	UtteranceDir string
}

func (c Config) withDefaults() Config {
	if c.ChunkBytes <= 0 || c.ChunkBytes > entities.MaxPayload {
		c.ChunkBytes = entities.MaxPayload
	}
	if c.InboxDepth <= 0 {
		c.InboxDepth = 256
	}
	if c.LivenessWindow <= 0 {
		c.LivenessWindow = 2 * time.Minute
	}
	return c
}

// Info is a point-in-time view of one session for the admin API,
// published by the session's own worker after each handled event.
type Info struct {
	ID             string                `json:"id"`
	Endpoint       string                `json:"endpoint"`
	State          entities.SessionState `json:"state"`
	AudioPackets   uint32                `json:"audio_packets"`
	AudioBytes     uint64                `json:"audio_bytes"`
	PacketsLost    uint32                `json:"packets_lost"`
	CreatedAt      time.Time             `json:"created_at"`
	LastActivityAt time.Time             `json:"last_activity_at"`
}

// worker owns one session. All session state is mutated only on this
// goroutine; the registry and gateway communicate through channels.
type worker struct {
	logger *zap.Logger
	stats  *stats.Stats
	sess   *entities.Session
	bridge repositories.UpstreamBridge
	sender Sender
	cfg    Config
	remove func(*worker)

	inbox     chan *entities.Packet
	responses chan repositories.ResponseAudio
	sweep     chan struct{}
	quit      chan struct{}
	done      chan struct{}

	inResponse bool

	infoMu sync.Mutex
	info   Info
}

func newWorker(
	logger *zap.Logger,
	st *stats.Stats,
	sess *entities.Session,
	bridge repositories.UpstreamBridge,
	sender Sender,
	cfg Config,
	remove func(*worker),
) *worker {
	w := &worker{
		logger:    logger.With(zap.String("session_id", sess.ID), zap.String("endpoint", sess.Endpoint)),
		stats:     st,
		sess:      sess,
		bridge:    bridge,
		sender:    sender,
		cfg:       cfg,
		remove:    remove,
		inbox:     make(chan *entities.Packet, cfg.InboxDepth),
		responses: make(chan repositories.ResponseAudio, 64),
		sweep:     make(chan struct{}, 1),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	w.publishInfo()
	return w
}

// publishInfo copies the session's current state out for concurrent
// readers. Called only on the worker goroutine.
func (w *worker) publishInfo() {
	w.infoMu.Lock()
	w.info = Info{
		ID:             w.sess.ID,
		Endpoint:       w.sess.Endpoint,
		State:          w.sess.State,
		AudioPackets:   w.sess.AudioPackets,
		AudioBytes:     w.sess.AudioBytes,
		PacketsLost:    w.sess.PacketsLost,
		CreatedAt:      w.sess.CreatedAt,
		LastActivityAt: w.sess.LastActivityAt,
	}
	w.infoMu.Unlock()
}

func (w *worker) publishedInfo() Info {
	w.infoMu.Lock()
	defer w.infoMu.Unlock()
	return w.info
}

func (w *worker) run() {
	defer close(w.done)
	for {
		select {
		case pkt := <-w.inbox:
			stop := w.handlePacket(pkt)
			w.publishInfo()
			if stop {
				w.remove(w)
				return
			}
		case resp := <-w.responses:
			stop := w.handleResponse(resp)
			w.publishInfo()
			if stop {
				w.remove(w)
				return
			}
		case <-w.sweep:
			// Sequenced with the inbox: the idle check runs on the
			// worker goroutine, never concurrently with a packet.
			if w.sess.IdleFor(w.cfg.LivenessWindow) {
				w.logger.Info("session evicted",
					zap.Duration("idle", time.Since(w.sess.LastActivityAt)))
				w.stats.SessionEvicted()
				w.bridge.Cancel(context.Background(), w.sess.ID)
				w.remove(w)
				return
			}
		case <-w.quit:
			return
		}
	}
}

// handlePacket applies one device packet. Returns true when the session
// should be torn down.
func (w *worker) handlePacket(pkt *entities.Packet) bool {
	w.sess.Touch()

	switch pkt.Type {
	case entities.PacketHeartbeat:
		w.sender.Send(w.sess.Endpoint, entities.NewHeartbeatEcho(pkt.Seq))
		return false

	case entities.PacketAudioUp:
		return w.handleAudioUp(pkt)

	case entities.PacketControl:
		cmd, ok := pkt.Control()
		if !ok {
			w.stats.DeviceMalformed()
			return false
		}
		return w.handleControl(cmd)

	default:
		// AUDIO_DOWN from a device makes no sense; ignore.
		return false
	}
}

func (w *worker) handleAudioUp(pkt *entities.Packet) bool {
	switch w.sess.State {
	case entities.SessionStateActive:
	case entities.SessionStateEnding:
		// The device is already speaking again while the previous
		// response still streams down: open the next utterance.
		w.sess.State = entities.SessionStateActive
		w.logger.Debug("pipelined utterance started")
	default:
		// No SESSION_START yet; audio without a session contract is
		// dropped, never an error.
		return false
	}

	w.sess.RecordAudio(pkt.Seq, pkt.Payload)
	w.stats.AudioPacket(len(pkt.Payload))

	if err := w.bridge.PushAudio(context.Background(), w.sess.ID, pkt.Payload); err != nil {
		return w.failUpstream("push audio", err)
	}
	return false
}

func (w *worker) handleControl(cmd entities.ControlCommand) bool {
	switch cmd {
	case entities.CmdSessionStart:
		// Idempotent: replayed starts re-arm the same session and each
		// gets a SERVER_READY, so a device that missed the reply can
		// simply retry.
		if w.sess.State == entities.SessionStateEnding {
			w.sess.DiscardUtterance()
		}
		if w.sess.State != entities.SessionStateActive {
			w.logger.Info("session active")
		}
		w.sess.State = entities.SessionStateActive
		w.sendControl(entities.CmdServerReady, 0)
		return false

	case entities.CmdSessionEnd:
		// Exactly one ACK per SESSION_END, whatever state we are in.
		w.sendControl(entities.CmdAck, 0)
		if w.sess.State != entities.SessionStateActive {
			return false
		}
		pcm := w.sess.TakeUtterance()
		w.captureUtterance(pcm)
		w.sess.State = entities.SessionStateEnding
		w.logger.Info("utterance complete",
			zap.Int("bytes", len(pcm)),
			zap.Uint32("packets_lost", w.sess.PacketsLost))
		if err := w.bridge.EndUtterance(context.Background(), w.sess.ID); err != nil {
			return w.failUpstream("end utterance", err)
		}
		return false

	case entities.CmdCancel:
		// Clear any buffered audio and tell upstream to discard its
		// copy. The bridge acknowledges asynchronously; the device gets
		// its ACK immediately.
		w.sess.DiscardUtterance()
		if err := w.bridge.Cancel(context.Background(), w.sess.ID); err != nil {
			w.stats.UpstreamError()
			w.logger.Warn("upstream cancel failed", zap.Error(err))
		}
		if w.sess.State == entities.SessionStateEnding {
			w.sess.State = entities.SessionStateActive
		}
		w.inResponse = false
		w.sendControl(entities.CmdAck, 0)
		return false

	case entities.CmdAck:
		return false

	default:
		// Server-to-device commands echoed back; ignore.
		return false
	}
}

// handleResponse relays one upstream audio chunk to the device. Returns
// true when the session finished its final response and should close.
func (w *worker) handleResponse(resp repositories.ResponseAudio) bool {
	if len(resp.PCM) > 0 {
		if !w.inResponse {
			w.sendControl(entities.CmdStreamStart, entities.FlagStart)
			w.inResponse = true
		}
		for off := 0; off < len(resp.PCM); off += w.cfg.ChunkBytes {
			end := off + w.cfg.ChunkBytes
			if end > len(resp.PCM) {
				end = len(resp.PCM)
			}
			var flags uint8
			if resp.Final && end == len(resp.PCM) {
				flags = entities.FlagEnd
			}
			chunk := entities.NewAudioDownPacket(w.sess.NextSeq(), flags, resp.PCM[off:end])
			w.sender.Send(w.sess.Endpoint, chunk)
			w.stats.ResponseRelayed(end - off)
		}
	}

	if !resp.Final {
		return false
	}

	w.sendControl(entities.CmdStreamEnd, entities.FlagEnd)
	w.inResponse = false

	// After the final response of a SESSION_END'ed utterance the
	// session is done, unless the device already pipelined a new one.
	if w.sess.State == entities.SessionStateEnding {
		w.logger.Info("session complete")
		return true
	}
	return false
}

// failUpstream reports an upstream adapter failure: the device gets an
// immediate STREAM_END instead of hanging, and the session is torn down.
func (w *worker) failUpstream(op string, err error) bool {
	w.stats.UpstreamError()
	w.logger.Warn("upstream failure, tearing session down",
		zap.String("op", op), zap.Error(err))
	w.sendControl(entities.CmdStreamEnd, entities.FlagEnd|entities.FlagUrgent)
	return true
}

func (w *worker) sendControl(cmd entities.ControlCommand, flags uint8) {
	w.sender.Send(w.sess.Endpoint, entities.NewControlPacket(w.sess.NextSeq(), cmd, flags))
}

func (w *worker) captureUtterance(pcm []byte) {
	if w.cfg.UtteranceDir == "" || len(pcm) == 0 {
		return
	}
	path := filepath.Join(w.cfg.UtteranceDir,
		fmt.Sprintf("utterance_%s_%d.wav", w.sess.ID, time.Now().UnixMilli()))
	// Off the hot path; capture failures are log-only.
	go func() {
		if err := audio.WriteWAV(path, pcm, audio.SampleRate); err != nil {
			w.logger.Warn("utterance capture failed", zap.Error(err))
		}
	}()
}
