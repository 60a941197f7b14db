package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yudurobotics/zing-bridge/domain/entities"
	"github.com/yudurobotics/zing-bridge/domain/repositories"
	"github.com/yudurobotics/zing-bridge/internal/stats"
)

// Registry maps device endpoints to session workers. Sessions are
// created only by SESSION_START; every other packet type for an unknown
// endpoint gets the permissive no-session treatment.
type Registry struct {
	logger *zap.Logger
	stats  *stats.Stats
	bridge repositories.UpstreamBridge
	sender Sender
	cfg    Config
	max    int

	mu         sync.Mutex
	byEndpoint map[string]*worker
	byID       map[string]*worker
	closed     bool
}

func NewRegistry(
	logger *zap.Logger,
	st *stats.Stats,
	bridge repositories.UpstreamBridge,
	sender Sender,
	cfg Config,
	maxSessions int,
) *Registry {
	return &Registry{
		logger:     logger,
		stats:      st,
		bridge:     bridge,
		sender:     sender,
		cfg:        cfg.withDefaults(),
		max:        maxSessions,
		byEndpoint: make(map[string]*worker),
		byID:       make(map[string]*worker),
	}
}

// Dispatch routes one decoded packet to its endpoint's worker, creating
// the session when the packet is a SESSION_START. Creation is
// at-most-once per endpoint: the map is checked and inserted under one
// lock, so concurrent first packets cannot race in two sessions.
func (r *Registry) Dispatch(endpoint string, pkt *entities.Packet) {
	r.mu.Lock()
	w, ok := r.byEndpoint[endpoint]
	if !ok {
		if r.closed || !isSessionStart(pkt) {
			r.mu.Unlock()
			r.handleOrphan(endpoint, pkt)
			return
		}
		if r.max > 0 && len(r.byEndpoint) >= r.max {
			// At capacity: reject by omitting SERVER_READY. The
			// device's own retry timeout governs recovery.
			r.mu.Unlock()
			r.stats.SessionRejected()
			r.logger.Warn("session capacity reached, start ignored",
				zap.String("endpoint", endpoint), zap.Int("max", r.max))
			return
		}
		sess := entities.NewSession(endpoint)
		w = newWorker(r.logger, r.stats, sess, r.bridge, r.sender, r.cfg, r.removeWorker)
		r.byEndpoint[endpoint] = w
		r.byID[sess.ID] = w
		r.stats.SessionCreated()
		go w.run()
	}
	r.mu.Unlock()

	select {
	case w.inbox <- pkt:
	case <-w.done:
		// Worker exited between lookup and enqueue; the packet is lost
		// like any other datagram.
	default:
		// Inbox overflow: dropping beats blocking the gateway loop.
		r.stats.DeviceMalformed()
	}
}

// DeliverResponse hands an upstream audio chunk to its session worker.
// Chunks for unknown (already torn down) sessions are discarded.
func (r *Registry) DeliverResponse(resp repositories.ResponseAudio) {
	r.mu.Lock()
	w := r.byID[resp.SessionID]
	r.mu.Unlock()
	if w == nil {
		return
	}
	select {
	case w.responses <- resp:
	case <-w.done:
	}
}

// Sweep pings every worker on each tick so idle sessions evict
// themselves. The idle check runs on the worker goroutine, sequencing
// eviction with in-flight packets.
func (r *Registry) Sweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, w := range r.workers() {
				select {
				case w.sweep <- struct{}{}:
				default:
				}
			}
		}
	}
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byEndpoint)
}

// Lookup reports whether an endpoint currently has a session.
func (r *Registry) Lookup(endpoint string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.byEndpoint[endpoint]
	return ok
}

// Snapshot returns the published state of every live session.
func (r *Registry) Snapshot() []Info {
	workers := r.workers()
	out := make([]Info, 0, len(workers))
	for _, w := range workers {
		out = append(out, w.publishedInfo())
	}
	return out
}

// Close stops all workers. In-flight packets are abandoned.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	workers := make([]*worker, 0, len(r.byEndpoint))
	for _, w := range r.byEndpoint {
		workers = append(workers, w)
	}
	r.byEndpoint = make(map[string]*worker)
	r.byID = make(map[string]*worker)
	r.mu.Unlock()

	for _, w := range workers {
		close(w.quit)
		<-w.done
	}
}

func (r *Registry) workers() []*worker {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*worker, 0, len(r.byEndpoint))
	for _, w := range r.byEndpoint {
		out = append(out, w)
	}
	return out
}

func (r *Registry) removeWorker(w *worker) {
	r.mu.Lock()
	delete(r.byEndpoint, w.sess.Endpoint)
	delete(r.byID, w.sess.ID)
	r.mu.Unlock()
}

// handleOrphan applies the no-session rules: heartbeats are echoed,
// SESSION_END and CANCEL are acknowledged as no-ops, audio is dropped.
func (r *Registry) handleOrphan(endpoint string, pkt *entities.Packet) {
	switch pkt.Type {
	case entities.PacketHeartbeat:
		r.sender.Send(endpoint, entities.NewHeartbeatEcho(pkt.Seq))
	case entities.PacketControl:
		if cmd, ok := pkt.Control(); ok &&
			(cmd == entities.CmdSessionEnd || cmd == entities.CmdCancel) {
			r.sender.Send(endpoint, entities.NewControlPacket(0, entities.CmdAck, 0))
		}
	}
}

func isSessionStart(pkt *entities.Packet) bool {
	cmd, ok := pkt.Control()
	return ok && cmd == entities.CmdSessionStart
}
