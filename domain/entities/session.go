package entities

import (
	"time"

	"github.com/google/uuid"
)

// SessionState represents the lifecycle state of a device session.
type SessionState string

const (
	// SessionStateIdle means the session exists but no utterance is open.
	SessionStateIdle SessionState = "idle"
	// SessionStateActive means the device is streaming an utterance upward.
	SessionStateActive SessionState = "active"
	// SessionStateEnding means the utterance was flushed upstream and the
	// session is relaying the response downward until the adapter finishes.
	SessionStateEnding SessionState = "ending"
)

// Session tracks protocol state and accumulated audio for one device
// endpoint. The endpoint's network origin is its identity; there is no
// explicit device id at this layer.
//
// A session is owned by exactly one worker goroutine; it carries no
// internal locking.
type Session struct {
	ID       string
	Endpoint string
	State    SessionState

	// LastSeq is diagnostic only. Sequence numbers never reorder or
	// reject audio; the protocol tolerates loss and reordering.
	LastSeq     uint16
	seqSeen     bool
	PacketsLost uint32

	AudioPackets uint32
	AudioBytes   uint64
	audio        []byte

	outSeq uint16

	CreatedAt      time.Time
	LastActivityAt time.Time
}

// NewSession creates an idle session for the given endpoint.
// The audio accumulator is pre-sized for ~30 s of 16 kHz/16-bit mono PCM.
func NewSession(endpoint string) *Session {
	now := time.Now()
	return &Session{
		ID:             uuid.NewString(),
		Endpoint:       endpoint,
		State:          SessionStateIdle,
		audio:          make([]byte, 0, 16000*2*30),
		CreatedAt:      now,
		LastActivityAt: now,
	}
}

// Touch records traffic from the endpoint, deferring liveness eviction.
func (s *Session) Touch() {
	s.LastActivityAt = time.Now()
}

// IdleFor reports whether the session has seen no traffic for at least
// the given window.
func (s *Session) IdleFor(window time.Duration) bool {
	return time.Since(s.LastActivityAt) >= window
}

// RecordAudio appends an audio payload in receipt order and tracks
// sequence gaps for diagnostics.
func (s *Session) RecordAudio(seq uint16, payload []byte) {
	if s.seqSeen {
		if expected := s.LastSeq + 1; seq != expected {
			s.PacketsLost += uint32(seq - expected)
		}
	}
	s.LastSeq = seq
	s.seqSeen = true
	s.AudioPackets++
	s.AudioBytes += uint64(len(payload))
	s.audio = append(s.audio, payload...)
	s.Touch()
}

// TakeUtterance returns the accumulated PCM and resets the accumulator
// for the next utterance.
func (s *Session) TakeUtterance() []byte {
	buf := s.audio
	s.audio = make([]byte, 0, cap(buf))
	s.AudioPackets = 0
	s.AudioBytes = 0
	s.PacketsLost = 0
	s.seqSeen = false
	return buf
}

// DiscardUtterance drops any accumulated audio without returning it.
func (s *Session) DiscardUtterance() {
	s.TakeUtterance()
}

// NextSeq returns the next outgoing sequence number, wrapping at 65535.
func (s *Session) NextSeq() uint16 {
	seq := s.outSeq
	s.outSeq++
	return seq
}

// AudioDuration estimates the buffered utterance length at 16 kHz/16-bit mono.
func (s *Session) AudioDuration() time.Duration {
	return time.Duration(float64(len(s.audio)) / (16000.0 * 2.0) * float64(time.Second))
}
