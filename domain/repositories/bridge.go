package repositories

import (
	"context"

	"github.com/yudurobotics/zing-bridge/domain/entities"
)

// ResponseAudio is one chunk of synthesized speech flowing back from an
// upstream provider toward a device session.
type ResponseAudio struct {
	// SessionID identifies the session the audio belongs to.
	SessionID string
	// PCM is 16 kHz/16-bit mono little-endian audio. Empty on the final
	// chunk of a response.
	PCM []byte
	// Final marks the end of one complete response.
	Final bool
}

// UpstreamBridge abstracts any cloud realtime speech provider. All
// methods are safe for concurrent use; a bridge serializes per-session
// work internally where the provider requires it.
type UpstreamBridge interface {
	// PushAudio streams one chunk of utterance PCM upstream.
	PushAudio(ctx context.Context, sessionID string, pcm []byte) error

	// EndUtterance commits the buffered utterance and requests a
	// spoken response.
	EndUtterance(ctx context.Context, sessionID string) error

	// Cancel discards any uncommitted utterance audio for the session.
	Cancel(ctx context.Context, sessionID string) error

	// UpdatePromptMode informs the provider that the ambient emotional
	// context changed, so subsequent responses adopt the new tone.
	UpdatePromptMode(ctx context.Context, sensorID uint32, mode entities.PromptMode) error

	// Responses yields response audio chunks for all sessions. The
	// channel is closed by Close.
	Responses() <-chan ResponseAudio

	// Close releases provider connections and closes Responses.
	Close() error
}
