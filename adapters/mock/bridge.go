// Package mock provides an in-memory upstream bridge: tests drive it
// directly, and the server runs on it when no cloud provider is
// configured, echoing each utterance back as the response.
package mock

import (
	"context"
	"sync"

	"github.com/yudurobotics/zing-bridge/domain/entities"
	"github.com/yudurobotics/zing-bridge/domain/repositories"
)

// Bridge records every adapter call and lets callers emit response
// audio at will.
type Bridge struct {
	// Echo makes EndUtterance play the buffered utterance back as the
	// response, so a device hears itself. Useful without credentials.
	Echo bool

	mu       sync.Mutex
	pushed   map[string][][]byte
	ended    []string
	canceled []string
	modes    map[uint32]entities.PromptMode
	pushErr  error
	endErr   error

	responses chan repositories.ResponseAudio
	closeOnce sync.Once
}

func NewBridge() *Bridge {
	return &Bridge{
		pushed:    make(map[string][][]byte),
		modes:     make(map[uint32]entities.PromptMode),
		responses: make(chan repositories.ResponseAudio, 256),
	}
}

func (b *Bridge) PushAudio(_ context.Context, sessionID string, pcm []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pushErr != nil {
		return b.pushErr
	}
	b.pushed[sessionID] = append(b.pushed[sessionID], append([]byte(nil), pcm...))
	return nil
}

func (b *Bridge) EndUtterance(_ context.Context, sessionID string) error {
	b.mu.Lock()
	if b.endErr != nil {
		err := b.endErr
		b.mu.Unlock()
		return err
	}
	b.ended = append(b.ended, sessionID)
	var echo []byte
	if b.Echo {
		for _, chunk := range b.pushed[sessionID] {
			echo = append(echo, chunk...)
		}
		b.pushed[sessionID] = nil
	}
	b.mu.Unlock()

	if b.Echo {
		b.responses <- repositories.ResponseAudio{SessionID: sessionID, PCM: echo}
		b.responses <- repositories.ResponseAudio{SessionID: sessionID, Final: true}
	}
	return nil
}

func (b *Bridge) Cancel(_ context.Context, sessionID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.canceled = append(b.canceled, sessionID)
	b.pushed[sessionID] = nil
	return nil
}

func (b *Bridge) UpdatePromptMode(_ context.Context, sensorID uint32, mode entities.PromptMode) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.modes[sensorID] = mode
	return nil
}

func (b *Bridge) Responses() <-chan repositories.ResponseAudio {
	return b.responses
}

func (b *Bridge) Close() error {
	b.closeOnce.Do(func() { close(b.responses) })
	return nil
}

// Emit queues a response chunk, simulating provider output.
func (b *Bridge) Emit(resp repositories.ResponseAudio) {
	b.responses <- resp
}

// FailPushes makes subsequent PushAudio calls return err.
func (b *Bridge) FailPushes(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pushErr = err
}

// FailEnds makes subsequent EndUtterance calls return err.
func (b *Bridge) FailEnds(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.endErr = err
}

// Pushed returns the audio chunks pushed for a session, in order.
func (b *Bridge) Pushed(sessionID string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([][]byte, len(b.pushed[sessionID]))
	copy(out, b.pushed[sessionID])
	return out
}

// Ended returns the sessions that committed an utterance, in order.
func (b *Bridge) Ended() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.ended...)
}

// Canceled returns the sessions that requested a cancel, in order.
func (b *Bridge) Canceled() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.canceled...)
}

// Mode returns the last prompt mode set for a sensor.
func (b *Bridge) Mode(sensorID uint32) (entities.PromptMode, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	mode, ok := b.modes[sensorID]
	return mode, ok
}
