// Package gemini bridges device utterances to the Gemini Live API.
// One live session per device session; utterance boundaries are sent
// explicitly, so the API's automatic voice detection is disabled.
package gemini

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/yudurobotics/zing-bridge/domain/entities"
	"github.com/yudurobotics/zing-bridge/domain/repositories"
	"github.com/yudurobotics/zing-bridge/internal/audio"
	"github.com/yudurobotics/zing-bridge/internal/prompts"
)

const (
	defaultModel = "gemini-2.0-flash-live-001"

	inputMIMEType = "audio/pcm;rate=16000"
	// The live API replies at 24 kHz regardless of the input rate.
	outputSampleRate = 24000
)

// Config holds configuration for the live bridge.
type Config struct {
	APIKey string
	Model  string
}

// Bridge implements repositories.UpstreamBridge against the Gemini
// Live API.
type Bridge struct {
	logger *zap.Logger
	client *genai.Client
	model  string

	mu    sync.Mutex
	conns map[string]*liveConn
	mode  entities.PromptMode

	responses chan repositories.ResponseAudio
	closeOnce sync.Once
	closed    bool
}

var _ repositories.UpstreamBridge = (*Bridge)(nil)

// NewBridge creates a live bridge. Sessions are dialed lazily.
func NewBridge(ctx context.Context, cfg Config, logger *zap.Logger) (*Bridge, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Bridge{
		logger:    logger,
		client:    client,
		model:     cfg.Model,
		conns:     make(map[string]*liveConn),
		mode:      entities.ModeNeutral,
		responses: make(chan repositories.ResponseAudio, 256),
	}, nil
}

// PushAudio forwards one chunk of device audio to the session's live
// connection, marking the start of activity on the first chunk.
func (b *Bridge) PushAudio(ctx context.Context, sessionID string, pcm []byte) error {
	c, err := b.connFor(ctx, sessionID)
	if err != nil {
		return err
	}
	return c.sendAudio(pcm)
}

// EndUtterance marks the end of activity, which prompts the model to
// respond to everything streamed since the activity start.
func (b *Bridge) EndUtterance(ctx context.Context, sessionID string) error {
	c, err := b.connFor(ctx, sessionID)
	if err != nil {
		return err
	}
	return c.endActivity()
}

// Cancel drops the live connection so buffered speech dies with it.
// The next utterance dials a fresh one.
func (b *Bridge) Cancel(ctx context.Context, sessionID string) error {
	b.mu.Lock()
	c := b.conns[sessionID]
	delete(b.conns, sessionID)
	b.mu.Unlock()
	if c != nil {
		c.close()
	}
	return nil
}

// UpdatePromptMode records the mode for connections dialed from now
// on. The live API fixes system instructions at connect time, so
// established conversations keep their current flavor.
func (b *Bridge) UpdatePromptMode(ctx context.Context, sensorID uint32, mode entities.PromptMode) error {
	b.mu.Lock()
	b.mode = mode
	b.mu.Unlock()
	b.logger.Info("live instruction mode updated",
		zap.Uint32("sensor_id", sensorID),
		zap.Stringer("mode", mode))
	return nil
}

// Responses streams audio coming back from the live API.
func (b *Bridge) Responses() <-chan repositories.ResponseAudio {
	return b.responses
}

// Close tears down every live connection.
func (b *Bridge) Close() error {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		conns := make([]*liveConn, 0, len(b.conns))
		for _, c := range b.conns {
			conns = append(conns, c)
		}
		b.conns = make(map[string]*liveConn)
		b.mu.Unlock()

		for _, c := range conns {
			c.close()
		}
		close(b.responses)
	})
	return nil
}

func (b *Bridge) connFor(ctx context.Context, sessionID string) (*liveConn, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, fmt.Errorf("bridge is closed")
	}
	if c, ok := b.conns[sessionID]; ok {
		b.mu.Unlock()
		return c, nil
	}
	mode := b.mode
	b.mu.Unlock()

	session, err := b.client.Live.Connect(ctx, b.model, &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: prompts.Instructions(mode)}},
		},
		RealtimeInputConfig: &genai.RealtimeInputConfig{
			AutomaticActivityDetection: &genai.AutomaticActivityDetection{
				Disabled: true,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("connect live API: %w", err)
	}

	c := &liveConn{
		logger:    b.logger.With(zap.String("session_id", sessionID)),
		sessionID: sessionID,
		session:   session,
	}

	b.mu.Lock()
	if existing, ok := b.conns[sessionID]; ok {
		b.mu.Unlock()
		c.close()
		return existing, nil
	}
	b.conns[sessionID] = c
	b.mu.Unlock()

	go c.receiveLoop(b.responses, b.drop)
	b.logger.Info("live connection established",
		zap.String("session_id", sessionID),
		zap.String("model", b.model))
	return c, nil
}

func (b *Bridge) drop(sessionID string) {
	b.mu.Lock()
	delete(b.conns, sessionID)
	b.mu.Unlock()
}

// liveConn is one Gemini live session.
type liveConn struct {
	logger    *zap.Logger
	sessionID string

	mu       sync.Mutex
	session  *genai.Session
	dead     bool
	speaking bool
}

func (c *liveConn) sendAudio(pcm []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dead {
		return fmt.Errorf("live connection is closed")
	}
	if !c.speaking {
		if err := c.session.SendRealtimeInput(genai.LiveRealtimeInput{
			ActivityStart: &genai.ActivityStart{},
		}); err != nil {
			return err
		}
		c.speaking = true
	}
	return c.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Media: &genai.Blob{Data: pcm, MIMEType: inputMIMEType},
	})
}

func (c *liveConn) endActivity() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dead {
		return fmt.Errorf("live connection is closed")
	}
	c.speaking = false
	return c.session.SendRealtimeInput(genai.LiveRealtimeInput{
		ActivityEnd: &genai.ActivityEnd{},
	})
}

func (c *liveConn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dead {
		return
	}
	c.dead = true
	c.session.Close()
}

func (c *liveConn) isDead() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dead
}

// receiveLoop turns live server messages into ResponseAudio. A broken
// connection emits a final marker so the session machine can unblock
// the device.
func (c *liveConn) receiveLoop(out chan<- repositories.ResponseAudio, drop func(string)) {
	defer func() {
		drop(c.sessionID)
		c.close()
	}()

	for {
		msg, err := c.session.Receive()
		if err != nil {
			if !c.isDead() {
				c.logger.Warn("live connection lost", zap.Error(err))
				out <- repositories.ResponseAudio{SessionID: c.sessionID, Final: true}
			}
			return
		}
		content := msg.ServerContent
		if content == nil {
			continue
		}
		if content.ModelTurn != nil {
			for _, part := range content.ModelTurn.Parts {
				if part.InlineData == nil || len(part.InlineData.Data) == 0 {
					continue
				}
				pcm := audio.Resample(part.InlineData.Data, outputSampleRate, audio.SampleRate)
				out <- repositories.ResponseAudio{SessionID: c.sessionID, PCM: pcm}
			}
		}
		if content.TurnComplete {
			out <- repositories.ResponseAudio{SessionID: c.sessionID, Final: true}
		}
	}
}
