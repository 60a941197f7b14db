// Package openai bridges device utterances to the OpenAI realtime
// speech API over websockets. Each device session gets its own
// realtime connection; audio is resampled between the device rate
// (16 kHz) and the API rate (24 kHz) at the boundary.
package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/yudurobotics/zing-bridge/domain/entities"
	"github.com/yudurobotics/zing-bridge/domain/repositories"
	"github.com/yudurobotics/zing-bridge/internal/audio"
	"github.com/yudurobotics/zing-bridge/internal/prompts"
)

const (
	defaultBaseURL = "wss://api.openai.com/v1/realtime"
	defaultModel   = "gpt-4o-realtime-preview"
	defaultVoice   = "alloy"

	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	apiSampleRate = 24000
)

// Config holds configuration for the realtime bridge.
// APIKey is required; the rest defaults to sensible values.
type Config struct {
	APIKey  string
	Model   string
	Voice   string
	BaseURL string
}

// Bridge implements repositories.UpstreamBridge against the OpenAI
// realtime API, one websocket connection per device session.
type Bridge struct {
	logger *zap.Logger
	cfg    Config

	mu    sync.Mutex
	conns map[string]*conn
	mode  entities.PromptMode

	responses chan repositories.ResponseAudio
	closeOnce sync.Once
	closed    bool
}

var _ repositories.UpstreamBridge = (*Bridge)(nil)

// NewBridge creates a realtime bridge. It does not dial anything until
// the first utterance arrives.
func NewBridge(cfg Config, logger *zap.Logger) (*Bridge, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Voice == "" {
		cfg.Voice = defaultVoice
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	return &Bridge{
		logger:    logger,
		cfg:       cfg,
		conns:     make(map[string]*conn),
		mode:      entities.ModeNeutral,
		responses: make(chan repositories.ResponseAudio, 256),
	}, nil
}

// PushAudio forwards one chunk of device audio, dialing the realtime
// connection for the session on first use.
func (b *Bridge) PushAudio(ctx context.Context, sessionID string, pcm []byte) error {
	c, err := b.connFor(ctx, sessionID)
	if err != nil {
		return err
	}
	upsampled := audio.Resample(pcm, audio.SampleRate, apiSampleRate)
	return c.send(event{
		Type:  "input_audio_buffer.append",
		Audio: base64.StdEncoding.EncodeToString(upsampled),
	})
}

// EndUtterance commits the buffered audio and asks for a response.
func (b *Bridge) EndUtterance(ctx context.Context, sessionID string) error {
	c, err := b.connFor(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := c.send(event{Type: "input_audio_buffer.commit"}); err != nil {
		return err
	}
	return c.send(event{Type: "response.create"})
}

// Cancel discards buffered audio and any in-flight response.
func (b *Bridge) Cancel(ctx context.Context, sessionID string) error {
	b.mu.Lock()
	c := b.conns[sessionID]
	b.mu.Unlock()
	if c == nil {
		return nil
	}
	if err := c.send(event{Type: "input_audio_buffer.clear"}); err != nil {
		return err
	}
	return c.send(event{Type: "response.cancel"})
}

// UpdatePromptMode updates the session instructions of every live
// connection. The sensor identity only matters for logging; the robot
// has one voice.
func (b *Bridge) UpdatePromptMode(ctx context.Context, sensorID uint32, mode entities.PromptMode) error {
	b.mu.Lock()
	b.mode = mode
	conns := make([]*conn, 0, len(b.conns))
	for _, c := range b.conns {
		conns = append(conns, c)
	}
	b.mu.Unlock()

	b.logger.Info("updating realtime instructions",
		zap.Uint32("sensor_id", sensorID),
		zap.Stringer("mode", mode))

	var firstErr error
	for _, c := range conns {
		if err := c.send(sessionUpdate(b.cfg.Voice, mode)); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Responses streams audio coming back from the API.
func (b *Bridge) Responses() <-chan repositories.ResponseAudio {
	return b.responses
}

// Close tears down every realtime connection.
func (b *Bridge) Close() error {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		conns := make([]*conn, 0, len(b.conns))
		for _, c := range b.conns {
			conns = append(conns, c)
		}
		b.conns = make(map[string]*conn)
		b.mu.Unlock()

		for _, c := range conns {
			c.close()
		}
		close(b.responses)
	})
	return nil
}

func (b *Bridge) connFor(ctx context.Context, sessionID string) (*conn, error) {
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

	c, err := b.dial(ctx, sessionID, mode)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	if existing, ok := b.conns[sessionID]; ok {
		// Lost the race; keep the first connection.
		b.mu.Unlock()
		c.close()
		return existing, nil
	}
	b.conns[sessionID] = c
	b.mu.Unlock()
	return c, nil
}

func (b *Bridge) dial(ctx context.Context, sessionID string, mode entities.PromptMode) (*conn, error) {
	url := fmt.Sprintf("%s?model=%s", b.cfg.BaseURL, b.cfg.Model)
	header := http.Header{}
	header.Set("Authorization", "Bearer "+b.cfg.APIKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("dial realtime API: %w", err)
	}

	c := &conn{
		logger:    b.logger.With(zap.String("session_id", sessionID)),
		sessionID: sessionID,
		ws:        ws,
	}
	if err := c.send(sessionUpdate(b.cfg.Voice, mode)); err != nil {
		c.close()
		return nil, err
	}

	go c.readLoop(b.responses, b.drop)
	b.logger.Info("realtime connection established",
		zap.String("session_id", sessionID),
		zap.String("model", b.cfg.Model))
	return c, nil
}

// drop removes a connection after its read loop exits.
func (b *Bridge) drop(sessionID string) {
	b.mu.Lock()
	delete(b.conns, sessionID)
	b.mu.Unlock()
}

// conn is one realtime websocket connection.
type conn struct {
	logger    *zap.Logger
	sessionID string

	writeMu sync.Mutex
	ws      *websocket.Conn
	dead    bool
}

func (c *conn) send(ev event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.dead {
		return fmt.Errorf("realtime connection is closed")
	}
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

func (c *conn) close() {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.dead {
		return
	}
	c.dead = true
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	c.ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.ws.Close()
}

// readLoop turns server events into ResponseAudio. A broken connection
// emits a final marker so the session machine can unblock the device.
func (c *conn) readLoop(out chan<- repositories.ResponseAudio, drop func(string)) {
	defer func() {
		drop(c.sessionID)
		c.close()
	}()

	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			if !c.isDead() {
				c.logger.Warn("realtime connection lost", zap.Error(err))
				out <- repositories.ResponseAudio{SessionID: c.sessionID, Final: true}
			}
			return
		}

		var ev event
		if err := json.Unmarshal(payload, &ev); err != nil {
			c.logger.Warn("undecodable realtime event", zap.Error(err))
			continue
		}

		switch ev.Type {
		case "response.audio.delta":
			raw, err := base64.StdEncoding.DecodeString(ev.Delta)
			if err != nil {
				c.logger.Warn("undecodable audio delta", zap.Error(err))
				continue
			}
			pcm := audio.Resample(raw, apiSampleRate, audio.SampleRate)
			out <- repositories.ResponseAudio{SessionID: c.sessionID, PCM: pcm}

		case "response.done":
			out <- repositories.ResponseAudio{SessionID: c.sessionID, Final: true}

		case "error":
			if ev.Error != nil {
				c.logger.Warn("realtime API error",
					zap.String("code", ev.Error.Code),
					zap.String("message", ev.Error.Message))
			}

		default:
			// Transcripts, rate limits, and lifecycle chatter are
			// irrelevant to the audio path.
		}
	}
}

func (c *conn) isDead() bool {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.dead
}

// event covers the subset of realtime API messages the bridge speaks.
type event struct {
	Type    string         `json:"type"`
	Audio   string         `json:"audio,omitempty"`
	Delta   string         `json:"delta,omitempty"`
	Session *sessionConfig `json:"session,omitempty"`
	Error   *realtimeError `json:"error,omitempty"`
}

type realtimeError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

type sessionConfig struct {
	Modalities        []string `json:"modalities,omitempty"`
	Instructions      string   `json:"instructions,omitempty"`
	Voice             string   `json:"voice,omitempty"`
	InputAudioFormat  string   `json:"input_audio_format,omitempty"`
	OutputAudioFormat string   `json:"output_audio_format,omitempty"`
}

func sessionUpdate(voice string, mode entities.PromptMode) event {
	return event{
		Type: "session.update",
		Session: &sessionConfig{
			Modalities:        []string{"audio", "text"},
			Instructions:      prompts.Instructions(mode),
			Voice:             voice,
			InputAudioFormat:  "pcm16",
			OutputAudioFormat: "pcm16",
		},
	}
}
