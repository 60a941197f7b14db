// Package config loads runtime configuration from environment
// variables. Every knob has a default suitable for local development,
// so an empty environment yields a working mock-upstream server.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Upstream selects which realtime speech backend the bridge talks to.
const (
	UpstreamMock   = "mock"
	UpstreamOpenAI = "openai"
	UpstreamGemini = "gemini"
)

// Config is the full runtime configuration of the bridge.
type Config struct {
	Host string `env:"HOST" envDefault:"0.0.0.0"`

	// Device-facing session gateway (UDP).
	DevicePort int `env:"DEVICE_PORT" envDefault:"9001"`

	// Sensor ingest listeners.
	SensorUDPPort int    `env:"SENSOR_UDP_PORT" envDefault:"9002"`
	SensorTCPPort int    `env:"SENSOR_TCP_PORT" envDefault:"0"`
	MQTTEnabled   bool   `env:"MQTT_ENABLED" envDefault:"false"`
	MQTTBrokerURL string `env:"MQTT_BROKER_URL" envDefault:"tcp://localhost:1883"`
	MQTTClientID  string `env:"MQTT_CLIENT_ID" envDefault:"zing-bridge"`
	MQTTTopic     string `env:"MQTT_TOPIC_PREFIX" envDefault:"zing/sensors"`
	MQTTUsername  string `env:"MQTT_USERNAME"`
	MQTTPassword  string `env:"MQTT_PASSWORD"`

	// Admin HTTP API.
	APIPort   int    `env:"API_PORT" envDefault:"8080"`
	JWTSecret string `env:"JWT_SECRET"`

	// Session lifecycle.
	MaxSessions    int           `env:"MAX_SESSIONS" envDefault:"0"`
	LivenessWindow time.Duration `env:"LIVENESS_WINDOW" envDefault:"2m"`
	SweepInterval  time.Duration `env:"SWEEP_INTERVAL" envDefault:"15s"`
	ChunkBytes     int           `env:"CHUNK_BYTES" envDefault:"1400"`
	UtteranceDir   string        `env:"UTTERANCE_DIR"`

	// Affect pipeline.
	Persona         string        `env:"PERSONA" envDefault:"obedient"`
	AffectWorkers   int           `env:"AFFECT_WORKERS" envDefault:"4"`
	AffectModeDwell time.Duration `env:"AFFECT_MODE_DWELL" envDefault:"0"`

	// Upstream realtime speech backend.
	Upstream     string `env:"UPSTREAM" envDefault:"mock"`
	OpenAIAPIKey string `env:"OPENAI_API_KEY"`
	OpenAIModel  string `env:"OPENAI_REALTIME_MODEL" envDefault:"gpt-4o-realtime-preview"`
	OpenAIVoice  string `env:"OPENAI_VOICE" envDefault:"alloy"`
	GeminiAPIKey string `env:"GEMINI_API_KEY"`
	GeminiModel  string `env:"GEMINI_LIVE_MODEL" envDefault:"gemini-2.0-flash-live-001"`

	StatsInterval time.Duration `env:"STATS_INTERVAL" envDefault:"1m"`
	LogLevel      string        `env:"LOG_LEVEL" envDefault:"info"`
}

// Load parses configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Upstream {
	case UpstreamMock:
	case UpstreamOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("UPSTREAM=openai requires OPENAI_API_KEY")
		}
	case UpstreamGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("UPSTREAM=gemini requires GEMINI_API_KEY")
		}
	default:
		return fmt.Errorf("unknown UPSTREAM %q", c.Upstream)
	}
	if c.ChunkBytes <= 0 {
		return fmt.Errorf("CHUNK_BYTES must be positive")
	}
	return nil
}

// DeviceAddr is the listen address of the device session gateway.
func (c *Config) DeviceAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.DevicePort)
}

// SensorUDPAddr is the listen address of the sensor UDP listener.
func (c *Config) SensorUDPAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.SensorUDPPort)
}

// SensorTCPAddr is the listen address of the sensor TCP listener, or
// empty when the listener is disabled.
func (c *Config) SensorTCPAddr() string {
	if c.SensorTCPPort == 0 {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.Host, c.SensorTCPPort)
}

// APIAddr is the listen address of the admin HTTP API.
func (c *Config) APIAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.APIPort)
}
