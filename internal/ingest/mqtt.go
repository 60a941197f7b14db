package ingest

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// MQTTConfig describes the broker subscription for sensor envelopes.
type MQTTConfig struct {
	// BrokerURL is e.g. "tcp://localhost:1883".
	BrokerURL string
	ClientID  string
	// TopicPrefix is the first topic segment; sensors publish raw
	// envelopes to "<prefix>/<sensor_id>".
	TopicPrefix string
	Username    string
	Password    string
}

// MQTTListener subscribes to the sensor topic tree and feeds message
// bodies through the shared decode mux. The sensor id in the envelope
// is authoritative; the topic segment is ignored.
type MQTTListener struct {
	logger *zap.Logger
	mux    *Mux
	cfg    MQTTConfig
	client mqtt.Client
}

func NewMQTTListener(logger *zap.Logger, mux *Mux, cfg MQTTConfig) *MQTTListener {
	return &MQTTListener{logger: logger, mux: mux, cfg: cfg}
}

// Serve connects to the broker and blocks until ctx is canceled.
func (l *MQTTListener) Serve(ctx context.Context) error {
	topic := l.cfg.TopicPrefix + "/+"

	opts := mqtt.NewClientOptions().
		AddBroker(l.cfg.BrokerURL).
		SetClientID(l.cfg.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second).
		SetOnConnectHandler(func(c mqtt.Client) {
			// Resubscribe on every (re)connect; clean sessions do not
			// persist subscriptions.
			if token := c.Subscribe(topic, 0, l.onMessage); token.Wait() && token.Error() != nil {
				l.logger.Error("mqtt subscribe failed",
					zap.String("topic", topic), zap.Error(token.Error()))
				return
			}
			l.logger.Info("mqtt subscribed", zap.String("topic", topic))
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			l.logger.Warn("mqtt connection lost", zap.Error(err))
		})
	if l.cfg.Username != "" {
		opts.SetUsername(l.cfg.Username)
		opts.SetPassword(l.cfg.Password)
	}

	l.client = mqtt.NewClient(opts)
	if token := l.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt connect %s: %w", l.cfg.BrokerURL, token.Error())
	}

	<-ctx.Done()
	l.client.Disconnect(250)
	return nil
}

func (l *MQTTListener) onMessage(_ mqtt.Client, msg mqtt.Message) {
	l.mux.Handle("mqtt", msg.Payload())
}
