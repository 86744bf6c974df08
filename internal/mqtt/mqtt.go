// Package mqtt publishes clip and session events to an MQTT broker.
package mqtt

import (
	"context"
	"time"

	"github.com/tphakala/killclip/internal/conf"
	"github.com/tphakala/killclip/internal/logger"
)

// Client defines the interface for MQTT client operations.
type Client interface {
	// Connect attempts to connect to the MQTT broker.
	Connect(ctx context.Context) error

	// Publish sends a message to the specified topic on the MQTT broker.
	Publish(ctx context.Context, topic string, payload string) error

	// IsConnected returns true if the client is currently connected to the MQTT broker.
	IsConnected() bool

	// Disconnect closes the connection to the MQTT broker.
	Disconnect()
}

// Metrics receives client telemetry.
type Metrics interface {
	SetMQTTConnected(connected bool)
	ObserveMQTTPublish(size int, elapsed time.Duration, err error)
}

// Config holds the configuration for the MQTT client.
type Config struct {
	Broker            string
	ClientID          string
	Username          string
	Password          string
	Topic             string // topic prefix
	Retain            bool   // true to retain messages at the broker
	ReconnectCooldown time.Duration
	ConnectTimeout    time.Duration
	PublishTimeout    time.Duration
	DisconnectTimeout time.Duration
}

// DefaultConfig returns a Config with reasonable default values
func DefaultConfig() Config {
	return Config{
		Topic:             "killclip",
		ReconnectCooldown: 5 * time.Second,
		ConnectTimeout:    30 * time.Second,
		PublishTimeout:    10 * time.Second,
		DisconnectTimeout: 250 * time.Millisecond,
	}
}

// ConfigFromSettings merges MQTT settings over the defaults. The node name is the
// fallback client ID.
func ConfigFromSettings(settings conf.MQTTSettings, nodeName string) Config {
	cfg := DefaultConfig()
	cfg.Broker = settings.Broker
	cfg.ClientID = settings.ClientID
	if cfg.ClientID == "" {
		cfg.ClientID = nodeName
	}
	cfg.Username = settings.Username
	cfg.Password = settings.Password
	cfg.Retain = settings.Retain
	if settings.Topic != "" {
		cfg.Topic = settings.Topic
	}
	return cfg
}

// GetLogger returns the mqtt package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("mqtt")
}
