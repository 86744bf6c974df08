package mqtt

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/tphakala/killclip/internal/errors"
	"github.com/tphakala/killclip/internal/logger"
)

// client implements the Client interface on top of paho.
type client struct {
	config          Config
	metrics         Metrics
	internalClient  mqtt.Client
	lastConnAttempt time.Time
	mu              sync.Mutex
	log             logger.Logger
}

// NewClient creates a new MQTT client with the provided configuration. metrics may be nil.
func NewClient(config Config, metrics Metrics) (Client, error) {
	if config.Broker == "" {
		return nil, errors.New(errors.NewStd("mqtt broker is not configured")).
			Component("mqtt").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if _, err := url.Parse(config.Broker); err != nil {
		return nil, errors.New(fmt.Errorf("invalid broker URL: %w", err)).
			Component("mqtt").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &client{
		config:  config,
		metrics: metrics,
		log:     GetLogger().With(logger.String("broker", config.Broker)),
	}, nil
}

// Connect attempts to establish a connection to the MQTT broker.
// It first resolves the broker's hostname and then attempts to connect.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if since := time.Since(c.lastConnAttempt); since < c.config.ReconnectCooldown {
		return connectionError(fmt.Errorf("connection attempt too recent, last attempt was %v ago", since.Round(time.Millisecond)))
	}
	c.lastConnAttempt = time.Now()

	u, err := url.Parse(c.config.Broker)
	if err != nil {
		return connectionError(fmt.Errorf("invalid broker URL: %w", err))
	}

	host := u.Hostname()
	if host == "" {
		return connectionError(fmt.Errorf("broker URL %q has no host", c.config.Broker))
	}
	if net.ParseIP(host) == nil {
		if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
			return connectionError(fmt.Errorf("failed to resolve hostname %s: %w", host, err))
		}
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(c.config.Broker)
	opts.SetClientID(c.config.ClientID)
	opts.SetUsername(c.config.Username)
	opts.SetPassword(c.config.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(c.config.ConnectTimeout)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)

	if c.internalClient != nil && c.internalClient.IsConnected() {
		c.internalClient.Disconnect(uint(c.config.DisconnectTimeout.Milliseconds()))
	}
	c.internalClient = mqtt.NewClient(opts)

	token := c.internalClient.Connect()
	if err := waitToken(ctx, token, c.config.ConnectTimeout); err != nil {
		return connectionError(fmt.Errorf("connection error: %w", err))
	}

	c.metrics.SetMQTTConnected(true)
	return nil
}

// Publish sends a message to the specified topic on the MQTT broker.
func (c *client) Publish(ctx context.Context, topic string, payload string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isConnectedLocked() {
		err := publishError(errors.NewStd("not connected to MQTT broker"), topic)
		c.metrics.ObserveMQTTPublish(len(payload), 0, err)
		return err
	}

	start := time.Now()
	token := c.internalClient.Publish(topic, 0, c.config.Retain, payload)
	err := waitToken(ctx, token, c.config.PublishTimeout)
	if err != nil {
		err = publishError(err, topic)
	}
	c.metrics.ObserveMQTTPublish(len(payload), time.Since(start), err)
	if err == nil {
		c.log.Debug("message published", logger.String("topic", topic), logger.Int("size", len(payload)))
	}
	return err
}

// IsConnected returns true if the client is currently connected to the MQTT broker.
func (c *client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isConnectedLocked()
}

func (c *client) isConnectedLocked() bool {
	return c.internalClient != nil && c.internalClient.IsConnected()
}

// Disconnect closes the connection to the MQTT broker.
func (c *client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.internalClient != nil {
		c.internalClient.Disconnect(uint(c.config.DisconnectTimeout.Milliseconds()))
		c.internalClient = nil
		c.metrics.SetMQTTConnected(false)
	}
}

func (c *client) onConnect(_ mqtt.Client) {
	c.log.Info("connected to MQTT broker")
	c.metrics.SetMQTTConnected(true)
}

func (c *client) onConnectionLost(_ mqtt.Client, err error) {
	c.log.Warn("connection to MQTT broker lost", logger.Error(err))
	c.metrics.SetMQTTConnected(false)
}

// waitToken waits for a paho token, giving up on timeout or when ctx is done.
func waitToken(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}
	select {
	case <-token.Done():
		return token.Error()
	case <-timeoutCh:
		return errors.New(errors.NewStd("operation timed out")).
			Component("mqtt").
			Category(errors.CategoryTimeout).
			Build()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func connectionError(err error) error {
	return errors.New(err).
		Component("mqtt").
		Category(errors.CategoryMQTTConnection).
		Build()
}

func publishError(err error, topic string) error {
	return errors.New(err).
		Component("mqtt").
		Category(errors.CategoryMQTTPublish).
		Context("topic", topic).
		Build()
}

type nopMetrics struct{}

func (nopMetrics) SetMQTTConnected(bool)                        {}
func (nopMetrics) ObserveMQTTPublish(int, time.Duration, error) {}
