// Package mqttbridge forwards changed DMX frames and source liveness to an MQTT broker.
//
// Topics, with prefix "sacn" and universe 1:
//
//	sacn/1/dmx     512 channel values as raw bytes (retained)
//	sacn/1/status  "online", "stale" or "offline" (retained, "offline" is the last will)
package mqttbridge

import (
	"errors"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/Hundemeier/go-sacn/internal/config"
	"github.com/Hundemeier/go-sacn/sacn"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second
	disconnectQuiesce     = 250 // milliseconds
)

// Status payloads.
const (
	StatusOnline  = "online"
	StatusStale   = "stale"
	StatusOffline = "offline"
)

var (
	// ErrConnectionFailed is returned when the initial connection attempt fails.
	ErrConnectionFailed = errors.New("mqttbridge: connection failed")

	// ErrPublishFailed is returned when a publish operation fails.
	ErrPublishFailed = errors.New("mqttbridge: publish failed")
)

// publisher is the part of pahomqtt.Client used by the bridge.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
}

// Bridge publishes frames of one universe.
type Bridge struct {
	client   publisher
	closer   func()
	universe uint16
	prefix   string
	qos      byte
	log      zerolog.Logger
}

// FrameTopic returns the topic carrying the channel values of a universe.
func FrameTopic(prefix string, universe uint16) string {
	return fmt.Sprintf("%s/%d/dmx", prefix, universe)
}

// StatusTopic returns the topic carrying the liveness of a universe's source.
func StatusTopic(prefix string, universe uint16) string {
	return fmt.Sprintf("%s/%d/status", prefix, universe)
}

// Connect connects to the broker configured in cfg. The status topic of the universe gets
// "offline" as last will.
func Connect(cfg config.MQTTConfig, universe uint16, log zerolog.Logger) (*Bridge, error) {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetWill(StatusTopic(cfg.TopicPrefix, universe), StatusOffline, 1, true)
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		log.Warn().Err(err).Msg("mqtt connection lost")
	})

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	b := newBridge(client, cfg, universe, log)
	b.closer = func() { client.Disconnect(disconnectQuiesce) }
	return b, nil
}

func newBridge(client publisher, cfg config.MQTTConfig, universe uint16, log zerolog.Logger) *Bridge {
	return &Bridge{
		client:   client,
		closer:   func() {},
		universe: universe,
		prefix:   cfg.TopicPrefix,
		qos:      byte(cfg.QoS),
		log:      log.With().Str("component", "mqtt").Logger(),
	}
}

// PublishFrame publishes the channel values of frame and waits for the broker.
func (b *Bridge) PublishFrame(frame sacn.DMXFrame) error {
	channels := frame.Channels()
	return wait(b.client.Publish(FrameTopic(b.prefix, b.universe), b.qos, true, channels[:]))
}

// OnFrame can be registered as receiver callback. It does not wait for the broker, so the
// receive path is not blocked; failed publishes are logged.
func (b *Bridge) OnFrame(frame sacn.DMXFrame) {
	channels := frame.Channels()
	token := b.client.Publish(FrameTopic(b.prefix, b.universe), b.qos, true, channels[:])
	go func() {
		if err := wait(token); err != nil {
			b.log.Warn().Err(err).Msg("frame not published")
		}
	}()
}

// PublishStatus publishes whether the source of the universe is alive.
func (b *Bridge) PublishStatus(stale bool) error {
	status := StatusOnline
	if stale {
		status = StatusStale
	}
	return wait(b.client.Publish(StatusTopic(b.prefix, b.universe), 1, true, status))
}

// Close publishes "offline" and disconnects.
func (b *Bridge) Close() {
	if err := wait(b.client.Publish(StatusTopic(b.prefix, b.universe), 1, true, StatusOffline)); err != nil {
		b.log.Warn().Err(err).Msg("offline status not published")
	}
	b.closer()
}

func wait(token pahomqtt.Token) error {
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}
