package transport

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/Saisumanthklv/weapp-starter-template/internal/errors"
	"github.com/Saisumanthklv/weapp-starter-template/internal/logger"
)

const (
	mqttConnectTimeout = 30 * time.Second
	mqttPublishTimeout = 10 * time.Second
	mqttDisconnectMs   = 250
)

// MQTTConfig configures MQTTTransport
type MQTTConfig struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	Logger      logger.Logger
}

// ClientFactory builds the paho client; tests replace it.
type ClientFactory func(opts *mqtt.ClientOptions) mqtt.Client

// MQTTTransport publishes payloads as JSON to <prefix>/<endpoint>. It has
// no responses, so it can only serve Send.
type MQTTTransport struct {
	cfg     MQTTConfig
	log     logger.Logger
	factory ClientFactory

	mu     sync.Mutex
	client mqtt.Client
}

// NewMQTTTransport creates an MQTT transport. Connect must be called before Send.
func NewMQTTTransport(cfg MQTTConfig, factory ClientFactory) *MQTTTransport {
	if factory == nil {
		factory = mqtt.NewClient
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	return &MQTTTransport{cfg: cfg, log: log.Module("mqtt"), factory: factory}
}

// Connect dials the broker, honoring ctx cancellation while waiting.
func (t *MQTTTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	opts := mqtt.NewClientOptions()
	opts.AddBroker(t.cfg.Broker)
	opts.SetClientID(t.cfg.ClientID)
	opts.SetUsername(t.cfg.Username)
	opts.SetPassword(t.cfg.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		t.log.Info("connected to broker", logger.String("broker", t.cfg.Broker))
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		t.log.Warn("connection to broker lost", logger.String("broker", t.cfg.Broker), logger.Error(err))
	})

	client := t.factory(opts)
	if err := waitToken(ctx, client.Connect(), mqttConnectTimeout); err != nil {
		return errors.New(err).
			Component(component).
			Category(errors.CategoryTransport).
			Context("operation", "mqtt_connect").
			Context("broker", t.cfg.Broker).
			Build()
	}
	t.client = client
	return nil
}

// Topic maps an API endpoint onto a topic: "/error/report" becomes
// "<prefix>/error/report".
func (t *MQTTTransport) Topic(endpoint string) string {
	endpoint = strings.Trim(endpoint, "/")
	prefix := strings.Trim(t.cfg.TopicPrefix, "/")
	if prefix == "" {
		return endpoint
	}
	return prefix + "/" + endpoint
}

// Send publishes payload as JSON at QoS 1.
func (t *MQTTTransport) Send(ctx context.Context, endpoint string, payload any) error {
	t.mu.Lock()
	client := t.client
	t.mu.Unlock()

	build := func(err error) error {
		return errors.New(err).
			Component(component).
			Category(errors.CategoryTransport).
			Context("operation", "mqtt_publish").
			Context("endpoint", endpoint).
			Build()
	}

	if client == nil || !client.IsConnected() {
		return build(errors.NewStd("not connected to MQTT broker"))
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.New(err).
			Component(component).
			Category(errors.CategorySerialization).
			Context("endpoint", endpoint).
			Build()
	}
	if err := waitToken(ctx, client.Publish(t.Topic(endpoint), 1, false, data), mqttPublishTimeout); err != nil {
		return build(err)
	}
	return nil
}

// Close disconnects from the broker.
func (t *MQTTTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client != nil && t.client.IsConnected() {
		t.client.Disconnect(mqttDisconnectMs)
	}
	t.client = nil
	return nil
}

func waitToken(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return errors.New(errors.NewStd("mqtt operation timed out")).Category(errors.CategoryTimeout).Build()
	case <-ctx.Done():
		return ctx.Err()
	}
}
