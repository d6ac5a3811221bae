// Package mqtt implements the broker connection using Eclipse Paho. The
// client keeps its subscription set so a reconnect restores all handlers,
// and announces bridge availability over a retained LWT topic.
package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/vocbridge/voc2mqtt/infra/logger"
)

// Availability payloads published on the availability topic.
const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Host              string      `json:"host"`
	Port              int         `json:"port"`
	ClientID          string      `json:"client_id"`
	Username          string      `json:"username"`
	Password          string      `json:"password"`
	TopicPrefix       string      `json:"topic_prefix"`
	UseTLS            bool        `json:"use_tls"`
	ClientCert        string      `json:"client_cert"`
	ClientKey         string      `json:"client_key"`
	CABundle          string      `json:"ca_bundle"`
	QoS               byte        `json:"qos"`
	AvailabilityTopic string      `json:"availability_topic"`
	TLSConfig         *tls.Config `json:"-"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Port == 0 {
		c.Port = 1883
	}
	if c.ClientID == "" {
		c.ClientID = "voc2mqtt-" + uuid.NewString()[:8]
	}
	if c.TopicPrefix == "" {
		c.TopicPrefix = "voc"
	}
	if c.AvailabilityTopic == "" {
		c.AvailabilityTopic = c.TopicPrefix + "/status"
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("mqtt host is required")
	}
	return nil
}

// BrokerURL builds the Paho broker URL from host, port and TLS setting.
func (c Config) BrokerURL() string {
	scheme := "tcp"
	if c.UseTLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.Host, c.Port)
}

// LoadTLSConfig loads the TLS configuration from the file paths in the
// config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
	Unsubscribe(topics ...string) paho.Token
}

var newPahoClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// Client implements the bridge.Publisher interface using Eclipse Paho.
type Client struct {
	cli pahoClient
	qos byte
	log logger.Logger

	availabilityTopic string

	mu       sync.Mutex
	handlers map[string]func(topic string, payload []byte)
}

// NewClient connects to the broker. The connection announces availability on
// the configured topic, with an offline LWT for ungraceful disconnects, and
// restores all subscriptions on reconnect.
func NewClient(cfg Config) (*Client, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := logger.New("mqtt_client")
	c := &Client{
		qos:               cfg.QoS,
		log:               log,
		availabilityTopic: cfg.AvailabilityTopic,
		handlers:          make(map[string]func(string, []byte)),
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.BrokerURL()).
		SetClientID(cfg.ClientID).
		SetConnectTimeout(5 * time.Second).
		SetAutoReconnect(true).
		SetWill(cfg.AvailabilityTopic, PayloadOffline, cfg.QoS, true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	opts.OnConnect = func(cli paho.Client) {
		log.Infof("MQTT connected")
		if token := cli.Publish(cfg.AvailabilityTopic, cfg.QoS, true, PayloadOnline); token.Wait() && token.Error() != nil {
			log.Errorf("publish availability: %v", token.Error())
		}
		c.resubscribe(cli)
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}

	cli := newPahoClient(opts)
	if token := cli.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	c.cli = cli
	return c, nil
}

func (c *Client) resubscribe(cli paho.Client) {
	c.mu.Lock()
	handlers := make(map[string]func(string, []byte), len(c.handlers))
	for t, h := range c.handlers {
		handlers[t] = h
	}
	c.mu.Unlock()
	for topic, handler := range handlers {
		h := handler
		if token := cli.Subscribe(topic, c.qos, func(_ paho.Client, m paho.Message) {
			h(m.Topic(), m.Payload())
		}); token.Wait() && token.Error() != nil {
			c.log.Errorf("resubscribe %s: %v", topic, token.Error())
		}
	}
}

// Publish sends a message, optionally retained.
func (c *Client) Publish(topic string, payload []byte, retained bool) error {
	token := c.cli.Publish(topic, c.qos, retained, payload)
	token.Wait()
	return token.Error()
}

// Subscribe registers a handler for the topic. The handler survives
// reconnects.
func (c *Client) Subscribe(topic string, handler func(topic string, payload []byte)) error {
	c.mu.Lock()
	c.handlers[topic] = handler
	c.mu.Unlock()
	token := c.cli.Subscribe(topic, c.qos, func(_ paho.Client, m paho.Message) {
		handler(m.Topic(), m.Payload())
	})
	token.Wait()
	return token.Error()
}

// Unsubscribe drops the topics and their handlers.
func (c *Client) Unsubscribe(topics ...string) error {
	c.mu.Lock()
	for _, t := range topics {
		delete(c.handlers, t)
	}
	c.mu.Unlock()
	token := c.cli.Unsubscribe(topics...)
	token.Wait()
	return token.Error()
}

// Close publishes the offline payload and disconnects.
func (c *Client) Close() {
	if c.cli == nil || !c.cli.IsConnected() {
		return
	}
	if token := c.cli.Publish(c.availabilityTopic, c.qos, true, PayloadOffline); token.Wait() && token.Error() != nil {
		c.log.Errorf("publish availability: %v", token.Error())
	}
	c.cli.Disconnect(250)
}
