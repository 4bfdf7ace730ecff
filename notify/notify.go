package notify

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/satlab/bluebox/bluebox"
	"github.com/satlab/bluebox/pkg"
)

// PublishTimeout bounds how long a background publish is watched for
// errors.
const PublishTimeout = 5 * time.Second

// Client is the part of mqtt.Client the publisher uses.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Message is the JSON payload published on every change.
type Message struct {
	Timestamp int64          `json:"timestamp"`
	Field     string         `json:"field,omitempty"`
	Config    bluebox.Config `json:"config"`
	Error     string         `json:"error,omitempty"`
}

// Options configures a Publisher.
type Options struct {
	Topic  string
	QoS    byte
	Retain bool
}

// Publisher publishes mirror snapshots to MQTT. It implements
// bluebox.Observer and never blocks the dispatcher.
type Publisher struct {
	client Client
	opts   Options
	now    func() time.Time
}

// New creates a publisher on an already connected client.
func New(client Client, opts Options) *Publisher {
	return &Publisher{client: client, opts: opts, now: time.Now}
}

// Connect dials broker and returns a connected paho client.
func Connect(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		pkg.LogInfo(pkg.ComponentNotify, "connected to broker", "broker", broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		pkg.LogWarn(pkg.ComponentNotify, "connection lost", "error", err)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.WaitTimeout(PublishTimeout) && token.Error() != nil {
		return nil, fmt.Errorf("connect %s: %w", broker, token.Error())
	}
	return client, nil
}

// Publish sends a snapshot of cfg.
func (p *Publisher) Publish(field string, cfg bluebox.Config, cause error) error {
	msg := Message{
		Timestamp: p.now().Unix(),
		Field:     field,
		Config:    cfg,
	}
	if cause != nil {
		msg.Error = cause.Error()
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	token := p.client.Publish(p.opts.Topic, p.opts.QoS, p.opts.Retain, payload)
	go func() {
		if !token.WaitTimeout(PublishTimeout) {
			pkg.LogWarn(pkg.ComponentNotify, "publish timed out", "topic", p.opts.Topic)
			return
		}
		if err := token.Error(); err != nil {
			pkg.LogWarn(pkg.ComponentNotify, "publish failed", "topic", p.opts.Topic, "error", err)
		}
	}()
	return nil
}

// RequestHandled implements bluebox.Observer.
func (p *Publisher) RequestHandled(bluebox.Transaction, bluebox.Kind, error) {}

// ConfigChanged implements bluebox.Observer.
func (p *Publisher) ConfigChanged(field bluebox.Field, cfg bluebox.Config) {
	if err := p.Publish(field.String(), cfg, nil); err != nil {
		pkg.LogWarn(pkg.ComponentNotify, "encode snapshot", "error", err)
	}
}

// Reprogrammed implements bluebox.Observer. Only failures are published;
// successful reprograms follow a ConfigChanged that already carried the
// snapshot.
func (p *Publisher) Reprogrammed(cfg bluebox.Config, err error) {
	if err == nil {
		return
	}
	if perr := p.Publish("", cfg, err); perr != nil {
		pkg.LogWarn(pkg.ComponentNotify, "encode snapshot", "error", perr)
	}
}

var _ bluebox.Observer = (*Publisher)(nil)
