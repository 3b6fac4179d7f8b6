// Package mqttmock provides an in-memory stand-in for the paho client so the
// bus adapters can be exercised without a broker.
package mqttmock

import (
	"strings"
	"sync"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
)

type PublishCall struct {
	Payload  interface{}
	Topic    string
	QoS      byte
	Retained bool
}

type SubscribeCall struct {
	Handler MQTT.MessageHandler
	Topic   string
	QoS     byte
}

// Client implements MQTT.Client. OnPublish, when set, runs after every
// publish is recorded, outside the client lock, so it may call Deliver.
type Client struct {
	OnPublish      func(c *Client, topic string, payload interface{})
	PublishErr     error
	publishCalls   []PublishCall
	subscribeCalls []SubscribeCall
	connected      bool
	mu             sync.RWMutex
}

func NewClient() *Client {
	return &Client{connected: true}
}

func (m *Client) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

func (m *Client) IsConnectionOpen() bool { return m.IsConnected() }

func (m *Client) Connect() MQTT.Token {
	m.mu.Lock()
	m.connected = true
	m.mu.Unlock()
	return &Token{}
}

func (m *Client) Disconnect(quiesce uint) {
	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()
}

func (m *Client) Publish(topic string, qos byte, retained bool, payload interface{}) MQTT.Token {
	m.mu.Lock()
	m.publishCalls = append(m.publishCalls, PublishCall{
		Topic:    topic,
		QoS:      qos,
		Retained: retained,
		Payload:  payload,
	})
	hook := m.OnPublish
	err := m.PublishErr
	m.mu.Unlock()
	if hook != nil && err == nil {
		hook(m, topic, payload)
	}
	return &Token{err: err}
}

func (m *Client) Subscribe(topic string, qos byte, callback MQTT.MessageHandler) MQTT.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribeCalls = append(m.subscribeCalls, SubscribeCall{
		Topic:   topic,
		QoS:     qos,
		Handler: callback,
	})
	return &Token{}
}

func (m *Client) SubscribeMultiple(filters map[string]byte, callback MQTT.MessageHandler) MQTT.Token {
	for topic, qos := range filters {
		m.Subscribe(topic, qos, callback)
	}
	return &Token{}
}

func (m *Client) Unsubscribe(topics ...string) MQTT.Token             { return &Token{} }
func (m *Client) AddRoute(topic string, callback MQTT.MessageHandler) {}
func (m *Client) OptionsReader() MQTT.ClientOptionsReader             { return MQTT.ClientOptionsReader{} }

// Publishes returns a copy of every recorded publish.
func (m *Client) Publishes() []PublishCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]PublishCall, len(m.publishCalls))
	copy(out, m.publishCalls)
	return out
}

// PublishesTo returns the recorded publishes for one topic, in order.
func (m *Client) PublishesTo(topic string) []PublishCall {
	var out []PublishCall
	for _, call := range m.Publishes() {
		if call.Topic == topic {
			out = append(out, call)
		}
	}
	return out
}

func (m *Client) Subscriptions() []SubscribeCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]SubscribeCall, len(m.subscribeCalls))
	copy(out, m.subscribeCalls)
	return out
}

func (m *Client) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishCalls = nil
}

// Deliver hands a message to every subscribed handler whose filter matches.
func (m *Client) Deliver(topic string, payload []byte) int {
	delivered := 0
	for _, sub := range m.Subscriptions() {
		if sub.Handler != nil && Match(sub.Topic, topic) {
			sub.Handler(m, &Message{TopicName: topic, Body: payload})
			delivered++
		}
	}
	return delivered
}

// Match reports whether topic matches an MQTT filter with + and # wildcards.
func Match(filter, topic string) bool {
	fp := strings.Split(filter, "/")
	tp := strings.Split(topic, "/")
	for i, f := range fp {
		if f == "#" {
			return true
		}
		if i >= len(tp) {
			return false
		}
		if f != "+" && f != tp[i] {
			return false
		}
	}
	return len(fp) == len(tp)
}

type Token struct {
	err error
}

func NewToken(err error) *Token { return &Token{err: err} }

func (m *Token) Wait() bool                     { return true }
func (m *Token) WaitTimeout(time.Duration) bool { return true }
func (m *Token) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (m *Token) Error() error { return m.err }

type Message struct {
	TopicName string
	Body      []byte
}

func (m *Message) Duplicate() bool   { return false }
func (m *Message) Qos() byte         { return 0 }
func (m *Message) Retained() bool    { return false }
func (m *Message) Topic() string     { return m.TopicName }
func (m *Message) MessageID() uint16 { return 0 }
func (m *Message) Payload() []byte   { return m.Body }
func (m *Message) Ack()              {}
