package mqtt

import (
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// fakeToken is a completed paho token.
type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Error() error                   { return t.err }

func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// fakeMessage implements pahomqtt.Message.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type published struct {
	topic    string
	payload  string
	qos      byte
	retained bool
}

// fakeSession records every call in order and fails on demand.
type fakeSession struct {
	mu sync.Mutex

	connected bool
	calls     []string
	published []published
	handlers  map[string]pahomqtt.MessageHandler

	connectErrs   []error // consumed one per Connect
	subscribeErr  error
	subscribeErrN int // fail this many subscribe calls
	publishErr    error
}

func newFakeSession() *fakeSession {
	return &fakeSession{handlers: make(map[string]pahomqtt.MessageHandler)}
}

func (s *fakeSession) Connect() pahomqtt.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "connect")
	if len(s.connectErrs) > 0 {
		err := s.connectErrs[0]
		s.connectErrs = s.connectErrs[1:]
		if err != nil {
			return &fakeToken{err: err}
		}
	}
	s.connected = true
	return &fakeToken{}
}

func (s *fakeSession) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *fakeSession) Disconnect(uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "disconnect")
	s.connected = false
}

func (s *fakeSession) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "publish "+topic)
	if s.publishErr != nil {
		return &fakeToken{err: s.publishErr}
	}
	var text string
	switch p := payload.(type) {
	case string:
		text = p
	case []byte:
		text = string(p)
	default:
		text = fmt.Sprint(p)
	}
	s.published = append(s.published, published{topic: topic, payload: text, qos: qos, retained: retained})
	return &fakeToken{}
}

func (s *fakeSession) Subscribe(topic string, _ byte, cb pahomqtt.MessageHandler) pahomqtt.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "subscribe "+topic)
	if s.subscribeErrN > 0 {
		s.subscribeErrN--
		return &fakeToken{err: s.subscribeErr}
	}
	s.handlers[topic] = cb
	return &fakeToken{}
}

// deliver simulates an inbound publish through the registered handler.
func (s *fakeSession) deliver(topic, payload string) {
	s.mu.Lock()
	cb := s.handlers[topic]
	s.mu.Unlock()
	cb(nil, fakeMessage{topic: topic, payload: []byte(payload)})
}

// drop simulates the broker going away.
func (s *fakeSession) drop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
}

func (s *fakeSession) callLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	copy(out, s.calls)
	return out
}

func (s *fakeSession) publishes() []published {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]published, len(s.published))
	copy(out, s.published)
	return out
}
