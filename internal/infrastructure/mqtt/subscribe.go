package mqtt

import (
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Subscribe registers topic for delivery into the inbox.
//
// The topic is tracked and re-subscribed by every later EnsureConnected, in
// registration order. If the client is currently connected the broker
// subscription is made immediately; otherwise it is deferred to the next
// connect. Registering the same topic twice is a no-op.
func (c *Client) Subscribe(topic string, qos byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}

	c.subMu.Lock()
	for _, s := range c.subscriptions {
		if s.topic == topic {
			c.subMu.Unlock()
			return nil
		}
	}
	c.subscriptions = append(c.subscriptions, subscription{topic: topic, qos: qos})
	c.subMu.Unlock()

	if !c.IsConnected() {
		return nil
	}
	return c.subscribe(subscription{topic: topic, qos: qos})
}

// subscribe performs the broker subscription for one tracked topic.
func (c *Client) subscribe(s subscription) error {
	token := c.session.Subscribe(s.topic, s.qos, c.enqueue)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: %s: timeout after %v", ErrSubscribeFailed, s.topic, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, s.topic, err)
	}
	return nil
}

// restoreSubscriptions re-subscribes every tracked topic in registration order.
func (c *Client) restoreSubscriptions() error {
	c.subMu.Lock()
	subs := make([]subscription, len(c.subscriptions))
	copy(subs, c.subscriptions)
	c.subMu.Unlock()

	for _, s := range subs {
		if err := c.subscribe(s); err != nil {
			return err
		}
		c.logger.Debug("subscribed", "topic", s.topic)
	}
	return nil
}

// SubscriptionCount returns the number of tracked subscriptions.
func (c *Client) SubscriptionCount() int {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	return len(c.subscriptions)
}

// enqueue is the paho message handler. It copies the message into the inbox
// and never blocks: when the inbox is full the message is dropped.
func (c *Client) enqueue(_ pahomqtt.Client, msg pahomqtt.Message) {
	payload := make([]byte, len(msg.Payload()))
	copy(payload, msg.Payload())

	select {
	case c.inbox <- Message{Topic: msg.Topic(), Payload: payload}:
	default:
		c.logger.Warn("inbox full, dropping message", "topic", msg.Topic())
	}
}

// Poll dispatches every message currently queued, in arrival order, on the
// caller's goroutine. It returns the number of messages dispatched.
//
// Messages arriving while Poll runs are left for the next call.
func (c *Client) Poll(dispatch func(Message)) int {
	n := len(c.inbox)
	for i := 0; i < n; i++ {
		select {
		case msg := <-c.inbox:
			dispatch(msg)
		default:
			return i
		}
	}
	return n
}
