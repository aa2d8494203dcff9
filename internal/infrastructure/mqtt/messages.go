package mqtt

import (
	"fmt"
	"strings"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-starlink/internal/bridge"
)

// maxPayloadSize caps outgoing payloads at 1 MiB, below common broker limits.
const maxPayloadSize = 1 << 20

// Publish sends payload to topic with the configured QoS and waits for the
// broker to acknowledge it. Publish topics may not contain wildcards.
func (c *Client) Publish(topic string, payload []byte, retained bool) error {
	if topic == "" || strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: %s: %d bytes exceeds %d", ErrPublishFailed, topic, len(payload), maxPayloadSize)
	}

	client, err := c.current()
	if err != nil {
		return err
	}
	return await(client.Publish(topic, byte(c.cfg.QoS), retained, payload), ErrPublishFailed, topic)
}

// Subscribe registers handler for the topic filter with the configured
// QoS. Handlers run on paho's dispatch goroutines and a panicking handler
// is logged and contained. Subscriptions do not survive Connect; the
// caller subscribes again after each connect.
func (c *Client) Subscribe(filter string, handler bridge.MessageHandler) error {
	if filter == "" {
		return fmt.Errorf("%w: empty filter", ErrInvalidTopic)
	}
	if handler == nil {
		return fmt.Errorf("%w: %s: nil handler", ErrSubscribeFailed, filter)
	}

	client, err := c.current()
	if err != nil {
		return err
	}
	return await(client.Subscribe(filter, byte(c.cfg.QoS), c.wrapHandler(handler)), ErrSubscribeFailed, filter)
}

// await waits for token and wraps a failure or timeout in sentinel.
func await(token pahomqtt.Token, sentinel error, topic string) error {
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: %s: no acknowledgement after %v", sentinel, topic, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %s: %w", sentinel, topic, err)
	}
	return nil
}
