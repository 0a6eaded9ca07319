package mqtt

import (
	"fmt"
	"strings"
)

// maxPayloadSize bounds outbound payloads. A zigbee2mqtt patch is a few
// hundred bytes; anything near this is a bug upstream.
const maxPayloadSize = 1 << 20

// commandSuffix marks zigbee2mqtt command topics ({base}/{device}/set).
const commandSuffix = "/set"

// validateTopic checks a concrete publish topic.
func validateTopic(topic string) error {
	if topic == "" {
		return fmt.Errorf("%w: empty", ErrInvalidTopic)
	}
	if strings.ContainsAny(topic, "#+") {
		return fmt.Errorf("%w: %q contains a wildcard", ErrInvalidTopic, topic)
	}
	return nil
}

// Publish sends payload to topic and waits for the broker to acknowledge it.
//
// Device commands go to "{base}/{device}/set" and must not be retained;
// availability on StatusTopic is retained.
//
// Returns:
//   - error: ErrInvalidTopic, ErrInvalidQoS, ErrRetainedCommand,
//     ErrNotConnected, or ErrPublishFailed wrapping the cause
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := validateTopic(topic); err != nil {
		return err
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if retained && strings.HasSuffix(topic, commandSuffix) {
		return fmt.Errorf("%w: %s", ErrRetainedCommand, topic)
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: %s: payload of %d bytes exceeds %d", ErrPublishFailed, topic, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	return await(c.client.Publish(topic, qos, retained, payload), ErrPublishFailed, topic)
}
