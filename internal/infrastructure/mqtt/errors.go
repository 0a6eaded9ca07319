package mqtt

import "errors"

var (
	// ErrNotConnected is returned when the broker connection is down.
	ErrNotConnected = errors.New("mqtt: not connected to broker")

	// ErrConnectionFailed is returned when the initial connect does not succeed.
	ErrConnectionFailed = errors.New("mqtt: broker connection failed")

	// ErrPublishFailed is returned when the broker does not acknowledge a publish.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed is returned when the broker rejects a subscription.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrInvalidQoS is returned for a QoS above 2.
	ErrInvalidQoS = errors.New("mqtt: QoS must be 0, 1 or 2")

	// ErrInvalidTopic is returned for an empty publish topic or one
	// carrying wildcard characters.
	ErrInvalidTopic = errors.New("mqtt: invalid topic")

	// ErrInvalidFilter is returned for a malformed subscription filter,
	// e.g. "zigbee2mqtt/#/set" or "zigbee2mqtt/lamp+".
	ErrInvalidFilter = errors.New("mqtt: invalid topic filter")

	// ErrRetainedCommand is returned when a /set command is published
	// retained. The broker would replay it to the network on every reconnect.
	ErrRetainedCommand = errors.New("mqtt: command topics must not be retained")
)
