package zigbee

import "errors"

// Domain errors for the Zigbee bridge package.
var (
	// ErrDeviceNotFound is returned when no device is known under a name.
	ErrDeviceNotFound = errors.New("zigbee: device not found")

	// ErrProtocolDecode marks an inbound payload that could not be decoded.
	// It is logged and the message is dropped.
	ErrProtocolDecode = errors.New("zigbee: protocol decode failed")

	// ErrUnrouted marks an inbound message no route matched.
	// It is logged and never fatal.
	ErrUnrouted = errors.New("zigbee: unrouted message")

	// ErrPublishFailed is returned when the transport rejects an outbound patch.
	ErrPublishFailed = errors.New("zigbee: publish failed")

	// ErrBridgeStopped is returned when starting a bridge that was stopped.
	ErrBridgeStopped = errors.New("zigbee: bridge stopped")

	// ErrInboundQueueFull marks an inbound message dropped because the
	// worker queue was full.
	ErrInboundQueueFull = errors.New("zigbee: inbound queue full")
)
