package mqtt

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// subscription is one filter the client restores after a reconnect.
type subscription struct {
	filter  string
	qos     byte
	handler MessageHandler
}

// subscriptionSet tracks active filters. The zero value is ready to use.
type subscriptionSet struct {
	mu       sync.RWMutex
	byFilter map[string]subscription
}

func (s *subscriptionSet) put(sub subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.byFilter == nil {
		s.byFilter = make(map[string]subscription)
	}
	s.byFilter[sub.filter] = sub
}

// drop removes filter and reports whether it was tracked.
func (s *subscriptionSet) drop(filter string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.byFilter[filter]
	delete(s.byFilter, filter)
	return ok
}

func (s *subscriptionSet) all() []subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]subscription, 0, len(s.byFilter))
	for _, sub := range s.byFilter {
		out = append(out, sub)
	}
	return out
}

// validateFilter checks a subscription filter against the MQTT wildcard
// rules: "+" fills a whole level and "#" only a whole final level.
func validateFilter(filter string) error {
	if filter == "" {
		return fmt.Errorf("%w: empty", ErrInvalidFilter)
	}
	levels := strings.Split(filter, "/")
	for i, level := range levels {
		switch {
		case level == "#" && i != len(levels)-1:
			return fmt.Errorf("%w: %q has # before the last level", ErrInvalidFilter, filter)
		case level != "#" && level != "+" && strings.ContainsAny(level, "#+"):
			return fmt.Errorf("%w: %q mixes a wildcard into level %q", ErrInvalidFilter, filter, level)
		}
	}
	return nil
}

// Subscribe delivers every message matching filter to handler. The bridge
// subscribes once to "{base}/#" and routes by exact topic itself.
//
// Filters are restored automatically after a reconnect. Handlers run on the
// paho delivery goroutine, so they should hand work off rather than block.
//
// Returns:
//   - error: ErrInvalidFilter, ErrInvalidQoS, ErrNotConnected, or
//     ErrSubscribeFailed wrapping the broker's answer
func (c *Client) Subscribe(filter string, qos byte, handler MessageHandler) error {
	if err := validateFilter(filter); err != nil {
		return err
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if handler == nil {
		return fmt.Errorf("%w: nil handler for %s", ErrSubscribeFailed, filter)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.subs.put(subscription{filter: filter, qos: qos, handler: handler})
	if err := await(c.client.Subscribe(filter, qos, c.deliver(handler)), ErrSubscribeFailed, filter); err != nil {
		c.subs.drop(filter)
		return err
	}
	return nil
}

// Unsubscribe stops delivery for filter and forgets it for reconnects.
// Sessions are clean, so while disconnected there is nothing to release on
// the broker and the call only drops the filter locally.
func (c *Client) Unsubscribe(filter string) error {
	if !c.subs.drop(filter) {
		return nil
	}
	if !c.IsConnected() {
		return nil
	}

	return await(c.client.Unsubscribe(filter), ErrSubscribeFailed, "unsubscribe "+filter)
}

// Subscriptions returns the tracked filters in sorted order.
func (c *Client) Subscriptions() []string {
	subs := c.subs.all()
	filters := make([]string, 0, len(subs))
	for _, sub := range subs {
		filters = append(filters, sub.filter)
	}
	slices.Sort(filters)
	return filters
}

// restoreSubscriptions re-issues every tracked filter after a reconnect.
func (c *Client) restoreSubscriptions() {
	for _, sub := range c.subs.all() {
		c.client.Subscribe(sub.filter, sub.qos, c.deliver(sub.handler))
	}
}

// deliver adapts handler to paho. A handler error is logged as a warning
// and a panic as an error; neither reaches the paho router.
func (c *Client) deliver(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				c.currentHooks().logger.Error("MQTT handler panicked", "topic", msg.Topic(), "panic", r)
			}
		}()
		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.currentHooks().logger.Warn("MQTT message rejected", "topic", msg.Topic(), "bytes", len(msg.Payload()), "error", err)
		}
	}
}
