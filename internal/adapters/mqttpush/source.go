package mqttpush

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/hearthd/hearth-core/internal/infrastructure/mqtt"
	"github.com/hearthd/hearth-core/internal/poll"
)

// defaultQoS is the subscription QoS for vendor push topics.
const defaultQoS = 1

// Broker is the narrow subscription surface the adapter needs.
// Satisfied by *mqtt.Client.
type Broker interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	IsConnected() bool
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Warn(msg string, args ...any)
}

// Source receives pushed vendor state from an MQTT topic.
// It implements poll.VendorClient.
type Source struct {
	broker Broker
	topic  string

	mu       sync.RWMutex
	last     poll.Payload
	received bool
	apply    func(poll.Payload)
	logger   Logger
}

// New subscribes to the vendor topic and returns a Source ready for use.
func New(broker Broker, topic string) (*Source, error) {
	if broker == nil {
		return nil, fmt.Errorf("mqttpush: broker required")
	}
	if topic == "" {
		return nil, fmt.Errorf("mqttpush: topic required")
	}

	s := &Source{
		broker: broker,
		topic:  topic,
	}

	if err := broker.Subscribe(topic, defaultQoS, s.handleMessage); err != nil {
		return nil, fmt.Errorf("mqttpush: subscribe %s: %w", topic, err)
	}

	return s, nil
}

// SetLogger sets a logger for decode warnings.
// If not set, malformed messages are silently dropped.
func (s *Source) SetLogger(logger Logger) {
	s.mu.Lock()
	s.logger = logger
	s.mu.Unlock()
}

// Bind sets the callback invoked with each decoded payload.
// Normally bound to a coordinator's Apply method.
func (s *Source) Bind(apply func(poll.Payload)) {
	s.mu.Lock()
	s.apply = apply
	s.mu.Unlock()
}

// handleMessage decodes a pushed vendor message and forwards it.
func (s *Source) handleMessage(topic string, payload []byte) error {
	var data poll.Payload
	if err := json.Unmarshal(payload, &data); err != nil {
		s.mu.RLock()
		logger := s.logger
		s.mu.RUnlock()
		if logger != nil {
			logger.Warn("dropping malformed push message",
				"topic", topic,
				"error", err,
			)
		}
		return fmt.Errorf("mqttpush: decode %s: %w", topic, err)
	}

	s.mu.Lock()
	s.last = data
	s.received = true
	apply := s.apply
	s.mu.Unlock()

	if apply != nil {
		apply(data)
	}

	return nil
}

// Fetch returns the most recently pushed payload.
//
// A source that has never received a message reports a transient
// failure; a lost broker connection reports a dropped session so the
// coordinator runs its reconnect path.
func (s *Source) Fetch(_ context.Context) (poll.Payload, error) {
	if !s.broker.IsConnected() {
		return nil, fmt.Errorf("%w: broker connection lost", poll.ErrDisconnected)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.received {
		return nil, fmt.Errorf("%w: no push update received yet", poll.ErrTransient)
	}

	// Shallow copy so callers cannot mutate the stored payload.
	data := make(poll.Payload, len(s.last))
	for k, v := range s.last {
		data[k] = v
	}

	return data, nil
}

// Close removes the topic subscription.
func (s *Source) Close() error {
	if err := s.broker.Unsubscribe(s.topic); err != nil {
		return fmt.Errorf("mqttpush: unsubscribe %s: %w", s.topic, err)
	}
	return nil
}
