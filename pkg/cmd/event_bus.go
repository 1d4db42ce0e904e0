package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/licensehub/pkg/channels/gochannel"
	"github.com/dukex/licensehub/pkg/channels/kafka"
	"github.com/dukex/licensehub/pkg/eventbus"
)

// NewEventBus builds the bus workflow events are published on. serviceName
// names the Kafka consumer group.
func NewEventBus(provider, serviceName string, logger *slog.Logger) (eventbus.EventBus, error) {
	switch provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(watermill.NewSlogLogger(logger), serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil
	case "memory":
		pub, sub, err := gochannel.CreateChannel(watermill.NewSlogLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil
	case "", "none":
		return eventbus.NoopEventBus{}, nil
	default:
		return nil, fmt.Errorf("unsupported event bus provider: %s", provider)
	}
}
