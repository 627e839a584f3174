// Package bus provides the event bus used to keep replicas in step.
package bus

import (
	"fmt"

	"github.com/pacificclimate/impacts/internal/domain"
)

// New creates a new event bus based on configuration.
// The local profile uses a ChannelBus, the shared profile a NATSBus.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel", "":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}
