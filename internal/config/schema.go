// Package config defines the configuration schema for pusherbridge.
//
// JSON keys use camelCase. Fields missing from the file keep the values from
// DefaultConfig.
package config

import (
	"fmt"

	"github.com/crystaldolphin/pusherbridge/internal/bridge"
	"github.com/crystaldolphin/pusherbridge/internal/config/pusher"
	"github.com/crystaldolphin/pusherbridge/internal/config/server"
)

// BridgeConfig tunes the bridge behaviour.
type BridgeConfig struct {
	Readiness                 string `json:"readiness"` // "compat" or "strict"
	PurgeOnChannelUnsubscribe bool   `json:"purgeOnChannelUnsubscribe"`
	ActionBuffer              int    `json:"actionBuffer"`
}

func defaultBridgeConfig() BridgeConfig {
	return BridgeConfig{
		Readiness:                 bridge.ReadinessCompat.String(),
		PurgeOnChannelUnsubscribe: true,
		ActionBuffer:              256,
	}
}

// Options converts the section into bridge options.
func (c BridgeConfig) Options() ([]bridge.Option, error) {
	mode, err := bridge.ParseReadinessMode(c.Readiness)
	if err != nil {
		return nil, fmt.Errorf("bridge.readiness: %w", err)
	}
	opts := []bridge.Option{bridge.WithReadinessMode(mode)}
	if !c.PurgeOnChannelUnsubscribe {
		opts = append(opts, bridge.WithKeepStaleBindings())
	}
	return opts, nil
}

// ---- Root config -----------------------------------------------------------

// Config is the root configuration object, loaded from ~/.pusherbridge/config.json.
type Config struct {
	Pusher  pusher.PusherConfig  `json:"pusher"`
	Bridge  BridgeConfig         `json:"bridge"`
	Metrics server.MetricsConfig `json:"metrics"`

	// Subscriptions are bound at startup, before any manifest entries.
	Subscriptions     []bridge.Key `json:"subscriptions"`
	SubscriptionsFile string       `json:"subscriptionsFile,omitempty"`
}

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() Config {
	return Config{
		Pusher:        pusher.DefaultPusherConfig(),
		Bridge:        defaultBridgeConfig(),
		Metrics:       server.DefaultMetricsConfig(),
		Subscriptions: []bridge.Key{},
	}
}
