package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/crystaldolphin/pusherbridge/internal/bridge"
)

// Manifest is the YAML subscriptions file:
//
//	subscriptions:
//	  - channel: room1
//	    event: message
//	    actionType: ROOM1_MESSAGE
type Manifest struct {
	Subscriptions []bridge.Key `yaml:"subscriptions"`
}

// LoadManifest reads and validates a subscriptions manifest.
func LoadManifest(path string) ([]bridge.Key, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	for i, k := range m.Subscriptions {
		if err := validateKey(k); err != nil {
			return nil, fmt.Errorf("manifest %s: subscription %d: %w", path, i, err)
		}
	}
	return m.Subscriptions, nil
}

// ResolveSubscriptions returns the inline subscriptions followed by the
// manifest entries, without duplicates. A relative SubscriptionsFile is
// resolved against baseDir.
func (c *Config) ResolveSubscriptions(baseDir string) ([]bridge.Key, error) {
	seen := make(map[bridge.Key]bool)
	var out []bridge.Key
	add := func(keys []bridge.Key) {
		for _, k := range keys {
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, k)
		}
	}

	for i, k := range c.Subscriptions {
		if err := validateKey(k); err != nil {
			return nil, fmt.Errorf("subscriptions[%d]: %w", i, err)
		}
	}
	add(c.Subscriptions)

	if c.SubscriptionsFile != "" {
		keys, err := LoadManifest(expandPath(c.SubscriptionsFile, baseDir))
		if err != nil {
			return nil, err
		}
		add(keys)
	}
	return out, nil
}

func validateKey(k bridge.Key) error {
	switch {
	case k.Channel == "":
		return errors.New("channel is required")
	case k.Event == "":
		return errors.New("event is required")
	case k.ActionType == "":
		return errors.New("actionType is required")
	}
	return nil
}

func expandPath(p, baseDir string) string {
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[2:])
		}
	}
	if filepath.IsAbs(p) || baseDir == "" {
		return p
	}
	return filepath.Join(baseDir, p)
}
