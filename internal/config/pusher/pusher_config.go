package pusher

import (
	"time"

	"github.com/crystaldolphin/pusherbridge/internal/transport"
)

// PusherConfig holds the app key and connection options for the Pusher
// service.
type PusherConfig struct {
	AppKey             string `json:"appKey"`
	Cluster            string `json:"cluster"`
	Host               string `json:"host,omitempty"` // overrides ws-<cluster>.pusher.com
	Port               int    `json:"port,omitempty"`
	UseTLS             bool   `json:"useTLS"`
	ActivityTimeoutSec int    `json:"activityTimeoutSec"`
	PongTimeoutSec     int    `json:"pongTimeoutSec"`
	ReconnectDelayMs   int    `json:"reconnectDelayMs"`
	AuthEndpoint       string `json:"authEndpoint,omitempty"`
}

func DefaultPusherConfig() PusherConfig {
	return PusherConfig{
		Cluster:            "mt1",
		UseTLS:             true,
		ActivityTimeoutSec: 120,
		PongTimeoutSec:     30,
		ReconnectDelayMs:   5000,
	}
}

// TransportOptions converts the section into transport options.
// Non-positive durations are left zero so the transport default applies.
func (c PusherConfig) TransportOptions() transport.Options {
	opts := transport.Options{
		Cluster:      c.Cluster,
		Host:         c.Host,
		Port:         c.Port,
		UseTLS:       c.UseTLS,
		AuthEndpoint: c.AuthEndpoint,
	}
	if c.ActivityTimeoutSec > 0 {
		opts.ActivityTimeout = time.Duration(c.ActivityTimeoutSec) * time.Second
	}
	if c.PongTimeoutSec > 0 {
		opts.PongTimeout = time.Duration(c.PongTimeoutSec) * time.Second
	}
	if c.ReconnectDelayMs > 0 {
		opts.ReconnectDelay = time.Duration(c.ReconnectDelayMs) * time.Millisecond
	}
	return opts
}
