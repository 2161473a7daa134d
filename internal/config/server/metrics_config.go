package server

import (
	"net"
	"strconv"
)

// MetricsConfig holds the Prometheus listener settings.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
}

func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{Host: "127.0.0.1", Port: 9464}
}

func (c MetricsConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
