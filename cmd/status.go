package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/crystaldolphin/pusherbridge/internal/config"
	"github.com/crystaldolphin/pusherbridge/internal/transport/pusherws"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pusherbridge configuration status",
	RunE:  runStatus,
}

func runStatus(_ *cobra.Command, _ []string) error {
	cfgPath := configPath()

	fmt.Printf("%s pusherbridge Status\n\n", logo)

	_, statErr := os.Stat(cfgPath)
	fmt.Printf("Config:    %s %s\n", cfgPath, yesNo(statErr == nil))

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  (could not load config: %v)\n", err)
		return nil
	}

	fmt.Printf("App key:   %s\n", tokenHint(cfg.Pusher.AppKey))
	if cfg.Pusher.AppKey != "" {
		ws := pusherws.New(cfg.Pusher.AppKey, cfg.Pusher.TransportOptions(), nil)
		fmt.Printf("Endpoint:  %s\n", ws.URL())
	}
	auth := cfg.Pusher.AuthEndpoint
	if auth == "" {
		auth = "(not set, private channels unavailable)"
	}
	fmt.Printf("Auth:      %s\n", auth)
	fmt.Printf("Readiness: %s\n", cfg.Bridge.Readiness)

	metrics := "disabled"
	if cfg.Metrics.Enabled {
		metrics = "http://" + cfg.Metrics.Addr() + "/metrics"
	}
	fmt.Printf("Metrics:   %s\n\n", metrics)

	keys, err := cfg.ResolveSubscriptions(dirOf(cfgPath))
	if err != nil {
		fmt.Printf("Subscriptions: ✗ %v\n", err)
		return nil
	}
	fmt.Printf("Subscriptions: %d\n", len(keys))
	return nil
}

func yesNo(b bool) string {
	if b {
		return "✓"
	}
	return "✗"
}

func tokenHint(s string) string {
	if s == "" {
		return "(not configured)"
	}

	if len(s) > 10 {
		return s[:10] + "..."
	}

	return s
}
