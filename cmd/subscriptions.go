package cmd

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/crystaldolphin/pusherbridge/internal/bridge"
	"github.com/crystaldolphin/pusherbridge/internal/config"
)

var subscriptionsCmd = &cobra.Command{
	Use:     "subscriptions",
	Aliases: []string{"subs"},
	Short:   "Manage channel/event subscriptions",
}

func init() {
	subscriptionsCmd.AddCommand(subscriptionsListCmd)
	subscriptionsCmd.AddCommand(subscriptionsAddCmd)
	subscriptionsCmd.AddCommand(subscriptionsRemoveCmd)
}

var subscriptionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured and manifest subscriptions",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfgPath := configPath()
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		keys, err := cfg.ResolveSubscriptions(dirOf(cfgPath))
		if err != nil {
			return err
		}

		fmt.Printf("%-24s %-20s %-24s %s\n", "Channel", "Event", "Action type", "Source")
		fmt.Println(strings.Repeat("-", 80))
		for _, k := range keys {
			source := "manifest"
			if slices.Contains(cfg.Subscriptions, k) {
				source = "config"
			}
			fmt.Printf("%-24s %-20s %-24s %s\n", k.Channel, k.Event, k.ActionType, source)
		}
		return nil
	},
}

var subscriptionsAddCmd = &cobra.Command{
	Use:   "add <channel> <event> <actionType>",
	Short: "Add an inline subscription to the config",
	Args:  cobra.ExactArgs(3),
	RunE: func(_ *cobra.Command, args []string) error {
		cfgPath := configPath()
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		k := bridge.Key{Channel: args[0], Event: args[1], ActionType: args[2]}
		if slices.Contains(cfg.Subscriptions, k) {
			fmt.Printf("Already subscribed: %s %s -> %s\n", k.Channel, k.Event, k.ActionType)
			return nil
		}
		cfg.Subscriptions = append(cfg.Subscriptions, k)
		if err := config.Save(cfg, cfgPath); err != nil {
			return err
		}
		fmt.Printf("✓ Added %s %s -> %s\n", k.Channel, k.Event, k.ActionType)
		return nil
	},
}

var subscriptionsRemoveCmd = &cobra.Command{
	Use:   "remove <channel> <event> <actionType>",
	Short: "Remove an inline subscription from the config",
	Args:  cobra.ExactArgs(3),
	RunE: func(_ *cobra.Command, args []string) error {
		cfgPath := configPath()
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		k := bridge.Key{Channel: args[0], Event: args[1], ActionType: args[2]}
		i := slices.Index(cfg.Subscriptions, k)
		if i < 0 {
			return fmt.Errorf("no inline subscription %s %s -> %s", k.Channel, k.Event, k.ActionType)
		}
		cfg.Subscriptions = slices.Delete(cfg.Subscriptions, i, i+1)
		if err := config.Save(cfg, cfgPath); err != nil {
			return err
		}
		fmt.Printf("✓ Removed %s %s -> %s\n", k.Channel, k.Event, k.ActionType)
		return nil
	},
}

func dirOf(path string) string { return filepath.Dir(path) }
