package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/crystaldolphin/pusherbridge/internal/config"
)

const manifestName = "subscriptions.yaml"

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize configuration and subscriptions manifest",
	RunE:  runOnboard,
}

func runOnboard(_ *cobra.Command, _ []string) error {
	cfgPath := configPath()

	if _, err := os.Stat(cfgPath); err == nil {
		fmt.Printf("Config already exists at %s\n", cfgPath)
		fmt.Printf("Press Enter to refresh (keep existing values) or Ctrl+C to cancel: ")
		fmt.Scanln()
		existing, loadErr := config.Load(cfgPath)
		if loadErr != nil {
			def := config.DefaultConfig()
			existing = &def
		}
		if err := config.Save(existing, cfgPath); err != nil {
			return err
		}
		fmt.Printf("✓ Config refreshed at %s\n", cfgPath)
	} else {
		cfg := config.DefaultConfig()
		cfg.SubscriptionsFile = manifestName
		if err := config.Save(&cfg, cfgPath); err != nil {
			return err
		}
		fmt.Printf("✓ Created config at %s\n", cfgPath)
	}

	createManifestTemplate(filepath.Join(filepath.Dir(cfgPath), manifestName))

	fmt.Printf("\n%s pusherbridge is ready!\n\n", logo)
	fmt.Println("Next steps:")
	fmt.Printf("  1. Set pusher.appKey and pusher.cluster in %s\n", cfgPath)
	fmt.Println("  2. Add subscriptions: pusherbridge subscriptions add <channel> <event> <actionType>")
	fmt.Println("  3. Listen: pusherbridge listen")
	return nil
}

func createManifestTemplate(path string) {
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		return
	}
	const tmpl = `# Channel events to turn into actions.
#
# subscriptions:
#   - channel: room1
#     event: message
#     actionType: ROOM1_MESSAGE
subscriptions: []
`
	if err := os.WriteFile(path, []byte(tmpl), 0o644); err != nil {
		fmt.Printf("  Could not create %s: %v\n", path, err)
		return
	}
	fmt.Printf("  Created %s\n", filepath.Base(path))
}
