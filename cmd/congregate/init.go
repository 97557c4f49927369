package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var initBaseURL string

func init() {
	initCmd.Flags().StringVar(&initBaseURL, "base-url", "", "API base URL (default http://localhost:8000)")
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init <user-id> [token]",
	Short: "Store the acting user in ~/.congregate/config.toml",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if err := setConfigValue(cfg, "auth.user_id", args[0]); err != nil {
			return err
		}
		if len(args) == 2 {
			cfg.Auth.Token = args[1]
		}
		if initBaseURL != "" {
			if err := setConfigValue(cfg, "default.base_url", initBaseURL); err != nil {
				return err
			}
		}

		if err := saveConfig(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		path, _ := configPath()
		fmt.Printf("User %d saved to %s\n", cfg.Auth.UserID, path)
		return nil
	},
}
