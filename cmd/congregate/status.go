package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		fmt.Println("Configuration:")
		fmt.Printf("  Base URL:    %s\n", valueOrDefault(cfg.Default.BaseURL, "(default)"))
		fmt.Printf("  Channel URL: %s\n", valueOrDefault(cfg.Default.ChannelURL, "(derived from base URL)"))

		fmt.Println()
		fmt.Println("Auth:")
		if cfg.Auth.UserID != 0 {
			fmt.Printf("  User ID:     %d\n", cfg.Auth.UserID)
		} else {
			fmt.Println("  User ID:     (not set)")
		}
		if cfg.Auth.Token != "" {
			fmt.Printf("  Token:       %s\n", maskKey(cfg.Auth.Token))
		} else {
			fmt.Println("  Token:       (none)")
		}

		client, err := clientFromConfig(cfg)
		if err != nil {
			return nil
		}
		fmt.Println()
		fmt.Println("Channels:")
		fmt.Printf("  Comments:    %s\n", client.CommentsChannelURL(1))
		fmt.Printf("  Chat:        %s\n", client.ChatChannelURL(1))
		return nil
	},
}

// maskKey shows the first and last 4 characters of a token.
func maskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

func valueOrDefault(val, def string) string {
	if val == "" {
		return def
	}
	return val
}
