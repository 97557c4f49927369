package main

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	congregate "github.com/congregate-app/congregate/sdk/golang"
)

var showRaw bool

func init() {
	configShowCmd.Flags().BoolVar(&showRaw, "raw", false, "print the file as stored instead of the effective settings")

	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configPathCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage where the CLI connects and who it acts as",
	Long: "Settings live in ~/.congregate/config.toml:\n" +
		"  default.base_url     REST origin (http or https)\n" +
		"  default.channel_url  push-channel origin (ws or wss); derived from base_url when empty\n" +
		"  auth.user_id         the acting user\n" +
		"  auth.token           bearer token sent with every request",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective settings, including derived channel addresses",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := configPath()
		if err != nil {
			return err
		}
		if showRaw {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("cannot read config file: %w", err)
			}
			fmt.Print(string(data))
			return nil
		}

		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		fmt.Print(describeConfig(cfg, path))
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file location",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := configPath()
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value using dot notation.\nExample: congregate config set default.base_url https://congregate.example",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := setConfigValue(cfg, args[0], args[1]); err != nil {
			return err
		}
		if err := saveConfig(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		path, _ := configPath()
		fmt.Print(describeConfig(cfg, path))
		return nil
	},
}

// checkOrigin accepts an absolute URL whose scheme is one of schemes.
func checkOrigin(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%q must be an absolute %s URL", raw, strings.Join(schemes, " or "))
}

// describeConfig renders the settings the CLI will actually use, marking
// values that fall back to defaults or are derived.
func describeConfig(cfg *Config, path string) string {
	client := congregate.NewClient(cfg.Auth.UserID,
		congregate.WithBaseURL(valueOrDefault(cfg.Default.BaseURL, congregate.DefaultBaseURL)),
		congregate.WithChannelURL(cfg.Default.ChannelURL))

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", path)
	b.WriteString("[default]\n")
	note := ""
	if cfg.Default.BaseURL == "" {
		note = "  # default"
	}
	fmt.Fprintf(&b, "base_url    = %q%s\n", client.BaseURL(), note)
	note = ""
	if cfg.Default.ChannelURL == "" {
		note = "  # derived from base_url"
	}
	fmt.Fprintf(&b, "channel_url = %q%s\n", client.ChannelOrigin(), note)

	b.WriteString("\n[auth]\n")
	if cfg.Auth.UserID != 0 {
		fmt.Fprintf(&b, "user_id = %d\n", cfg.Auth.UserID)
	} else {
		b.WriteString("user_id = 0  # not set; run 'congregate init <user-id>'\n")
	}
	if cfg.Auth.Token != "" {
		fmt.Fprintf(&b, "token   = %q\n", maskKey(cfg.Auth.Token))
	} else {
		b.WriteString("token   = \"\"  # none\n")
	}
	return b.String()
}
