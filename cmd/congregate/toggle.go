package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	congregate "github.com/congregate-app/congregate/sdk/golang"
)

var (
	toggleWasOn     bool
	togglePartnerOn bool
	toggleCount     int
	togglePartnerN  int
)

func init() {
	toggleCmd.Flags().BoolVar(&toggleWasOn, "on", false, "the toggle is currently on for you")
	toggleCmd.Flags().BoolVar(&togglePartnerOn, "partner-on", false, "the opposite toggle is currently on for you")
	toggleCmd.Flags().IntVar(&toggleCount, "count", 0, "current count of the toggle")
	toggleCmd.Flags().IntVar(&togglePartnerN, "partner-count", 0, "current count of the opposite toggle")
	rootCmd.AddCommand(toggleCmd)
}

var toggleCmd = &cobra.Command{
	Use:   "toggle <like|dislike|going|interested> <item-id>",
	Short: "Flip a like/dislike on a post or going/interested on an event",
	Long: "Flip a toggle for the configured user. Turning one side on turns its\n" +
		"opposite off. Pass the current state with --on and --partner-on.",
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := congregate.ParseToggleKind(args[0])
		if err != nil {
			return err
		}
		itemID, err := parseID(args[1])
		if err != nil {
			return err
		}
		client, err := getClient()
		if err != nil {
			return err
		}
		ctx, stop := interruptContext()
		defer stop()

		partner, _ := kind.Opposite()
		toggles := congregate.NewToggles(client, logger)
		toggles.Track(itemID, congregate.ToggleSnapshot{
			kind:    {Count: toggleCount, On: toggleWasOn},
			partner: {Count: togglePartnerN, On: togglePartnerOn},
		})

		err = toggles.Toggle(ctx, kind, itemID, client.UserID())
		printToggle(kind, toggles.State(itemID, kind))
		printToggle(partner, toggles.State(itemID, partner))
		if err != nil {
			return fmt.Errorf("%s rolled back: %w", kind, err)
		}
		return nil
	},
}

func printToggle(kind congregate.ToggleKind, v congregate.ToggleView) {
	state := color.New(color.FgHiBlack).Sprint("off")
	if v.On {
		state = color.New(color.FgGreen, color.Bold).Sprint("on")
	}
	fmt.Printf("%-11s %-3s %d\n", kind, state, v.Count)
}
