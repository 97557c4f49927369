package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	congregate "github.com/congregate-app/congregate/sdk/golang"
)

var chatHistoryPages int

func init() {
	chatTailCmd.Flags().IntVar(&chatHistoryPages, "pages", 1, "pages of history to show before following")

	rootCmd.AddCommand(chatCmd)
	chatCmd.AddCommand(chatTailCmd)
	chatCmd.AddCommand(chatSendCmd)
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Read and write chat messages",
}

var chatTailCmd = &cobra.Command{
	Use:   "tail <chat-id>",
	Short: "Show chat history and follow new messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		chatID, err := parseID(args[0])
		if err != nil {
			return err
		}
		client, err := getClient()
		if err != nil {
			return err
		}
		ctx, stop := interruptContext()
		defer stop()

		room := congregate.NewChatRoom(client, chatID, nil)
		defer room.Close()

		url := client.ChatChannelURL(chatID)
		ch := congregate.OpenChannel(url, func(ev congregate.Event) {
			before := room.VisibleCount()
			room.Handle(ev)
			if e, ok := ev.(congregate.NewMessage); ok && room.VisibleCount() > before {
				printMessage(e.Message, false)
			}
		}, channelConfig(url))
		defer ch.Close()

		for i := 0; i < chatHistoryPages; i++ {
			n, err := room.LoadMore(ctx)
			if err != nil {
				return fmt.Errorf("load messages: %w", err)
			}
			if n == 0 || !room.HasMore() {
				break
			}
		}
		for _, e := range room.Entries() {
			printMessage(e.Item, e.Pending)
		}

		<-ctx.Done()
		return nil
	},
}

var chatSendCmd = &cobra.Command{
	Use:   "send <chat-id> <text...>",
	Short: "Send a chat message",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		chatID, err := parseID(args[0])
		if err != nil {
			return err
		}
		client, err := getClient()
		if err != nil {
			return err
		}
		ctx, stop := interruptContext()
		defer stop()

		room := congregate.NewChatRoom(client, chatID, nil)
		defer room.Close()
		m, err := room.Send(ctx, strings.Join(args[1:], " "))
		if err != nil {
			return fmt.Errorf("send message: %w", err)
		}
		printMessage(m, false)
		return nil
	},
}
