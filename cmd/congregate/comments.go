package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	congregate "github.com/congregate-app/congregate/sdk/golang"
)

var historyPages int

func init() {
	commentsWatchCmd.Flags().IntVar(&historyPages, "pages", 1, "pages of history to show before following")
	repliesWatchCmd.Flags().IntVar(&historyPages, "pages", 1, "pages of replies to show before following")

	rootCmd.AddCommand(commentsCmd)
	commentsCmd.AddCommand(commentsWatchCmd)
	commentsCmd.AddCommand(commentsPostCmd)

	rootCmd.AddCommand(repliesCmd)
	repliesCmd.AddCommand(repliesWatchCmd)
	repliesCmd.AddCommand(repliesPostCmd)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

// ============================================================================
// comments
// ============================================================================

var commentsCmd = &cobra.Command{
	Use:   "comments",
	Short: "Read and write the comments of a post",
}

var commentsWatchCmd = &cobra.Command{
	Use:   "watch <post-id>",
	Short: "Show recent comments and follow new ones",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		postID, err := parseID(args[0])
		if err != nil {
			return err
		}
		client, err := getClient()
		if err != nil {
			return err
		}
		ctx, stop := interruptContext()
		defer stop()

		thread := congregate.NewCommentThread(client, postID, nil)
		defer thread.Close()

		url := client.CommentsChannelURL(postID)
		ch := congregate.OpenChannel(url, func(ev congregate.Event) {
			before := thread.VisibleCount()
			thread.Handle(ev)
			if e, ok := ev.(congregate.NewComment); ok && thread.VisibleCount() > before {
				printComment(e.Comment, false)
			}
		}, channelConfig(url))
		defer ch.Close()

		for i := 0; i < historyPages; i++ {
			if _, err := thread.Load(ctx); err != nil {
				return fmt.Errorf("load comments: %w", err)
			}
			if !thread.HasMore() {
				break
			}
		}
		for _, e := range thread.Entries() {
			printComment(e.Item, e.Pending)
		}
		if thread.HasMore() {
			fmt.Printf("  %d of %d shown\n", thread.VisibleCount(), thread.KnownCount())
		}

		<-ctx.Done()
		return nil
	},
}

var commentsPostCmd = &cobra.Command{
	Use:   "post <post-id> <text...>",
	Short: "Comment on a post",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		postID, err := parseID(args[0])
		if err != nil {
			return err
		}
		client, err := getClient()
		if err != nil {
			return err
		}
		ctx, stop := interruptContext()
		defer stop()

		thread := congregate.NewCommentThread(client, postID, nil)
		defer thread.Close()
		c, err := thread.Post(ctx, strings.Join(args[1:], " "))
		if err != nil {
			return fmt.Errorf("post comment: %w", err)
		}
		printComment(c, false)
		return nil
	},
}

// ============================================================================
// replies
// ============================================================================

var repliesCmd = &cobra.Command{
	Use:   "replies",
	Short: "Read and write the replies to a comment",
}

var repliesWatchCmd = &cobra.Command{
	Use:   "watch <comment-id>",
	Short: "Show a comment's replies and follow new ones",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		commentID, err := parseID(args[0])
		if err != nil {
			return err
		}
		client, err := getClient()
		if err != nil {
			return err
		}
		ctx, stop := interruptContext()
		defer stop()

		parent, err := client.GetComment(ctx, commentID)
		if err != nil {
			return fmt.Errorf("load comment: %w", err)
		}
		node, err := congregate.NewCommentNode(client, *parent, nil)
		if err != nil {
			return err
		}
		defer node.Close()
		printComment(*parent, false)

		url := client.RepliesChannelURL(commentID)
		ch := congregate.OpenChannel(url, func(ev congregate.Event) {
			before := node.VisibleCount()
			node.Handle(ev)
			if e, ok := ev.(congregate.NewReply); ok && node.VisibleCount() > before {
				fmt.Print("  ")
				printComment(e.Reply, false)
			}
		}, channelConfig(url))
		defer ch.Close()

		for i := 0; i < historyPages && node.HasMore(); i++ {
			if _, err := node.ShowMore(ctx); err != nil {
				return fmt.Errorf("load replies: %w", err)
			}
		}
		for _, e := range node.Entries() {
			fmt.Print("  ")
			printComment(e.Item, e.Pending)
		}

		<-ctx.Done()
		return nil
	},
}

var repliesPostCmd = &cobra.Command{
	Use:   "post <comment-id> <text...>",
	Short: "Reply to a top-level comment",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		commentID, err := parseID(args[0])
		if err != nil {
			return err
		}
		client, err := getClient()
		if err != nil {
			return err
		}
		ctx, stop := interruptContext()
		defer stop()

		parent, err := client.GetComment(ctx, commentID)
		if err != nil {
			return fmt.Errorf("load comment: %w", err)
		}
		node, err := congregate.NewCommentNode(client, *parent, nil)
		if err != nil {
			return err
		}
		defer node.Close()
		r, err := node.Reply(ctx, strings.Join(args[1:], " "))
		if err != nil {
			return fmt.Errorf("post reply: %w", err)
		}
		printComment(r, false)
		return nil
	},
}
