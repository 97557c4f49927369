package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	congregate "github.com/congregate-app/congregate/sdk/golang"
)

// clientFromConfig builds a client acting as the configured user.
func clientFromConfig(cfg *Config) (*congregate.Client, error) {
	if cfg.Auth.UserID == 0 {
		return nil, errors.New("no user configured; run 'congregate init <user-id>' first")
	}

	opts := []congregate.ClientOption{congregate.WithLogger(logger)}
	if cfg.Default.BaseURL != "" {
		opts = append(opts, congregate.WithBaseURL(cfg.Default.BaseURL))
	}
	if cfg.Default.ChannelURL != "" {
		opts = append(opts, congregate.WithChannelURL(cfg.Default.ChannelURL))
	}
	if cfg.Auth.Token != "" {
		opts = append(opts, congregate.WithToken(cfg.Auth.Token))
	}
	return congregate.NewClient(cfg.Auth.UserID, opts...), nil
}

func getClient() (*congregate.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return clientFromConfig(cfg)
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid --log-level: %w", err)
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = lvl
	return cfg.Build()
}

// serveMetrics exposes the package collectors on addr until the process
// exits.
func serveMetrics(addr string, log *zap.Logger) error {
	reg := prometheus.NewRegistry()
	if err := congregate.RegisterMetrics(reg); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux}
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server stopped", zap.Error(err))
		}
	}()
	log.Info("serving metrics", zap.String("addr", ln.Addr().String()))
	return nil
}

// interruptContext is cancelled on Ctrl+C or SIGTERM.
func interruptContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// ============================================================================
// Output
// ============================================================================

var (
	authorColor = color.New(color.FgCyan, color.Bold).SprintFunc()
	idColor     = color.New(color.FgHiBlack).SprintFunc()
	pendingMark = color.New(color.FgYellow).Sprint("…")
)

func printComment(c congregate.Comment, pending bool) {
	author := c.AuthorName
	if author == "" {
		author = fmt.Sprintf("user %d", c.AuthorID)
	}
	mark := ""
	if pending {
		mark = " " + pendingMark
	}
	suffix := ""
	if c.ReplyCount > 0 {
		suffix = fmt.Sprintf(" (%d replies)", c.ReplyCount)
	}
	fmt.Printf("%s %s: %s%s%s\n", idColor(fmt.Sprintf("#%d", c.ID)), authorColor(author), c.Content, suffix, mark)
}

func printMessage(m congregate.ChatMessage, pending bool) {
	mark := ""
	if pending {
		mark = " " + pendingMark
	}
	fmt.Printf("%s %s: %s%s\n", idColor(fmt.Sprintf("#%d", m.ID)), authorColor(fmt.Sprintf("user %d", m.SenderID)), m.Content, mark)
}

// channelConfig returns a channel config that reports url's health on
// stderr from the first dial on.
func channelConfig(url string) *congregate.ChannelConfig {
	status := color.New(color.FgHiBlack)
	return &congregate.ChannelConfig{
		Logger: logger,
		OnOpen: func() {
			color.New(color.FgGreen).Fprintf(os.Stderr, "connected to %s\n", url)
		},
		OnReconnecting: func(attempt int, delay time.Duration) {
			status.Fprintf(os.Stderr, "reconnecting (attempt %d in %s)\n", attempt, delay)
		},
		OnDegraded: func() {
			color.New(color.FgRed).Fprintln(os.Stderr, "live updates unavailable; history is still shown")
		},
	}
}
