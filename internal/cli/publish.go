package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vietddude/redeliver/internal/control"
	"github.com/vietddude/redeliver/internal/core/domain"
	"github.com/vietddude/redeliver/internal/functions"
	"github.com/vietddude/redeliver/internal/stream"
)

var (
	publishTopic   string
	publishRetry   bool
	publishMessage string
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish a test event to a stream",
	Run:   runPublish,
}

func init() {
	publishCmd.Flags().StringVar(&publishTopic, "topic", "", "stream to publish to")
	publishCmd.Flags().BoolVar(&publishRetry, "retry", false, "ask for redelivery if the function fails")
	publishCmd.Flags().StringVar(&publishMessage, "message", functions.TestMessage, "message payload")
	_ = publishCmd.MarkFlagRequired("topic")
	rootCmd.AddCommand(publishCmd)
}

func runPublish(cmd *cobra.Command, args []string) {
	cfg := loadConfig(cmd)
	if !cfg.Redis.Enabled() {
		slog.Error("Publishing requires redis.url")
		os.Exit(1)
	}

	ctx := context.Background()
	stores, err := control.OpenStores(ctx, *cfg, slog.Default())
	if err != nil {
		slog.Error("Failed to open storage", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = stores.Close()
	}()

	event := &domain.Event{Data: map[string]any{"message": publishMessage}}
	if publishRetry {
		event.Data[domain.RetryKey] = true
	}

	id, err := stream.NewPublisher(stores.Redis.RDB(), slog.Default()).Publish(ctx, publishTopic, event)
	if err != nil {
		slog.Error("Failed to publish", "error", err)
		os.Exit(1)
	}
	fmt.Printf("1 message published (%s)\n", id)
}
