// Command send-review-alert posts a sample review alert to the configured Lark
// chat so the bot credentials and chat id can be checked without a live claim.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/haulwise/rebate-claims/internal/application/port"
	"github.com/haulwise/rebate-claims/internal/config"
	"github.com/haulwise/rebate-claims/internal/domain/entity"
	"github.com/haulwise/rebate-claims/internal/infrastructure/external/lark"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML config file")
	chatID := flag.String("chat", "", "override lark.review_chat_id")
	timeout := flag.Duration("timeout", 15*time.Second, "API call timeout")
	flag.Parse()

	fmt.Println("=== Lark Review Alert Test ===")

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if *chatID == "" {
		*chatID = cfg.Lark.ReviewChatID
	}
	if cfg.Lark.AppID == "" || cfg.Lark.AppSecret == "" || *chatID == "" {
		fmt.Fprintln(os.Stderr, "ERROR: lark.app_id, lark.app_secret and a chat id are required")
		os.Exit(1)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	fmt.Printf("App ID: %s\n", cfg.Lark.AppID)
	fmt.Printf("Chat ID: %s\n\n", *chatID)

	sdk := lark.NewSDKClient(lark.Config{AppID: cfg.Lark.AppID, AppSecret: cfg.Lark.AppSecret}, logger)
	notifier := lark.NewReviewNotifier(sdk, *chatID, logger)

	alert := &port.ReviewAlert{
		ClaimID:          "test-claim",
		JobID:            "test-job",
		Status:           entity.StatusFlagged,
		EnrichmentStatus: entity.EnrichmentNeedsReview,
		RebateAmount:     decimal.RequireFromString("12.50"),
		Reasons:          []string{"test alert from send-review-alert"},
	}

	fmt.Println("Message preview:")
	fmt.Println(lark.FormatAlert(alert))
	fmt.Println()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := notifier.NotifyReview(ctx, alert); err != nil {
		fmt.Fprintf(os.Stderr, "✗ Failed to send alert: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("✓ Alert sent")
}
