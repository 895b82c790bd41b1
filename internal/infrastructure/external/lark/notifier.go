package lark

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/haulwise/rebate-claims/internal/application/port"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"go.uber.org/zap"
)

var (
	_ port.ReviewNotifier = (*ReviewNotifier)(nil)
	_ port.ReviewNotifier = NoopNotifier{}
)

// ReviewNotifier posts review alerts as text messages to a Lark group chat
type ReviewNotifier struct {
	sdk    *SDKClient
	chatID string
	logger *zap.Logger
}

// NewReviewNotifier creates a notifier posting to chatID
func NewReviewNotifier(sdk *SDKClient, chatID string, logger *zap.Logger) *ReviewNotifier {
	return &ReviewNotifier{
		sdk:    sdk,
		chatID: chatID,
		logger: logger,
	}
}

// NotifyReview sends one alert to the review chat
func (n *ReviewNotifier) NotifyReview(ctx context.Context, alert *port.ReviewAlert) error {
	content, err := json.Marshal(map[string]string{"text": FormatAlert(alert)})
	if err != nil {
		return fmt.Errorf("failed to marshal message content: %w", err)
	}

	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType("chat_id").
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(n.chatID).
			MsgType("text").
			Content(string(content)).
			Build()).
		Build()

	resp, err := n.sdk.GetClient().Im.Message.Create(ctx, req)
	if err != nil {
		n.logger.Error("Failed to send review alert",
			zap.String("claim_id", alert.ClaimID),
			zap.Error(err))
		return fmt.Errorf("failed to send message: %w", err)
	}

	if !resp.Success() {
		n.logger.Error("API returned failure",
			zap.String("claim_id", alert.ClaimID),
			zap.Int("code", resp.Code),
			zap.String("msg", resp.Msg))
		return fmt.Errorf("API error: code=%d, msg=%s", resp.Code, resp.Msg)
	}

	messageID := ""
	if resp.Data != nil && resp.Data.MessageId != nil {
		messageID = *resp.Data.MessageId
	}
	n.logger.Debug("Review alert posted",
		zap.String("claim_id", alert.ClaimID),
		zap.String("message_id", messageID))
	return nil
}

// FormatAlert renders an alert as plain text
func FormatAlert(alert *port.ReviewAlert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Rebate claim %s needs review\n", alert.ClaimID)
	fmt.Fprintf(&b, "Job: %s\n", alert.JobID)
	fmt.Fprintf(&b, "Status: %s", alert.Status)
	if alert.EnrichmentStatus != "" {
		fmt.Fprintf(&b, " / receipt check: %s", alert.EnrichmentStatus)
	}
	fmt.Fprintf(&b, "\nRebate: $%s", alert.RebateAmount.StringFixed(2))
	for _, reason := range alert.Reasons {
		fmt.Fprintf(&b, "\n- %s", reason)
	}
	return b.String()
}

// NoopNotifier drops alerts; used when the Lark channel is disabled
type NoopNotifier struct {
	Logger *zap.Logger
}

// NotifyReview logs the alert at debug level
func (n NoopNotifier) NotifyReview(ctx context.Context, alert *port.ReviewAlert) error {
	if n.Logger != nil {
		n.Logger.Debug("Review alert not sent, lark disabled", zap.String("claim_id", alert.ClaimID))
	}
	return nil
}
