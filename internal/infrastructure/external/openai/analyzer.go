package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/haulwise/rebate-claims/internal/application/port"
	"github.com/haulwise/rebate-claims/internal/domain/entity"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

var _ port.DocumentAnalyzer = (*Analyzer)(nil)

// Config configures the OpenAI receipt analyzer
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
}

// Analyzer implements port.DocumentAnalyzer with a vision-capable chat model
type Analyzer struct {
	client      *openai.Client
	prompts     *PromptConfig
	model       string
	temperature float32
	maxTokens   int
	logger      *zap.Logger
}

// NewAnalyzer creates a new OpenAI receipt analyzer
func NewAnalyzer(cfg Config, prompts *PromptConfig, logger *zap.Logger) *Analyzer {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	temperature := prompts.ReceiptAnalysis.Temperature
	if cfg.Temperature > 0 {
		temperature = cfg.Temperature
	}
	maxTokens := prompts.ReceiptAnalysis.MaxTokens
	if cfg.MaxTokens > 0 {
		maxTokens = cfg.MaxTokens
	}

	return &Analyzer{
		client:      openai.NewClientWithConfig(clientCfg),
		prompts:     prompts,
		model:       cfg.Model,
		temperature: temperature,
		maxTokens:   maxTokens,
		logger:      logger,
	}
}

// receiptPromptData feeds the user prompt template
type receiptPromptData struct {
	FacilityName    string
	FacilityAddress string
	ClaimedWeight   string
	EstimatedWeight string
	ReceiptDate     string
	JobCompletedAt  string
}

// receiptResponse is the JSON shape the model is asked to return
type receiptResponse struct {
	Recommendation     string  `json:"recommendation"`
	Confidence         float64 `json:"confidence"`
	ImageReadable      bool    `json:"image_readable"`
	TamperingSuspected bool    `json:"tampering_suspected"`
	Extracted          struct {
		FacilityName  string  `json:"facility_name"`
		WeightLbs     float64 `json:"weight_lbs"`
		ReceiptDate   string  `json:"receipt_date"`
		ReceiptNumber string  `json:"receipt_number"`
		TotalCharge   float64 `json:"total_charge"`
	} `json:"extracted"`
	Issues          []string `json:"issues"`
	Recommendations []string `json:"recommendations"`
	Reasoning       string   `json:"reasoning"`
}

// AnalyzeReceipt sends the receipt image and the claimed facts to the model.
// Rate limiting, upstream 5xx and connection failures wrap port.ErrTransient.
func (a *Analyzer) AnalyzeReceipt(ctx context.Context, req *port.ReceiptAnalysisRequest) (*port.ReceiptAnalysis, error) {
	if req.Image == nil {
		return nil, errors.New("receipt image is required")
	}

	a.logger.Debug("Analyzing receipt",
		zap.String("claim_id", req.ClaimID),
		zap.String("mime_type", req.Image.MimeType),
		zap.Bool("remote", req.Image.URL != ""))

	prompt, err := a.buildPrompt(req)
	if err != nil {
		return nil, err
	}

	imageURL := req.Image.URL
	if imageURL == "" {
		imageURL = fmt.Sprintf("data:%s;base64,%s", req.Image.MimeType, base64.StdEncoding.EncodeToString(req.Image.Data))
	}

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       a.model,
		MaxTokens:   a.maxTokens,
		Temperature: a.temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: a.prompts.ReceiptAnalysis.System,
			},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: prompt,
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    imageURL,
							Detail: openai.ImageURLDetailHigh,
						},
					},
				},
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		a.logger.Warn("Vision API call failed", zap.String("claim_id", req.ClaimID), zap.Error(err))
		return nil, classifyError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, errors.New("no response from vision API")
	}

	content := resp.Choices[0].Message.Content
	parsed, err := parseReceiptResponse(content)
	if err != nil {
		a.logger.Error("Failed to parse vision API response",
			zap.String("claim_id", req.ClaimID),
			zap.Error(err),
			zap.String("content", content))
		return nil, err
	}

	a.logger.Info("Receipt analyzed",
		zap.String("claim_id", req.ClaimID),
		zap.String("recommendation", parsed.Recommendation),
		zap.Float64("confidence", parsed.Confidence),
		zap.Int("total_tokens", resp.Usage.TotalTokens))

	return toReceiptAnalysis(parsed), nil
}

func (a *Analyzer) buildPrompt(req *port.ReceiptAnalysisRequest) (string, error) {
	data := receiptPromptData{
		FacilityName:    req.ClaimedFacilityName,
		FacilityAddress: req.ClaimedFacilityAddress,
		ClaimedWeight:   formatWeight(req.ClaimedWeightLbs),
		EstimatedWeight: formatWeight(req.EstimatedWeightLbs),
		ReceiptDate:     req.ReceiptDate.UTC().Format(time.RFC3339),
	}
	if !req.JobCompletedAt.IsZero() {
		data.JobCompletedAt = req.JobCompletedAt.UTC().Format(time.RFC3339)
	}
	return renderTemplate(a.prompts.ReceiptAnalysis.UserTemplate, data)
}

func parseReceiptResponse(content string) (*receiptResponse, error) {
	var result receiptResponse
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		// Fallback: the model wrapped the object in prose or a code fence
		jsonStr := extractJSON(content)
		if jsonStr == "" {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
		if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return &result, nil
}

func toReceiptAnalysis(r *receiptResponse) *port.ReceiptAnalysis {
	return &port.ReceiptAnalysis{
		Recommendation:     strings.ToUpper(strings.TrimSpace(r.Recommendation)),
		Confidence:         r.Confidence,
		ImageReadable:      r.ImageReadable,
		TamperingSuspected: r.TamperingSuspected,
		Extracted: entity.ExtractedReceipt{
			FacilityName:  strings.TrimSpace(r.Extracted.FacilityName),
			WeightLbs:     r.Extracted.WeightLbs,
			ReceiptDate:   parseReceiptDate(r.Extracted.ReceiptDate),
			ReceiptNumber: strings.TrimSpace(r.Extracted.ReceiptNumber),
			TotalCharge:   r.Extracted.TotalCharge,
		},
		Issues:          r.Issues,
		Recommendations: r.Recommendations,
		Reasoning:       r.Reasoning,
	}
}

var receiptDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"01/02/2006 15:04",
	"01/02/2006",
}

// parseReceiptDate returns nil for dates the model could not read or formatted unexpectedly.
func parseReceiptDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range receiptDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func formatWeight(lbs float64) string {
	return strings.TrimSuffix(fmt.Sprintf("%.1f", lbs), ".0")
}

// classifyError marks retryable API failures with port.ErrTransient
func classifyError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && retryableStatus(apiErr.HTTPStatusCode) {
		return fmt.Errorf("vision API status %d: %v: %w", apiErr.HTTPStatusCode, err, port.ErrTransient)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && retryableStatus(reqErr.HTTPStatusCode) {
		return fmt.Errorf("vision API status %d: %v: %w", reqErr.HTTPStatusCode, err, port.ErrTransient)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("vision API unreachable: %v: %w", err, port.ErrTransient)
	}

	return fmt.Errorf("vision API call failed: %w", err)
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// extractJSON returns the first balanced JSON object in content
func extractJSON(content string) string {
	start := strings.IndexByte(content, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escapeNext := false
	for i := start; i < len(content); i++ {
		c := content[i]
		switch {
		case escapeNext:
			escapeNext = false
		case c == '\\' && inString:
			escapeNext = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return content[start : i+1]
			}
		}
	}
	return ""
}
