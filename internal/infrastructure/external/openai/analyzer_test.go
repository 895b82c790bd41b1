package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/haulwise/rebate-claims/internal/application/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chatResponse(content string) string {
	body, _ := json.Marshal(map[string]interface{}{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "gpt-4o",
		"choices": []map[string]interface{}{{
			"index":         0,
			"message":       map[string]string{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
		"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 20, "total_tokens": 30},
	})
	return string(body)
}

func newTestAnalyzer(t *testing.T, handler http.HandlerFunc) *Analyzer {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	prompts, err := LoadPrompts("")
	require.NoError(t, err)

	return NewAnalyzer(Config{APIKey: "test-key", BaseURL: server.URL + "/v1", Model: "gpt-4o"}, prompts, zap.NewNop())
}

func analysisRequest() *port.ReceiptAnalysisRequest {
	return &port.ReceiptAnalysisRequest{
		ClaimID:             "c1",
		Image:               &port.ReceiptImage{Data: []byte("jpegbytes"), MimeType: "image/jpeg"},
		ClaimedFacilityName: "Metro Transfer Station",
		ClaimedWeightLbs:    520,
		EstimatedWeightLbs:  500,
		ReceiptDate:         time.Date(2026, 5, 4, 18, 0, 0, 0, time.UTC),
		JobCompletedAt:      time.Date(2026, 5, 4, 16, 0, 0, 0, time.UTC),
	}
}

func TestAnalyzeReceipt_Success(t *testing.T) {
	var captured map[string]interface{}
	analyzer := newTestAnalyzer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, chatResponse(`{
			"recommendation": "approve",
			"confidence": 88,
			"image_readable": true,
			"tampering_suspected": false,
			"extracted": {"facility_name": "Metro Transfer Station", "weight_lbs": 515, "receipt_date": "2026-05-04", "receipt_number": "MTS-481"},
			"issues": [],
			"reasoning": "clear scale ticket"
		}`))
	})

	result, err := analyzer.AnalyzeReceipt(context.Background(), analysisRequest())
	require.NoError(t, err)

	assert.Equal(t, "APPROVE", result.Recommendation)
	assert.Equal(t, 88.0, result.Confidence)
	assert.True(t, result.ImageReadable)
	assert.Equal(t, 515.0, result.Extracted.WeightLbs)
	assert.Equal(t, "MTS-481", result.Extracted.ReceiptNumber)
	require.NotNil(t, result.Extracted.ReceiptDate)
	assert.Equal(t, time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC), *result.Extracted.ReceiptDate)

	assert.Equal(t, map[string]interface{}{"type": "json_object"}, captured["response_format"])
	raw, _ := json.Marshal(captured["messages"])
	assert.Contains(t, string(raw), "data:image/jpeg;base64,")
	assert.Contains(t, string(raw), "Metro Transfer Station")
	assert.Contains(t, string(raw), "520 lbs")
}

func TestAnalyzeReceipt_RemoteImagePassesURL(t *testing.T) {
	var raw string
	analyzer := newTestAnalyzer(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		raw = string(body)
		_, _ = io.WriteString(w, chatResponse(`{"recommendation":"NEEDS_REVIEW","image_readable":true}`))
	})

	req := analysisRequest()
	req.Image = &port.ReceiptImage{URL: "https://cdn.example.com/r/1.jpg"}
	_, err := analyzer.AnalyzeReceipt(context.Background(), req)
	require.NoError(t, err)
	assert.Contains(t, raw, "https://cdn.example.com/r/1.jpg")
	assert.NotContains(t, raw, "base64")
}

func TestAnalyzeReceipt_FencedJSON(t *testing.T) {
	analyzer := newTestAnalyzer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, chatResponse("Here you go:\n```json\n{\"recommendation\":\"DENY\",\"confidence\":61,\"image_readable\":true,\"reasoning\":\"weight {altered}\"}\n```"))
	})

	result, err := analyzer.AnalyzeReceipt(context.Background(), analysisRequest())
	require.NoError(t, err)
	assert.Equal(t, "DENY", result.Recommendation)
	assert.Equal(t, "weight {altered}", result.Reasoning)
}

func TestAnalyzeReceipt_Garbage(t *testing.T) {
	analyzer := newTestAnalyzer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, chatResponse("I cannot help with that"))
	})

	_, err := analyzer.AnalyzeReceipt(context.Background(), analysisRequest())
	require.Error(t, err)
	assert.False(t, errors.Is(err, port.ErrTransient))
}

func TestAnalyzeReceipt_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		transient bool
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"slow down","type":"requests","code":"rate_limit_exceeded"}}`, true},
		{"server error", http.StatusBadGateway, `{"error":{"message":"upstream","type":"server_error"}}`, true},
		{"bad request", http.StatusBadRequest, `{"error":{"message":"invalid image","type":"invalid_request_error"}}`, false},
		{"unauthorized", http.StatusUnauthorized, `{"error":{"message":"bad key","type":"invalid_request_error"}}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analyzer := newTestAnalyzer(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			_, err := analyzer.AnalyzeReceipt(context.Background(), analysisRequest())
			require.Error(t, err)
			assert.Equal(t, tt.transient, errors.Is(err, port.ErrTransient), err.Error())
		})
	}
}

func TestAnalyzeReceipt_RequiresImage(t *testing.T) {
	analyzer := newTestAnalyzer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})
	req := analysisRequest()
	req.Image = nil
	_, err := analyzer.AnalyzeReceipt(context.Background(), req)
	assert.Error(t, err)
}

func TestParseReceiptDate(t *testing.T) {
	assert.Nil(t, parseReceiptDate(""))
	assert.Nil(t, parseReceiptDate("sometime in May"))

	got := parseReceiptDate("05/04/2026 17:45")
	require.NotNil(t, got)
	assert.Equal(t, time.Date(2026, 5, 4, 17, 45, 0, 0, time.UTC), *got)
}

func TestExtractJSON(t *testing.T) {
	assert.Equal(t, `{"a":{"b":"}"}}`, extractJSON(`noise {"a":{"b":"}"}} trailing`))
	assert.Equal(t, "", extractJSON("no json here"))
	assert.Equal(t, "", extractJSON(`{"unterminated": true`))
}

func TestLoadPrompts(t *testing.T) {
	prompts, err := LoadPrompts("")
	require.NoError(t, err)
	assert.NotEmpty(t, prompts.ReceiptAnalysis.System)

	text, err := renderTemplate(prompts.ReceiptAnalysis.UserTemplate, receiptPromptData{
		FacilityName:    "Eastside Landfill",
		ClaimedWeight:   "640",
		EstimatedWeight: "600",
		ReceiptDate:     "2026-05-04T18:00:00Z",
	})
	require.NoError(t, err)
	assert.Contains(t, text, "Eastside Landfill")
	assert.False(t, strings.Contains(text, "Job completed at"), "optional line omitted when empty")

	_, err = LoadPrompts("/nonexistent/prompts.yaml")
	assert.Error(t, err)
}
