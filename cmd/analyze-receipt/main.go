// Command analyze-receipt runs one receipt image through the document-analysis
// model and prints the verdict the enrichment worker would store.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/haulwise/rebate-claims/internal/application/port"
	"github.com/haulwise/rebate-claims/internal/config"
	"github.com/haulwise/rebate-claims/internal/domain/entity"
	"github.com/haulwise/rebate-claims/internal/domain/rule"
	"github.com/haulwise/rebate-claims/internal/infrastructure/external/openai"
	"github.com/haulwise/rebate-claims/internal/infrastructure/storage"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML config file")
	receipt := flag.String("receipt", "", "receipt image or PDF to analyze")
	facility := flag.String("facility", "", "claimed facility name")
	address := flag.String("address", "", "claimed facility address")
	weight := flag.Float64("weight", 0, "claimed receipt weight in lbs")
	estimated := flag.Float64("estimated", 0, "job's estimated weight in lbs")
	receiptNumber := flag.String("receipt-number", "", "claimed receipt number")
	date := flag.String("date", "", "claimed receipt date (RFC3339)")
	timeout := flag.Duration("timeout", 60*time.Second, "API call timeout")
	verbose := flag.Bool("verbose", false, "Verbose output")
	flag.Parse()

	var logger *zap.Logger
	var err error
	if *verbose {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if *receipt == "" || *facility == "" {
		fmt.Fprintln(os.Stderr, "Usage: analyze-receipt --receipt <file> --facility <name> [--weight 480] [--estimated 500] [--date 2026-05-04T15:00:00Z]")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	receiptDate := time.Now().UTC()
	if *date != "" {
		receiptDate, err = time.Parse(time.RFC3339, *date)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: Invalid --date: %v\n", err)
			os.Exit(2)
		}
	}

	absPath, err := filepath.Abs(*receipt)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}

	prompts, err := openai.LoadPrompts(cfg.OpenAI.PromptsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to load prompts: %v\n", err)
		os.Exit(1)
	}

	store := storage.NewReceiptStore(filepath.Dir(absPath), cfg.Storage.MaxImageBytes, cfg.Storage.PDFDPI, logger)
	analyzer := openai.NewAnalyzer(openai.Config{
		APIKey:      cfg.OpenAI.APIKey,
		BaseURL:     cfg.OpenAI.BaseURL,
		Model:       cfg.OpenAI.Model,
		Temperature: cfg.OpenAI.Temperature,
		MaxTokens:   cfg.OpenAI.MaxTokens,
	}, prompts, logger)
	validator := rule.NewValidator(cfg.Rebate.Policy())

	fmt.Println("=== Receipt Analysis ===")
	fmt.Printf("  Model: %s\n", cfg.OpenAI.Model)
	fmt.Printf("  Receipt: %s\n", absPath)
	fmt.Printf("  Facility: %s\n", *facility)
	fmt.Printf("  Claimed weight: %.1f lbs\n", *weight)
	fmt.Println()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	image, err := store.Load(ctx, filepath.Base(absPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to load receipt: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Receipt loaded (%s, %d bytes)\n", image.MimeType, len(image.Data))

	start := time.Now()
	analysis, err := analyzer.AnalyzeReceipt(ctx, &port.ReceiptAnalysisRequest{
		ClaimID:                "cli",
		Image:                  image,
		ClaimedFacilityName:    *facility,
		ClaimedFacilityAddress: *address,
		ClaimedWeightLbs:       *weight,
		EstimatedWeightLbs:     *estimated,
		ReceiptDate:            receiptDate,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Analysis failed after %v: %v\n", time.Since(start).Round(time.Millisecond), err)
		os.Exit(1)
	}
	fmt.Printf("✓ Analysis completed in %v\n\n", time.Since(start).Round(time.Millisecond))

	derived := validator.DeriveIssues(rule.ReceiptCheck{
		FacilityName:     *facility,
		ReceiptNumber:    *receiptNumber,
		ReceiptDate:      receiptDate,
		ReceiptWeightLbs: *weight,
	}, analysis.Extracted)

	out := struct {
		EnrichmentStatus string                  `json:"enrichment_status"`
		Confidence       float64                 `json:"confidence"`
		Recommendation   string                  `json:"recommendation"`
		Extracted        entity.ExtractedReceipt `json:"extracted"`
		Issues           []string                `json:"issues"`
		DerivedIssues    []string                `json:"derived_issues"`
		Reasoning        string                  `json:"reasoning"`
	}{
		EnrichmentStatus: rule.EnrichmentStatus(analysis.Recommendation, analysis.ImageReadable, analysis.TamperingSuspected),
		Confidence:       rule.ClampConfidence(analysis.Confidence),
		Recommendation:   analysis.Recommendation,
		Extracted:        analysis.Extracted,
		Issues:           analysis.Issues,
		DerivedIssues:    derived,
		Reasoning:        analysis.Reasoning,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}
