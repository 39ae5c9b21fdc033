package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/painel-fiscal/nfse-importer/internal/classify"
	"github.com/painel-fiscal/nfse-importer/internal/common"
	"github.com/painel-fiscal/nfse-importer/internal/textextract"
)

// runocr extracts the text of one PDF the same way the pipeline does and
// prints it, with classification stats, for tuning OCR settings.
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if len(os.Args) != 2 {
		logger.Error("usage", "cmd", "runocr <pdf-path>")
		os.Exit(2)
	}
	path := os.Args[1]

	cfg := common.LoadConfig()
	extractor := textextract.NewExtractor(textextract.Config{
		Pdftoppm:  cfg.OCR.Pdftoppm,
		Tesseract: cfg.OCR.Tesseract,
		Language:  cfg.OCR.Language,
		DPI:       cfg.OCR.DPI,
	}, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	start := time.Now()
	text, err := extractor.Extract(ctx, path)
	dur := time.Since(start)
	if err != nil {
		logger.Error("text extraction failed", "path", path, "error", err, "duration_ms", dur.Milliseconds())
		os.Exit(1)
	}

	logger.Info("text extraction OK",
		"path", path,
		"bytes", len(text),
		"keyword_matches", classify.MatchCount(text),
		"service_invoice", classify.IsServiceInvoice(text),
		"billing_markers", classify.HasBillingMarkers(text),
		"duration_ms", dur.Milliseconds(),
	)
	fmt.Println(text)
}
