package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/painel-fiscal/nfse-importer/internal/common"
	"github.com/painel-fiscal/nfse-importer/internal/extract"
	"github.com/painel-fiscal/nfse-importer/internal/extract/assisted"
	"github.com/painel-fiscal/nfse-importer/internal/extract/pattern"
	"github.com/painel-fiscal/nfse-importer/internal/textextract"
)

// llm runs the full extraction chain on one PDF and prints the structured
// invoice as JSON. NFSE_EXTRACTOR selects the strategy.
func main() {
	_ = godotenv.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if len(os.Args) != 2 {
		logger.Error("usage", "cmd", "llm <pdf-path>")
		os.Exit(2)
	}
	path := os.Args[1]

	cfg := common.LoadConfig()
	var strategy extract.Strategy
	if cfg.Pipeline.Strategy == "pattern" {
		strategy = pattern.NewExtractor(logger)
	} else {
		strategy = assisted.NewClient(assisted.Config{
			APIKey:   cfg.LLM.APIKey,
			EnvModel: cfg.LLM.Model,
			BaseURL:  cfg.LLM.BaseURL,
			Timeout:  cfg.LLM.Timeout,
		}, logger)
	}

	extractor := textextract.NewExtractor(textextract.Config{
		Pdftoppm:  cfg.OCR.Pdftoppm,
		Tesseract: cfg.OCR.Tesseract,
		Language:  cfg.OCR.Language,
		DPI:       cfg.OCR.DPI,
	}, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	start := time.Now()
	text, err := extractor.Extract(ctx, path)
	if err != nil {
		logger.Error("text extraction failed", "path", path, "error", err)
		os.Exit(1)
	}

	inv, err := strategy.Extract(ctx, text, filepath.Base(path))
	if err != nil {
		logger.Error("field extraction failed", "path", path, "error", err)
		os.Exit(1)
	}

	logger.Info("extraction OK",
		"path", path,
		"strategy", cfg.Pipeline.Strategy,
		"access_key", inv.AccessKey,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	out, err := json.MarshalIndent(inv, "", "  ")
	if err != nil {
		logger.Error("encode invoice", "error", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}
