package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"

	"github.com/joho/godotenv"

	"github.com/painel-fiscal/nfse-importer/internal/bundle"
	"github.com/painel-fiscal/nfse-importer/internal/common"
	"github.com/painel-fiscal/nfse-importer/internal/entity"
	"github.com/painel-fiscal/nfse-importer/internal/extract"
	"github.com/painel-fiscal/nfse-importer/internal/extract/assisted"
	"github.com/painel-fiscal/nfse-importer/internal/extract/pattern"
	"github.com/painel-fiscal/nfse-importer/internal/orchestrator"
	"github.com/painel-fiscal/nfse-importer/internal/repository"
	"github.com/painel-fiscal/nfse-importer/internal/server"
	"github.com/painel-fiscal/nfse-importer/internal/storage"
	"github.com/painel-fiscal/nfse-importer/internal/textextract"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	db, err := repository.Open(ctx, repository.Config{
		DSN:             cfg.Database.DSN,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		DialTimeout:     cfg.Database.DialTimeout,
	}, logger)
	if err != nil {
		logger.Error("opening database", "error", err)
		os.Exit(1)
	}
	defer db.Close(logger)

	if err := db.HealthCheck(ctx, cfg.Database.DialTimeout, logger); err != nil {
		logger.Error("database health check failed", "error", err)
		os.Exit(1)
	}
	if err := db.Migrate(ctx, logger); err != nil {
		logger.Error("applying schema", "error", err)
		os.Exit(1)
	}

	// the companies directory usually lives in the payroll database; fall
	// back to the main one for single-database deployments
	companiesDB := db
	if cfg.Companies.DSN != "" && cfg.Companies.DSN != cfg.Database.DSN {
		companiesDB, err = repository.Open(ctx, repository.Config{
			DSN:         cfg.Companies.DSN,
			DialTimeout: cfg.Database.DialTimeout,
		}, logger)
		if err != nil {
			logger.Error("opening payroll database", "error", err)
			os.Exit(1)
		}
		defer companiesDB.Close(logger)
	}

	files := repository.NewFileRepository(db, logger)
	jobs := repository.NewJobRepository(db, files, logger)
	invoices := repository.NewInvoiceRepository(db, logger)
	companies := repository.NewCompanyRepository(companiesDB, logger)
	store := storage.NewStore(cfg.Storage.Root, logger)

	texts := textextract.NewExtractor(textextract.Config{
		Pdftoppm:  cfg.OCR.Pdftoppm,
		Tesseract: cfg.OCR.Tesseract,
		Language:  cfg.OCR.Language,
		DPI:       cfg.OCR.DPI,
	}, logger)

	orch := orchestrator.New(orchestrator.Deps{
		Jobs:      jobs,
		Files:     files,
		Invoices:  invoices,
		Companies: companies,
		Store:     store,
		NewTextExtractor: func(language string) orchestrator.TextExtractor {
			if language == "" {
				return texts
			}
			return texts.WithLanguage(language)
		},
		NewStrategy: func(opts entity.JobOptions) extract.Strategy {
			if cfg.Pipeline.Strategy == "pattern" {
				return pattern.NewExtractor(logger)
			}
			baseURL := cfg.LLM.BaseURL
			if opts.BaseURL != "" {
				baseURL = opts.BaseURL
			}
			return assisted.NewClient(assisted.Config{
				APIKey:   cfg.LLM.APIKey,
				Model:    opts.Model,
				EnvModel: cfg.LLM.Model,
				BaseURL:  baseURL,
				Timeout:  cfg.LLM.Timeout,
			}, logger)
		},
		ProcessTimeout: cfg.Pipeline.ProcessTimeout,
		Logger:         logger,
	})

	bundles := bundle.NewService(invoices, store, logger)
	srv := server.New(orch, jobs, companies, bundles, store, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(cfg.Server.Addr) }()

	select {
	case err := <-errCh:
		logger.Error("http server stopped", "error", err)
		os.Exit(1)
	case <-ctx.Done():
		logger.Info("shutting down")
	}
}
