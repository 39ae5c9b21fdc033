// Package server exposes the ingestion pipeline over HTTP: uploads, job
// submission and polling, reprocessing, and download bundles.
package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/painel-fiscal/nfse-importer/internal/bundle"
	"github.com/painel-fiscal/nfse-importer/internal/common"
	"github.com/painel-fiscal/nfse-importer/internal/orchestrator"
	"github.com/painel-fiscal/nfse-importer/internal/repository"
	"github.com/painel-fiscal/nfse-importer/internal/storage"
)

type Server struct {
	router    *gin.Engine
	orch      *orchestrator.Orchestrator
	jobs      repository.JobRepository
	companies repository.CompanyRepository
	bundles   *bundle.Service
	store     *storage.Store
	logger    *slog.Logger
}

func New(orch *orchestrator.Orchestrator, jobs repository.JobRepository, companies repository.CompanyRepository, bundles *bundle.Service, store *storage.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		router:    gin.Default(),
		orch:      orch,
		jobs:      jobs,
		companies: companies,
		bundles:   bundles,
		store:     store,
		logger:    logger,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.router.Group("/api")
	api.POST("/uploads", s.handleUpload)
	api.GET("/nfse/companies", s.handleCompanySearch)
	api.GET("/nfse/import-jobs", s.handleListJobs)
	api.POST("/nfse/import-jobs", s.handleCreateJob)
	api.GET("/nfse/import-jobs/:id", s.handleGetJob)
	api.DELETE("/nfse/import-jobs/:id", s.handleDeleteJob)
	api.POST("/nfse/import-jobs/:id/reprocess", s.handleReprocess)
	api.GET("/nfse/import-jobs/:id/download/:category", s.handleDownload)
	api.GET("/nfse/import-jobs/:id/files/:fileID/download", s.handleFileDownload)
	s.router.GET("/healthz", s.handleHealth)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run blocks serving HTTP on addr.
func (s *Server) Run(addr string) error {
	s.logger.Info("http server listening", "addr", addr)
	return s.router.Run(addr)
}

// writeError maps the application error taxonomy onto HTTP statuses.
func (s *Server) writeError(c *gin.Context, err error) {
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		switch appErr.Code {
		case "VALIDATION_ERROR":
			status = http.StatusBadRequest
		case "NOT_FOUND":
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"detail": appErr.Message})
		return
	}
	s.logger.Error("request failed", "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"detail": "internal error"})
}
