package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/painel-fiscal/nfse-importer/internal/entity"
	"github.com/painel-fiscal/nfse-importer/internal/orchestrator"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleUpload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "file field is required"})
		return
	}
	src, err := fh.Open()
	if err != nil {
		s.writeError(c, err)
		return
	}
	defer src.Close()

	rel, size, err := s.store.Save(fh.Filename, src)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, uploadResponse{
		FileID:      uuid.New().String(),
		FileName:    fh.Filename,
		Size:        size,
		UploadToken: rel,
	})
}

func (s *Server) handleCompanySearch(c *gin.Context) {
	results, err := s.companies.Search(c.Request.Context(), c.Query("search"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	if results == nil {
		results = []*entity.Company{}
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (s *Server) handleListJobs(c *gin.Context) {
	pageSize := defaultPageSize
	if raw := c.Query("page_size"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			pageSize = n
		}
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	jobs, err := s.jobs.ListJobs(c.Request.Context(), pageSize)
	if err != nil {
		s.writeError(c, err)
		return
	}

	results := make([]jobResponse, 0, len(jobs))
	for _, job := range jobs {
		results = append(results, toJobResponse(job))
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (s *Server) handleCreateJob(c *gin.Context) {
	var req createJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid request body"})
		return
	}

	submit := orchestrator.SubmitRequest{Options: req.Options}
	for _, f := range req.Files {
		submit.Files = append(submit.Files, orchestrator.SubmitFile{
			FileName:    f.FileName,
			UploadToken: f.UploadToken,
		})
	}

	job, err := s.orch.Submit(c.Request.Context(), submit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toJobResponse(job))
}

func (s *Server) jobID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid job id"})
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) handleGetJob(c *gin.Context) {
	id, ok := s.jobID(c)
	if !ok {
		return
	}
	job, err := s.jobs.GetJob(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toJobResponse(job))
}

func (s *Server) handleDeleteJob(c *gin.Context) {
	id, ok := s.jobID(c)
	if !ok {
		return
	}
	if err := s.orch.Delete(c.Request.Context(), id); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleReprocess(c *gin.Context) {
	id, ok := s.jobID(c)
	if !ok {
		return
	}
	var req reprocessRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.FileIDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "fileIds is required"})
		return
	}

	fileIDs := make([]uuid.UUID, 0, len(req.FileIDs))
	for _, raw := range req.FileIDs {
		fid, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid file id: " + raw})
			return
		}
		fileIDs = append(fileIDs, fid)
	}

	job, err := s.orch.Reprocess(c.Request.Context(), id, fileIDs)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toJobResponse(job))
}

func (s *Server) handleFileDownload(c *gin.Context) {
	id, ok := s.jobID(c)
	if !ok {
		return
	}
	fileID, err := uuid.Parse(c.Param("fileID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid file id"})
		return
	}

	job, err := s.jobs.GetJob(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	for _, f := range job.Files {
		if f.ID != fileID || f.StoredPath == "" {
			continue
		}
		path, err := s.store.Path(f.StoredPath)
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.FileAttachment(path, f.FileName)
		return
	}
	c.JSON(http.StatusNotFound, gin.H{"detail": "file not found"})
}

func (s *Server) handleDownload(c *gin.Context) {
	id, ok := s.jobID(c)
	if !ok {
		return
	}
	job, err := s.jobs.GetJob(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}

	art, err := s.bundles.Build(c.Request.Context(), job, c.Param("category"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+art.FileName+`"`)
	c.Data(http.StatusOK, art.ContentType, art.Data)
}
