package server

import (
	"fmt"
	"time"

	"github.com/painel-fiscal/nfse-importer/constants"
	"github.com/painel-fiscal/nfse-importer/internal/entity"
)

// Wire types mirror the JSON contract of the web client: camelCase keys,
// job options echoed back verbatim.

type uploadResponse struct {
	FileID      string `json:"fileId"`
	FileName    string `json:"fileName"`
	Size        int64  `json:"size"`
	UploadToken string `json:"uploadToken"`
}

type fileDescriptor struct {
	FileID      string `json:"fileId"`
	FileName    string `json:"fileName"`
	Size        int64  `json:"size"`
	UploadToken string `json:"uploadToken"`
}

type createJobRequest struct {
	Files   []fileDescriptor  `json:"files"`
	Options entity.JobOptions `json:"options"`
}

type reprocessRequest struct {
	FileIDs []string `json:"fileIds"`
}

type fileResponse struct {
	ID          string    `json:"id"`
	FileName    string    `json:"fileName"`
	Size        int64     `json:"size"`
	Status      string    `json:"status"`
	Stage       string    `json:"stage"`
	Progress    int       `json:"progress"`
	Message     string    `json:"message"`
	DownloadURL string    `json:"downloadUrl,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type jobResponse struct {
	ID            string            `json:"id"`
	Status        string            `json:"status"`
	DisplayStatus string            `json:"displayStatus"`
	CreatedAt     time.Time         `json:"createdAt"`
	Options       entity.JobOptions `json:"options"`
	Totals        entity.JobTotals  `json:"totals"`
	Files         []fileResponse    `json:"files"`
}

func toJobResponse(job *entity.ImportJob) jobResponse {
	files := make([]fileResponse, 0, len(job.Files))
	for _, f := range job.Files {
		resp := fileResponse{
			ID:        f.ID.String(),
			FileName:  f.FileName,
			Size:      f.FileSize,
			Status:    string(f.Status),
			Stage:     string(f.Stage),
			Progress:  f.Progress,
			Message:   f.Message,
			CreatedAt: f.CreatedAt,
			UpdatedAt: f.UpdatedAt,
		}
		if f.Status == constants.FileStatusCompleted && f.StoredPath != "" {
			resp.DownloadURL = fmt.Sprintf("/api/nfse/import-jobs/%s/files/%s/download", job.ID, f.ID)
		}
		files = append(files, resp)
	}
	return jobResponse{
		ID:            job.ID.String(),
		Status:        string(job.Status),
		DisplayStatus: job.DisplayStatus(),
		CreatedAt:     job.CreatedAt,
		Options:       job.Options,
		Totals:        job.Totals,
		Files:         files,
	}
}
