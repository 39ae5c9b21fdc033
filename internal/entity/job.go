package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/painel-fiscal/nfse-importer/constants"
)

// JobOptions is the free-form options map a client submits with a job.
// CompanyCode and CompetencePeriod are validated before the job is created;
// the rest tune the pipeline for this job only.
type JobOptions struct {
	OCRLanguage      string `json:"ocrLanguage,omitempty"`
	Model            string `json:"model,omitempty"`
	BaseURL          string `json:"baseUrl,omitempty"`
	CompanyCode      string `json:"companyCode"`
	CompanyName      string `json:"companyName,omitempty"`
	CompetencePeriod string `json:"competencePeriod"`
}

// JobTotals aggregates the per-status file counts of a job.
type JobTotals struct {
	TotalFiles int `json:"totalFiles"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Ignored    int `json:"ignored"`
}

// ImportJob is one batch submission of invoice documents.
type ImportJob struct {
	ID        uuid.UUID
	Status    constants.JobStatus
	Options   JobOptions
	Totals    JobTotals
	CreatedAt time.Time
	UpdatedAt time.Time

	Files []*ImportFile
}

// DisplayStatus derives the client-facing status from status and totals.
func (j *ImportJob) DisplayStatus() string {
	if j.Status == constants.JobStatusFailed && j.Totals.Completed > 0 {
		return constants.DisplayCompletedWithErrors
	}
	return string(j.Status)
}

// ComputeTotals tallies file counts per outcome bucket. Files still moving
// through the pipeline land in Processing.
func ComputeTotals(files []*ImportFile) JobTotals {
	t := JobTotals{TotalFiles: len(files)}
	for _, f := range files {
		switch {
		case constants.ProcessingLike(f.Status):
			t.Processing++
		case f.Status == constants.FileStatusCompleted:
			t.Completed++
		case f.Status == constants.FileStatusError:
			t.Failed++
		case f.Status == constants.FileStatusIgnored:
			t.Ignored++
		}
	}
	return t
}

// DeriveJobStatus is the single rule that maps file totals onto the job
// status. An empty job stays pending; in-flight files keep it processing;
// otherwise any error makes it failed.
func DeriveJobStatus(t JobTotals) constants.JobStatus {
	switch {
	case t.TotalFiles == 0:
		return constants.JobStatusPending
	case t.Processing > 0:
		return constants.JobStatusProcessing
	case t.Failed > 0:
		return constants.JobStatusFailed
	default:
		return constants.JobStatusCompleted
	}
}
