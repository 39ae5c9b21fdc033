package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/painel-fiscal/nfse-importer/constants"
)

// ImportFile is one document within a job, tracked through its own state
// machine. StoredPath addresses the uploaded bytes in the content store.
type ImportFile struct {
	ID             uuid.UUID
	JobID          uuid.UUID
	FileName       string
	FileSize       int64
	StoredPath     string
	Status         constants.FileStatus
	Stage          constants.FileStage
	Progress       int
	Message        string
	ResultID       *int64
	ExportToOthers bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
