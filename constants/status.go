package constants

// JobStatus is the canonical status for rows in import_jobs. It is always a
// derived value: recomputing totals is the only code path that writes it.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// DisplayCompletedWithErrors is the client-facing status shown for a failed
// job that still produced at least one completed file.
const DisplayCompletedWithErrors = "completed_with_errors"

// FileStatus is the coarse outcome of one file within a job.
type FileStatus string

const (
	FileStatusPending    FileStatus = "pending"
	FileStatusUploading  FileStatus = "uploading"
	FileStatusProcessing FileStatus = "processing"
	FileStatusCompleted  FileStatus = "completed"
	FileStatusError      FileStatus = "error"
	FileStatusIgnored    FileStatus = "ignored"
)

// FileStage is the pipeline checkpoint a file is currently at.
type FileStage string

const (
	StageQueued     FileStage = "queued"
	StageOCR        FileStage = "ocr"
	StageAI         FileStage = "ai"
	StagePersisting FileStage = "persisting"
	StageDone       FileStage = "done"
	StageError      FileStage = "error"
)

// ProcessingLike reports whether a file still counts toward the job's
// processing bucket.
func ProcessingLike(s FileStatus) bool {
	return s == FileStatusPending || s == FileStatusUploading || s == FileStatusProcessing
}
