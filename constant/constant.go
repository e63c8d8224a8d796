package constant

import (
	"path/filepath"
	"strings"
)

type LectureStatus string

const (
	LectureStatusUploading  LectureStatus = "uploading"
	LectureStatusProcessing LectureStatus = "processing"
	LectureStatusGenerating LectureStatus = "generating"
	LectureStatusReady      LectureStatus = "ready"
	LectureStatusError      LectureStatus = "error"
)

// Terminal reports whether a pipeline run has finished with this status.
func (s LectureStatus) Terminal() bool {
	return s == LectureStatusReady || s == LectureStatusError
}

var statusStage = map[LectureStatus]int{
	LectureStatusUploading:  0,
	LectureStatusProcessing: 1,
	LectureStatusGenerating: 2,
	LectureStatusReady:      3,
	LectureStatusError:      3,
}

// Precedes reports whether s comes strictly before next in a run.
func (s LectureStatus) Precedes(next LectureStatus) bool {
	return statusStage[s] < statusStage[next]
}

func (s LectureStatus) String() string {
	return string(s)
}

type FileFormat string

const (
	FileFormatPPTX FileFormat = "pptx"
	FileFormatPDF  FileFormat = "pdf"
)

func ParseFileFormat(value string) (FileFormat, bool) {
	switch FileFormat(strings.ToLower(strings.TrimSpace(value))) {
	case FileFormatPPTX:
		return FileFormatPPTX, true
	case FileFormatPDF:
		return FileFormatPDF, true
	}
	return "", false
}

// FileFormatFromName detects the format from a file name extension.
func FileFormatFromName(name string) (FileFormat, bool) {
	return ParseFileFormat(strings.TrimPrefix(filepath.Ext(name), "."))
}

func (f FileFormat) String() string {
	return string(f)
}

func (f FileFormat) ContentType() string {
	switch f {
	case FileFormatPPTX:
		return "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	case FileFormatPDF:
		return "application/pdf"
	}
	return "application/octet-stream"
}

type Environment string

const (
	EnvironmentProduction Environment = "production"
	EnvironmentStaging    Environment = "staging"
	EnvironmentDevelop    Environment = "develop"
)

func (e Environment) String() string {
	return string(e)
}

const (
	PipelineExchange       = "lecture_exchange"
	PipelineQueue          = "lecture_pipeline_queue"
	PipelineRoutingKey     = "lecture.pipeline.request"
	PipelineDeadExchange   = "lecture_exchange_dlx"
	PipelineDeadQueue      = "lecture_pipeline_queue_dlq"
	PipelineDeadRoutingKey = "dlq.lecture.pipeline.request"
)

const UserIDHeader = "X-User-ID"
