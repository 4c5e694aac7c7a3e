package models

import (
	"errors"
	"fmt"
	"time"
)

// MediaType is the kind of media a case was opened for.
type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeVideo MediaType = "video"
)

// Case is the persistent unit of forensic work. One row per media
// fingerprint; the fingerprint carries the unique constraint that
// makes re-submission idempotent.
type Case struct {
	ID             string    `json:"case_id"`
	MediaType      MediaType `json:"media_type"`
	Filename       string    `json:"filename"`
	MediaHash      string    `json:"media_hash"`
	IsAIGenerated  bool      `json:"is_ai_generated"`
	DetectionScore float64   `json:"confidence"`
	BlockchainTx   *string   `json:"blockchain_tx"`
	ReportPath     *string   `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}

// Verdict is the classification outcome for a single piece of media.
type Verdict struct {
	IsAIGenerated  bool    `json:"is_ai_generated"`
	Confidence     float64 `json:"confidence"`
	MaxConfidence  float64 `json:"max_confidence,omitempty"`
	FramesAnalyzed int     `json:"frames_analyzed,omitempty"`
	Model          string  `json:"model,omitempty"`
}

// BlockchainStatus values reported to clients.
const (
	BlockchainStatusAnchored = "anchored"
	BlockchainStatusPending  = "pending"
)

// AnalyzeResponse is the stable contract of POST /api/detect/analyze.
type AnalyzeResponse struct {
	Success      bool            `json:"success"`
	Duplicate    bool            `json:"duplicate"`
	CaseID       string          `json:"case_id"`
	MediaType    MediaType       `json:"media_type"`
	Filename     string          `json:"filename"`
	Detection    DetectionResult `json:"detection"`
	Timestamp    string          `json:"timestamp"`
	BlockchainTx *string         `json:"blockchain_tx"`
	BlockchainSt string          `json:"blockchain_status"`
}

// DetectionResult is the detection sub-object of the analyze response.
type DetectionResult struct {
	IsAIGenerated bool    `json:"is_ai_generated"`
	Confidence    float64 `json:"confidence"`
}

// CaseListItem is one entry of GET /api/detect/cases.
type CaseListItem struct {
	CaseID        string    `json:"case_id"`
	MediaType     MediaType `json:"media_type"`
	Filename      string    `json:"filename"`
	IsAIGenerated bool      `json:"is_ai_generated"`
	Confidence    float64   `json:"confidence"`
	BlockchainTx  *string   `json:"blockchain_tx"`
	CreatedAt     string    `json:"created_at"`
}

// CaseAnalyzedEvent is published to the message broker after a case
// completes the pipeline.
type CaseAnalyzedEvent struct {
	CaseID        string    `json:"case_id"`
	MediaType     MediaType `json:"media_type"`
	MediaHash     string    `json:"media_hash"`
	IsAIGenerated bool      `json:"is_ai_generated"`
	Confidence    float64   `json:"confidence"`
	BlockchainTx  *string   `json:"blockchain_tx"`
	Timestamp     time.Time `json:"timestamp"`
}

// Sentinel errors of the store layer.
var (
	// ErrNotFound means the requested case or artifact does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate means a case with the same media fingerprint already
	// exists. The pipeline absorbs it as a dedup hit, never a failure.
	ErrDuplicate = errors.New("duplicate media fingerprint")
)

// ValidationError is a user-correctable input problem (oversized file,
// unsupported type). Maps to HTTP 400.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// NewValidationError builds a ValidationError with a formatted reason.
func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// DetectionError means the classifier or the media itself could not be
// processed. Fatal to the submission; no case row may exist after it.
type DetectionError struct {
	Cause string
}

func (e *DetectionError) Error() string { return "detection failed: " + e.Cause }

// NewDetectionError builds a DetectionError with a formatted cause.
func NewDetectionError(format string, args ...interface{}) *DetectionError {
	return &DetectionError{Cause: fmt.Sprintf(format, args...)}
}
