package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"mediaproof/metrics"
	"mediaproof/models"
	"mediaproof/report"

	"github.com/apex/log"
	"github.com/google/uuid"
)

// CaseStore is the durable case registry the orchestrator commits to.
type CaseStore interface {
	CreateCase(ctx context.Context, c *models.Case) error
	GetCase(ctx context.Context, caseID string) (*models.Case, error)
	GetCaseByFingerprint(ctx context.Context, mediaHash string) (*models.Case, error)
	UpdateLedgerReference(ctx context.Context, caseID, txHash string) error
	UpdateReportPath(ctx context.Context, caseID, reportPath string) error
}

// MediaDetector classifies media into a verdict.
type MediaDetector interface {
	DetectImage(ctx context.Context, imageData []byte) (*models.Verdict, error)
	DetectVideo(ctx context.Context, videoPath string) (*models.Verdict, error)
}

// EvidenceAnchorer records evidence hashes on an external ledger.
type EvidenceAnchorer interface {
	Enabled() bool
	Anchor(ctx context.Context, caseID, mediaHash, reportHash string) (string, error)
}

// ReportCompiler renders the forensic artifact for a case.
type ReportCompiler interface {
	Compile(s *report.CaseSummary) (string, error)
	Path(caseID string) string
}

// BlobStore persists raw uploads.
type BlobStore interface {
	Save(caseID, filename string, data []byte) (string, error)
	Remove(path string)
}

// EventPublisher emits case events to a message broker.
type EventPublisher interface {
	Publish(message interface{}) error
}

// Submission is one uploaded file to analyze.
type Submission struct {
	Filename string
	Data     []byte
}

// Outcome is the result of a successful pipeline run. Duplicate means
// the submission matched an existing case and nothing new was created.
type Outcome struct {
	Case         *models.Case
	Duplicate    bool
	LedgerStatus string
}

// ErrReportCompile wraps a report compilation failure. The case row and
// its verdict are already committed when this is returned; the case is
// recoverable via RebuildReport.
var ErrReportCompile = errors.New("report compilation failed")

var (
	imageExtensions = map[string]bool{
		".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".bmp": true, ".webp": true,
	}
	videoExtensions = map[string]bool{
		".mp4": true, ".avi": true, ".mov": true, ".mkv": true, ".webm": true,
	}
)

// Orchestrator sequences the case pipeline: hash, dedup, blob persist,
// detect, case commit, best-effort anchor, report, event. All
// collaborators are injected; the orchestrator holds no global state
// and is safe for concurrent use.
type Orchestrator struct {
	store          CaseStore
	detector       MediaDetector
	anchorer       EvidenceAnchorer
	compiler       ReportCompiler
	blobs          BlobStore
	publisher      EventPublisher
	maxUploadBytes int64
}

// NewOrchestrator wires the pipeline. publisher may be nil (events
// disabled).
func NewOrchestrator(store CaseStore, detector MediaDetector, anchorer EvidenceAnchorer,
	compiler ReportCompiler, blobs BlobStore, publisher EventPublisher, maxUploadBytes int64) *Orchestrator {
	return &Orchestrator{
		store:          store,
		detector:       detector,
		anchorer:       anchorer,
		compiler:       compiler,
		blobs:          blobs,
		publisher:      publisher,
		maxUploadBytes: maxUploadBytes,
	}
}

// Analyze runs one submission through the full pipeline.
func (o *Orchestrator) Analyze(ctx context.Context, sub *Submission) (*Outcome, error) {
	if int64(len(sub.Data)) > o.maxUploadBytes {
		metrics.CasesProcessedTotal.WithLabelValues(metrics.OutcomeValidation).Inc()
		return nil, models.NewValidationError("file too large: %d bytes (limit %d)", len(sub.Data), o.maxUploadBytes)
	}
	if len(sub.Data) == 0 {
		metrics.CasesProcessedTotal.WithLabelValues(metrics.OutcomeValidation).Inc()
		return nil, models.NewValidationError("empty file")
	}

	mediaType, err := classifyMediaType(sub.Filename)
	if err != nil {
		metrics.CasesProcessedTotal.WithLabelValues(metrics.OutcomeValidation).Inc()
		return nil, err
	}

	fingerprint := Fingerprint(sub.Data)

	// Dedup before any work. The unique index remains the arbiter for
	// the concurrent race below.
	if existing, err := o.store.GetCaseByFingerprint(ctx, fingerprint); err == nil {
		log.Infof("Duplicate submission for case %s", existing.ID)
		metrics.CasesProcessedTotal.WithLabelValues(metrics.OutcomeDuplicate).Inc()
		return duplicateOutcome(existing), nil
	} else if !errors.Is(err, models.ErrNotFound) {
		metrics.CasesProcessedTotal.WithLabelValues(metrics.OutcomeStorage).Inc()
		return nil, fmt.Errorf("fingerprint lookup failed: %w", err)
	}

	caseID := generateCaseID()

	blobPath, err := o.blobs.Save(caseID, sub.Filename, sub.Data)
	if err != nil {
		metrics.CasesProcessedTotal.WithLabelValues(metrics.OutcomeStorage).Inc()
		return nil, fmt.Errorf("persisting upload failed: %w", err)
	}

	verdict, err := o.detect(ctx, mediaType, sub.Data, blobPath)
	if err != nil {
		// No case row exists yet; remove the blob so a failed
		// submission leaves nothing behind.
		o.blobs.Remove(blobPath)
		metrics.CasesProcessedTotal.WithLabelValues(metrics.OutcomeDetection).Inc()
		return nil, err
	}

	c := &models.Case{
		ID:             caseID,
		MediaType:      mediaType,
		Filename:       sub.Filename,
		MediaHash:      fingerprint,
		IsAIGenerated:  verdict.IsAIGenerated,
		DetectionScore: verdict.Confidence,
		CreatedAt:      time.Now().UTC(),
	}

	if err := o.store.CreateCase(ctx, c); err != nil {
		o.blobs.Remove(blobPath)
		if errors.Is(err, models.ErrDuplicate) {
			// Concurrent submission of identical bytes won the insert
			// race. Fetch the winner and answer as a dedup hit.
			existing, lookupErr := o.store.GetCaseByFingerprint(ctx, fingerprint)
			if lookupErr != nil {
				metrics.CasesProcessedTotal.WithLabelValues(metrics.OutcomeStorage).Inc()
				return nil, fmt.Errorf("conflict lookup failed: %w", lookupErr)
			}
			metrics.CasesProcessedTotal.WithLabelValues(metrics.OutcomeDuplicate).Inc()
			return duplicateOutcome(existing), nil
		}
		metrics.CasesProcessedTotal.WithLabelValues(metrics.OutcomeStorage).Inc()
		return nil, fmt.Errorf("persisting case failed: %w", err)
	}

	// Anchoring runs after the verdict is durable and before the
	// report compiles, so the report prints the real anchor status.
	ledgerStatus := o.anchor(ctx, c)

	if err := o.compileAndPersist(ctx, c, verdict, blobPath); err != nil {
		return nil, err
	}

	o.publishEvent(c)
	metrics.CasesProcessedTotal.WithLabelValues(metrics.OutcomeNew).Inc()

	return &Outcome{Case: c, Duplicate: false, LedgerStatus: ledgerStatus}, nil
}

// RebuildReport recompiles the artifact for a case that already holds a
// verdict. Recovery entry point for a crash between case commit and
// report persistence.
func (o *Orchestrator) RebuildReport(ctx context.Context, caseID string) (*models.Case, error) {
	c, err := o.store.GetCase(ctx, caseID)
	if err != nil {
		return nil, err
	}

	verdict := &models.Verdict{
		IsAIGenerated: c.IsAIGenerated,
		Confidence:    c.DetectionScore,
	}
	if err := o.compileAndPersist(ctx, c, verdict, ""); err != nil {
		return nil, err
	}
	return c, nil
}

func (o *Orchestrator) detect(ctx context.Context, mediaType models.MediaType, data []byte, blobPath string) (*models.Verdict, error) {
	started := time.Now()
	defer func() {
		metrics.DetectionDurationSeconds.WithLabelValues(string(mediaType)).Observe(time.Since(started).Seconds())
	}()

	if mediaType == models.MediaTypeVideo {
		return o.detector.DetectVideo(ctx, blobPath)
	}
	return o.detector.DetectImage(ctx, data)
}

// anchor attempts ledger anchoring and records the reference if it
// succeeds. Never fails the pipeline; returns the status label for the
// response.
func (o *Orchestrator) anchor(ctx context.Context, c *models.Case) string {
	if o.anchorer == nil || !o.anchorer.Enabled() {
		metrics.AnchorAttemptsTotal.WithLabelValues("disabled").Inc()
		return models.BlockchainStatusPending
	}

	started := time.Now()
	txHash, err := o.anchorer.Anchor(ctx, c.ID, c.MediaHash, summaryHash(c))
	metrics.AnchorDurationSeconds.Observe(time.Since(started).Seconds())

	if err != nil {
		metrics.AnchorAttemptsTotal.WithLabelValues("failed").Inc()
		log.Errorf("Anchoring failed for case %s: %v", c.ID, err)
		return models.BlockchainStatusPending
	}

	metrics.AnchorAttemptsTotal.WithLabelValues("anchored").Inc()

	if err := o.store.UpdateLedgerReference(ctx, c.ID, txHash); err != nil {
		// The transaction is on chain either way; the reference can be
		// backfilled. Report anchored.
		log.Errorf("Recording ledger reference for case %s failed: %v", c.ID, err)
	}
	c.BlockchainTx = &txHash
	return models.BlockchainStatusAnchored
}

func (o *Orchestrator) compileAndPersist(ctx context.Context, c *models.Case, verdict *models.Verdict, mediaPath string) error {
	summary := &report.CaseSummary{
		CaseID:         c.ID,
		Timestamp:      time.Now().UTC(),
		MediaType:      c.MediaType,
		Filename:       c.Filename,
		MediaHash:      c.MediaHash,
		IsAIGenerated:  c.IsAIGenerated,
		Confidence:     c.DetectionScore,
		MaxConfidence:  verdict.MaxConfidence,
		FramesAnalyzed: verdict.FramesAnalyzed,
		Model:          verdict.Model,
		BlockchainTx:   c.BlockchainTx,
		MediaPath:      mediaPath,
	}

	reportPath, err := o.compiler.Compile(summary)
	if err != nil {
		metrics.ReportsCompiledTotal.WithLabelValues("failed").Inc()
		log.Errorf("Report compilation failed for case %s: %v", c.ID, err)
		return fmt.Errorf("%w for case %s", ErrReportCompile, c.ID)
	}
	metrics.ReportsCompiledTotal.WithLabelValues("ok").Inc()

	if err := o.store.UpdateReportPath(ctx, c.ID, reportPath); err != nil {
		return fmt.Errorf("persisting report path failed: %w", err)
	}
	c.ReportPath = &reportPath
	return nil
}

func (o *Orchestrator) publishEvent(c *models.Case) {
	if o.publisher == nil {
		return
	}
	event := models.CaseAnalyzedEvent{
		CaseID:        c.ID,
		MediaType:     c.MediaType,
		MediaHash:     c.MediaHash,
		IsAIGenerated: c.IsAIGenerated,
		Confidence:    c.DetectionScore,
		BlockchainTx:  c.BlockchainTx,
		Timestamp:     time.Now().UTC(),
	}
	if err := o.publisher.Publish(event); err != nil {
		log.Errorf("Publishing case event for %s failed: %v", c.ID, err)
	}
}

func duplicateOutcome(c *models.Case) *Outcome {
	status := models.BlockchainStatusPending
	if c.BlockchainTx != nil {
		status = models.BlockchainStatusAnchored
	}
	return &Outcome{Case: c, Duplicate: true, LedgerStatus: status}
}

// Fingerprint computes the content-addressed identity of raw media
// bytes.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// summaryHash fingerprints the resolved verdict for anchoring.
// Anchoring runs before the report artifact exists (the report prints
// the anchor status), so the anchored report hash covers the canonical
// summary the report is compiled from.
func summaryHash(c *models.Case) string {
	payload := fmt.Sprintf("%s|%s|%t|%.4f", c.ID, c.MediaHash, c.IsAIGenerated, c.DetectionScore)
	return Fingerprint([]byte(payload))
}

func classifyMediaType(filename string) (models.MediaType, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch {
	case imageExtensions[ext]:
		return models.MediaTypeImage, nil
	case videoExtensions[ext]:
		return models.MediaTypeVideo, nil
	default:
		return "", models.NewValidationError("unsupported file type: %s", ext)
	}
}

func generateCaseID() string {
	return fmt.Sprintf("CASE-%s-%s",
		time.Now().UTC().Format("20060102150405"),
		uuid.NewString()[:8])
}
