package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"mediaproof/models"
	"mediaproof/pipeline"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
)

// Pipeline is the orchestrator surface the HTTP layer needs.
type Pipeline interface {
	Analyze(ctx context.Context, sub *pipeline.Submission) (*pipeline.Outcome, error)
	RebuildReport(ctx context.Context, caseID string) (*models.Case, error)
}

// CaseReader is the read-only store surface for case queries.
type CaseReader interface {
	GetCase(ctx context.Context, caseID string) (*models.Case, error)
	ListRecentCases(ctx context.Context, limit int) ([]models.Case, error)
}

// Handlers holds all HTTP handlers
type Handlers struct {
	pipeline       Pipeline
	cases          CaseReader
	maxUploadBytes int64
}

// NewHandlers creates a new handlers instance
func NewHandlers(p Pipeline, cases CaseReader, maxUploadBytes int64) *Handlers {
	return &Handlers{
		pipeline:       p,
		cases:          cases,
		maxUploadBytes: maxUploadBytes,
	}
}

// AnalyzeMedia accepts a multipart upload and runs the case pipeline.
func (h *Handlers) AnalyzeMedia(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "Missing file upload",
		})
		return
	}

	if fileHeader.Size > h.maxUploadBytes {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "File too large",
		})
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "Unreadable file upload",
		})
		return
	}
	defer f.Close()

	// LimitReader guards against a lying Content-Length; one byte over
	// the limit is a validation failure.
	data, err := io.ReadAll(io.LimitReader(f, h.maxUploadBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "Unreadable file upload",
		})
		return
	}
	if int64(len(data)) > h.maxUploadBytes {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "File too large",
		})
		return
	}

	out, err := h.pipeline.Analyze(c.Request.Context(), &pipeline.Submission{
		Filename: fileHeader.Filename,
		Data:     data,
	})
	if err != nil {
		h.analyzeError(c, err)
		return
	}

	c.JSON(http.StatusOK, analyzeResponse(out))
}

func (h *Handlers) analyzeError(c *gin.Context, err error) {
	var valErr *models.ValidationError
	if errors.As(err, &valErr) {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": valErr.Reason,
		})
		return
	}

	var detErr *models.DetectionError
	if errors.As(err, &detErr) {
		// The cause can mention internal endpoints; log it, don't
		// return it.
		log.Errorf("Detection failed: %v", detErr)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "AI detection failed",
		})
		return
	}

	if errors.Is(err, pipeline.ErrReportCompile) {
		log.Errorf("Report compilation failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "Report generation failed",
		})
		return
	}

	log.Errorf("Analyze pipeline failed: %v", err)
	c.JSON(http.StatusInternalServerError, gin.H{
		"success": false,
		"message": "Internal error",
	})
}

func analyzeResponse(out *pipeline.Outcome) models.AnalyzeResponse {
	status := out.LedgerStatus
	if status == "" {
		status = models.BlockchainStatusPending
	}
	return models.AnalyzeResponse{
		Success:   true,
		Duplicate: out.Duplicate,
		CaseID:    out.Case.ID,
		MediaType: out.Case.MediaType,
		Filename:  out.Case.Filename,
		Detection: models.DetectionResult{
			IsAIGenerated: out.Case.IsAIGenerated,
			Confidence:    out.Case.DetectionScore,
		},
		Timestamp:    out.Case.CreatedAt.UTC().Format(time.RFC3339),
		BlockchainTx: out.Case.BlockchainTx,
		BlockchainSt: status,
	}
}

// GetCase returns one case by id.
func (h *Handlers) GetCase(c *gin.Context) {
	caseID := c.Param("case_id")

	found, err := h.cases.GetCase(c.Request.Context(), caseID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"message": "Case not found",
			})
			return
		}
		log.Errorf("Failed to get case %s: %v", caseID, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "Failed to get case",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"case":    caseListItem(found),
	})
}

// ListCases returns recent cases, newest first.
func (h *Handlers) ListCases(c *gin.Context) {
	limit := 100
	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"message": "Invalid limit",
			})
			return
		}
		limit = parsed
	}

	cases, err := h.cases.ListRecentCases(c.Request.Context(), limit)
	if err != nil {
		log.Errorf("Failed to list cases: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "Failed to list cases",
		})
		return
	}

	items := make([]models.CaseListItem, 0, len(cases))
	for i := range cases {
		items = append(items, caseListItem(&cases[i]))
	}
	c.JSON(http.StatusOK, gin.H{"cases": items})
}

func caseListItem(c *models.Case) models.CaseListItem {
	return models.CaseListItem{
		CaseID:        c.ID,
		MediaType:     c.MediaType,
		Filename:      c.Filename,
		IsAIGenerated: c.IsAIGenerated,
		Confidence:    c.DetectionScore,
		BlockchainTx:  c.BlockchainTx,
		CreatedAt:     c.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// DownloadReport streams the PDF artifact of a case.
func (h *Handlers) DownloadReport(c *gin.Context) {
	caseID := c.Param("case_id")

	found, err := h.cases.GetCase(c.Request.Context(), caseID)
	if err != nil || found.ReportPath == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"message": "Report not found",
		})
		return
	}

	if _, err := os.Stat(*found.ReportPath); err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"message": "Report not found",
		})
		return
	}

	c.FileAttachment(*found.ReportPath, caseID+"_forensic_report.pdf")
}

// RebuildReport recompiles the artifact for a case that has a verdict
// but lost (or never produced) its report.
func (h *Handlers) RebuildReport(c *gin.Context) {
	caseID := c.Param("case_id")

	rebuilt, err := h.pipeline.RebuildReport(c.Request.Context(), caseID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"message": "Case not found",
			})
			return
		}
		log.Errorf("Failed to rebuild report for case %s: %v", caseID, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "Report generation failed",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"case_id": rebuilt.ID,
	})
}
