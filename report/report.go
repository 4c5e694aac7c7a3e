package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mediaproof/models"

	"github.com/apex/log"
	"github.com/go-pdf/fpdf"
)

// CaseSummary is the flattened, fully-resolved view of a case the
// compiler renders from. The pipeline owns resolving it; the compiler
// never reads the store.
type CaseSummary struct {
	CaseID         string
	Timestamp      time.Time
	MediaType      models.MediaType
	Filename       string
	MediaHash      string
	IsAIGenerated  bool
	Confidence     float64
	MaxConfidence  float64
	FramesAnalyzed int
	Model          string
	BlockchainTx   *string
	MediaPath      string
}

// Compiler renders forensic PDF reports, one artifact per case,
// overwritten on regeneration.
type Compiler struct {
	dir string
}

// NewCompiler creates the report directory if needed.
func NewCompiler(dir string) (*Compiler, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create report directory: %w", err)
	}
	return &Compiler{dir: dir}, nil
}

// Path returns the deterministic artifact location for a case.
func (c *Compiler) Path(caseID string) string {
	return filepath.Join(c.dir, caseID+"_forensic_report.pdf")
}

// Compile renders the report and returns the artifact path.
func (c *Compiler) Compile(s *CaseSummary) (string, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 30, 20)
	pdf.SetAutoPageBreak(true, 25)

	pdf.SetHeaderFunc(func() {
		pdf.SetDrawColor(52, 152, 219)
		pdf.SetLineWidth(0.7)
		pdf.Line(15, 15, 195, 15)
		pdf.SetY(8)
		pdf.SetFont("Helvetica", "B", 10)
		pdf.SetTextColor(44, 62, 80)
		pdf.CellFormat(0, 5, "MEDIAPROOF", "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 8)
		pdf.CellFormat(0, 5, "Forensic Analysis Report", "", 1, "R", false, 0, "")
		pdf.SetY(22)
	})
	pdf.SetFooterFunc(func() {
		pdf.SetY(-20)
		pdf.SetDrawColor(52, 152, 219)
		pdf.SetLineWidth(0.3)
		pdf.Line(15, pdf.GetY(), 195, pdf.GetY())
		pdf.SetFont("Helvetica", "", 8)
		pdf.SetTextColor(127, 140, 141)
		pdf.CellFormat(0, 5, fmt.Sprintf("Page %d | Generated: %s",
			pdf.PageNo(), s.Timestamp.UTC().Format("2006-01-02 15:04:05")), "", 1, "C", false, 0, "")
		pdf.CellFormat(0, 5, "CONFIDENTIAL - FOR OFFICIAL USE ONLY", "", 0, "C", false, 0, "")
	})

	pdf.AddPage()

	// Title
	pdf.SetFont("Helvetica", "B", 22)
	pdf.SetTextColor(26, 26, 26)
	pdf.CellFormat(0, 12, "MEDIAPROOF", "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.SetTextColor(102, 102, 102)
	pdf.CellFormat(0, 7, "AI Media Forensic Analysis Report", "", 1, "C", false, 0, "")
	pdf.Ln(6)

	// Verdict banner
	verdict := "AUTHENTIC CONTENT"
	if s.IsAIGenerated {
		verdict = "AI-GENERATED CONTENT DETECTED"
		pdf.SetFillColor(231, 76, 60)
	} else {
		pdf.SetFillColor(39, 174, 96)
	}
	pdf.SetFont("Helvetica", "B", 13)
	pdf.SetTextColor(255, 255, 255)
	pdf.CellFormat(0, 14, verdict, "", 1, "C", true, 0, "")
	pdf.Ln(6)

	// Case information
	c.sectionHeader(pdf, "CASE INFORMATION")
	c.fieldRow(pdf, "Case ID:", s.CaseID)
	c.fieldRow(pdf, "Analysis Date:", s.Timestamp.UTC().Format(time.RFC3339))
	c.fieldRow(pdf, "Media Type:", string(s.MediaType))
	c.fieldRow(pdf, "Filename:", s.Filename)
	c.fieldRow(pdf, "File Hash (SHA-256):", s.MediaHash[:32]+"...")
	pdf.Ln(5)

	// Detection analysis
	c.sectionHeader(pdf, "DETECTION ANALYSIS")
	c.fieldRow(pdf, "AI Detection Confidence:", fmt.Sprintf("%.2f%%", s.Confidence*100))
	model := s.Model
	if model == "" {
		model = "AI Detector"
	}
	c.fieldRow(pdf, "Detection Model:", model)
	classification := "AUTHENTIC"
	if s.IsAIGenerated {
		classification = "ARTIFICIAL"
	}
	c.fieldRow(pdf, "Classification:", classification)
	c.fieldRow(pdf, "Risk Level:", RiskLevel(s.IsAIGenerated, s.Confidence))
	if s.MediaType == models.MediaTypeVideo && s.FramesAnalyzed > 0 {
		c.fieldRow(pdf, "Frames Analyzed:", fmt.Sprintf("%d", s.FramesAnalyzed))
		c.fieldRow(pdf, "Peak Frame Confidence:", fmt.Sprintf("%.2f%%", s.MaxConfidence*100))
	}
	pdf.Ln(5)

	// Media preview for images in formats fpdf can embed
	if s.MediaType == models.MediaTypeImage && embeddableImage(s.MediaPath) {
		if _, err := os.Stat(s.MediaPath); err == nil {
			c.sectionHeader(pdf, "MEDIA PREVIEW")
			pdf.ImageOptions(s.MediaPath, 55, pdf.GetY(), 100, 0, true,
				fpdf.ImageOptions{AllowNegativePosition: false}, 0, "")
			pdf.Ln(5)
		}
	}

	// Integrity
	pdf.AddPage()
	c.sectionHeader(pdf, "TECHNICAL FORENSIC ANALYSIS")
	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetTextColor(85, 85, 85)
	pdf.CellFormat(0, 6, "Complete File Hash (SHA-256):", "", 1, "L", false, 0, "")
	pdf.SetFont("Courier", "", 8)
	pdf.SetTextColor(51, 51, 51)
	pdf.MultiCell(0, 5, s.MediaHash, "", "L", false)
	pdf.Ln(5)

	// Ledger status
	c.sectionHeader(pdf, "BLOCKCHAIN EVIDENCE INTEGRITY")
	if s.BlockchainTx != nil {
		c.fieldRow(pdf, "Status:", "Registered on ledger")
		c.fieldRow(pdf, "Transaction Hash:", *s.BlockchainTx)
	} else {
		c.fieldRow(pdf, "Status:", "Pending")
		c.fieldRow(pdf, "Transaction Hash:", "Pending ledger registration")
	}
	c.fieldRow(pdf, "Verification:", "Evidence cryptographically secured")
	pdf.Ln(5)

	// Conclusions
	c.sectionHeader(pdf, "FORENSIC CONCLUSIONS")
	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(51, 51, 51)
	pdf.MultiCell(0, 5, Conclusion(s.IsAIGenerated, s.Confidence, s.MediaType), "", "L", false)
	pdf.Ln(5)

	// Disclaimer
	c.sectionHeader(pdf, "DISCLAIMER")
	pdf.SetFont("Helvetica", "", 9)
	pdf.MultiCell(0, 5, disclaimer, "", "L", false)
	pdf.Ln(10)
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, "__________________________________________________", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "B", 9)
	pdf.CellFormat(0, 6, "Digital Forensic System Signature", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(0, 6, "Generated: "+s.Timestamp.UTC().Format("2006-01-02 15:04:05 UTC"), "", 1, "L", false, 0, "")

	path := c.Path(s.CaseID)
	if err := pdf.OutputFileAndClose(path); err != nil {
		return "", fmt.Errorf("failed to write report for case %s: %w", s.CaseID, err)
	}

	log.Infof("PDF report generated for case %s", s.CaseID)
	return path, nil
}

func (c *Compiler) sectionHeader(pdf *fpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 13)
	pdf.SetTextColor(44, 62, 80)
	pdf.SetFillColor(236, 240, 241)
	pdf.CellFormat(0, 9, title, "", 1, "L", true, 0, "")
	pdf.Ln(2)
}

func embeddableImage(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png", ".gif":
		return true
	}
	return false
}

func (c *Compiler) fieldRow(pdf *fpdf.Fpdf, label, value string) {
	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetTextColor(44, 62, 80)
	pdf.SetFillColor(236, 240, 241)
	pdf.CellFormat(55, 8, " "+label, "1", 0, "L", true, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(51, 51, 51)
	pdf.CellFormat(0, 8, " "+value, "1", 1, "L", false, 0, "")
}

// RiskLevel maps the verdict to the risk wording used in reports.
func RiskLevel(isAIGenerated bool, confidence float64) string {
	if !isAIGenerated {
		return "LOW - Authentic content"
	}
	switch {
	case confidence >= 0.8:
		return "HIGH - Strong AI signature"
	case confidence >= 0.6:
		return "MEDIUM - Likely AI-generated"
	default:
		return "LOW-MEDIUM - Uncertain"
	}
}

// Conclusion picks the narrative paragraph from a fixed decision table
// on (verdict, confidence band).
func Conclusion(isAIGenerated bool, confidence float64, mediaType models.MediaType) string {
	pct := confidence * 100
	if isAIGenerated {
		if confidence >= 0.8 {
			return fmt.Sprintf("Based on comprehensive forensic analysis, this %s exhibits strong indicators "+
				"of artificial generation with %.1f%% confidence. Multiple detection signals identified patterns "+
				"consistent with AI-generated content. The evidence suggests this media was created using "+
				"generative AI technology rather than captured through traditional photography or videography. "+
				"This finding is suitable for use in formal investigations, legal proceedings, and platform "+
				"moderation decisions.", mediaType, pct)
		}
		return fmt.Sprintf("Forensic analysis indicates this %s likely contains AI-generated elements with "+
			"%.1f%% confidence. While several indicators suggest artificial generation, the confidence level "+
			"warrants additional verification through complementary forensic methods. Investigators should "+
			"consider this as probable AI-generated content pending further analysis.", mediaType, pct)
	}
	return fmt.Sprintf("Forensic analysis suggests this %s is likely authentic with a low AI-generation "+
		"probability (%.1f%%). The content exhibits characteristics consistent with genuine capture methods. "+
		"However, sophisticated AI techniques continue to evolve, and periodic re-evaluation may be warranted "+
		"for high-stakes cases.", mediaType, pct)
}

const disclaimer = "This report is generated using automated AI detection algorithms and forensic analysis " +
	"tools. While the system provides high-confidence assessments, no automated system is 100% accurate. " +
	"This report should be used as supporting evidence in conjunction with other investigative methods. " +
	"The ledger timestamp provides cryptographic proof of when this analysis was conducted and that the " +
	"evidence has not been tampered with since registration."
