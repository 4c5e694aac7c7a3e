package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"mediaproof/models"
	"mediaproof/report"
)

// memStore is an in-memory CaseStore enforcing the unique fingerprint
// constraint under a mutex, like the real store's unique index.
type memStore struct {
	mu     sync.Mutex
	byID   map[string]*models.Case
	byHash map[string]*models.Case
}

func newMemStore() *memStore {
	return &memStore{byID: map[string]*models.Case{}, byHash: map[string]*models.Case{}}
}

func (s *memStore) CreateCase(ctx context.Context, c *models.Case) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byHash[c.MediaHash]; ok {
		return models.ErrDuplicate
	}
	stored := *c
	s.byID[c.ID] = &stored
	s.byHash[c.MediaHash] = &stored
	return nil
}

func (s *memStore) GetCase(ctx context.Context, caseID string) (*models.Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.byID[caseID]; ok {
		copied := *c
		return &copied, nil
	}
	return nil, models.ErrNotFound
}

func (s *memStore) GetCaseByFingerprint(ctx context.Context, mediaHash string) (*models.Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.byHash[mediaHash]; ok {
		copied := *c
		return &copied, nil
	}
	return nil, models.ErrNotFound
}

func (s *memStore) UpdateLedgerReference(ctx context.Context, caseID, txHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[caseID]
	if !ok {
		return models.ErrNotFound
	}
	c.BlockchainTx = &txHash
	return nil
}

func (s *memStore) UpdateReportPath(ctx context.Context, caseID, reportPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[caseID]
	if !ok {
		return models.ErrNotFound
	}
	c.ReportPath = &reportPath
	return nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

type fakeDetector struct {
	verdict *models.Verdict
	err     error
	mu      sync.Mutex
	calls   int
}

func (d *fakeDetector) DetectImage(ctx context.Context, imageData []byte) (*models.Verdict, error) {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()
	return d.verdict, d.err
}

func (d *fakeDetector) DetectVideo(ctx context.Context, videoPath string) (*models.Verdict, error) {
	return d.DetectImage(ctx, nil)
}

type fakeAnchorer struct {
	enabled bool
	txHash  string
	err     error
}

func (a *fakeAnchorer) Enabled() bool { return a.enabled }

func (a *fakeAnchorer) Anchor(ctx context.Context, caseID, mediaHash, reportHash string) (string, error) {
	return a.txHash, a.err
}

type fakeCompiler struct {
	err error
}

func (c *fakeCompiler) Compile(s *report.CaseSummary) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	return c.Path(s.CaseID), nil
}

func (c *fakeCompiler) Path(caseID string) string {
	return "reports/" + caseID + "_forensic_report.pdf"
}

type fakeBlobs struct {
	mu      sync.Mutex
	saved   map[string]bool
	removed int
}

func newFakeBlobs() *fakeBlobs { return &fakeBlobs{saved: map[string]bool{}} }

func (b *fakeBlobs) Save(caseID, filename string, data []byte) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	path := "uploads/" + caseID + "_" + filename
	b.saved[path] = true
	return path, nil
}

func (b *fakeBlobs) Remove(path string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.saved, path)
	b.removed++
}

func (b *fakeBlobs) liveCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.saved)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []interface{}
}

func (p *fakePublisher) Publish(message interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, message)
	return nil
}

func newOrchestrator(store CaseStore, det MediaDetector, anc EvidenceAnchorer) (*Orchestrator, *fakeBlobs) {
	blobs := newFakeBlobs()
	return NewOrchestrator(store, det, anc, &fakeCompiler{}, blobs, &fakePublisher{}, 1024), blobs
}

func syntheticVerdict() *models.Verdict {
	return &models.Verdict{IsAIGenerated: true, Confidence: 0.91, Model: "test-model"}
}

func TestAnalyzeNewCase(t *testing.T) {
	store := newMemStore()
	o, _ := newOrchestrator(store, &fakeDetector{verdict: syntheticVerdict()}, &fakeAnchorer{enabled: true, txHash: "0xabc"})

	out, err := o.Analyze(context.Background(), &Submission{Filename: "photo.jpg", Data: []byte("image bytes")})
	if err != nil {
		t.Fatalf("Analyze: unexpected error: %v", err)
	}
	if out.Duplicate {
		t.Errorf("Analyze: first submission flagged duplicate")
	}
	if out.LedgerStatus != models.BlockchainStatusAnchored {
		t.Errorf("Analyze: expected anchored status, got %s", out.LedgerStatus)
	}
	if out.Case.BlockchainTx == nil || *out.Case.BlockchainTx != "0xabc" {
		t.Errorf("Analyze: ledger reference not recorded")
	}
	if out.Case.ReportPath == nil {
		t.Errorf("Analyze: report path not recorded")
	}
	if store.count() != 1 {
		t.Errorf("Analyze: expected 1 case row, got %d", store.count())
	}
}

func TestAnalyzeSequentialDedup(t *testing.T) {
	store := newMemStore()
	det := &fakeDetector{verdict: syntheticVerdict()}
	o, _ := newOrchestrator(store, det, &fakeAnchorer{})

	data := []byte("identical bytes")
	first, err := o.Analyze(context.Background(), &Submission{Filename: "a.jpg", Data: data})
	if err != nil {
		t.Fatalf("first Analyze: %v", err)
	}
	second, err := o.Analyze(context.Background(), &Submission{Filename: "b.jpg", Data: data})
	if err != nil {
		t.Fatalf("second Analyze: %v", err)
	}

	if first.Duplicate || !second.Duplicate {
		t.Errorf("expected duplicate only on second call")
	}
	if second.Case.ID != first.Case.ID {
		t.Errorf("duplicate returned a different case")
	}
	if store.count() != 1 {
		t.Errorf("expected 1 case row, got %d", store.count())
	}
	if det.calls != 1 {
		t.Errorf("detection re-ran on duplicate: %d calls", det.calls)
	}
}

func TestAnalyzeConcurrentDedup(t *testing.T) {
	store := newMemStore()
	o, blobs := newOrchestrator(store, &fakeDetector{verdict: syntheticVerdict()}, &fakeAnchorer{})

	data := []byte("raced bytes")
	const workers = 8

	var wg sync.WaitGroup
	outcomes := make([]*Outcome, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = o.Analyze(context.Background(),
				&Submission{Filename: fmt.Sprintf("f%d.jpg", i), Data: data})
		}(i)
	}
	wg.Wait()

	fresh := 0
	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d: %v", i, errs[i])
		}
		if !outcomes[i].Duplicate {
			fresh++
		}
	}
	if fresh != 1 {
		t.Errorf("expected exactly 1 non-duplicate outcome, got %d", fresh)
	}
	if store.count() != 1 {
		t.Errorf("expected 1 case row, got %d", store.count())
	}
	if blobs.liveCount() != 1 {
		t.Errorf("expected 1 live blob, got %d", blobs.liveCount())
	}
}

func TestAnalyzeDetectionFailureLeavesNothing(t *testing.T) {
	store := newMemStore()
	o, blobs := newOrchestrator(store, &fakeDetector{err: models.NewDetectionError("corrupt media")}, &fakeAnchorer{})

	_, err := o.Analyze(context.Background(), &Submission{Filename: "photo.jpg", Data: []byte("bad")})
	var detErr *models.DetectionError
	if !errors.As(err, &detErr) {
		t.Fatalf("expected DetectionError, got %v", err)
	}
	if store.count() != 0 {
		t.Errorf("detection failure persisted %d case rows", store.count())
	}
	if blobs.liveCount() != 0 {
		t.Errorf("detection failure left %d blobs", blobs.liveCount())
	}
}

func TestAnalyzeLedgerIndependence(t *testing.T) {
	data := []byte("same media")

	run := func(anc EvidenceAnchorer) *Outcome {
		store := newMemStore()
		o, _ := newOrchestrator(store, &fakeDetector{verdict: syntheticVerdict()}, anc)
		out, err := o.Analyze(context.Background(), &Submission{Filename: "x.jpg", Data: data})
		if err != nil {
			t.Fatalf("Analyze: %v", err)
		}
		return out
	}

	disabled := run(&fakeAnchorer{enabled: false})
	failing := run(&fakeAnchorer{enabled: true, err: errors.New("rpc timeout")})
	anchored := run(&fakeAnchorer{enabled: true, txHash: "0xfeed"})

	if disabled.LedgerStatus != models.BlockchainStatusPending ||
		failing.LedgerStatus != models.BlockchainStatusPending {
		t.Errorf("expected pending status for disabled/failing anchorer")
	}
	if anchored.LedgerStatus != models.BlockchainStatusAnchored {
		t.Errorf("expected anchored status")
	}

	// Ledger outcome must not leak into the detection fields.
	for _, out := range []*Outcome{disabled, failing, anchored} {
		if !out.Case.IsAIGenerated || out.Case.DetectionScore != 0.91 {
			t.Errorf("ledger outcome changed detection fields")
		}
		if out.Duplicate {
			t.Errorf("ledger outcome changed duplicate flag")
		}
	}
}

func TestAnalyzeUploadBoundary(t *testing.T) {
	store := newMemStore()
	o, _ := newOrchestrator(store, &fakeDetector{verdict: syntheticVerdict()}, &fakeAnchorer{})

	atLimit := make([]byte, 1024)
	if _, err := o.Analyze(context.Background(), &Submission{Filename: "ok.jpg", Data: atLimit}); err != nil {
		t.Errorf("upload at limit rejected: %v", err)
	}

	overLimit := make([]byte, 1025)
	_, err := o.Analyze(context.Background(), &Submission{Filename: "big.jpg", Data: overLimit})
	var valErr *models.ValidationError
	if !errors.As(err, &valErr) {
		t.Errorf("expected ValidationError, got %v", err)
	}
	if store.count() != 1 {
		t.Errorf("oversized upload created a case row")
	}
}

func TestAnalyzeUnsupportedType(t *testing.T) {
	store := newMemStore()
	o, blobs := newOrchestrator(store, &fakeDetector{verdict: syntheticVerdict()}, &fakeAnchorer{})

	_, err := o.Analyze(context.Background(), &Submission{Filename: "notes.txt", Data: []byte("text")})
	var valErr *models.ValidationError
	if !errors.As(err, &valErr) {
		t.Errorf("expected ValidationError, got %v", err)
	}
	if store.count() != 0 || blobs.liveCount() != 0 {
		t.Errorf("unsupported type persisted state")
	}
}

func TestAnalyzeCreateConflictAbsorbedAsDuplicate(t *testing.T) {
	// Store whose lookup always misses but whose insert reports a
	// conflict: models the narrow window where another submission
	// commits between lookup and insert.
	store := newMemStore()
	winner := &models.Case{ID: "CASE-winner", MediaHash: Fingerprint([]byte("raced")), IsAIGenerated: true, DetectionScore: 0.9}
	racing := &racingStore{memStore: store, winner: winner}

	o, _ := newOrchestrator(racing, &fakeDetector{verdict: syntheticVerdict()}, &fakeAnchorer{})

	out, err := o.Analyze(context.Background(), &Submission{Filename: "r.jpg", Data: []byte("raced")})
	if err != nil {
		t.Fatalf("Analyze: conflict surfaced as error: %v", err)
	}
	if !out.Duplicate || out.Case.ID != "CASE-winner" {
		t.Errorf("expected winner returned as duplicate, got %+v", out)
	}
}

type racingStore struct {
	*memStore
	winner  *models.Case
	lookups int
}

func (s *racingStore) GetCaseByFingerprint(ctx context.Context, mediaHash string) (*models.Case, error) {
	s.lookups++
	if s.lookups == 1 {
		return nil, models.ErrNotFound
	}
	return s.winner, nil
}

func (s *racingStore) CreateCase(ctx context.Context, c *models.Case) error {
	return models.ErrDuplicate
}

func TestAnalyzeReportFailureKeepsVerdict(t *testing.T) {
	store := newMemStore()
	blobs := newFakeBlobs()
	o := NewOrchestrator(store, &fakeDetector{verdict: syntheticVerdict()}, &fakeAnchorer{},
		&fakeCompiler{err: errors.New("render failed")}, blobs, nil, 1024)

	_, err := o.Analyze(context.Background(), &Submission{Filename: "p.jpg", Data: []byte("media")})
	if !errors.Is(err, ErrReportCompile) {
		t.Fatalf("expected ErrReportCompile, got %v", err)
	}
	// The case and its verdict survive; only the artifact is missing.
	if store.count() != 1 {
		t.Fatalf("expected case row to survive report failure")
	}

	// Recovery: rebuild with a working compiler.
	var caseID string
	for id := range store.byID {
		caseID = id
	}
	recovered := NewOrchestrator(store, &fakeDetector{}, &fakeAnchorer{}, &fakeCompiler{}, blobs, nil, 1024)
	c, err := recovered.RebuildReport(context.Background(), caseID)
	if err != nil {
		t.Fatalf("RebuildReport: %v", err)
	}
	if c.ReportPath == nil {
		t.Errorf("RebuildReport: report path not recorded")
	}
}

func TestRebuildReportMissingCase(t *testing.T) {
	o, _ := newOrchestrator(newMemStore(), &fakeDetector{}, &fakeAnchorer{})
	if _, err := o.RebuildReport(context.Background(), "CASE-404"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFingerprintDeterministic(t *testing.T) {
	a := Fingerprint([]byte("abc"))
	b := Fingerprint([]byte("abc"))
	if a != b {
		t.Errorf("Fingerprint not deterministic")
	}
	if a != "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad" {
		t.Errorf("Fingerprint mismatch: %s", a)
	}
}

func TestClassifyMediaType(t *testing.T) {
	testCases := []struct {
		filename string
		expected models.MediaType
		fails    bool
	}{
		{"photo.JPG", models.MediaTypeImage, false},
		{"clip.mp4", models.MediaTypeVideo, false},
		{"archive.zip", "", true},
		{"noextension", "", true},
	}
	for _, testCase := range testCases {
		got, err := classifyMediaType(testCase.filename)
		if testCase.fails != (err != nil) {
			t.Errorf("%s: expected failure=%v, got err=%v", testCase.filename, testCase.fails, err)
		}
		if got != testCase.expected {
			t.Errorf("%s: expected %q, got %q", testCase.filename, testCase.expected, got)
		}
	}
}
