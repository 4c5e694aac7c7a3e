package detector

import (
	"context"
	"errors"
	"math"
	"testing"
)

type fakeClassifier struct {
	// results is consumed one call at a time; errs marks calls that
	// fail instead.
	results [][]LabelScore
	errs    []bool
	calls   int
}

func (f *fakeClassifier) Classify(ctx context.Context, imageData []byte) ([]LabelScore, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] {
		return nil, errors.New("classifier unavailable")
	}
	if i >= len(f.results) {
		return nil, errors.New("no more fixtures")
	}
	return f.results[i], nil
}

func (f *fakeClassifier) Model() string { return "test-model" }

type fakeExtractor struct {
	frames [][]byte
	err    error
}

func (f *fakeExtractor) ExtractFrames(ctx context.Context, videoPath string, sampleRate, maxFrames int) ([][]byte, error) {
	return f.frames, f.err
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestSyntheticScore(t *testing.T) {
	testCases := []struct {
		name     string
		results  []LabelScore
		expected float64
	}{
		{
			name:     "Fake label dominates",
			results:  []LabelScore{{"fake", 0.9}, {"real", 0.05}},
			expected: 0.9,
		},
		{
			name:     "Authentic-only model inverts",
			results:  []LabelScore{{"human", 0.7}},
			expected: 0.3,
		},
		{
			name:     "Max within synthetic bucket",
			results:  []LabelScore{{"ai generated", 0.4}, {"artificial", 0.6}},
			expected: 0.6,
		},
		{
			name:     "Case-insensitive labels",
			results:  []LabelScore{{"FAKE", 0.8}},
			expected: 0.8,
		},
		{
			name:     "Unknown labels only",
			results:  []LabelScore{{"landscape", 0.99}},
			expected: 0.0,
		},
	}

	for _, testCase := range testCases {
		got := syntheticScore(testCase.results)
		if !almostEqual(got, testCase.expected) {
			t.Errorf("%s: expected %v, got %v", testCase.name, testCase.expected, got)
		}
	}
}

func TestDetectImage(t *testing.T) {
	c := &fakeClassifier{results: [][]LabelScore{{{"fake", 0.9}, {"real", 0.05}}}}
	d := NewDetector(c, &fakeExtractor{}, Options{})

	v, err := d.DetectImage(context.Background(), []byte("img"))
	if err != nil {
		t.Fatalf("DetectImage: unexpected error: %v", err)
	}
	if !v.IsAIGenerated || !almostEqual(v.Confidence, 0.9) {
		t.Errorf("DetectImage: expected synthetic 0.9, got %v %v", v.IsAIGenerated, v.Confidence)
	}
	if v.Model != "test-model" {
		t.Errorf("DetectImage: expected model propagated, got %q", v.Model)
	}
}

func TestDetectImageClassifierFailure(t *testing.T) {
	c := &fakeClassifier{errs: []bool{true}}
	d := NewDetector(c, &fakeExtractor{}, Options{})

	if _, err := d.DetectImage(context.Background(), []byte("img")); err == nil {
		t.Errorf("DetectImage: expected detection error")
	}
}

func TestDetectVideoAggregation(t *testing.T) {
	c := &fakeClassifier{results: [][]LabelScore{
		{{"fake", 0.9}},
		{{"fake", 0.2}},
		{{"fake", 0.95}},
	}}
	d := NewDetector(c, &fakeExtractor{frames: [][]byte{{1}, {2}, {3}}}, Options{})

	v, err := d.DetectVideo(context.Background(), "clip.mp4")
	if err != nil {
		t.Fatalf("DetectVideo: unexpected error: %v", err)
	}
	// mean(0.9, 0.2, 0.95) = 0.6833..., rounded to 4 decimals
	if !almostEqual(v.Confidence, 0.6833) {
		t.Errorf("DetectVideo: expected mean 0.6833, got %v", v.Confidence)
	}
	if !v.IsAIGenerated {
		t.Errorf("DetectVideo: expected synthetic at mean >= 0.5")
	}
	if !almostEqual(v.MaxConfidence, 0.95) {
		t.Errorf("DetectVideo: expected max 0.95, got %v", v.MaxConfidence)
	}
	if v.FramesAnalyzed != 3 {
		t.Errorf("DetectVideo: expected 3 frames analyzed, got %d", v.FramesAnalyzed)
	}
}

func TestDetectVideoSkipsBadFrames(t *testing.T) {
	c := &fakeClassifier{
		results: [][]LabelScore{nil, {{"fake", 0.8}}},
		errs:    []bool{true, false},
	}
	d := NewDetector(c, &fakeExtractor{frames: [][]byte{{1}, {2}}}, Options{})

	v, err := d.DetectVideo(context.Background(), "clip.mp4")
	if err != nil {
		t.Fatalf("DetectVideo: unexpected error: %v", err)
	}
	if v.FramesAnalyzed != 1 || !almostEqual(v.Confidence, 0.8) {
		t.Errorf("DetectVideo: expected one good frame at 0.8, got %d %v", v.FramesAnalyzed, v.Confidence)
	}
}

func TestDetectVideoNoFrames(t *testing.T) {
	d := NewDetector(&fakeClassifier{}, &fakeExtractor{frames: nil}, Options{})
	if _, err := d.DetectVideo(context.Background(), "clip.mp4"); err == nil {
		t.Errorf("DetectVideo: expected failure on zero frames")
	}

	// All frames failing classification is a failure too, never a
	// zero-confidence verdict.
	c := &fakeClassifier{errs: []bool{true, true}}
	d = NewDetector(c, &fakeExtractor{frames: [][]byte{{1}, {2}}}, Options{})
	if _, err := d.DetectVideo(context.Background(), "clip.mp4"); err == nil {
		t.Errorf("DetectVideo: expected failure when all frames fail")
	}
}
