package detector

import (
	"context"
	"time"

	"mediaproof/models"

	"github.com/apex/log"
)

// Detector normalizes classifier output into a verdict. Construct one
// at startup and share it across requests; it holds no per-request
// state beyond the HTTP client's connection pool.
type Detector struct {
	classifier Classifier
	frames     FrameExtractor
	sampleRate int
	maxFrames  int
	timeout    time.Duration
}

// Options configures Detector behavior.
type Options struct {
	// SampleRate analyzes every Nth frame of a video.
	SampleRate int
	// MaxFrames caps the number of sampled frames per video.
	MaxFrames int
	// Timeout bounds one full detection call (image or video).
	Timeout time.Duration
}

// NewDetector creates a detector over the given classifier and frame
// extractor.
func NewDetector(classifier Classifier, frames FrameExtractor, opts Options) *Detector {
	if opts.SampleRate <= 0 {
		opts.SampleRate = 15
	}
	if opts.MaxFrames <= 0 {
		opts.MaxFrames = 40
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 120 * time.Second
	}
	return &Detector{
		classifier: classifier,
		frames:     frames,
		sampleRate: opts.SampleRate,
		maxFrames:  opts.MaxFrames,
		timeout:    opts.Timeout,
	}
}

// DetectImage classifies a single image.
func (d *Detector) DetectImage(ctx context.Context, imageData []byte) (*models.Verdict, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	results, err := d.classifier.Classify(ctx, imageData)
	if err != nil {
		return nil, models.NewDetectionError("image classification failed: %v", err)
	}

	score := round4(syntheticScore(results))
	return &models.Verdict{
		IsAIGenerated: score >= 0.5,
		Confidence:    score,
		Model:         d.classifier.Model(),
	}, nil
}

// DetectVideo samples frames from a video file and aggregates per-frame
// scores: the mean drives the verdict, the max is kept as a secondary
// signal. Zero successfully classified frames is a detection failure,
// not a zero-confidence verdict.
func (d *Detector) DetectVideo(ctx context.Context, videoPath string) (*models.Verdict, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	frames, err := d.frames.ExtractFrames(ctx, videoPath, d.sampleRate, d.maxFrames)
	if err != nil {
		return nil, models.NewDetectionError("unable to decode video: %v", err)
	}
	if len(frames) == 0 {
		return nil, models.NewDetectionError("no frames could be extracted")
	}

	var scores []float64
	for i, frame := range frames {
		results, err := d.classifier.Classify(ctx, frame)
		if err != nil {
			// One bad frame doesn't sink the video; zero good ones do.
			log.Errorf("Frame %d classification failed: %v", i, err)
			continue
		}
		scores = append(scores, syntheticScore(results))
	}

	if len(scores) == 0 {
		return nil, models.NewDetectionError("no frames processed")
	}

	sum, maxScore := 0.0, 0.0
	for _, s := range scores {
		sum += s
		if s > maxScore {
			maxScore = s
		}
	}
	avg := round4(sum / float64(len(scores)))

	return &models.Verdict{
		IsAIGenerated:  avg >= 0.5,
		Confidence:     avg,
		MaxConfidence:  round4(maxScore),
		FramesAnalyzed: len(scores),
		Model:          d.classifier.Model(),
	}, nil
}
