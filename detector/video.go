package detector

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"github.com/apex/log"
)

// FrameExtractor pulls sampled frames out of a video file.
type FrameExtractor interface {
	// ExtractFrames returns the JPEG bytes of every sampleRate-th
	// frame, at most maxFrames of them.
	ExtractFrames(ctx context.Context, videoPath string, sampleRate, maxFrames int) ([][]byte, error)
}

// FFmpegExtractor shells out to ffmpeg for frame extraction. There is
// no pure-Go decoder for arbitrary video containers; ffmpeg is the
// standard tool for the job.
type FFmpegExtractor struct {
	binary string
}

// NewFFmpegExtractor builds an extractor using the given ffmpeg binary
// ("ffmpeg" resolves via PATH).
func NewFFmpegExtractor(binary string) *FFmpegExtractor {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpegExtractor{binary: binary}
}

// ExtractFrames writes sampled frames into a temp directory and reads
// them back ordered by frame index.
func (e *FFmpegExtractor) ExtractFrames(ctx context.Context, videoPath string, sampleRate, maxFrames int) ([][]byte, error) {
	tmpDir, err := os.MkdirTemp("", "frames-")
	if err != nil {
		return nil, fmt.Errorf("failed to create frame directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	outPattern := filepath.Join(tmpDir, "frame_%04d.jpg")
	selectExpr := fmt.Sprintf("select=not(mod(n\\,%d))", sampleRate)

	cmd := exec.CommandContext(ctx, e.binary,
		"-i", videoPath,
		"-vf", selectExpr,
		"-vsync", "vfr",
		"-frames:v", fmt.Sprintf("%d", maxFrames),
		"-q:v", "2",
		outPattern,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		log.Errorf("ffmpeg failed: %v: %s", err, truncate(output, 512))
		return nil, fmt.Errorf("ffmpeg frame extraction failed: %w", err)
	}

	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	frames := make([][]byte, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(tmpDir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read frame %s: %w", name, err)
		}
		frames = append(frames, data)
	}

	log.Infof("Extracted %d frames from video (sample rate %d, cap %d)", len(frames), sampleRate, maxFrames)
	return frames, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
