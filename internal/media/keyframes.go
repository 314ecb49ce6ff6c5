package media

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"time"

	"github.com/marinewatch/marine/internal/domain"
	"github.com/marinewatch/marine/internal/logger"
)

// ExtractResult carries the per-frame hashes and the probed resolution of
// the first sampled frame.
type ExtractResult struct {
	Hashes []string
	Width  int
	Height int
}

// HashExtractor produces the per-frame perceptual hash strings for a video.
type HashExtractor interface {
	// ExtractHashes returns one hex hash string per sampled keyframe, in
	// frame order. An empty result is an error at the caller.
	ExtractHashes(ctx context.Context, videoPath string) (*ExtractResult, error)
}

// FFmpegHashExtractor samples keyframes with ffmpeg and hashes them with an
// external perceptual hasher. Frames are dumped to a temp directory under
// FramesDir and removed when extraction finishes.
type FFmpegHashExtractor struct {
	FFmpegPath string
	HasherPath string
	FramesDir  string
	FPS        int
	Timeout    time.Duration
}

// ExtractHashes samples one frame per 1/FPS seconds, runs the hasher over
// the frame directory and parses one hex hash per output line. The first
// frame is probed for the source resolution.
// Parameters:
//   - ctx: cancellation context; a deadline is added from Timeout.
//   - videoPath: path of the video to fingerprint.
// Returns:
//   - *ExtractResult: per-frame hex hashes in frame order plus resolution.
//   - error: ExternalToolError on sampling or hashing failure, or
//     ValidationError when no frames were produced.
func (e *FFmpegHashExtractor) ExtractHashes(ctx context.Context, videoPath string) (*ExtractResult, error) {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	framesDir, err := os.MkdirTemp(e.FramesDir, "frames-")
	if err != nil {
		if err := os.MkdirAll(e.FramesDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create frames dir: %w", err)
		}
		framesDir, err = os.MkdirTemp(e.FramesDir, "frames-")
		if err != nil {
			return nil, fmt.Errorf("failed to create frames temp dir: %w", err)
		}
	}
	defer os.RemoveAll(framesDir)

	fps := e.FPS
	if fps <= 0 {
		fps = 1
	}
	pattern := filepath.Join(framesDir, "frame_%06d.png")
	cmd := exec.CommandContext(ctx, e.FFmpegPath,
		"-y",
		"-i", videoPath,
		"-vf", fmt.Sprintf("fps=%d", fps),
		pattern,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return nil, domain.NewExternalToolError("ffmpeg", fmt.Errorf("frame sampling timed out: %w", ctx.Err()))
		}
		return nil, domain.NewExternalToolError("ffmpeg", fmt.Errorf("frame sampling failed: %w: %s", err, tail(out)))
	}

	frames, err := listFrames(framesDir)
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, domain.NewValidationError("no keyframes extracted from %s", filepath.Base(videoPath))
	}

	hashes, err := e.hashFrames(ctx, framesDir)
	if err != nil {
		return nil, err
	}
	if len(hashes) == 0 {
		return nil, domain.NewValidationError("hasher produced no hashes for %s", filepath.Base(videoPath))
	}

	result := &ExtractResult{Hashes: hashes}
	if w, h, err := ProbeDimensions(frames[0]); err == nil {
		result.Width, result.Height = w, h
	} else {
		logger.CtxWarn(ctx, "Failed to probe frame dimensions: %v", err)
	}

	logger.With(logger.Fields{logger.FieldCount: len(hashes)}).
		Debug(ctx, "Extracted keyframe hashes from %s", filepath.Base(videoPath))
	return result, nil
}

// hashFrames invokes the hasher with the frame directory and parses one hex
// hash per stdout line, in the hasher's (frame-sorted) order.
func (e *FFmpegHashExtractor) hashFrames(ctx context.Context, framesDir string) ([]string, error) {
	cmd := exec.CommandContext(ctx, e.HasherPath, framesDir)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, domain.NewExternalToolError("hasher", fmt.Errorf("hashing timed out: %w", ctx.Err()))
		}
		return nil, domain.NewExternalToolError("hasher",
			fmt.Errorf("hashing failed: %w: %s", err, tail(stderr.Bytes())))
	}

	var hashes []string
	scanner := bufio.NewScanner(&stdout)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		hashes = append(hashes, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, domain.NewExternalToolError("hasher", fmt.Errorf("failed to read hasher output: %w", err))
	}
	return hashes, nil
}

// listFrames returns the sampled frame paths in frame order.
func listFrames(framesDir string) ([]string, error) {
	entries, err := os.ReadDir(framesDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read frames dir: %w", err)
	}
	var frames []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		frames = append(frames, filepath.Join(framesDir, entry.Name()))
	}
	sort.Strings(frames)
	return frames, nil
}
