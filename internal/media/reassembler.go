// Package media drives the external tooling around video files: chunk
// reassembly through stream-copy concatenation, keyframe hash extraction,
// remote audio fingerprinting, and frame probing.
package media

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/marinewatch/marine/internal/domain"
	"github.com/marinewatch/marine/internal/logger"
)

// Concatenator joins an ordered list of media segments into one file.
type Concatenator interface {
	// Concat reads a concat list file (one "file '<path>'" line per segment)
	// and writes the joined output to outPath.
	Concat(ctx context.Context, listPath, outPath string) error
}

// FFmpegConcatenator shells out to ffmpeg's concat demuxer with stream copy,
// so chunks are joined without re-encoding.
type FFmpegConcatenator struct {
	Path    string
	Timeout time.Duration
}

// Concat runs ffmpeg -f concat -safe 0 -i listPath -c copy outPath.
// Parameters:
//   - ctx: cancellation context; a deadline is added from Timeout.
//   - listPath: concat demuxer list file.
//   - outPath: output video path, overwritten if present.
// Returns:
//   - error: ExternalToolError on non-zero exit or timeout.
func (f *FFmpegConcatenator) Concat(ctx context.Context, listPath, outPath string) error {
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, f.Path,
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		outPath,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return domain.NewExternalToolError("ffmpeg", fmt.Errorf("concat timed out: %w", ctx.Err()))
		}
		return domain.NewExternalToolError("ffmpeg", fmt.Errorf("concat failed: %w: %s", err, tail(out)))
	}
	return nil
}

// Reassembler turns a directory of chunk files back into one video.
type Reassembler struct {
	concat Concatenator
}

// NewReassembler creates a Reassembler using the given concatenator.
func NewReassembler(concat Concatenator) *Reassembler {
	return &Reassembler{concat: concat}
}

// Reassemble joins the chunk files in chunkDir into outPath. The chunk set
// is recounted from the filesystem and checked against total before any
// tool is invoked, so a drifted directory fails fast instead of producing a
// silently truncated video.
//
// Parameters:
//   - ctx: cancellation context.
//   - chunkDir: directory holding chunk_<index>.mp4 files.
//   - total: expected chunk count.
//   - outPath: destination for the reassembled video.
// Returns:
//   - error: ExternalToolError on filesystem drift or tool failure.
func (r *Reassembler) Reassemble(ctx context.Context, chunkDir string, total int, outPath string) error {
	start := time.Now()

	paths, err := orderedChunkPaths(chunkDir, total)
	if err != nil {
		return err
	}

	listPath := filepath.Join(chunkDir, "chunks.txt")
	var sb strings.Builder
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("failed to resolve chunk path: %w", err)
		}
		fmt.Fprintf(&sb, "file '%s'\n", abs)
	}
	if err := os.WriteFile(listPath, []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write concat list: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	if err := r.concat.Concat(ctx, listPath, outPath); err != nil {
		return err
	}

	logger.With(logger.Fields{logger.FieldCount: total}).
		WithDuration(time.Since(start).Milliseconds()).
		Info(ctx, "Reassembled %d chunks into %s", total, filepath.Base(outPath))
	return nil
}

// orderedChunkPaths lists chunkDir's chunk files sorted by numeric index and
// verifies the set is exactly {0..total-1}.
func orderedChunkPaths(chunkDir string, total int) ([]string, error) {
	entries, err := os.ReadDir(chunkDir)
	if err != nil {
		return nil, domain.NewExternalToolError("filesystem", fmt.Errorf("failed to read chunk dir: %w", err))
	}

	indices := make(map[int]string)
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "chunk_") || !strings.HasSuffix(name, ".mp4") {
			continue
		}
		idx, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "chunk_"), ".mp4"))
		if err != nil {
			continue
		}
		indices[idx] = filepath.Join(chunkDir, name)
	}

	if len(indices) != total {
		return nil, domain.NewExternalToolError("filesystem",
			fmt.Errorf("chunk count drifted: %d files on disk, %d expected", len(indices), total))
	}

	paths := make([]string, 0, total)
	for i := 0; i < total; i++ {
		p, ok := indices[i]
		if !ok {
			return nil, domain.NewExternalToolError("filesystem",
				fmt.Errorf("chunk %d missing on disk", i))
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// tail returns the last few lines of tool output for error messages.
func tail(out []byte) string {
	s := strings.TrimSpace(string(out))
	lines := strings.Split(s, "\n")
	if len(lines) > 4 {
		lines = lines[len(lines)-4:]
	}
	return strings.Join(lines, " | ")
}
