package media

import (
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/webp"
)

// ProbeDimensions reads the pixel dimensions of an image file without
// decoding the full frame. Used on the first sampled keyframe to record the
// source resolution on corpus entries.
// Parameters:
//   - path: image file path.
// Returns:
//   - int: width in pixels.
//   - int: height in pixels.
//   - error: non-nil when the file cannot be opened or decoded.
func ProbeDimensions(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}
