package media

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/marinewatch/marine/internal/domain"
	"github.com/marinewatch/marine/internal/logger"
)

// AudioFingerprinter obtains an audio spectrum vector for a video.
type AudioFingerprinter interface {
	// Fingerprint returns the audio spectrum of the video, or a nil vector
	// when the service is disabled.
	Fingerprint(ctx context.Context, videoPath string) (domain.Vector, error)
}

// RemoteAudioFingerprinter calls an HTTP fingerprinting service that accepts
// a video upload and returns its audio spectrum.
type RemoteAudioFingerprinter struct {
	client *resty.Client
	dim    int
}

type audioResponse struct {
	Spectrum []float64 `json:"spectrum"`
}

// NewRemoteAudioFingerprinter creates a client for the audio service.
// Parameters:
//   - baseURL: service endpoint root.
//   - apiKey: bearer token, empty for unauthenticated deployments.
//   - dim: expected spectrum dimension.
//   - timeout: per-request timeout.
// Returns:
//   - *RemoteAudioFingerprinter: configured client.
func NewRemoteAudioFingerprinter(baseURL, apiKey string, dim int, timeout time.Duration) *RemoteAudioFingerprinter {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(2 * time.Second)
	if apiKey != "" {
		client.SetAuthToken(apiKey)
	}
	return &RemoteAudioFingerprinter{client: client, dim: dim}
}

// Fingerprint uploads the video and parses the returned spectrum.
// Parameters:
//   - ctx: cancellation context.
//   - videoPath: path of the video to fingerprint.
// Returns:
//   - domain.Vector: spectrum of the configured dimension.
//   - error: ExternalToolError on transport or service failure.
func (a *RemoteAudioFingerprinter) Fingerprint(ctx context.Context, videoPath string) (domain.Vector, error) {
	var result audioResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetFile("video", videoPath).
		SetResult(&result).
		Post("/fingerprint")
	if err != nil {
		return nil, domain.NewExternalToolError("audio-fingerprint", err)
	}
	if resp.IsError() {
		return nil, domain.NewExternalToolError("audio-fingerprint",
			fmt.Errorf("service returned status %d: %s", resp.StatusCode(), resp.String()))
	}
	if len(result.Spectrum) == 0 {
		return nil, domain.NewExternalToolError("audio-fingerprint",
			fmt.Errorf("service returned an empty spectrum"))
	}

	// Pad or truncate to the configured dimension so stored spectra stay
	// comparable across service versions.
	spectrum := make(domain.Vector, a.dim)
	copy(spectrum, result.Spectrum)

	logger.CtxDebug(ctx, "Audio spectrum obtained (%d components)", len(result.Spectrum))
	return spectrum, nil
}

// NoopAudioFingerprinter is used when the audio service is disabled. It
// returns a nil spectrum so entries simply carry no audio data.
type NoopAudioFingerprinter struct{}

// Fingerprint returns no spectrum and no error.
func (NoopAudioFingerprinter) Fingerprint(ctx context.Context, videoPath string) (domain.Vector, error) {
	return nil, nil
}
