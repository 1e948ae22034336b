package genai

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
)

// GenerateVideos starts a long-running video generation. Exactly one of the
// optional image (first frame) or source (extension input) may be supplied.
func (c *Client) GenerateVideos(ctx context.Context, prompt string, image *Blob, source *VideoRef, cfg VideoConfig) (*Operation, error) {
	instance := videoInstance{Prompt: prompt}
	if image != nil && len(image.Data) > 0 {
		instance.Image = &videoImage{
			BytesBase64Encoded: base64.StdEncoding.EncodeToString(image.Data),
			MimeType:           blobMime(image),
		}
	}
	if cfg.LastFrame != nil && len(cfg.LastFrame.Data) > 0 {
		instance.LastFrame = &videoImage{
			BytesBase64Encoded: base64.StdEncoding.EncodeToString(cfg.LastFrame.Data),
			MimeType:           blobMime(cfg.LastFrame),
		}
	}
	if source != nil && source.URI != "" {
		instance.Video = &videoSource{URI: source.URI}
	}

	sampleCount := cfg.SampleCount
	if sampleCount <= 0 {
		sampleCount = 1
	}
	payload := predictLongRunningRequest{
		Instances: []videoInstance{instance},
		Parameters: &videoParameters{
			AspectRatio:     cfg.AspectRatio,
			Resolution:      cfg.Resolution,
			DurationSeconds: cfg.DurationSeconds,
			SampleCount:     sampleCount,
		},
	}

	var response operationResponse
	path := fmt.Sprintf("models/%s:predictLongRunning", url.PathEscape(c.videoModel))
	if err := c.invoke(ctx, path, payload, &response); err != nil {
		return nil, err
	}
	if response.Name == "" {
		return nil, fmt.Errorf("no operation handle returned")
	}

	c.logger.Debug().
		Str("model", c.videoModel).
		Str("operation", response.Name).
		Msg("genai: video operation started")

	return operationFromResponse(&response), nil
}

// PollOperation fetches the current state of a long-running operation. It is
// safe to call repeatedly, including after the operation is done.
func (c *Client) PollOperation(ctx context.Context, op *Operation) (*Operation, error) {
	if op == nil || op.Name == "" {
		return nil, fmt.Errorf("missing operation handle")
	}

	var response operationResponse
	if err := c.invoke(ctx, op.Name, nil, &response); err != nil {
		return nil, err
	}
	if response.Name == "" {
		response.Name = op.Name
	}
	return operationFromResponse(&response), nil
}

// DownloadVideo retrieves the artifact bytes behind a video reference.
func (c *Client) DownloadVideo(ctx context.Context, ref VideoRef) ([]byte, error) {
	if ref.URI == "" {
		return nil, fmt.Errorf("missing video uri")
	}
	return c.DownloadFile(ctx, ref.URI)
}

func operationFromResponse(resp *operationResponse) *Operation {
	op := &Operation{Name: resp.Name, Done: resp.Done}
	if resp.Error != nil {
		op.ErrMessage = resp.Error.Message
	}
	if resp.Response != nil && resp.Response.GenerateVideoResponse != nil {
		for _, sample := range resp.Response.GenerateVideoResponse.GeneratedSamples {
			if sample.Video.URI != "" {
				op.Videos = append(op.Videos, VideoRef{URI: sample.Video.URI})
			}
		}
	}
	return op
}

func blobMime(b *Blob) string {
	if b.MIMEType != "" {
		return b.MIMEType
	}
	return "image/png"
}
