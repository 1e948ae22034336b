// Package genai is a lightweight REST client for the Gemini and Veo APIs.
// It covers exactly the surface the generation services need: multi-turn
// image chats, long-running video operations with polling, file download and
// plain text generation. Any call may fail transiently or hang; callers are
// expected to supply timeouts via ctx and wrap invocations in the retry
// combinator.
package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"server/internal/infra"
)

// Options controls how the client is configured.
type Options struct {
	APIKey      string
	BaseURL     string
	ImageModel  string
	VideoModel  string
	PromptModel string
	HTTPClient  *http.Client
	Logger      *infra.Logger
}

// Client issues requests against the generative language API.
type Client struct {
	apiKey      string
	baseURL     string
	imageModel  string
	videoModel  string
	promptModel string
	httpClient  *http.Client
	logger      *infra.Logger
}

// NewClient constructs a client with sane defaults. Callers may provide a nil
// HTTP client; a reusable one without a global timeout is created so that
// per-call contexts stay in charge of deadlines.
func NewClient(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}

	imageModel := opts.ImageModel
	if imageModel == "" {
		imageModel = "gemini-3-pro-image-preview"
	}
	videoModel := opts.VideoModel
	if videoModel == "" {
		videoModel = "veo-3.1-generate-preview"
	}
	promptModel := opts.PromptModel
	if promptModel == "" {
		promptModel = "gemini-3-pro-preview"
	}

	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}

	return &Client{
		apiKey:      strings.TrimSpace(opts.APIKey),
		baseURL:     baseURL,
		imageModel:  imageModel,
		videoModel:  videoModel,
		promptModel: promptModel,
		httpClient:  httpClient,
		logger:      logger,
	}, nil
}

// ImageModel returns the configured image model identifier.
func (c *Client) ImageModel() string { return c.imageModel }

// VideoModel returns the configured video model identifier.
func (c *Client) VideoModel() string { return c.videoModel }

// invoke performs one API call and decodes the response into out. A nil
// payload issues a GET.
func (c *Client) invoke(ctx context.Context, path string, payload any, out any) error {
	endpoint := c.baseURL + "/" + strings.TrimLeft(path, "/")

	var (
		req *http.Request
		err error
	)
	if payload == nil {
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	} else {
		var body []byte
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	}
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	q := req.URL.Query()
	if c.apiKey != "" {
		q.Set("key", c.apiKey)
	}
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("invoke gemini: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr geminiErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("gemini status %d: %s", resp.StatusCode, apiErr.Error.Message)
		}
		data, _ := io.ReadAll(resp.Body)
		if len(data) > 0 {
			return fmt.Errorf("gemini status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		}
		return fmt.Errorf("gemini status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode gemini response: %w", err)
	}
	return nil
}

// GenerateText runs a single-shot text generation against the prompt model.
func (c *Client) GenerateText(ctx context.Context, system, prompt string) (string, error) {
	payload := geminiGenerateContentRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: prompt}},
		}},
	}
	if system != "" {
		payload.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: system}}}
	}

	var response geminiGenerateContentResponse
	path := fmt.Sprintf("models/%s:generateContent", url.PathEscape(c.promptModel))
	if err := c.invoke(ctx, path, payload, &response); err != nil {
		return "", err
	}

	var b strings.Builder
	for _, candidate := range response.Candidates {
		for _, part := range candidate.Content.Parts {
			b.WriteString(part.Text)
		}
		break
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", fmt.Errorf("no text content returned")
	}
	return text, nil
}

// DownloadFile fetches raw bytes for an operation artifact. The URI may be
// absolute or relative to the API base.
func (c *Client) DownloadFile(ctx context.Context, uri string) ([]byte, error) {
	target := uri
	if !strings.HasPrefix(uri, "http://") && !strings.HasPrefix(uri, "https://") {
		target = c.baseURL + "/" + strings.TrimLeft(uri, "/")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create download request: %w", err)
	}
	if c.apiKey != "" {
		q := req.URL.Query()
		q.Set("key", c.apiKey)
		req.URL.RawQuery = q.Encode()
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("download file status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	blob, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return blob, nil
}

func encodeBlob(b *Blob) *geminiInlineData {
	if b == nil || len(b.Data) == 0 {
		return nil
	}
	mime := b.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	return &geminiInlineData{
		MimeType: mime,
		Data:     base64.StdEncoding.EncodeToString(b.Data),
	}
}

func decodeInline(part geminiPart) (*Blob, error) {
	if part.InlineData == nil || part.InlineData.Data == "" {
		return nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
	if err != nil {
		return nil, fmt.Errorf("decode inline data: %w", err)
	}
	return &Blob{MIMEType: part.InlineData.MimeType, Data: data}, nil
}
