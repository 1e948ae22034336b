package genai

import (
	"context"
	"fmt"
	"net/url"
	"sync"
)

// Chat is a multi-turn image generation conversation. The message history is
// kept client-side and replayed on every exchange, which is what makes the
// handle opaque: holders only ever Send through it or drop it.
type Chat struct {
	client *Client
	cfg    GenerationConfig

	mu      sync.Mutex
	history []geminiContent
}

// StartChat opens a new conversation against the image model. No network
// call happens until the first Send.
func (c *Client) StartChat(cfg GenerationConfig) *Chat {
	return &Chat{client: c, cfg: cfg}
}

// Send delivers one user turn and returns the model's text and inline images.
// History is only advanced on success, so a failed exchange can be retried
// without duplicating turns.
func (ch *Chat) Send(ctx context.Context, parts []Part) (*Reply, error) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	userParts := make([]geminiPart, 0, len(parts))
	for _, p := range parts {
		gp := geminiPart{Text: p.Text}
		if inline := encodeBlob(p.Inline); inline != nil {
			gp.InlineData = inline
		}
		if gp.Text == "" && gp.InlineData == nil {
			continue
		}
		userParts = append(userParts, gp)
	}
	if len(userParts) == 0 {
		return nil, fmt.Errorf("empty message")
	}
	userTurn := geminiContent{Role: "user", Parts: userParts}

	contents := make([]geminiContent, 0, len(ch.history)+1)
	contents = append(contents, ch.history...)
	contents = append(contents, userTurn)

	payload := geminiGenerateContentRequest{
		Contents: contents,
		GenerationConfig: &geminiGenerationConfig{
			ResponseModalities: []string{"TEXT", "IMAGE"},
			ImageConfig: &geminiImageConfig{
				AspectRatio: ch.cfg.AspectRatio,
				ImageSize:   ch.cfg.Resolution,
			},
		},
	}
	if ch.cfg.UseGoogleSearch {
		payload.Tools = []geminiTool{{GoogleSearch: &geminiGoogleSearch{}}}
	}

	var response geminiGenerateContentResponse
	path := fmt.Sprintf("models/%s:generateContent", url.PathEscape(ch.client.imageModel))
	if err := ch.client.invoke(ctx, path, payload, &response); err != nil {
		return nil, err
	}

	reply := &Reply{}
	var modelTurn geminiContent
	for _, candidate := range response.Candidates {
		modelTurn = candidate.Content
		for _, part := range candidate.Content.Parts {
			if part.Text != "" {
				reply.Text += part.Text
			}
			blob, err := decodeInline(part)
			if err != nil {
				return nil, err
			}
			if blob != nil {
				reply.Images = append(reply.Images, *blob)
			}
		}
		break
	}

	ch.history = append(ch.history, userTurn)
	if len(modelTurn.Parts) > 0 {
		modelTurn.Role = "model"
		ch.history = append(ch.history, modelTurn)
	}

	ch.client.logger.Debug().
		Str("model", ch.client.imageModel).
		Int("images", len(reply.Images)).
		Msg("genai: chat exchange completed")

	return reply, nil
}
