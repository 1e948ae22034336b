package service

import (
	"context"
	"strings"
	"time"

	"server/internal/infra"
	"server/internal/retry"
)

// TextBackend is the slice of the API client prompt enhancement needs.
type TextBackend interface {
	GenerateText(ctx context.Context, system, prompt string) (string, error)
}

const imageEnhanceSystem = `You are an expert at optimizing prompts for AI image generation.
Expand the user's short description into a detailed prompt suitable for an image model.

Rules:
1. Preserve the original intent.
2. Add visual detail: lighting, color, composition, style.
3. Output in English.
4. Keep it under 200 words.
5. Do not add negative prompts.
6. Be concrete and vivid.

Output only the optimized prompt, with no explanation or preamble.`

const videoEnhanceSystem = `You are an expert at optimizing prompts for AI video generation.
Expand the user's short description into a detailed prompt suitable for a video model.

Rules:
1. Preserve the original intent.
2. Describe motion: direction, speed, camera movement.
3. Describe the scene: environment, lighting, atmosphere.
4. Output in English.
5. Keep it under 200 words.
6. Give the description a temporal flow suited to video.

Output only the optimized prompt, with no explanation or preamble.`

// PromptService expands terse user prompts into detailed generation prompts.
type PromptService struct {
	backend  TextBackend
	retryCfg retry.Config
	logger   infra.Logger
}

// NewPromptService wires a prompt enhancer. Enhancement is cheap to repeat,
// so it retries less aggressively than the generation workflows.
func NewPromptService(backend TextBackend, logger infra.Logger) *PromptService {
	return &PromptService{
		backend:  backend,
		retryCfg: retry.Config{Attempts: 2, Delay: time.Second, Backoff: 2},
		logger:   logger,
	}
}

// Enhance rewrites prompt for the given target ("image" or "video"; anything
// else is treated as video) and returns the expanded text.
func (s *PromptService) Enhance(ctx context.Context, prompt, targetType string) (string, error) {
	system := videoEnhanceSystem
	if targetType == "image" {
		system = imageEnhanceSystem
	}

	var enhanced string
	err := retry.Do(ctx, s.retryCfg, func(ctx context.Context) error {
		text, err := s.backend.GenerateText(ctx, system, "Optimize this prompt:\n\n"+prompt)
		if err != nil {
			return err
		}
		enhanced = strings.TrimSpace(text)
		return nil
	})
	if err != nil {
		return "", err
	}
	s.logger.Info().Int("length", len(enhanced)).Msg("prompt: enhancement completed")
	return enhanced, nil
}
