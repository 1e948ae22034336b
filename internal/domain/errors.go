package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrJobNotFound        = errors.New("job not found")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSourceVideoExpired = errors.New("source video not found or expired")
	ErrNoArtifacts        = errors.New("model returned no artifacts")
)
