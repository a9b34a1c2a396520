package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Settings are the pipeline tuning knobs. They are validated once at the
// boundary; a malformed value fails startup instead of being silently
// defaulted deep in the pipeline.
type Settings struct {
	// AdmissionStrategy selects the admission limiter: fixed_window
	// counts requests per aligned window, token_bucket smooths bursts.
	AdmissionStrategy string `validate:"required,oneof=fixed_window token_bucket"`

	// RateLimitRequests is the per-identity admission limit per window.
	RateLimitRequests int `validate:"required,gt=0"`

	// RateLimitWindow is the admission window length.
	RateLimitWindow time.Duration `validate:"required,gt=0"`

	// DefaultQuotaCeiling is applied to tenants provisioned without an
	// explicit ceiling. Negative means unlimited.
	DefaultQuotaCeiling int64 `validate:"required"`

	// RetrievalK is the number of document chunks fetched per turn.
	RetrievalK int `validate:"gte=0,lte=50"`

	// RetrievalAttempts bounds retries against the document index.
	// Retrieval is read-only and idempotent, so a small retry count is
	// safe; generation calls are never retried.
	RetrievalAttempts int `validate:"gte=1,lte=3"`

	// MaxPromptChars bounds the assembled prompt.
	MaxPromptChars int `validate:"required,gte=256"`

	// MaxHistoryMessages bounds the history window offered to the
	// assembler.
	MaxHistoryMessages int `validate:"required,gt=0,lte=200"`

	// GenerationTimeout bounds a single generation backend call.
	GenerationTimeout time.Duration `validate:"required,gt=0"`
}

var settingsValidate = validator.New()

// Validate checks every field eagerly and reports the first violation.
func (s Settings) Validate() error {
	if err := settingsValidate.Struct(s); err != nil {
		return fmt.Errorf("invalid pipeline settings: %w", err)
	}
	return nil
}
