package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSettings() Settings {
	return Settings{
		AdmissionStrategy:   "fixed_window",
		RateLimitRequests:   100,
		RateLimitWindow:     time.Minute,
		DefaultQuotaCeiling: 1000,
		RetrievalK:          4,
		RetrievalAttempts:   2,
		MaxPromptChars:      12000,
		MaxHistoryMessages:  20,
		GenerationTimeout:   30 * time.Second,
	}
}

func TestSettingsValid(t *testing.T) {
	require.NoError(t, validSettings().Validate())

	unlimited := validSettings()
	unlimited.DefaultQuotaCeiling = -1
	assert.NoError(t, unlimited.Validate(), "negative ceiling means unlimited")

	noRetrieval := validSettings()
	noRetrieval.RetrievalK = 0
	assert.NoError(t, noRetrieval.Validate(), "retrieval can be disabled")
}

func TestSettingsRejected(t *testing.T) {
	cases := map[string]func(*Settings){
		"unknown admission strategy": func(s *Settings) { s.AdmissionStrategy = "leaky_bucket" },
		"zero rate limit":            func(s *Settings) { s.RateLimitRequests = 0 },
		"negative window":            func(s *Settings) { s.RateLimitWindow = -time.Second },
		"excessive retrieval k":      func(s *Settings) { s.RetrievalK = 51 },
		"zero retrieval attempts":    func(s *Settings) { s.RetrievalAttempts = 0 },
		"unbounded retries":          func(s *Settings) { s.RetrievalAttempts = 4 },
		"tiny prompt budget":         func(s *Settings) { s.MaxPromptChars = 100 },
		"zero history":               func(s *Settings) { s.MaxHistoryMessages = 0 },
		"zero generation timeout":    func(s *Settings) { s.GenerationTimeout = 0 },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			s := validSettings()
			mutate(&s)
			assert.Error(t, s.Validate())
		})
	}
}
