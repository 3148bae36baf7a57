// internal/analyzer/analyzer.go
package analyzer

import (
	"context"
	"strings"

	"github.com/patientsignal/signal-workflows/internal/config"
	"github.com/patientsignal/signal-workflows/internal/models"
)

const (
	ModeRegex      = "regex"
	ModeStructured = "structured"

	// MaxCitations and MaxCompetitors cap the lists stored on a result
	MaxCitations   = 10
	MaxCompetitors = 10
)

// ResponseAnalyzer turns raw platform text into an Analysis for one hospital.
// Implementations must not fail: a response that cannot be understood is
// reported as not mentioned.
type ResponseAnalyzer interface {
	Analyze(ctx context.Context, text, hospitalName string, platform models.Platform, model string) *models.Analysis
}

// CompetitorAware analyzers can be narrowed to one hospital's tracked
// competitors so those names are reported even without a facility suffix.
type CompetitorAware interface {
	WithKnownCompetitors(names []string) ResponseAnalyzer
}

// ForHospital returns a scoped copy when a supports it and names is non-empty
func ForHospital(a ResponseAnalyzer, names []string) ResponseAnalyzer {
	if ca, ok := a.(CompetitorAware); ok && len(names) > 0 {
		return ca.WithKnownCompetitors(names)
	}
	return a
}

// New picks the analyzer for cfg.Analyzer.Mode. The structured analyzer is only
// used when an OpenAI key is configured; otherwise the regex analyzer is returned.
func New(cfg *config.Config) ResponseAnalyzer {
	regex := NewRegexAnalyzer(WithLegacyNeutral(cfg.Analyzer.LegacyNeutral))
	if strings.EqualFold(cfg.Analyzer.Mode, ModeStructured) && cfg.Platforms.ChatGPT.APIKey != "" {
		return NewStructuredAnalyzer(cfg, regex)
	}
	return regex
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// dedupe keeps the first occurrence of each value, at most limit values
func dedupe(values []string, limit int) []string {
	out := make([]string, 0, min(len(values), limit))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
		if len(out) == limit {
			break
		}
	}
	return out
}
