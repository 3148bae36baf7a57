package analyzer

import (
	"context"
	"regexp"
	"strings"

	"github.com/patientsignal/signal-workflows/internal/models"
)

var (
	listItemPattern = regexp.MustCompile(`(\d+)[.)]\s*([^\n]+)`)
	urlPattern      = regexp.MustCompile(`https?://[^\s)\]]+`)
)

// RegexAnalyzer is the keyword and pattern based analyzer used by default
type RegexAnalyzer struct {
	matcher       CompetitorMatcher
	legacyNeutral bool
}

type RegexOption func(*RegexAnalyzer)

// WithCompetitorMatcher swaps the competitor name heuristic
func WithCompetitorMatcher(m CompetitorMatcher) RegexOption {
	return func(a *RegexAnalyzer) {
		a.matcher = m
	}
}

// WithLegacyNeutral reports unmentioned hospitals as score 0 / NEUTRAL
// instead of NOT_APPLICABLE with no score.
func WithLegacyNeutral(enabled bool) RegexOption {
	return func(a *RegexAnalyzer) {
		a.legacyNeutral = enabled
	}
}

func NewRegexAnalyzer(opts ...RegexOption) *RegexAnalyzer {
	a := &RegexAnalyzer{matcher: SuffixMatcher{}}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *RegexAnalyzer) WithKnownCompetitors(names []string) ResponseAnalyzer {
	return a.withKnownNames(names)
}

func (a *RegexAnalyzer) withKnownNames(names []string) *RegexAnalyzer {
	scoped := *a
	scoped.matcher = KnownNamesMatcher{Names: names, Fallback: a.matcher}
	return &scoped
}

func (a *RegexAnalyzer) Analyze(_ context.Context, text, hospitalName string, platform models.Platform, model string) *models.Analysis {
	out := &models.Analysis{
		Platform:             platform,
		Model:                model,
		IsMentioned:          hospitalName != "" && containsFold(text, hospitalName),
		CitedSources:         ExtractCitations(text),
		CompetitorsMentioned: []string{},
	}

	items := ListItems(text)
	if len(items) > 0 {
		total := len(items)
		out.TotalRecommendations = &total
	}

	var competitors []string
	for i, item := range items {
		if hospitalName != "" && containsFold(item, hospitalName) {
			if out.MentionPosition == nil {
				pos := i + 1
				out.MentionPosition = &pos
			}
			continue
		}
		if name, ok := a.matcher.Match(item); ok {
			competitors = append(competitors, name)
		}
	}
	out.CompetitorsMentioned = dedupe(competitors, MaxCompetitors)

	score, label, ok := Sentiment(text, hospitalName)
	switch {
	case ok:
		out.SentimentScore = &score
		out.SentimentLabel = label
	case a.legacyNeutral:
		zero := 0.0
		out.SentimentScore = &zero
		out.SentimentLabel = models.SentimentNeutral
	default:
		out.SentimentLabel = models.SentimentNotApplicable
	}

	return out
}

// ListItems returns the text of each numbered item ("1. ..." or "2) ...") in order
func ListItems(text string) []string {
	matches := listItemPattern.FindAllStringSubmatch(text, -1)
	items := make([]string, 0, len(matches))
	for _, m := range matches {
		items = append(items, strings.TrimSpace(m[2]))
	}
	return items
}

// ExtractCitations returns distinct http(s) URLs in order of first appearance, at most MaxCitations
func ExtractCitations(text string) []string {
	return dedupe(urlPattern.FindAllString(text, -1), MaxCitations)
}
