package analyzer

import "regexp"

// CompetitorMatcher extracts a competitor name from one list item
type CompetitorMatcher interface {
	Match(item string) (string, bool)
}

var facilitySuffixPattern = regexp.MustCompile(`([가-힣]+(?:치과|병원|의원|클리닉))`)

// SuffixMatcher takes the first Hangul run ending in a facility suffix
// (치과, 병원, 의원, 클리닉). It misses names written in Latin script.
type SuffixMatcher struct{}

func (SuffixMatcher) Match(item string) (string, bool) {
	m := facilitySuffixPattern.FindStringSubmatch(item)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// KnownNamesMatcher matches tracked competitor names first and falls back to Fallback
type KnownNamesMatcher struct {
	Names    []string
	Fallback CompetitorMatcher
}

func (k KnownNamesMatcher) Match(item string) (string, bool) {
	for _, name := range k.Names {
		if name != "" && containsFold(item, name) {
			return name, true
		}
	}
	if k.Fallback != nil {
		return k.Fallback.Match(item)
	}
	return "", false
}
