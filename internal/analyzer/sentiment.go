package analyzer

import (
	"strings"

	"github.com/patientsignal/signal-workflows/internal/models"
)

const (
	sentimentWindow = 100

	positiveWeight = 0.15
	negativeWeight = 0.2

	positiveThreshold = 0.2
	negativeThreshold = -0.2
)

var (
	positiveKeywords = []string{"추천", "좋은", "유명", "전문", "실력", "친절", "만족", "최고", "인기", "신뢰"}
	negativeKeywords = []string{"불만", "비추", "비싼", "불친절", "후회", "문제", "주의", "논란", "피해"}
)

// Sentiment scores the text around the first occurrence of hospitalName.
// Each distinct keyword found in the window counts once; substrings overlap,
// so 불친절 also counts as 친절. ok is false when the name does not occur.
func Sentiment(text, hospitalName string) (score float64, label models.SentimentLabel, ok bool) {
	window, found := contextWindow(text, hospitalName, sentimentWindow)
	if !found {
		return 0, "", false
	}

	for _, kw := range positiveKeywords {
		if strings.Contains(window, kw) {
			score += positiveWeight
		}
	}
	for _, kw := range negativeKeywords {
		if strings.Contains(window, kw) {
			score -= negativeWeight
		}
	}
	score = max(-1, min(1, score))

	return score, Label(score), true
}

// Label maps a score in [-1, 1] to its sentiment label
func Label(score float64) models.SentimentLabel {
	switch {
	case score > positiveThreshold:
		return models.SentimentPositive
	case score < negativeThreshold:
		return models.SentimentNegative
	}
	return models.SentimentNeutral
}

// contextWindow returns the lowercased text from radius runes before the first
// case-insensitive match of name to radius runes after it
func contextWindow(text, name string, radius int) (string, bool) {
	if name == "" {
		return "", false
	}
	hay := []rune(strings.ToLower(text))
	needle := []rune(strings.ToLower(name))

	idx := runeIndex(hay, needle)
	if idx < 0 {
		return "", false
	}
	start := max(0, idx-radius)
	end := min(len(hay), idx+len(needle)+radius)
	return string(hay[start:end]), true
}

func runeIndex(hay, needle []rune) int {
	if len(needle) == 0 || len(needle) > len(hay) {
		return -1
	}
outer:
	for i := 0; i+len(needle) <= len(hay); i++ {
		for j := range needle {
			if hay[i+j] != needle[j] {
				continue outer
			}
		}
		return i
	}
	return -1
}
