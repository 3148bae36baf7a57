// internal/scoring/scoring.go
package scoring

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/patientsignal/signal-workflows/internal/config"
	"github.com/patientsignal/signal-workflows/internal/models"
)

// Weights combine the four component scores into the overall score
type Weights struct {
	Mention   float64
	Position  float64
	Sentiment float64
	Citation  float64
}

var DefaultWeights = Weights{Mention: 0.4, Position: 0.3, Sentiment: 0.2, Citation: 0.1}

// WeightsFromConfig uses the configured weights, or the defaults when none are set
func WeightsFromConfig(c config.ScoringConfig) Weights {
	w := Weights{
		Mention:   c.MentionWeight,
		Position:  c.PositionWeight,
		Sentiment: c.SentimentWeight,
		Citation:  c.CitationWeight,
	}
	if w == (Weights{}) {
		return DefaultWeights
	}
	return w
}

// PositionTable scores list positions 1..len; later positions get PositionFloor
var PositionTable = []float64{100, 80, 60, 40, 20}

const (
	PositionFloor = 10.0

	// NeutralSentiment is used when no result carries a sentiment score
	NeutralSentiment = 50.0

	pointsPerCitation = 20.0
	maxCitationScore  = 100.0

	// positiveSentimentCutoff is on the 0-100 scale
	positiveSentimentCutoff = 60.0
)

func PositionScore(pos int) float64 {
	if pos >= 1 && pos <= len(PositionTable) {
		return PositionTable[pos-1]
	}
	return PositionFloor
}

// SentimentToScale maps a sentiment in [-1, 1] onto 0-100
func SentimentToScale(s float64) float64 {
	return (s + 1) / 2 * 100
}

func CitationScore(n int) float64 {
	return math.Min(maxCitationScore, float64(n)*pointsPerCitation)
}

// Breakdown is everything the daily score row needs plus the component averages
type Breakdown struct {
	Total          int
	MentionCount   int
	MentionRate    float64
	PositionScore  float64
	SentimentScore float64
	CitationScore  float64
	Overall        int

	PlatformScores  map[string]int
	SpecialtyScores map[string]int
	PositiveRatio   float64
}

// Compute derives the daily breakdown from one day's results. It depends only
// on its inputs, so recomputing a day always yields the same row.
// With no results it returns a zero Breakdown.
func Compute(results []*models.QueryResult, w Weights) Breakdown {
	b := Breakdown{
		Total:           len(results),
		PlatformScores:  map[string]int{},
		SpecialtyScores: map[string]int{},
	}
	if b.Total == 0 {
		return b
	}

	var (
		positionSum   float64
		positioned    int
		sentimentSum  float64
		sentimented   int
		positiveCount int
		citationSum   float64
	)

	platformTotal := map[string]int{}
	platformMentioned := map[string]int{}
	specialtyTotal := map[string]int{}
	specialtyMentioned := map[string]int{}

	for _, r := range results {
		if r.IsMentioned {
			b.MentionCount++
		}
		if r.MentionPosition != nil {
			positionSum += PositionScore(*r.MentionPosition)
			positioned++
		}
		if r.SentimentScore != nil {
			s := SentimentToScale(*r.SentimentScore)
			sentimentSum += s
			sentimented++
			if s > positiveSentimentCutoff {
				positiveCount++
			}
		}
		citationSum += CitationScore(len(r.CitedSources))

		pk := r.Platform.Key()
		platformTotal[pk]++
		specialty := r.SpecialtyCategory
		if specialty == "" {
			specialty = models.DefaultSpecialty
		}
		specialtyTotal[specialty]++
		if r.IsMentioned {
			platformMentioned[pk]++
			specialtyMentioned[specialty]++
		}
	}

	total := float64(b.Total)
	b.MentionRate = float64(b.MentionCount) / total * 100
	if positioned > 0 {
		b.PositionScore = positionSum / float64(positioned)
	}
	b.SentimentScore = NeutralSentiment
	if sentimented > 0 {
		b.SentimentScore = sentimentSum / float64(sentimented)
	}
	b.CitationScore = citationSum / total
	b.PositiveRatio = float64(positiveCount) / total

	b.Overall = int(math.Round(
		b.MentionRate*w.Mention +
			b.PositionScore*w.Position +
			b.SentimentScore*w.Sentiment +
			b.CitationScore*w.Citation,
	))

	for k, n := range platformTotal {
		b.PlatformScores[k] = MentionRate(platformMentioned[k], n)
	}
	for k, n := range specialtyTotal {
		b.SpecialtyScores[k] = MentionRate(specialtyMentioned[k], n)
	}
	return b
}

// MentionRate is round(mentioned/total*100), 0 when total is 0
func MentionRate(mentioned, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(mentioned) / float64(total) * 100))
}

// DailyScore builds the row persisted for hospitalID on the day starting at dayStart
func (b Breakdown) DailyScore(hospitalID uuid.UUID, dayStart time.Time) *models.DailyScore {
	return &models.DailyScore{
		ID:              uuid.New(),
		HospitalID:      hospitalID,
		ScoreDate:       dayStart,
		OverallScore:    b.Overall,
		PlatformScores:  b.PlatformScores,
		SpecialtyScores: b.SpecialtyScores,
		MentionCount:    b.MentionCount,
		PositiveRatio:   b.PositiveRatio,
	}
}
