package analyzer_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patientsignal/signal-workflows/internal/analyzer"
	"github.com/patientsignal/signal-workflows/internal/config"
	"github.com/patientsignal/signal-workflows/internal/models"
	"github.com/patientsignal/signal-workflows/internal/providers/testutil"
)

func structuredServer(t *testing.T, resp analyzer.StructuredResponse) *testutil.MockPlatformServer {
	t.Helper()
	content, err := json.Marshal(resp)
	require.NoError(t, err)
	return testutil.NewMockPlatformServer(testutil.SampleOpenAIResponse(string(content)))
}

func structuredConfig(baseURL string) *config.Config {
	cfg := testutil.SampleConfig()
	cfg.Platforms.ChatGPT.BaseURL = baseURL
	cfg.Analyzer.Mode = analyzer.ModeStructured
	return cfg
}

func TestStructuredAnalyze(t *testing.T) {
	server := structuredServer(t, analyzer.StructuredResponse{
		IsMentioned:          true,
		MentionPosition:      3,
		TotalRecommendations: 3,
		SentimentScore:       1.7,
		Competitors:          []string{"강남연세치과", "미소드림치과", "강남연세치과", testutil.SampleHospitalName},
		CitedSources:         []string{"https://blog.example.kr/review", "not a url", "see https://x.kr"},
	})
	defer server.Close()

	a := analyzer.NewStructuredAnalyzer(structuredConfig(server.URL()), nil)
	result := a.Analyze(context.Background(), testutil.SampleRecommendationText(), testutil.SampleHospitalName, models.PlatformClaude, "claude-3-opus-20240229")

	assert.Equal(t, "/chat/completions", server.LastPath())
	body := server.LastBody()
	format := body["response_format"].(map[string]any)
	assert.Equal(t, "json_schema", format["type"])

	assert.True(t, result.IsMentioned)
	require.NotNil(t, result.MentionPosition)
	assert.Equal(t, 3, *result.MentionPosition)
	require.NotNil(t, result.SentimentScore)
	assert.Equal(t, 1.0, *result.SentimentScore)
	assert.Equal(t, models.SentimentPositive, result.SentimentLabel)
	assert.Equal(t, []string{"강남연세치과", "미소드림치과"}, result.CompetitorsMentioned)
	assert.Equal(t, []string{"https://example.com/dental", "https://blog.example.kr/review"}, result.CitedSources)
	assert.Equal(t, models.PlatformClaude, result.Platform)
}

func TestStructuredAnalyzeIgnoresModelMentionClaim(t *testing.T) {
	server := structuredServer(t, analyzer.StructuredResponse{
		IsMentioned:          true,
		MentionPosition:      1,
		TotalRecommendations: 2,
		SentimentScore:       0.5,
	})
	defer server.Close()

	a := analyzer.NewStructuredAnalyzer(structuredConfig(server.URL()), nil)
	result := a.Analyze(context.Background(), "1. 강남연세치과\n2. 미소드림치과", testutil.SampleHospitalName, models.PlatformChatGPT, "gpt-4o-mini")

	assert.False(t, result.IsMentioned)
	assert.Nil(t, result.MentionPosition)
	assert.Nil(t, result.SentimentScore)
	assert.Equal(t, models.SentimentNotApplicable, result.SentimentLabel)
}

func TestStructuredAnalyzeFallsBackToRegex(t *testing.T) {
	server := testutil.NewMockPlatformServer(nil)
	defer server.Close()
	server.QueueStatuses(http.StatusBadRequest)

	a := analyzer.NewStructuredAnalyzer(structuredConfig(server.URL()), nil)
	result := a.Analyze(context.Background(), testutil.SampleRecommendationText(), testutil.SampleHospitalName, models.PlatformGemini, "gemini-2.0-flash")

	expected := analyzer.NewRegexAnalyzer().Analyze(context.Background(), testutil.SampleRecommendationText(), testutil.SampleHospitalName, models.PlatformGemini, "gemini-2.0-flash")
	assert.Equal(t, expected, result)
}

func TestNewSelectsAnalyzer(t *testing.T) {
	cfg := testutil.SampleConfig()
	_, ok := analyzer.New(cfg).(*analyzer.RegexAnalyzer)
	assert.True(t, ok)

	cfg.Analyzer.Mode = "STRUCTURED"
	_, ok = analyzer.New(cfg).(*analyzer.StructuredAnalyzer)
	assert.True(t, ok)

	cfg.Platforms.ChatGPT.APIKey = ""
	_, ok = analyzer.New(cfg).(*analyzer.RegexAnalyzer)
	assert.True(t, ok)
}

func TestValidURLs(t *testing.T) {
	got := analyzer.ValidURLs([]string{"https://a.kr/x", "a.kr", "", "https://b.kr/y extra", "http://c.com"})
	assert.Equal(t, []string{"https://a.kr/x", "http://c.com"}, got)
}

func TestGenerateSchema(t *testing.T) {
	schema := analyzer.GenerateSchema[analyzer.StructuredResponse]()
	assert.Equal(t, "object", schema["type"])
	assert.ElementsMatch(t,
		[]string{"is_mentioned", "mention_position", "total_recommendations", "sentiment_score", "competitors", "cited_sources"},
		schema["required"],
	)
	assert.Equal(t, false, schema["additionalProperties"])
}
