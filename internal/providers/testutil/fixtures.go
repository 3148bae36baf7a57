package testutil

import (
	"time"

	"github.com/patientsignal/signal-workflows/internal/config"
)

// SampleHospitalName is the subscribing hospital used across fixtures
const SampleHospitalName = "서울밝은치과"

// SampleConfig returns a config where every platform has a usable key
func SampleConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		Platforms: config.PlatformsConfig{
			ChatGPT:    config.PlatformConfig{APIKey: "sk-test-openai-key-000000000", Model: "gpt-4o-mini"},
			Claude:     config.PlatformConfig{APIKey: "sk-ant-REDACTED", Model: "claude-3-opus-20240229"},
			Perplexity: config.PlatformConfig{APIKey: "pplx-test-key-0000", Model: "sonar"},
			Gemini:     config.PlatformConfig{APIKey: "AIza-test-gemini-key", Model: "gemini-2.0-flash"},
		},
		Crawl: config.CrawlConfig{
			DefaultPlatforms: []string{"PERPLEXITY"},
			Concurrency:      2,
			RequestTimeout:   5 * time.Second,
			RetryInitial:     time.Millisecond,
			RetryMaxInterval: 2 * time.Millisecond,
			RetryMaxElapsed:  time.Second,
		},
		Scoring: config.ScoringConfig{
			MentionWeight:   0.4,
			PositionWeight:  0.3,
			SentimentWeight: 0.2,
			CitationWeight:  0.1,
		},
	}
}

// SampleRecommendationText is a typical numbered-list answer naming the sample hospital third
func SampleRecommendationText() string {
	return "강남 지역 치과 추천 목록입니다.\n" +
		"1. 강남연세치과 - 임플란트 전문\n" +
		"2. 미소드림치과 - 야간 진료\n" +
		"3. " + SampleHospitalName + " - 친절하고 실력 좋은 의료진으로 유명합니다\n" +
		"자세한 정보: https://example.com/dental (2024)\n"
}

// SampleOpenAIResponse returns a chat.completion body carrying content
func SampleOpenAIResponse(content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{
			{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": content},
				"finish_reason": "stop",
				"logprobs":      nil,
			},
		},
		"usage": map[string]any{"prompt_tokens": 120, "completion_tokens": 340, "total_tokens": 460},
	}
}

// SampleAnthropicResponse returns a messages API body carrying text
func SampleAnthropicResponse(text string) map[string]any {
	return map[string]any{
		"id":            "msg_test",
		"type":          "message",
		"role":          "assistant",
		"model":         "claude-3-opus-20240229",
		"content":       []map[string]any{{"type": "text", "text": text}},
		"stop_reason":   "end_turn",
		"stop_sequence": nil,
		"usage":         map[string]any{"input_tokens": 100, "output_tokens": 200},
	}
}

// SamplePerplexityResponse returns a chat completions body in Perplexity's shape
func SamplePerplexityResponse(content string) map[string]any {
	return map[string]any{
		"id":        "pplx-test",
		"model":     "sonar",
		"citations": []string{"https://example.com/dental"},
		"choices": []map[string]any{
			{"index": 0, "message": map[string]any{"role": "assistant", "content": content}},
		},
		"usage": map[string]any{"prompt_tokens": 50, "completion_tokens": 150},
	}
}
