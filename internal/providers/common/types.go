package common

import (
	"fmt"
)

// SystemPrompt is sent to platforms that accept a system instruction
const SystemPrompt = "당신은 한국의 병원 및 의료 서비스에 대해 정확하고 도움이 되는 정보를 제공하는 어시스턴트입니다. 구체적인 병원 이름과 특징을 포함하여 답변해주세요. 추천 병원은 번호 목록으로 작성해주세요."

// QueryResponse is the normalized output of a platform call
type QueryResponse struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
	Cost         float64
}

// CostCalculator prices a call. Defined here to avoid an import cycle with services.
type CostCalculator interface {
	CalculateCost(platform string, model string, inputTokens int, outputTokens int) float64
}

// StatusError is a non-2xx response from an upstream platform
type StatusError struct {
	Platform   string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s returned status %d", e.Platform, e.StatusCode)
	}
	return fmt.Sprintf("%s returned status %d: %s", e.Platform, e.StatusCode, e.Message)
}
