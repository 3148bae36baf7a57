package chatgpt

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"

	"github.com/patientsignal/signal-workflows/internal/providers/common"
)

// Query sends one prompt with the hospital-recommendation system instruction
func (p *Provider) Query(ctx context.Context, prompt string) (*common.QueryResponse, error) {
	p.logger.Debug().Str("model", p.model).Int("prompt_len", len(prompt)).Msg("🚀 sending chat completion")

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(common.SystemPrompt),
			openai.UserMessage(prompt),
		},
		Model:       openai.ChatModel(p.model),
		Temperature: openai.Float(temperature),
		MaxTokens:   openai.Int(maxTokens),
	})
	if err != nil {
		return nil, asStatusError(err)
	}
	// a 2xx without choices is an empty answer, analyzed as not mentioned
	var text string
	if len(resp.Choices) > 0 {
		text = resp.Choices[0].Message.Content
	} else {
		p.logger.Warn().Str("model", p.model).Msg("chatgpt returned no choices")
	}

	inputTokens := int(resp.Usage.PromptTokens)
	outputTokens := int(resp.Usage.CompletionTokens)

	out := &common.QueryResponse{
		Text:         text,
		Model:        p.model,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
	}
	if p.cost != nil {
		out.Cost = p.cost.CalculateCost("chatgpt", p.model, inputTokens, outputTokens)
	}

	p.logger.Debug().Int("response_len", len(out.Text)).Int("input_tokens", inputTokens).Int("output_tokens", outputTokens).Msg("✅ chat completion done")
	return out, nil
}

// asStatusError converts SDK API errors so the guard can classify them
func asStatusError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &common.StatusError{
			Platform:   "chatgpt",
			StatusCode: apiErr.StatusCode,
			Message:    apiErr.Message,
		}
	}
	return fmt.Errorf("chatgpt request failed: %w", err)
}
