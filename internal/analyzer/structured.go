package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog"
	"mvdan.cc/xurls/v2"

	"github.com/patientsignal/signal-workflows/internal/config"
	"github.com/patientsignal/signal-workflows/internal/logging"
	"github.com/patientsignal/signal-workflows/internal/models"
)

const defaultStructuredModel = "gpt-4o-mini"

// StructuredResponse is the JSON shape the extraction model must return
type StructuredResponse struct {
	IsMentioned          bool     `json:"is_mentioned" jsonschema_description:"Whether the target hospital is named anywhere in the answer"`
	MentionPosition      int      `json:"mention_position" jsonschema_description:"1-based position of the target hospital in the numbered recommendation list, 0 if it is not in the list"`
	TotalRecommendations int      `json:"total_recommendations" jsonschema_description:"Number of items in the numbered recommendation list, 0 if there is no list"`
	SentimentScore       float64  `json:"sentiment_score" jsonschema_description:"Tone toward the target hospital from -1 (negative) to 1 (positive), 0 if not mentioned"`
	Competitors          []string `json:"competitors" jsonschema_description:"Names of other hospitals or clinics recommended in the answer"`
	CitedSources         []string `json:"cited_sources" jsonschema_description:"Absolute URLs the answer cites as sources"`
}

// StructuredResponseSchema is generated once at init
var StructuredResponseSchema = GenerateSchema[StructuredResponse]()

// GenerateSchema reflects T into the object schema OpenAI structured outputs accept
func GenerateSchema[T any]() map[string]any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}

	var zero T
	schema := reflector.Reflect(zero)

	result := map[string]any{
		"type":       "object",
		"properties": schema.Properties,
		"required":   schema.Required,
	}
	if schema.AdditionalProperties != nil {
		result["additionalProperties"] = false
	}
	return result
}

// StructuredAnalyzer asks an OpenAI model to read the answer and return a
// StructuredResponse. Mention detection stays a substring check; the model
// supplies list position, competitors, tone and sources. Any failure falls
// back to the regex analyzer.
type StructuredAnalyzer struct {
	client        openai.Client
	model         string
	fallback      *RegexAnalyzer
	legacyNeutral bool
	logger        zerolog.Logger
}

func NewStructuredAnalyzer(cfg *config.Config, fallback *RegexAnalyzer) *StructuredAnalyzer {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.Platforms.ChatGPT.APIKey),
		option.WithMaxRetries(1),
		option.WithRequestTimeout(60 * time.Second),
	}
	if cfg.Platforms.ChatGPT.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.Platforms.ChatGPT.BaseURL))
	}

	model := cfg.Analyzer.StructuredModel
	if model == "" {
		model = defaultStructuredModel
	}
	if fallback == nil {
		fallback = NewRegexAnalyzer(WithLegacyNeutral(cfg.Analyzer.LegacyNeutral))
	}

	return &StructuredAnalyzer{
		client:        openai.NewClient(opts...),
		model:         model,
		fallback:      fallback,
		legacyNeutral: cfg.Analyzer.LegacyNeutral,
		logger:        logging.Component("StructuredAnalyzer"),
	}
}

// WithKnownCompetitors scopes only the regex fallback
func (a *StructuredAnalyzer) WithKnownCompetitors(names []string) ResponseAnalyzer {
	scoped := *a
	scoped.fallback = a.fallback.withKnownNames(names)
	return &scoped
}

func (a *StructuredAnalyzer) Analyze(ctx context.Context, text, hospitalName string, platform models.Platform, model string) *models.Analysis {
	extracted, err := a.extract(ctx, text, hospitalName)
	if err != nil {
		a.logger.Warn().Err(err).Str("platform", string(platform)).Msg("structured analysis failed, using regex analyzer")
		return a.fallback.Analyze(ctx, text, hospitalName, platform, model)
	}
	return a.toAnalysis(extracted, text, hospitalName, platform, model)
}

func (a *StructuredAnalyzer) extract(ctx context.Context, text, hospitalName string) (*StructuredResponse, error) {
	schemaParam := openai.ResponseFormatJSONSchemaJSONSchemaParam{
		Name:        "hospital_visibility",
		Description: openai.String("How an AI answer presents a target hospital"),
		Schema:      StructuredResponseSchema,
		Strict:      openai.Bool(true),
	}

	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage("당신은 AI 답변에서 병원 추천 내용을 분석하는 전문가입니다. 답변에 없는 정보는 만들지 마세요."),
			openai.UserMessage(buildExtractionPrompt(text, hospitalName)),
		},
		Model:       openai.ChatModel(a.model),
		Temperature: openai.Float(0.1),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{JSONSchema: schemaParam},
		},
	}

	resp, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("extraction request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("extraction returned no choices")
	}

	var out StructuredResponse
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &out); err != nil {
		return nil, fmt.Errorf("failed to parse extraction response: %w", err)
	}
	return &out, nil
}

func buildExtractionPrompt(text, hospitalName string) string {
	return fmt.Sprintf("대상 병원: %s\n\n다음 AI 답변을 분석하세요.\n---\n%s\n---", hospitalName, text)
}

func (a *StructuredAnalyzer) toAnalysis(s *StructuredResponse, text, hospitalName string, platform models.Platform, model string) *models.Analysis {
	out := &models.Analysis{
		Platform:    platform,
		Model:       model,
		IsMentioned: hospitalName != "" && containsFold(text, hospitalName),
	}

	if s.TotalRecommendations > 0 {
		total := s.TotalRecommendations
		out.TotalRecommendations = &total
		if out.IsMentioned && s.MentionPosition > 0 && s.MentionPosition <= total {
			pos := s.MentionPosition
			out.MentionPosition = &pos
		}
	}

	var competitors []string
	for _, c := range s.Competitors {
		if c != "" && !containsFold(c, hospitalName) {
			competitors = append(competitors, c)
		}
	}
	out.CompetitorsMentioned = dedupe(competitors, MaxCompetitors)

	switch {
	case out.IsMentioned:
		score := max(-1, min(1, s.SentimentScore))
		out.SentimentScore = &score
		out.SentimentLabel = Label(score)
	case a.legacyNeutral:
		zero := 0.0
		out.SentimentScore = &zero
		out.SentimentLabel = models.SentimentNeutral
	default:
		out.SentimentLabel = models.SentimentNotApplicable
	}

	out.CitedSources = dedupe(append(urlPattern.FindAllString(text, -1), ValidURLs(s.CitedSources)...), MaxCitations)
	return out
}

var strictURL = xurls.Strict()

// ValidURLs keeps only values that are a single absolute URL
func ValidURLs(candidates []string) []string {
	var out []string
	for _, c := range candidates {
		if m := strictURL.FindString(c); m != "" && m == c {
			out = append(out, c)
		}
	}
	return out
}
