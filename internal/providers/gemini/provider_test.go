package gemini_test

import (
	"strings"
	"testing"

	"github.com/google/generative-ai-go/genai"

	"github.com/patientsignal/signal-workflows/internal/models"
	"github.com/patientsignal/signal-workflows/internal/providers/common"
	"github.com/patientsignal/signal-workflows/internal/providers/gemini"
	"github.com/patientsignal/signal-workflows/internal/providers/testutil"
)

func TestProviderIdentity(t *testing.T) {
	provider := gemini.NewProvider(testutil.SampleConfig(), nil)
	if provider.Platform() != models.PlatformGemini {
		t.Errorf("Platform() = %s", provider.Platform())
	}
	if provider.Model() != "gemini-2.0-flash" {
		t.Errorf("Model() = %s", provider.Model())
	}
}

func TestBuildPrompt(t *testing.T) {
	got := gemini.BuildPrompt("강남 치과 추천")
	if !strings.HasPrefix(got, common.SystemPrompt) {
		t.Error("prompt should start with the system instruction")
	}
	if !strings.HasSuffix(got, "\n\n질문: 강남 치과 추천") {
		t.Errorf("unexpected prompt suffix: %q", got)
	}
}

func TestExtractText(t *testing.T) {
	tests := []struct {
		name string
		resp *genai.GenerateContentResponse
		want string
	}{
		{
			name: "nil response",
			resp: nil,
		},
		{
			name: "no candidates",
			resp: &genai.GenerateContentResponse{},
		},
		{
			name: "candidate without content",
			resp: &genai.GenerateContentResponse{
				Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}},
			},
		},
		{
			name: "joins text parts",
			resp: &genai.GenerateContentResponse{
				Candidates: []*genai.Candidate{{
					Content: &genai.Content{Parts: []genai.Part{genai.Text("1. 서울밝은치과\n"), genai.Text("2. 강남연세치과")}},
				}},
			},
			want: "1. 서울밝은치과\n2. 강남연세치과",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := gemini.ExtractText(tt.resp); got != tt.want {
				t.Errorf("ExtractText() = %q, want %q", got, tt.want)
			}
		})
	}
}
