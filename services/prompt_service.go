// services/prompt_service.go
package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/patientsignal/signal-workflows/internal/logging"
	"github.com/patientsignal/signal-workflows/internal/models"
)

const (
	regionPlaceholder = "{지역}"
	maxFanouts        = 5
)

type presetPrompt struct {
	Category string
	Template string
}

// presetPrompts by hospital specialty, highest priority first
var presetPrompts = map[string][]presetPrompt{
	"DENTAL": {
		{Category: "임플란트", Template: "{지역}에서 임플란트 가격 저렴한 곳 알려줘"},
		{Category: "교정", Template: "투명교정 vs 메탈교정 {지역}에서 어디가 좋아?"},
		{Category: "일반", Template: "{지역} 주말 진료 치과 추천해줘"},
		{Category: "임플란트", Template: "{지역} 임플란트 잘하는 치과 추천해줘"},
		{Category: "교정", Template: "{지역} 치아교정 잘하는 치과 어디야?"},
		{Category: "미백", Template: "{지역} 치아미백 효과 좋은 치과 추천"},
		{Category: "충치", Template: "{지역} 충치치료 잘하는 치과 알려줘"},
		{Category: "일반", Template: "{지역} 치과 어디가 좋아?"},
	},
}

type promptService struct {
	repos  *RepositoryManager
	logger zerolog.Logger
}

func NewPromptService(repos *RepositoryManager) PromptService {
	return &promptService{
		repos:  repos,
		logger: logging.Component("PromptService"),
	}
}

func (s *promptService) hospital(ctx context.Context, hospitalID uuid.UUID) (*models.Hospital, error) {
	h, err := s.repos.HospitalRepo.GetByID(ctx, hospitalID)
	if err != nil {
		return nil, fmt.Errorf("failed to load hospital: %w", err)
	}
	if h == nil {
		return nil, ErrHospitalNotFound
	}
	return h, nil
}

// owned loads a prompt and checks it belongs to hospitalID
func (s *promptService) owned(ctx context.Context, hospitalID, promptID uuid.UUID) (*models.Prompt, error) {
	p, err := s.repos.PromptRepo.GetByID(ctx, promptID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrPromptNotFound
	}
	if p.HospitalID != hospitalID {
		return nil, ErrForbidden
	}
	return p, nil
}

func buildPrompt(hospitalID uuid.UUID, in PromptInput) (*models.Prompt, error) {
	text := strings.TrimSpace(in.PromptText)
	if text == "" {
		return nil, fmt.Errorf("%w: promptText is required", ErrInvalidInput)
	}
	p := &models.Prompt{
		HospitalID:        hospitalID,
		PromptText:        text,
		PromptType:        in.PromptType,
		SpecialtyCategory: in.SpecialtyCategory,
		RegionKeywords:    in.RegionKeywords,
		IsActive:          true,
	}
	if p.PromptType == "" {
		p.PromptType = models.PromptTypeCustom
	}
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
	return p, nil
}

func (s *promptService) Create(ctx context.Context, hospitalID uuid.UUID, input PromptInput) (*models.Prompt, error) {
	if _, err := s.hospital(ctx, hospitalID); err != nil {
		return nil, err
	}
	p, err := buildPrompt(hospitalID, input)
	if err != nil {
		return nil, err
	}
	if err := s.repos.PromptRepo.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// BulkCreate inserts all prompts or none
func (s *promptService) BulkCreate(ctx context.Context, hospitalID uuid.UUID, inputs []PromptInput) (int, error) {
	if _, err := s.hospital(ctx, hospitalID); err != nil {
		return 0, err
	}
	prompts := make([]*models.Prompt, 0, len(inputs))
	for i, in := range inputs {
		p, err := buildPrompt(hospitalID, in)
		if err != nil {
			return 0, fmt.Errorf("prompt %d: %w", i, err)
		}
		prompts = append(prompts, p)
	}
	return s.repos.PromptRepo.CreateBatch(ctx, prompts)
}

func (s *promptService) List(ctx context.Context, hospitalID uuid.UUID, onlyActive bool) ([]*models.Prompt, error) {
	return s.repos.PromptRepo.ListByHospital(ctx, hospitalID, onlyActive)
}

func (s *promptService) Update(ctx context.Context, hospitalID, promptID uuid.UUID, input PromptUpdate) (*models.Prompt, error) {
	p, err := s.owned(ctx, hospitalID, promptID)
	if err != nil {
		return nil, err
	}
	if input.PromptText != nil {
		text := strings.TrimSpace(*input.PromptText)
		if text == "" {
			return nil, fmt.Errorf("%w: promptText cannot be empty", ErrInvalidInput)
		}
		p.PromptText = text
	}
	if input.SpecialtyCategory != nil {
		p.SpecialtyCategory = *input.SpecialtyCategory
	}
	if input.RegionKeywords != nil {
		p.RegionKeywords = *input.RegionKeywords
	}
	if input.IsActive != nil {
		p.IsActive = *input.IsActive
	}
	if err := s.repos.PromptRepo.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Delete removes the prompt. Stored responses keep their prompt id.
func (s *promptService) Delete(ctx context.Context, hospitalID, promptID uuid.UUID) error {
	if _, err := s.owned(ctx, hospitalID, promptID); err != nil {
		return err
	}
	return s.repos.PromptRepo.Delete(ctx, promptID)
}

func (s *promptService) ToggleActive(ctx context.Context, hospitalID, promptID uuid.UUID) (*models.Prompt, error) {
	if _, err := s.owned(ctx, hospitalID, promptID); err != nil {
		return nil, err
	}
	p, err := s.repos.PromptRepo.ToggleActive(ctx, promptID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrPromptNotFound
	}
	return p, nil
}

// GenerateFromPresets fills the preset templates for the specialty with the
// region. Empty arguments fall back to the hospital's own specialty and region.
func (s *promptService) GenerateFromPresets(ctx context.Context, hospitalID uuid.UUID, region, specialty string) (int, error) {
	hospital, err := s.hospital(ctx, hospitalID)
	if err != nil {
		return 0, err
	}
	if strings.TrimSpace(region) == "" {
		region = hospital.Region
	}
	if strings.TrimSpace(specialty) == "" {
		specialty = hospital.Specialty
	}
	region = strings.TrimSpace(region)

	presets := presetPrompts[strings.ToUpper(strings.TrimSpace(specialty))]
	if len(presets) == 0 {
		s.logger.Info().Str("specialty", specialty).Msg("no presets for specialty")
		return 0, nil
	}

	keywords := strings.Fields(region)
	prompts := make([]*models.Prompt, 0, len(presets))
	for _, preset := range presets {
		prompts = append(prompts, &models.Prompt{
			HospitalID:        hospitalID,
			PromptText:        strings.Replace(preset.Template, regionPlaceholder, region, 1),
			PromptType:        models.PromptTypePreset,
			SpecialtyCategory: preset.Category,
			RegionKeywords:    keywords,
			IsActive:          true,
		})
	}
	return s.repos.PromptRepo.CreateBatch(ctx, prompts)
}

// GenerateFanouts stores up to five rephrasings of a prompt so that small
// wording changes in how patients ask are tracked too.
func (s *promptService) GenerateFanouts(ctx context.Context, hospitalID, promptID uuid.UUID) ([]*models.Prompt, error) {
	base, err := s.owned(ctx, hospitalID, promptID)
	if err != nil {
		return nil, err
	}

	variations := FanoutVariations(base.PromptText)
	prompts := make([]*models.Prompt, 0, len(variations))
	for _, text := range variations {
		prompts = append(prompts, &models.Prompt{
			HospitalID:        base.HospitalID,
			PromptText:        text,
			PromptType:        models.PromptTypeAutoGenerated,
			SpecialtyCategory: base.SpecialtyCategory,
			RegionKeywords:    base.RegionKeywords,
			IsActive:          true,
		})
	}
	if _, err := s.repos.PromptRepo.CreateBatch(ctx, prompts); err != nil {
		return nil, err
	}
	return prompts, nil
}

// FanoutVariations returns distinct rephrasings of text, never text itself
func FanoutVariations(text string) []string {
	candidates := []string{
		strings.Replace(text, "추천해줘", "알려줘", 1),
		strings.Replace(text, "추천해줘", "어디가 좋아?", 1),
		strings.Replace(text, "잘하는", "유명한", 1),
		strings.Replace(text, "잘하는", "전문", 1),
		text + " 비용은?",
		text + " 후기 알려줘",
	}
	seen := map[string]bool{text: true}
	out := make([]string, 0, maxFanouts)
	for _, c := range candidates {
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
		if len(out) == maxFanouts {
			break
		}
	}
	return out
}
