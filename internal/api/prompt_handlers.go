package api

import (
	"net/http"

	"github.com/patientsignal/signal-workflows/services"
)

type bulkPromptRequest struct {
	Prompts []services.PromptInput `json:"prompts"`
}

type presetRequest struct {
	Region    string `json:"region"`
	Specialty string `json:"specialty"`
}

func (s *Server) listPrompts(w http.ResponseWriter, r *http.Request) {
	hospitalID, ok := pathID(w, r, "hospitalId")
	if !ok {
		return
	}
	onlyActive := r.URL.Query().Get("active") == "true"
	prompts, err := s.prompts.List(r.Context(), hospitalID, onlyActive)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, prompts)
}

func (s *Server) createPrompt(w http.ResponseWriter, r *http.Request) {
	hospitalID, ok := pathID(w, r, "hospitalId")
	if !ok {
		return
	}
	var input services.PromptInput
	if !decodeBody(w, r, &input) {
		return
	}
	prompt, err := s.prompts.Create(r.Context(), hospitalID, input)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, prompt)
}

func (s *Server) bulkCreatePrompts(w http.ResponseWriter, r *http.Request) {
	hospitalID, ok := pathID(w, r, "hospitalId")
	if !ok {
		return
	}
	var req bulkPromptRequest
	if !decodeBody(w, r, &req) {
		return
	}
	created, err := s.prompts.BulkCreate(r.Context(), hospitalID, req.Prompts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int{"created": created})
}

func (s *Server) generatePresets(w http.ResponseWriter, r *http.Request) {
	hospitalID, ok := pathID(w, r, "hospitalId")
	if !ok {
		return
	}
	var req presetRequest
	if !decodeBody(w, r, &req) {
		return
	}
	created, err := s.prompts.GenerateFromPresets(r.Context(), hospitalID, req.Region, req.Specialty)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int{"created": created})
}

func (s *Server) updatePrompt(w http.ResponseWriter, r *http.Request) {
	hospitalID, ok := pathID(w, r, "hospitalId")
	if !ok {
		return
	}
	promptID, ok := pathID(w, r, "promptId")
	if !ok {
		return
	}
	var update services.PromptUpdate
	if !decodeBody(w, r, &update) {
		return
	}
	prompt, err := s.prompts.Update(r.Context(), hospitalID, promptID, update)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, prompt)
}

func (s *Server) deletePrompt(w http.ResponseWriter, r *http.Request) {
	hospitalID, ok := pathID(w, r, "hospitalId")
	if !ok {
		return
	}
	promptID, ok := pathID(w, r, "promptId")
	if !ok {
		return
	}
	if err := s.prompts.Delete(r.Context(), hospitalID, promptID); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) togglePrompt(w http.ResponseWriter, r *http.Request) {
	hospitalID, ok := pathID(w, r, "hospitalId")
	if !ok {
		return
	}
	promptID, ok := pathID(w, r, "promptId")
	if !ok {
		return
	}
	prompt, err := s.prompts.ToggleActive(r.Context(), hospitalID, promptID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, prompt)
}

func (s *Server) generateFanouts(w http.ResponseWriter, r *http.Request) {
	hospitalID, ok := pathID(w, r, "hospitalId")
	if !ok {
		return
	}
	promptID, ok := pathID(w, r, "promptId")
	if !ok {
		return
	}
	prompts, err := s.prompts.GenerateFanouts(r.Context(), hospitalID, promptID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, prompts)
}
