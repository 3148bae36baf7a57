package api

import (
	"net/http"
)

func (s *Server) latestScore(w http.ResponseWriter, r *http.Request) {
	hospitalID, ok := pathID(w, r, "hospitalId")
	if !ok {
		return
	}
	score, err := s.scores.GetLatestScore(r.Context(), hospitalID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, score)
}

func (s *Server) scoreHistory(w http.ResponseWriter, r *http.Request) {
	hospitalID, ok := pathID(w, r, "hospitalId")
	if !ok {
		return
	}
	history, err := s.scores.GetScoreHistory(r.Context(), hospitalID, queryInt(r, "days", 30))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) platformAnalysis(w http.ResponseWriter, r *http.Request) {
	hospitalID, ok := pathID(w, r, "hospitalId")
	if !ok {
		return
	}
	analysis, err := s.scores.GetPlatformAnalysis(r.Context(), hospitalID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

func (s *Server) specialtyAnalysis(w http.ResponseWriter, r *http.Request) {
	hospitalID, ok := pathID(w, r, "hospitalId")
	if !ok {
		return
	}
	analysis, err := s.scores.GetSpecialtyAnalysis(r.Context(), hospitalID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

func (s *Server) weeklyHighlights(w http.ResponseWriter, r *http.Request) {
	hospitalID, ok := pathID(w, r, "hospitalId")
	if !ok {
		return
	}
	highlights, err := s.scores.GetWeeklyHighlights(r.Context(), hospitalID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, highlights)
}

func (s *Server) citationAnalysis(w http.ResponseWriter, r *http.Request) {
	hospitalID, ok := pathID(w, r, "hospitalId")
	if !ok {
		return
	}
	domains, err := s.scores.GetCitationAnalysis(r.Context(), hospitalID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, domains)
}
