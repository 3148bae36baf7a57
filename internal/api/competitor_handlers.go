package api

import (
	"net/http"
)

type competitorRequest struct {
	CompetitorName   string `json:"competitorName"`
	CompetitorRegion string `json:"competitorRegion"`
}

func (s *Server) listCompetitors(w http.ResponseWriter, r *http.Request) {
	hospitalID, ok := pathID(w, r, "hospitalId")
	if !ok {
		return
	}
	competitors, err := s.competitors.List(r.Context(), hospitalID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, competitors)
}

func (s *Server) createCompetitor(w http.ResponseWriter, r *http.Request) {
	hospitalID, ok := pathID(w, r, "hospitalId")
	if !ok {
		return
	}
	var req competitorRequest
	if !decodeBody(w, r, &req) {
		return
	}
	competitor, err := s.competitors.Create(r.Context(), hospitalID, req.CompetitorName, req.CompetitorRegion)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, competitor)
}

func (s *Server) removeCompetitor(w http.ResponseWriter, r *http.Request) {
	hospitalID, ok := pathID(w, r, "hospitalId")
	if !ok {
		return
	}
	competitorID, ok := pathID(w, r, "competitorId")
	if !ok {
		return
	}
	if err := s.competitors.Remove(r.Context(), hospitalID, competitorID); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) autoDetectCompetitors(w http.ResponseWriter, r *http.Request) {
	hospitalID, ok := pathID(w, r, "hospitalId")
	if !ok {
		return
	}
	result, err := s.competitors.AutoDetect(r.Context(), hospitalID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) competitorComparison(w http.ResponseWriter, r *http.Request) {
	hospitalID, ok := pathID(w, r, "hospitalId")
	if !ok {
		return
	}
	comparison, err := s.competitors.GetComparison(r.Context(), hospitalID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, comparison)
}
