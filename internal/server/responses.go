package server

import (
	"encoding/json"
	"net/http"
)

type errorResponse struct {
	Code int    `json:"code"`
	Text string `json:"text"`
}

func (s *Server) sendJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("failed to encode response")
	}
}

func (s *Server) errorResponse(w http.ResponseWriter, r *http.Request, status int, text string) {
	s.sendJSON(w, r, status, errorResponse{Code: status, Text: text})
}

func (s *Server) badRequestResponse(w http.ResponseWriter, r *http.Request, err error) {
	s.errorResponse(w, r, http.StatusBadRequest, err.Error())
}

// notLoadedResponse answers requests that need a bundle before one is
// installed.
func (s *Server) notLoadedResponse(w http.ResponseWriter, r *http.Request) {
	s.errorResponse(w, r, http.StatusServiceUnavailable, "bundle not loaded")
}

func (s *Server) serverErrorResponse(w http.ResponseWriter, r *http.Request, _ error) {
	s.errorResponse(w, r, http.StatusInternalServerError, "internal server error")
}
