package server

import (
	"context"
	"net/http"

	"github.com/pocketllm/pocketllm/pkg/models"
)

type apiKeyRequest struct {
	Name string `json:"keyName"`
}

func (s *Server) handleListAPIKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := s.store.ListAPIKeys(r.Context(), userID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, keys)
}

// handleCreateAPIKey is the only response that carries the secret.
func (s *Server) handleCreateAPIKey(w http.ResponseWriter, r *http.Request) {
	var req apiKeyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	k, err := s.auth.CreateAPIKey(r.Context(), userID(r), req.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("api key created", "user", k.UserID, "key", k.ID)
	writeJSON(w, http.StatusCreated, k)
}

func (s *Server) handleDeleteAPIKey(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteAPIKey(r.Context(), userID(r), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAPIKeyUsage(w http.ResponseWriter, r *http.Request) {
	k, err := s.store.APIKey(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	usage := []models.UsageSummary{}
	if s.usage != nil {
		usage, err = s.usage.Summary(r.Context(), k.ID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"keyId": k.ID, "usage": usage})
}

type playgroundRequest struct {
	// Model is accepted for client compatibility; the dispatcher decides
	// which model answers.
	Model    string               `json:"model"`
	Messages []models.ChatMessage `json:"messages"`
}

// handlePlayground answers a stateless chat request authenticated by an
// API key in the Authorization header. Nothing is persisted.
func (s *Server) handlePlayground(w http.ResponseWriter, r *http.Request) {
	k, err := s.auth.AuthenticateAPIKey(r.Context(), bearerToken(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req playgroundRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.chat.Playground(context.WithoutCancel(r.Context()), k.ID, req.Messages)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
