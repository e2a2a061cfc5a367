package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/pocketllm/pocketllm/pkg/models"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type authResponse struct {
	Success bool         `json:"success"`
	User    *models.User `json:"user"`
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !decodeJSON(w, r, &req) {
		return
	}
	u, token, err := s.auth.SignUp(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("user signed up", "user", u.ID)
	s.setSessionCookie(w, token)
	writeJSON(w, http.StatusOK, authResponse{Success: true, User: u})
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !decodeJSON(w, r, &req) {
		return
	}
	u, token, err := s.auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.setSessionCookie(w, token)
	writeJSON(w, http.StatusOK, authResponse{Success: true, User: u})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleCurrentUser always answers 200; an anonymous caller gets a null user.
func (s *Server) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.auth.CurrentUser(r.Context(), sessionToken(r))
	if err != nil {
		u = nil
	}
	writeJSON(w, http.StatusOK, map[string]*models.User{"user": u})
}

type chatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversationId"`
	UseCache       *bool  `json:"useCache"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	useCache := req.UseCache == nil || *req.UseCache

	// A client that disconnects mid-dispatch still gets its exchange saved.
	ctx := context.WithoutCancel(r.Context())
	res, err := s.chat.SendMessage(ctx, userID(r), req.ConversationID, req.Message, useCache)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type conversationRequest struct {
	Title string `json:"title"`
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := s.store.ListConversations(r.Context(), userID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]models.Conversation{"conversations": convs})
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req conversationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = "New Conversation"
	}
	c, err := s.store.CreateConversation(r.Context(), userID(r), title)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]*models.Conversation{"conversation": c})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	c, err := s.store.GetConversation(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	c.Messages, err = s.store.Messages(r.Context(), c.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]*models.Conversation{"conversation": c})
}

func (s *Server) handleRenameConversation(w http.ResponseWriter, r *http.Request) {
	var req conversationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		writeJSONError(w, http.StatusBadRequest, "Title is required")
		return
	}

	ctx, uid, id := r.Context(), userID(r), r.PathValue("id")
	if err := s.store.RenameConversation(ctx, uid, id, title); err != nil {
		s.writeError(w, r, err)
		return
	}
	c, err := s.store.GetConversation(ctx, uid, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]*models.Conversation{"conversation": c})
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteConversation(r.Context(), userID(r), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.chat.CacheStats(r.Context()))
}

func (s *Server) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.stats.Collect(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
