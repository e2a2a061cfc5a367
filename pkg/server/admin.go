package server

import "net/http"

func (s *Server) handleAdminChats(w http.ResponseWriter, r *http.Request) {
	chats, err := s.store.ChatStats(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chats)
}

func (s *Server) handleAdminDeleteChat(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.PurgeConversation(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("conversation purged by admin", "admin", userID(r), "conversation", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAdminClearCache(w http.ResponseWriter, r *http.Request) {
	n, err := s.chat.ClearCache(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("query cache cleared by admin", "admin", userID(r), "entries", n)
	w.WriteHeader(http.StatusNoContent)
}
