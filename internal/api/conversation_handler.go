package api

import (
	"net/http"
)

// GetConversation возвращает контекст диалога процесса.
// GET /api/v1/conversations/{processID}
func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	processID := r.PathValue("processID")
	if processID == "" {
		BadRequest(w, "process instance id is required")
		return
	}

	cc, err := h.conversations.Get(r.Context(), processID)
	if HandleStoreError(w, h.logger, err, "conversation context not found") {
		return
	}

	Success(w, ConversationFromDomain(*cc))
}
