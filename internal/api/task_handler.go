package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shaiso/Conductor/internal/dispatcher"
)

// ExecuteTask выполняет service task синхронно.
// POST /api/v1/tasks/execute
//
// Ответ всегда 200 с терминальным DispatchResult: ошибки backend
// и резолвинга выражаются статусом failed с error_kind, а не
// HTTP-статусом (вызывающий workflow-движок сам решает про retry).
func (h *Handler) ExecuteTask(w http.ResponseWriter, r *http.Request) {
	var req ExecuteTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	result, err := h.dispatcher.Dispatch(r.Context(), req.ToInvocation())
	if err != nil {
		if errors.Is(err, dispatcher.ErrInvalidInvocation) {
			BadRequest(w, err.Error())
			return
		}
		InternalError(w, h.logger, err)
		return
	}

	Success(w, result)
}
