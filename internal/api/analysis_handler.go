package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/shaiso/Conductor/internal/domain"
)

// GetAnalysis возвращает запись анализа по id.
// GET /api/v1/analyses/{id}
func (h *Handler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid analysis id")
		return
	}

	rec, err := h.analyses.Get(r.Context(), id)
	if HandleStoreError(w, h.logger, err, "analysis not found") {
		return
	}

	Success(w, AnalysisFromDomain(*rec))
}

// ListAnalyses возвращает записи по процессу или thread.
// GET /api/v1/analyses?process_id=... | ?thread_id=...
func (h *Handler) ListAnalyses(w http.ResponseWriter, r *http.Request) {
	processID := r.URL.Query().Get("process_id")
	threadID := r.URL.Query().Get("thread_id")

	var (
		records []domain.AnalysisRecord
		err     error
	)
	switch {
	case processID != "" && threadID != "":
		BadRequest(w, "specify either process_id or thread_id, not both")
		return
	case processID != "":
		records, err = h.analyses.ListByProcess(r.Context(), processID)
	case threadID != "":
		records, err = h.analyses.ListByThread(r.Context(), threadID)
	default:
		BadRequest(w, "process_id or thread_id is required")
		return
	}
	if HandleStoreError(w, h.logger, err, "") {
		return
	}

	result := make([]AnalysisResponse, len(records))
	for i, rec := range records {
		result[i] = AnalysisFromDomain(rec)
	}

	List(w, result, len(result))
}
