package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

const defaultRunBatchSize = 50

// RunProcessing вручную запускает обработку pending задач.
// POST /api/v1/processing/run
func (h *Handler) RunProcessing(w http.ResponseWriter, r *http.Request) {
	var req RunProcessingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		BadRequest(w, "invalid request body")
		return
	}

	batchSize := req.BatchSize
	if batchSize <= 0 {
		batchSize = defaultRunBatchSize
	}

	processed, err := h.pending.ProcessPending(r.Context(), batchSize)
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	Success(w, RunProcessingResponse{Processed: processed})
}
