package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/shaiso/Conductor/internal/registry"
)

// RegisterService регистрирует endpoint backend-сервиса.
// POST /api/v1/services/register
func (h *Handler) RegisterService(w http.ResponseWriter, r *http.Request) {
	var req RegisterServiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	handle, err := h.registry.Register(req.Service, registry.Endpoint{
		Address: req.Address,
		Port:    req.Port,
		Tags:    req.Tags,
	}, registry.RegisterOptions{
		HealthPath:    req.HealthPath,
		IdempotentOps: req.IdempotentOps,
	})
	if err != nil {
		if errors.Is(err, registry.ErrInvalidEndpoint) {
			BadRequest(w, err.Error())
			return
		}
		InternalError(w, h.logger, err)
		return
	}

	Created(w, RegisterServiceResponse{
		Handle:  handle.ID,
		Service: handle.Service,
	})
}

// DeregisterService снимает регистрацию endpoint'а.
// DELETE /api/v1/services/{name}/{handle}
func (h *Handler) DeregisterService(w http.ResponseWriter, r *http.Request) {
	handleID, err := uuid.Parse(r.PathValue("handle"))
	if err != nil {
		BadRequest(w, "invalid registration handle")
		return
	}

	err = h.registry.Deregister(&registry.Handle{
		ID:      handleID,
		Service: r.PathValue("name"),
	})
	if err != nil {
		if errors.Is(err, registry.ErrHandleNotFound) || errors.Is(err, registry.ErrServiceUnknown) {
			NotFound(w, err.Error())
			return
		}
		InternalError(w, h.logger, err)
		return
	}

	NoContent(w)
}

// ListServices возвращает снимок состояния всех регистраций.
// GET /api/v1/services
func (h *Handler) ListServices(w http.ResponseWriter, _ *http.Request) {
	snapshot := h.registry.Snapshot()
	List(w, snapshot, len(snapshot))
}
