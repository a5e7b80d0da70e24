package api

import (
	"net/http"
)

// RegisterRoutes регистрирует маршруты API.
//
// Маршруты зависят от сконфигурированных зависимостей: оркестратор
// отдаёт tasks/analyses/services/conversations, сервис обработки —
// processing (и analyses для операционных выборок).
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)

	// Tasks
	if h.dispatcher != nil {
		mux.Handle("POST /api/v1/tasks/execute", chain(http.HandlerFunc(h.ExecuteTask)))
	}

	// Analyses
	if h.analyses != nil {
		mux.Handle("GET /api/v1/analyses", chain(http.HandlerFunc(h.ListAnalyses)))
		mux.Handle("GET /api/v1/analyses/{id}", chain(http.HandlerFunc(h.GetAnalysis)))
	}

	// Services
	if h.registry != nil {
		mux.Handle("GET /api/v1/services", chain(http.HandlerFunc(h.ListServices)))
		mux.Handle("POST /api/v1/services/register", chain(http.HandlerFunc(h.RegisterService)))
		mux.Handle("DELETE /api/v1/services/{name}/{handle}", chain(http.HandlerFunc(h.DeregisterService)))
	}

	// Conversations
	if h.conversations != nil {
		mux.Handle("GET /api/v1/conversations/{processID}", chain(http.HandlerFunc(h.GetConversation)))
	}

	// Processing
	if h.pending != nil {
		mux.Handle("POST /api/v1/processing/run", chain(http.HandlerFunc(h.RunProcessing)))
	}
}
