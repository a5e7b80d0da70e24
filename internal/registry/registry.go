package registry

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/shaiso/Conductor/internal/telemetry"
)

// Endpoint — сетевой адрес backend-сервиса.
//
// Endpoint'ы эфемерны: живут только в памяти Registry и перестраиваются
// из сигналов регистрации после рестарта.
type Endpoint struct {
	// Address — хост (IP или DNS-имя).
	Address string `json:"address"`

	// Port — TCP-порт.
	Port int `json:"port"`

	// Tags — произвольные метки endpoint'а.
	Tags []string `json:"tags,omitempty"`
}

// BaseURL возвращает базовый URL endpoint'а.
func (e Endpoint) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", e.Address, e.Port)
}

// RegisterOptions — параметры регистрации endpoint'а.
type RegisterOptions struct {
	// HealthPath — путь health-check'а (default: /healthz).
	HealthPath string

	// IdempotentOps — операции, которые Dispatcher может повторять
	// при сбое backend. Идемпотентность объявляется при регистрации,
	// не угадывается при вызове.
	IdempotentOps []string
}

// Handle — идентификатор одной регистрации, используется для deregister.
type Handle struct {
	ID      uuid.UUID `json:"id"`
	Service string    `json:"service"`
}

// entry — внутреннее состояние одного зарегистрированного endpoint'а.
type entry struct {
	handle        uuid.UUID
	endpoint      Endpoint
	healthPath    string
	idempotentOps map[string]bool

	// Состояние здоровья. Мутируется только health-check циклом,
	// resolve читает под RLock и ничего не меняет.
	healthy     bool
	consecFails int
}

// serviceEntry — все endpoint'ы одного логического имени.
type serviceEntry struct {
	// endpoints в порядке регистрации: порядок определяет round-robin.
	endpoints []*entry

	// rr — монотонный счётчик для round-robin выбора.
	// atomic, чтобы resolve обходился RLock'ом.
	rr atomic.Uint64
}

// Registry — реестр логических имён сервисов.
//
// Единственное по-настоящему разделяемое мутабельное состояние
// оркестратора. Разрешение имени происходит на каждый dispatch,
// обновление здоровья — раз в интервал, поэтому карта защищена
// read-mostly RWMutex.
type Registry struct {
	mu       sync.RWMutex
	services map[string]*serviceEntry
	logger   *slog.Logger
}

// New создаёт пустой Registry.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		services: make(map[string]*serviceEntry),
		logger:   logger,
	}
}

// Register добавляет endpoint для логического имени сервиса.
//
// Новый endpoint считается здоровым до первого неуспешного цикла
// health-check'ов (оптимистичный старт, иначе свежий инстанс не получал
// бы трафик до первой проверки).
func (r *Registry) Register(service string, ep Endpoint, opts RegisterOptions) (*Handle, error) {
	if service == "" {
		return nil, fmt.Errorf("%w: empty service name", ErrInvalidEndpoint)
	}
	if ep.Address == "" || ep.Port <= 0 {
		return nil, fmt.Errorf("%w: %s:%d", ErrInvalidEndpoint, ep.Address, ep.Port)
	}

	healthPath := opts.HealthPath
	if healthPath == "" {
		healthPath = "/healthz"
	}

	idempotent := make(map[string]bool, len(opts.IdempotentOps))
	for _, op := range opts.IdempotentOps {
		idempotent[op] = true
	}

	e := &entry{
		handle:        uuid.New(),
		endpoint:      ep,
		healthPath:    healthPath,
		idempotentOps: idempotent,
		healthy:       true,
	}

	r.mu.Lock()
	se, ok := r.services[service]
	if !ok {
		se = &serviceEntry{}
		r.services[service] = se
	}
	se.endpoints = append(se.endpoints, e)
	r.mu.Unlock()

	r.logger.Info("endpoint registered",
		"service", service,
		"endpoint", ep.BaseURL(),
		"handle", e.handle,
	)

	r.updateGauges()

	return &Handle{ID: e.handle, Service: service}, nil
}

// Deregister удаляет endpoint по handle.
func (r *Registry) Deregister(h *Handle) error {
	if h == nil {
		return ErrHandleNotFound
	}

	r.mu.Lock()
	se, ok := r.services[h.Service]
	if !ok {
		r.mu.Unlock()
		return ErrHandleNotFound
	}

	idx := -1
	for i, e := range se.endpoints {
		if e.handle == h.ID {
			idx = i
			break
		}
	}
	if idx < 0 {
		r.mu.Unlock()
		return ErrHandleNotFound
	}

	se.endpoints = append(se.endpoints[:idx], se.endpoints[idx+1:]...)
	// Имя остаётся в карте и с пустым списком endpoint'ов:
	// оно было зарегистрировано, значит resolve должен отвечать
	// ServiceUnavailable, а не ServiceUnknown.
	r.mu.Unlock()

	r.logger.Info("endpoint deregistered", "service", h.Service, "handle", h.ID)
	r.updateGauges()

	return nil
}

// Resolved — результат разрешения логического имени.
type Resolved struct {
	// Service — логическое имя.
	Service string

	// Endpoint — выбранный здоровый endpoint.
	Endpoint Endpoint

	idempotentOps map[string]bool
}

// IsIdempotent проверяет, объявлена ли операция идемпотентной
// при регистрации endpoint'а.
func (res *Resolved) IsIdempotent(operation string) bool {
	return res.idempotentOps[operation]
}

// Resolve возвращает здоровый endpoint для логического имени.
//
// При нескольких здоровых endpoint'ах выбор round-robin по порядку
// регистрации (детерминированный, без рандома). Resolve не мутирует
// состояние здоровья — только atomic-счётчик round-robin.
//
// Ошибки:
//   - ErrServiceUnknown — имя никогда не регистрировалось
//   - ErrServiceUnavailable — зарегистрировано, но здоровых endpoint'ов нет
func (r *Registry) Resolve(service string) (*Resolved, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	se, ok := r.services[service]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrServiceUnknown, service)
	}

	healthy := make([]*entry, 0, len(se.endpoints))
	for _, e := range se.endpoints {
		if e.healthy {
			healthy = append(healthy, e)
		}
	}
	if len(healthy) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrServiceUnavailable, service)
	}

	n := se.rr.Add(1) - 1
	e := healthy[n%uint64(len(healthy))]

	return &Resolved{
		Service:       service,
		Endpoint:      e.endpoint,
		idempotentOps: e.idempotentOps,
	}, nil
}

// reportHealth фиксирует результат одной health-проверки endpoint'а.
//
// Деградация медленная: endpoint помечается нездоровым после
// failThreshold последовательных провалов. Восстановление быстрое:
// один успех возвращает endpoint в строй (защита от флаппинга).
func (r *Registry) reportHealth(service string, handle uuid.UUID, ok bool, failThreshold int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	se, exists := r.services[service]
	if !exists {
		return
	}
	for _, e := range se.endpoints {
		if e.handle != handle {
			continue
		}
		if ok {
			if !e.healthy {
				r.logger.Info("endpoint recovered",
					"service", service,
					"endpoint", e.endpoint.BaseURL(),
				)
			}
			e.healthy = true
			e.consecFails = 0
			return
		}

		e.consecFails++
		if e.healthy && e.consecFails >= failThreshold {
			e.healthy = false
			r.logger.Warn("endpoint marked unhealthy",
				"service", service,
				"endpoint", e.endpoint.BaseURL(),
				"consecutive_failures", e.consecFails,
			)
		}
		return
	}
}

// probe — снимок одного endpoint'а для health-check цикла.
type probe struct {
	service   string
	handle    uuid.UUID
	healthURL string
}

// probes возвращает снимок всех endpoint'ов для обхода health-checker'ом.
func (r *Registry) probes() []probe {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []probe
	for service, se := range r.services {
		for _, e := range se.endpoints {
			out = append(out, probe{
				service:   service,
				handle:    e.handle,
				healthURL: e.endpoint.BaseURL() + e.healthPath,
			})
		}
	}
	return out
}

// ServiceStatus — операционный снимок одного endpoint'а.
type ServiceStatus struct {
	Service  string    `json:"service"`
	Handle   uuid.UUID `json:"handle"`
	Endpoint Endpoint  `json:"endpoint"`
	Healthy  bool      `json:"healthy"`
}

// Snapshot возвращает состояние всех регистраций (для API и CLI).
func (r *Registry) Snapshot() []ServiceStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []ServiceStatus
	for service, se := range r.services {
		for _, e := range se.endpoints {
			out = append(out, ServiceStatus{
				Service:  service,
				Handle:   e.handle,
				Endpoint: e.endpoint,
				Healthy:  e.healthy,
			})
		}
	}
	return out
}

// updateGauges обновляет prometheus-гейджи по текущему состоянию.
func (r *Registry) updateGauges() {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var healthy, unhealthy float64
	for _, se := range r.services {
		for _, e := range se.endpoints {
			if e.healthy {
				healthy++
			} else {
				unhealthy++
			}
		}
	}
	telemetry.RegistryEndpoints.WithLabelValues("healthy").Set(healthy)
	telemetry.RegistryEndpoints.WithLabelValues("unhealthy").Set(unhealthy)
}
