package registry

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Default configuration values.
const (
	defaultCheckInterval = 10 * time.Second
	defaultCheckTimeout  = 3 * time.Second
	defaultFailThreshold = 3
)

// HealthChecker — асинхронный цикл проверки здоровья endpoint'ов.
//
// Работает независимо от resolve: дергает health URL каждого
// endpoint'а раз в интервал и сообщает результат в Registry.
// Endpoint помечается нездоровым после FailThreshold последовательных
// провалов и здоровым после одного успеха.
type HealthChecker struct {
	registry *Registry
	client   *http.Client

	interval      time.Duration
	failThreshold int

	logger     *slog.Logger
	cancelFunc context.CancelFunc
	doneCh     chan struct{}
}

// HealthCheckerConfig — конфигурация HealthChecker.
type HealthCheckerConfig struct {
	Registry *Registry

	// Interval — период между циклами проверок (default: 10s).
	Interval time.Duration

	// Timeout — таймаут одного health-запроса (default: 3s).
	Timeout time.Duration

	// FailThreshold — сколько последовательных провалов помечают
	// endpoint нездоровым (default: 3).
	FailThreshold int

	Logger *slog.Logger
}

// NewHealthChecker создаёт HealthChecker.
func NewHealthChecker(cfg HealthCheckerConfig) *HealthChecker {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultCheckInterval
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultCheckTimeout
	}

	failThreshold := cfg.FailThreshold
	if failThreshold <= 0 {
		failThreshold = defaultFailThreshold
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &HealthChecker{
		registry:      cfg.Registry,
		client:        &http.Client{Timeout: timeout},
		interval:      interval,
		failThreshold: failThreshold,
		logger:        logger,
	}
}

// Start запускает цикл проверок в фоне и сразу возвращается.
// cancelFunc и doneCh присваиваются до запуска горутины, чтобы Stop
// из той же горутины, что и Start, видел их без гонки.
func (hc *HealthChecker) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	hc.cancelFunc = cancel
	hc.doneCh = make(chan struct{})

	hc.logger.Info("health checker started",
		"interval", hc.interval,
		"fail_threshold", hc.failThreshold,
	)

	go hc.run(ctx)
}

// run — цикл проверок до отмены ctx.
func (hc *HealthChecker) run(ctx context.Context) {
	defer close(hc.doneCh)

	ticker := time.NewTicker(hc.interval)
	defer ticker.Stop()

	// Первый проход сразу при старте
	hc.CheckOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			hc.logger.Info("health checker stopped")
			return
		case <-ticker.C:
			hc.CheckOnce(ctx)
		}
	}
}

// Stop останавливает цикл и дожидается его завершения.
func (hc *HealthChecker) Stop() {
	if hc.cancelFunc != nil {
		hc.cancelFunc()
	}
	if hc.doneCh != nil {
		<-hc.doneCh
	}
}

// CheckOnce выполняет один цикл проверок всех endpoint'ов.
// Экспортирован отдельно от Start, чтобы тесты могли прогонять
// циклы детерминированно без таймера.
func (hc *HealthChecker) CheckOnce(ctx context.Context) {
	for _, p := range hc.registry.probes() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		ok := hc.check(ctx, p.healthURL)
		hc.registry.reportHealth(p.service, p.handle, ok, hc.failThreshold)
	}

	hc.registry.updateGauges()
}

// check выполняет один health-запрос.
// Здоровым считается любой 2xx ответ.
func (hc *HealthChecker) check(ctx context.Context, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}

	resp, err := hc.client.Do(req)
	if err != nil {
		hc.logger.Debug("health check failed", "url", url, "error", err)
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
