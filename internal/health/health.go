// Package health отдаёт состояние зависимостей сервиса заказов по HTTP.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Status описывает состояние компонента или сервиса целиком.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// rank упорядочивает статусы от лучшего к худшему.
func (s Status) rank() int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}

const defaultCheckTimeout = 2 * time.Second

// Check описывает результат одной проверки.
type Check struct {
	Name       string `json:"name"`
	Status     Status `json:"status"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Response описывает тело ответа /healthz.
type Response struct {
	Service       string           `json:"service"`
	Status        Status           `json:"status"`
	Timestamp     time.Time        `json:"timestamp"`
	Checks        map[string]Check `json:"checks,omitempty"`
	Version       string           `json:"version,omitempty"`
	UptimeSeconds int64            `json:"uptime_seconds"`
}

// failing возвращает отсортированные имена проверок, которые снимают готовность.
func (r Response) failing() []string {
	var names []string
	for name, c := range r.Checks {
		if c.Status == StatusUnhealthy {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// Checker описывает проверяемый компонент.
type Checker interface {
	Check(ctx context.Context) Check
}

// Handler опрашивает зарегистрированные компоненты и отдаёт сводку.
type Handler struct {
	service string
	version string
	timeout time.Duration
	started time.Time
	now     func() time.Time
	logger  *log.Entry

	mu       sync.RWMutex
	checkers map[string]Checker
	last     Status
}

// NewHandler создаёт обработчик без зарегистрированных проверок.
func NewHandler(service, version string) *Handler {
	return &Handler{
		service:  service,
		version:  version,
		timeout:  defaultCheckTimeout,
		started:  time.Now(),
		now:      time.Now,
		logger:   log.WithField("component", "health"),
		checkers: make(map[string]Checker),
		last:     StatusHealthy,
	}
}

// RegisterChecker добавляет проверку. Повторная регистрация с тем же именем заменяет прежнюю.
func (h *Handler) RegisterChecker(name string, checker Checker) {
	h.mu.Lock()
	h.checkers[name] = checker
	h.mu.Unlock()
}

// Evaluate опрашивает все компоненты параллельно с общим таймаутом.
func (h *Handler) Evaluate(ctx context.Context) Response {
	h.mu.RLock()
	checkers := make(map[string]Checker, len(h.checkers))
	for name, c := range h.checkers {
		checkers[name] = c
	}
	h.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	var (
		mu      sync.Mutex
		results = make(map[string]Check, len(checkers))
		g       errgroup.Group
	)
	for name, c := range checkers {
		g.Go(func() error {
			check := c.Check(ctx)
			mu.Lock()
			results[name] = check
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	overall := StatusHealthy
	for _, c := range results {
		if c.Status.rank() > overall.rank() {
			overall = c.Status
		}
	}
	h.noteTransition(overall, results)

	return Response{
		Service:       h.service,
		Status:        overall,
		Timestamp:     h.now().UTC(),
		Checks:        results,
		Version:       h.version,
		UptimeSeconds: int64(h.now().Sub(h.started).Seconds()),
	}
}

func (h *Handler) noteTransition(current Status, checks map[string]Check) {
	h.mu.Lock()
	previous := h.last
	h.last = current
	h.mu.Unlock()

	if previous == current {
		return
	}
	entry := h.logger.WithFields(log.Fields{"from": previous, "to": current})
	for name, c := range checks {
		if c.Status != StatusHealthy {
			entry = entry.WithField("check_"+name, c.Message)
		}
	}
	if current == StatusHealthy {
		entry.Info("service recovered")
		return
	}
	entry.Warn("service health changed")
}

// ServeHTTP отдаёт JSON-сводку. Unhealthy отвечает 503, degraded остаётся 200.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := h.Evaluate(r.Context())

	code := http.StatusOK
	if resp.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}

// ReadinessHandler отвечает 503 со списком упавших обязательных компонентов.
func (h *Handler) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if failing := h.Evaluate(r.Context()).failing(); len(failing) > 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready: " + strings.Join(failing, ",")))
		return
	}
	_, _ = w.Write([]byte("ready"))
}

// LivenessHandler отвечает 200, пока процесс обслуживает HTTP.
func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

// CheckFunc описывает проверку, заданную функцией.
type CheckFunc func(ctx context.Context) error

type funcChecker struct {
	name      string
	fn        CheckFunc
	onFailure Status
}

func (c funcChecker) Check(ctx context.Context) Check {
	start := time.Now()
	err := c.fn(ctx)
	check := Check{Name: c.name, Status: StatusHealthy, DurationMs: time.Since(start).Milliseconds()}
	if err != nil {
		check.Status = c.onFailure
		check.Message = err.Error()
	}
	return check
}

// NewRequiredChecker создаёт проверку обязательного компонента: провал делает сервис unhealthy.
func NewRequiredChecker(name string, fn CheckFunc) Checker {
	return funcChecker{name: name, fn: fn, onFailure: StatusUnhealthy}
}

// NewOptionalChecker создаёт проверку необязательного компонента: провал даёт degraded.
func NewOptionalChecker(name string, fn CheckFunc) Checker {
	return funcChecker{name: name, fn: fn, onFailure: StatusDegraded}
}

// Pinger описывает зависимость с Ping(ctx), например хранилище заказов.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewPingChecker считает зависимость обязательной.
func NewPingChecker(name string, pinger Pinger) Checker {
	return NewRequiredChecker(name, pinger.Ping)
}
