package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vladislavdragonenkov/ordercore/internal/domain"
)

const (
	resultOK       = "ok"
	resultRejected = "rejected"
	resultNotFound = "not_found"
	resultError    = "error"
)

// OrderMetrics содержит метрики агрегата заказа, репозитория и входящих команд.
// Все методы безопасны для nil-получателя: компоненты могут работать без метрик.
type OrderMetrics struct {
	// Репозиторий
	repoOperations *prometheus.CounterVec
	repoDuration   *prometheus.HistogramVec

	// Use-cases
	ordersCreated    prometheus.Counter
	itemsAdded       prometheus.Counter
	domainRejections *prometheus.CounterVec

	// Kafka-команды
	commands *prometheus.CounterVec
}

// NewOrderMetrics создаёт метрики в глобальном registry.
func NewOrderMetrics() *OrderMetrics {
	return NewOrderMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOrderMetricsWithRegisterer создаёт метрики в указанном registry (удобно для тестов).
func NewOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OrderMetrics{
		repoOperations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "oms_repository_operations_total",
			Help: "Total number of order repository operations grouped by result",
		}, []string{"operation", "result"}),
		repoDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "oms_repository_operation_duration_seconds",
			Help:    "Duration of order repository operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"operation"}),
		ordersCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "oms_orders_created_total",
			Help: "Total number of confirmed orders created",
		}),
		itemsAdded: registerCounter(registerer, prometheus.CounterOpts{
			Name: "oms_order_items_added_total",
			Help: "Total number of line items added to existing orders",
		}),
		domainRejections: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "oms_order_rejections_total",
			Help: "Total number of use-case calls rejected by order invariants",
		}, []string{"kind"}),
		commands: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "oms_order_commands_total",
			Help: "Total number of order commands consumed from Kafka grouped by type and result",
		}, []string{"type", "result"}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// ObserveRepositoryOperation фиксирует длительность и исход операции репозитория.
func (m *OrderMetrics) ObserveRepositoryOperation(operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.repoDuration.WithLabelValues(operation).Observe(duration.Seconds())
	m.repoOperations.WithLabelValues(operation, resultLabel(err)).Inc()
}

// RecordOrderCreated увеличивает счётчик созданных заказов.
func (m *OrderMetrics) RecordOrderCreated() {
	if m == nil {
		return
	}
	m.ordersCreated.Inc()
}

// RecordItemAdded увеличивает счётчик позиций, добавленных к существующим заказам.
func (m *OrderMetrics) RecordItemAdded() {
	if m == nil {
		return
	}
	m.itemsAdded.Inc()
}

// RecordRejection учитывает бизнес-отказ по категории ошибки.
func (m *OrderMetrics) RecordRejection(err error) {
	if m == nil || err == nil {
		return
	}
	m.domainRejections.WithLabelValues(kindLabel(err)).Inc()
}

// RecordCommand учитывает обработку Kafka-команды.
func (m *OrderMetrics) RecordCommand(commandType string, err error) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(commandType, resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return resultOK
	case errors.Is(err, domain.ErrNotFound):
		return resultNotFound
	case domain.IsDomainRejection(err):
		return resultRejected
	default:
		return resultError
	}
}

func kindLabel(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, domain.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrPersistence):
		return "persistence"
	default:
		return "unknown"
	}
}
