package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"canalis/internal/domain"
)

// Metrics — счётчики выполнения пайплайна.
//
// Реализует наблюдателя задач: TaskStarted/TaskFinished вызываются
// executor'ом из горутин задач.
type Metrics struct {
	// SubjectsTotal — субъекты по терминальному исходу.
	SubjectsTotal *prometheus.CounterVec

	// TasksTotal — задачи по типу и статусу.
	TasksTotal *prometheus.CounterVec

	// TaskDuration — длительность задач по типу.
	TaskDuration *prometheus.HistogramVec

	// ToolFailuresTotal — отказы внешних инструментов по типу задачи.
	ToolFailuresTotal *prometheus.CounterVec
}

// NewMetrics регистрирует метрики в реестре reg.
// При nil используется реестр по умолчанию.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		SubjectsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "canalis_subjects_total",
			Help: "Subjects by terminal outcome.",
		}, []string{"outcome"}),
		TasksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "canalis_tasks_total",
			Help: "Pipeline tasks by kind and status.",
		}, []string{"kind", "status"}),
		TaskDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "canalis_task_duration_seconds",
			Help:    "Task execution time by kind.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
		}, []string{"kind"}),
		ToolFailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "canalis_tool_failures_total",
			Help: "External tool failures by task kind.",
		}, []string{"kind"}),
	}
}

// ObserveSubject учитывает терминальный исход субъекта.
func (m *Metrics) ObserveSubject(outcome domain.Outcome) {
	m.SubjectsTotal.WithLabelValues(string(outcome)).Inc()
}

// TaskStarted реализует наблюдателя задач.
func (m *Metrics) TaskStarted(def *domain.TaskDef) {
	m.TasksTotal.WithLabelValues(string(def.Kind), string(domain.TaskStatusRunning)).Inc()
}

// TaskFinished реализует наблюдателя задач.
func (m *Metrics) TaskFinished(def *domain.TaskDef, status domain.TaskStatus, err error, elapsed time.Duration) {
	m.TasksTotal.WithLabelValues(string(def.Kind), string(status)).Inc()
	if status == domain.TaskStatusFailed {
		m.ToolFailuresTotal.WithLabelValues(string(def.Kind)).Inc()
	}
	if elapsed > 0 {
		m.TaskDuration.WithLabelValues(string(def.Kind)).Observe(elapsed.Seconds())
	}
}

// ServeMetrics поднимает HTTP-сервер с /metrics и /healthz и блокирует
// до отмены контекста.
func ServeMetrics(ctx context.Context, addr string, log *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Info("metrics server listening", "addr", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
