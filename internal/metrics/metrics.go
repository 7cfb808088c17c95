// Package metrics exposes download and admission metrics in the Prometheus
// text format.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pavelc4/aether-fetch/internal/resource"
	"github.com/pavelc4/aether-fetch/internal/supervisor"
	"github.com/pavelc4/aether-fetch/pkg/logger"
)

const namespace = "aether"

// Metrics owns its registry so that tests and multiple instances never
// collide on the global default registerer.
type Metrics struct {
	registry *prometheus.Registry

	slotsInUse      prometheus.Gauge
	activeUsers     prometheus.Gauge
	slotRejections  *prometheus.CounterVec
	tasksTotal      *prometheus.CounterVec
	failuresTotal   *prometheus.CounterVec
	rateLimited     prometheus.Counter
	durationSeconds *prometheus.HistogramVec
	fileSizeBytes   *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.slotsInUse = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "slots_in_use",
		Help:      "Download slots currently held.",
	})
	m.activeUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_users",
		Help:      "Users holding at least one download slot.",
	})
	m.slotRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "slot_rejections_total",
		Help:      "Slot requests rejected by reason.",
	}, []string{"reason"})
	m.tasksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_total",
		Help:      "Finished download tasks by platform and terminal state.",
	}, []string{"platform", "state"})
	m.failuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "failures_total",
		Help:      "Failed download tasks by failure kind.",
	}, []string{"kind"})
	m.rateLimited = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_limited_total",
		Help:      "Requests denied by the per-user rate limiter.",
	})
	m.durationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "task_duration_seconds",
		Help:      "Wall-clock duration of finished tasks.",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 20, 30, 60, 120, 300},
	}, []string{"platform"})
	m.fileSizeBytes = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "file_size_bytes",
		Help:      "Size of completed downloads.",
		Buckets:   prometheus.ExponentialBuckets(1<<20, 2, 9), // 1 MiB .. 256 MiB
	}, []string{"platform"})

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.slotsInUse,
		m.activeUsers,
		m.slotRejections,
		m.tasksTotal,
		m.failuresTotal,
		m.rateLimited,
		m.durationSeconds,
		m.fileSizeBytes,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SlotsChanged implements resource.Observer.
func (m *Metrics) SlotsChanged(globalInUse, users int) {
	m.slotsInUse.Set(float64(globalInUse))
	m.activeUsers.Set(float64(users))
}

// SlotRejected implements resource.Observer.
func (m *Metrics) SlotRejected(reason resource.Reason) {
	m.slotRejections.WithLabelValues(reason.String()).Inc()
}

// TaskFinished implements supervisor.Recorder.
func (m *Metrics) TaskFinished(o supervisor.Outcome) {
	p := o.Platform.String()
	m.tasksTotal.WithLabelValues(p, o.State.String()).Inc()
	m.durationSeconds.WithLabelValues(p).Observe(o.Elapsed.Seconds())

	switch {
	case o.State == supervisor.StateCompleted:
		m.fileSizeBytes.WithLabelValues(p).Observe(float64(o.Bytes))
	case o.Kind != "":
		m.failuresTotal.WithLabelValues(o.Kind.String()).Inc()
		if o.Kind == supervisor.KindRateLimited {
			m.rateLimited.Inc()
		}
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Serve exposes /metrics and /healthz on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Metrics server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}
