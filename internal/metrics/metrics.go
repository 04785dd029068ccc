// Package metrics 把上传引擎的注册表事件转换为 Prometheus 指标。
package metrics

import (
	"context"
	"sync"

	"github.com/Renedz21/client/internal/upload"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "dropzone"

// Uploads 汇总上传相关指标。
type Uploads struct {
	started   prometheus.Counter
	succeeded prometheus.Counter
	failed    prometheus.Counter
	cancelled prometheus.Counter
	bytes     prometheus.Counter
	inFlight  prometheus.Gauge
	files     *prometheus.GaugeVec

	mu     sync.Mutex
	status map[string]upload.Status
}

// NewUploads 在 reg 上注册指标；reg 为 nil 时使用默认注册表。
func NewUploads(reg prometheus.Registerer) *Uploads {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Uploads{
		status: make(map[string]upload.Status),
		started: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_started_total",
			Help:      "Number of file uploads started",
		}),
		succeeded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_succeeded_total",
			Help:      "Number of file uploads that completed",
		}),
		failed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_failed_total",
			Help:      "Number of file uploads that failed",
		}),
		cancelled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_cancelled_total",
			Help:      "Number of in-flight uploads cancelled by removal",
		}),
		bytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploaded_bytes_total",
			Help:      "Bytes of successfully uploaded files",
		}),
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uploads_in_flight",
			Help:      "Number of uploads currently in flight",
		}),
		files: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registry_files",
			Help:      "Number of registered files by status",
		}, []string{"status"}),
	}
}

// Watch 消费事件直到 ctx 结束或通道关闭。
func (u *Uploads) Watch(ctx context.Context, events <-chan upload.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			u.Observe(ev)
		}
	}
}

// Observe 处理单个事件。progress 事件不影响计数。
func (u *Uploads) Observe(ev upload.Event) {
	entry := ev.Entry

	u.mu.Lock()
	defer u.mu.Unlock()

	prev, known := u.status[entry.ID]
	switch ev.Type {
	case upload.EventAdded:
		u.status[entry.ID] = entry.Status
		u.files.WithLabelValues(string(entry.Status)).Inc()
	case upload.EventRemoved:
		delete(u.status, entry.ID)
		if known {
			u.files.WithLabelValues(string(prev)).Dec()
		}
		if entry.Status == upload.StatusUploading {
			u.cancelled.Inc()
			u.inFlight.Dec()
		}
	case upload.EventStatus:
		if known {
			u.files.WithLabelValues(string(prev)).Dec()
		}
		u.status[entry.ID] = entry.Status
		u.files.WithLabelValues(string(entry.Status)).Inc()
		u.observeTransition(entry)
	}
}

func (u *Uploads) observeTransition(entry upload.FileEntry) {
	switch entry.Status {
	case upload.StatusUploading:
		u.started.Inc()
		u.inFlight.Inc()
	case upload.StatusUploaded:
		u.succeeded.Inc()
		u.inFlight.Dec()
		u.bytes.Add(float64(entry.Source.Size))
	case upload.StatusFailed:
		u.failed.Inc()
		u.inFlight.Dec()
	}
}
