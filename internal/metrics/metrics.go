// Package metrics はパイプライン実行の集計値をPrometheus形式で保持する
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics はパイプラインのカウンタ群
type Metrics struct {
	registry        *prometheus.Registry
	recordsLoaded   *prometheus.CounterVec
	recordsDropped  *prometheus.CounterVec
	duplicatesAdded *prometheus.CounterVec
	imagesExported  *prometheus.CounterVec
	imagesSkipped   *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
}

// New はメトリクスを作成して registry に登録する
func New(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{
		registry: registry,
		recordsLoaded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plantdoc_records_loaded_total",
				Help: "Records loaded from label tables",
			},
			[]string{"split"},
		),
		recordsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plantdoc_records_dropped_total",
				Help: "Records dropped during cleaning, validation or filtering",
			},
			[]string{"reason"},
		),
		duplicatesAdded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plantdoc_duplicates_added_total",
				Help: "Records duplicated by class balancing",
			},
			[]string{"pipeline"},
		),
		imagesExported: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plantdoc_images_exported_total",
				Help: "Images written with a YOLO label file",
			},
			[]string{"pipeline", "split"},
		),
		imagesSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plantdoc_images_skipped_total",
				Help: "Images skipped during export",
			},
			[]string{"pipeline", "split", "reason"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "plantdoc_pipeline_duration_seconds",
				Help:    "Wall time of a pipeline run",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
			},
			[]string{"pipeline"},
		),
	}

	collectors := []prometheus.Collector{
		m.recordsLoaded,
		m.recordsDropped,
		m.duplicatesAdded,
		m.imagesExported,
		m.imagesSkipped,
		m.runDuration,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("メトリクスの登録に失敗: %w", err)
		}
	}

	return m, nil
}

// RecordLoaded は読み込んだレコード数を加算
func (m *Metrics) RecordLoaded(split string, n int) {
	m.recordsLoaded.WithLabelValues(split).Add(float64(n))
}

// RecordDropped は破棄したレコード数を理由別に加算
func (m *Metrics) RecordDropped(reason string, n int) {
	if n > 0 {
		m.recordsDropped.WithLabelValues(reason).Add(float64(n))
	}
}

// RecordDuplicates は均等化で追加した複製数を加算
func (m *Metrics) RecordDuplicates(pipeline string, n int) {
	m.duplicatesAdded.WithLabelValues(pipeline).Add(float64(n))
}

// RecordExport は書き出し結果を加算
func (m *Metrics) RecordExport(pipeline, split string, exported, missing, unmapped int) {
	m.imagesExported.WithLabelValues(pipeline, split).Add(float64(exported))
	m.imagesSkipped.WithLabelValues(pipeline, split, "missing").Add(float64(missing))
	m.imagesSkipped.WithLabelValues(pipeline, split, "unmapped").Add(float64(unmapped))
}

// ObserveRun はパイプラインの所要時間を記録
func (m *Metrics) ObserveRun(pipeline string, d time.Duration) {
	m.runDuration.WithLabelValues(pipeline).Observe(d.Seconds())
}

// WriteFile はテキスト形式でメトリクスを書き出す (node_exporter の textfile collector 向け)
func (m *Metrics) WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
