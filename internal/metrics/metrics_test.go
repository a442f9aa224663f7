package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordCounters(t *testing.T) {
	m, err := New(prometheus.NewRegistry())
	require.NoError(t, err)

	m.RecordLoaded("train", 10)
	m.RecordLoaded("train", 5)
	m.RecordDropped("missing_image", 2)
	m.RecordDropped("malformed", 0)
	m.RecordDuplicates("disease", 7)
	m.RecordExport("binary", "val", 4, 1, 2)

	assert.Equal(t, float64(15), testutil.ToFloat64(m.recordsLoaded.WithLabelValues("train")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.recordsDropped.WithLabelValues("missing_image")))
	assert.Equal(t, float64(7), testutil.ToFloat64(m.duplicatesAdded.WithLabelValues("disease")))
	assert.Equal(t, float64(4), testutil.ToFloat64(m.imagesExported.WithLabelValues("binary", "val")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.imagesSkipped.WithLabelValues("binary", "val", "missing")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.imagesSkipped.WithLabelValues("binary", "val", "unmapped")))

	assert.Equal(t, 1, testutil.CollectAndCount(m.recordsDropped), "0件の理由は系列を作らない")
}

func TestNewRejectsDoubleRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()
	_, err := New(registry)
	require.NoError(t, err)

	_, err = New(registry)
	assert.Error(t, err)
}

func TestWriteFile(t *testing.T) {
	m, err := New(prometheus.NewRegistry())
	require.NoError(t, err)

	m.ObserveRun("species", 1500*time.Millisecond)
	m.RecordLoaded("val", 3)

	path := filepath.Join(t.TempDir(), "plantdoc.prom")
	require.NoError(t, m.WriteFile(path))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), `plantdoc_records_loaded_total{split="val"} 3`)
	assert.Contains(t, string(b), `plantdoc_pipeline_duration_seconds_count{pipeline="species"} 1`)
}
