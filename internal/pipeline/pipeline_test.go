package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"plantdoc-yolo/internal/config"
	"plantdoc-yolo/internal/dataset"
	"plantdoc-yolo/internal/metrics"
	"plantdoc-yolo/internal/testutil"
	"plantdoc-yolo/internal/yolo"
)

// newFixture は学習用7件・検証用4件のラベル表と画像を作る
func newFixture(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	trainImages := filepath.Join(dir, "train")
	testutil.WriteLabels(t, filepath.Join(dir, "train_labels.csv"), trainImages, []testutil.LabelRow{
		{Filename: "a1.png", Class: "Apple leaf", Width: 10, Height: 8},
		{Filename: "a2.png", Class: "Apple Scab Leaf", Width: 10, Height: 8},
		{Filename: "a3.png", Class: "Apple_rust_leaf", Width: 10, Height: 8},
		{Filename: "t1.png", Class: "Tomato leaf", Width: 10, Height: 8},
		{Filename: "t2.png", Class: "Tomato leaf late blight", Width: 0, Height: 0},
		{Filename: "t3.png", Class: "Tomato mold leaf", Width: 10, Height: 8},
		{Filename: "c1.png", Class: "Corn rust leaf", Width: 10, Height: 8},
	})

	valImages := filepath.Join(dir, "test")
	testutil.WriteLabels(t, filepath.Join(dir, "test_labels.csv"), valImages, []testutil.LabelRow{
		{Filename: "v1.png", Class: "Apple leaf", Width: 10, Height: 8},
		{Filename: "v2.png", Class: "Tomato late blight leaf", Width: 10, Height: 8},
		{Filename: "v3.png", Class: "Tomato mold leaf", Width: 10, Height: 8},
		{Filename: "v4.png", Class: "Potato virus leaf", Width: 10, Height: 8},
	})

	cfg := config.NewDefaultConfig()
	cfg.TrainLabels = filepath.Join(dir, "train_labels.csv")
	cfg.ValLabels = filepath.Join(dir, "test_labels.csv")
	cfg.TrainImageDir = trainImages
	cfg.ValImageDir = valImages
	cfg.PlantSpecies = []string{"Apple", "Tomato"}
	cfg.OutputDir = filepath.Join(dir, "out")
	cfg.TargetSamples = 4
	cfg.MaxCopyWorkers = 2
	cfg.Seed = 42
	require.NoError(t, cfg.Validate())
	return cfg
}

func readLabel(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.TrimSpace(string(b))
}

func countFiles(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	return len(entries)
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
	}{
		{"binary", KindBinary},
		{" Species ", KindSpecies},
		{"disease", KindDisease},
		{"diseases", KindDisease},
	}
	for _, tt := range tests {
		got, err := ParseKind(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseKind("color")
	assert.ErrorIs(t, err, ErrUnknownPipeline)

	assert.Equal(t, "diseases", KindDisease.OutputDir())
	assert.Equal(t, "binary", KindBinary.OutputDir())
}

func TestNewRequiresSpeciesList(t *testing.T) {
	cfg := config.NewDefaultConfig()
	_, err := New(KindSpecies, cfg)
	assert.ErrorIs(t, err, ErrNoSpecies)
	_, err = New(KindDisease, cfg)
	assert.ErrorIs(t, err, ErrNoSpecies)

	p, err := New(KindBinary, cfg)
	require.NoError(t, err)
	assert.Equal(t, KindBinary, p.Kind())

	_, err = New(Kind("other"), cfg)
	assert.ErrorIs(t, err, ErrUnknownPipeline)
}

func TestDiseaseFilter(t *testing.T) {
	rec := func(disease string) dataset.Record { return dataset.Record{Disease: disease} }

	var train []dataset.Record
	for i := 0; i < 8; i++ {
		train = append(train, rec("Rust"))
	}
	train = append(train, rec("Scab"), rec("healthy"), rec("black rot"))
	val := []dataset.Record{rec("Rust"), rec("Scab"), rec("healthy"), rec("Black Rot")}

	d := NewDisease(0.1, []string{"Black Rot"})
	gotTrain, gotVal, report := d.Filter(train, val)

	// Scab は 1/10 で 0.1 未満ではない
	assert.Equal(t, []string{"Rust", "Scab"}, d.Classes(gotTrain))
	assert.Len(t, gotTrain, 9)
	assert.Len(t, gotVal, 2)
	assert.Equal(t, map[string]int{"healthy": 2, "excluded": 2}, report.Dropped)
	assert.Equal(t, []string{"Black Rot", "black rot"}, report.Excluded)

	d = NewDisease(0.2, nil)
	gotTrain, gotVal, report = d.Filter(train, val)
	assert.Equal(t, []string{"Rust"}, d.Classes(gotTrain))
	assert.Len(t, gotVal, 1)
	assert.Equal(t, []string{"Black Rot", "Scab", "black rot"}, report.Excluded)
}

func TestRunBinary(t *testing.T) {
	cfg := newFixture(t)
	runner := NewRunner(cfg, zap.NewNop(), nil)
	runner.Verify = true

	p, err := New(KindBinary, cfg)
	require.NoError(t, err)

	res, err := runner.Run(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, []string{"healthy", "disease"}, res.Classes)
	// healthy 2件 → 4件, disease 5件はそのまま
	assert.Equal(t, 2, res.Balance.Added)
	assert.Equal(t, yolo.ExportStats{Exported: 9}, res.Train)
	assert.Equal(t, yolo.ExportStats{Exported: 4}, res.Val)
	require.NotNil(t, res.Layout)
	assert.True(t, res.Layout.OK())

	dir := filepath.Join(cfg.OutputDir, "binary")
	assert.Equal(t, dir, res.Dir)
	assert.Equal(t, 9, countFiles(t, filepath.Join(dir, "images", "train")))
	assert.Equal(t, 9, countFiles(t, filepath.Join(dir, "labels", "train")))
	assert.Equal(t, "0 0.500000 0.500000 1.000000 1.000000", readLabel(t, filepath.Join(dir, "labels", "train", "a1.txt")))
	assert.Equal(t, "1 0.500000 0.500000 1.000000 1.000000", readLabel(t, filepath.Join(dir, "labels", "val", "v4.txt")))

	m, err := yolo.ReadManifest(res.Manifest)
	require.NoError(t, err)
	assert.Equal(t, 2, m.NC)
	assert.Equal(t, map[int]string{0: "healthy", 1: "disease"}, m.Names)
	assert.True(t, filepath.IsAbs(m.Path))
}

func TestRunSpecies(t *testing.T) {
	cfg := newFixture(t)
	runner := NewRunner(cfg, zap.NewNop(), nil)

	p, err := New(KindSpecies, cfg)
	require.NoError(t, err)

	plan, err := runner.Plan(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"no_species": 2}, plan.Filter.Dropped)
	for _, cc := range plan.After {
		assert.Equal(t, 4, cc.Count, cc.Class)
	}

	res, err := runner.Run(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, []string{"Apple", "Tomato"}, res.Classes)
	assert.Equal(t, 8, res.Train.Exported)
	assert.Equal(t, 3, res.Val.Exported)

	m, err := yolo.ReadManifest(res.Manifest)
	require.NoError(t, err)
	assert.Equal(t, len(cfg.PlantSpecies), m.NC)
}

func TestRunDisease(t *testing.T) {
	cfg := newFixture(t)
	cfg.TargetSamples = 0
	runner := NewRunner(cfg, zap.NewNop(), nil)

	p, err := New(KindDisease, cfg)
	require.NoError(t, err)

	res, err := runner.Run(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(cfg.OutputDir, "diseases"), res.Dir)
	assert.Equal(t, []string{"Corn Rust", "Late Blight", "Rust", "Scab"}, res.Classes)
	assert.Zero(t, res.Balance.Added)
	assert.Equal(t, 4, res.Train.Exported)
	assert.Equal(t, yolo.ExportStats{Exported: 1, Unmapped: 1}, res.Val)

	m, err := yolo.ReadManifest(res.Manifest)
	require.NoError(t, err)
	for _, name := range m.Names {
		assert.NotEqual(t, dataset.Healthy, name)
		assert.NotEqual(t, "Mold", name)
	}
}

func TestRunAllSharesLoadedData(t *testing.T) {
	cfg := newFixture(t)
	m, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)

	runner := NewRunner(cfg, zap.NewNop(), m)
	first, err := runner.Load(context.Background())
	require.NoError(t, err)

	results, err := runner.RunAll(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, KindBinary, results[0].Kind)
	assert.Equal(t, KindSpecies, results[1].Kind)
	assert.Equal(t, KindDisease, results[2].Kind)
	assert.Equal(t, results[0].RunID, results[2].RunID)

	second, err := runner.Load(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, second)

	for _, kind := range AllKinds {
		assert.FileExists(t, filepath.Join(cfg.OutputDir, kind.OutputDir(), yolo.ManifestName))
	}

	path := filepath.Join(t.TempDir(), "run.prom")
	require.NoError(t, m.WriteFile(path))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), `plantdoc_images_exported_total{pipeline="binary",split="train"} 9`)
}

func TestRunDropsMissingImages(t *testing.T) {
	cfg := newFixture(t)
	require.NoError(t, os.Remove(filepath.Join(cfg.TrainImageDir, "a2.png")))

	runner := NewRunner(cfg, zap.NewNop(), nil)
	data, err := runner.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, data.Train, 6)

	// 画像ヘッダから補った幅・高さ
	for _, r := range data.Train {
		if r.Filename == "t2.png" {
			assert.Equal(t, 8, r.Width)
			assert.Equal(t, 6, r.Height)
		}
	}
}

func TestRunSplitsWithoutValTable(t *testing.T) {
	cfg := newFixture(t)
	cfg.ValLabels = ""
	cfg.ValidationRatio = 0.3

	runner := NewRunner(cfg, zap.NewNop(), nil)
	data, err := runner.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, data.Train, 4)
	assert.Len(t, data.Val, 3)
}

func TestRunNoRecords(t *testing.T) {
	dir := t.TempDir()
	cfg := config.NewDefaultConfig()
	cfg.TrainLabels = filepath.Join(dir, "labels.csv")
	cfg.TrainImageDir = filepath.Join(dir, "images")
	cfg.ValImageDir = cfg.TrainImageDir
	cfg.OutputDir = filepath.Join(dir, "out")
	cfg.PlantSpecies = []string{"Apple", "Tomato"}
	cfg.Seed = 1
	testutil.WriteLabels(t, cfg.TrainLabels, cfg.TrainImageDir, []testutil.LabelRow{
		{Filename: "a.png", Class: "Apple leaf", Width: 4, Height: 4},
		{Filename: "b.png", Class: "Tomato leaf", Width: 4, Height: 4},
	})

	p, err := New(KindDisease, cfg)
	require.NoError(t, err)

	runner := NewRunner(cfg, zap.NewNop(), nil)
	_, err = runner.Run(context.Background(), p)
	assert.ErrorIs(t, err, ErrNoRecords)
}
