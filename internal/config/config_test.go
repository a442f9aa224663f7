package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	content := "TRAIN_LABELS_CSV=data/train_labels.csv\n" +
		"TEST_LABELS_CSV=data/test_labels.csv\n" +
		"TRAIN_IMAGES_DIR=data/train\n" +
		"TEST_IMAGES_DIR=/abs/test\n" +
		"PLANT_SPECIES=Apple, Tomato ,Corn,\n" +
		"TARGET_SAMPLES=120\n"
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0o644))

	cfg, err := Load(viper.New(), envFile)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "data", "train_labels.csv"), cfg.TrainLabels)
	assert.Equal(t, filepath.Join(dir, "data", "test_labels.csv"), cfg.ValLabels)
	assert.Equal(t, filepath.Join(dir, "data", "train"), cfg.TrainImageDir)
	assert.Equal(t, "/abs/test", cfg.ValImageDir)
	assert.Equal(t, []string{"Apple", "Tomato", "Corn"}, cfg.PlantSpecies)
	assert.Equal(t, 120, cfg.TargetSamples)
	assert.Equal(t, DefaultExcludedDiseases, cfg.ExcludedDiseases)
	assert.Equal(t, filepath.Join(dir, "dataset"), cfg.OutputDir)
	assert.InDelta(t, 0.001, cfg.RareThreshold, 1e-9)
	require.NoError(t, cfg.Validate())
}

func TestLoadEnvironmentOverridesFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "pipeline.env")
	require.NoError(t, os.WriteFile(envFile, []byte("TRAIN_LABELS_CSV=a.csv\nTRAIN_IMAGES_DIR=img\n"), 0o644))

	t.Setenv("TRAIN_LABELS_CSV", "/from/env.csv")
	t.Setenv("EXCLUDED_DISEASES", "Rust,  Scab")

	cfg, err := Load(viper.New(), envFile)
	require.NoError(t, err)

	assert.Equal(t, "/from/env.csv", cfg.TrainLabels)
	assert.Equal(t, []string{"Rust", "Scab"}, cfg.ExcludedDiseases)
	assert.Equal(t, cfg.TrainImageDir, cfg.ValImageDir, "検証画像ディレクトリは学習用を引き継ぐ")
}

func TestLoadEmptyEnvironment(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "pipeline.env")
	require.NoError(t, os.WriteFile(envFile, []byte("TRAIN_LABELS_CSV=a.csv\nTRAIN_IMAGES_DIR=img\nBOX_MODE=csv\n"), 0o644))

	t.Setenv("EXCLUDED_DISEASES", "")
	t.Setenv("BOX_MODE", "")
	t.Setenv("VAL_RATIO", " ")
	t.Setenv("RARE_DISEASE_THRESHOLD", "")

	cfg, err := Load(viper.New(), envFile)
	require.NoError(t, err)

	assert.Empty(t, cfg.ExcludedDiseases, "空の指定は除外なし")
	assert.Equal(t, "full", cfg.BoxMode)
	assert.InDelta(t, 0.2, cfg.ValidationRatio, 1e-9)
	assert.InDelta(t, 0.001, cfg.RareThreshold, 1e-9)
	require.NoError(t, cfg.Validate())
}

func TestLoadYAMLList(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	content := "train_labels_csv: labels.csv\n" +
		"train_images_dir: images\n" +
		"plant_species:\n  - Apple\n  - Grape\n" +
		"box_mode: CSV\n"
	require.NoError(t, os.WriteFile(file, []byte(content), 0o644))

	cfg, err := Load(viper.New(), file)
	require.NoError(t, err)
	assert.Equal(t, []string{"Apple", "Grape"}, cfg.PlantSpecies)
	assert.Equal(t, "csv", cfg.BoxMode)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := NewDefaultConfig()
		c.TrainLabels = "train.csv"
		c.TrainImageDir = "train"
		return c
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"既定値", func(c *Config) {}, false},
		{"ラベル表なし", func(c *Config) { c.TrainLabels = "" }, true},
		{"画像ディレクトリなし", func(c *Config) { c.TrainImageDir = "" }, true},
		{"比率が1", func(c *Config) { c.ValidationRatio = 1.0 }, true},
		{"検証表があれば比率は無視", func(c *Config) { c.ValidationRatio = 0; c.ValLabels = "val.csv" }, false},
		{"負の目標数", func(c *Config) { c.TargetSamples = -1 }, true},
		{"しきい値が範囲外", func(c *Config) { c.RareThreshold = 1.5 }, true},
		{"ワーカー0", func(c *Config) { c.MaxCopyWorkers = 0 }, true},
		{"不明なボックスモード", func(c *Config) { c.BoxMode = "tight" }, true},
		{"不明な配置モード", func(c *Config) { c.LinkMode = "move" }, true},
		{"シンボリックリンク", func(c *Config) { c.LinkMode = "symlink" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestOutputPaths(t *testing.T) {
	c := NewDefaultConfig()
	c.OutputDir = "/out"

	p := c.OutputPaths("diseases")
	assert.Equal(t, "/out/diseases", p.Base)
	assert.Equal(t, "/out/diseases/images/train", p.ImagesTrain)
	assert.Equal(t, "/out/diseases/images/val", p.ImagesVal)
	assert.Equal(t, "/out/diseases/labels/train", p.LabelsTrain)
	assert.Equal(t, "/out/diseases/labels/val", p.LabelsVal)
	assert.Equal(t, "/out/diseases/dataset.yaml", p.Manifest)
}
