package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// 設定キー (環境変数名はキーの大文字表記)
const (
	KeyTrainLabels      = "train_labels_csv"
	KeyValLabels        = "test_labels_csv"
	KeyTrainImages      = "train_images_dir"
	KeyValImages        = "test_images_dir"
	KeyPlantSpecies     = "plant_species"
	KeyOutputDir        = "output_dir"
	KeyTargetSamples    = "target_samples"
	KeyRareThreshold    = "rare_disease_threshold"
	KeyExcludedDiseases = "excluded_diseases"
	KeyValRatio         = "val_ratio"
	KeyBoxMode          = "box_mode"
	KeyLinkMode         = "link_mode"
	KeyCopyWorkers      = "copy_workers"
	KeySeed             = "seed"
	KeyS3Bucket         = "s3_bucket"
	KeyS3Region         = "s3_region"
	KeyS3Endpoint       = "s3_endpoint"
	KeyS3Prefix         = "s3_prefix"
)

// DefaultExcludedDiseases は学習対象から外す病名の既定値
var DefaultExcludedDiseases = []string{"Blight", "Mold", "Spot", "Black Rot", "Gray Spot"}

// Config は設定情報を保持
type Config struct {
	TrainLabels      string   // 学習用ラベル表
	ValLabels        string   // 検証用ラベル表 (空なら学習用から分割)
	TrainImageDir    string   // 学習用画像ディレクトリ
	ValImageDir      string   // 検証用画像ディレクトリ
	PlantSpecies     []string // 植物種の一覧
	OutputDir        string   // 出力先ディレクトリ
	TargetSamples    int      // クラスごとの目標サンプル数 (0=均等化なし)
	RareThreshold    float64  // 希少病名とみなす割合
	ExcludedDiseases []string // 除外する病名
	ValidationRatio  float64  // 検証データ比率
	BoxMode          string   // full または csv
	LinkMode         string   // copy, symlink, hardlink
	MaxCopyWorkers   int      // 最大コピーワーカー数
	Seed             int64    // 乱数シード (0=時刻から生成)
	S3               S3Config
}

// S3Config はデータセット公開先
type S3Config struct {
	Bucket   string
	Region   string
	Endpoint string // MinIO など
	Prefix   string
}

// Paths はパイプラインごとの出力パス
type Paths struct {
	Base        string
	ImagesTrain string
	ImagesVal   string
	LabelsTrain string
	LabelsVal   string
	Manifest    string
}

// NewDefaultConfig はデフォルト設定を返す
func NewDefaultConfig() *Config {
	return &Config{
		OutputDir:        "dataset",
		RareThreshold:    0.001,
		ExcludedDiseases: append([]string(nil), DefaultExcludedDiseases...),
		ValidationRatio:  0.2,
		BoxMode:          "full",
		LinkMode:         "copy",
		MaxCopyWorkers:   runtime.NumCPU(),
	}
}

// SetDefaults はviperに既定値を登録
func SetDefaults(v *viper.Viper) {
	d := NewDefaultConfig()
	v.SetDefault(KeyOutputDir, d.OutputDir)
	v.SetDefault(KeyTargetSamples, 0)
	v.SetDefault(KeyRareThreshold, d.RareThreshold)
	v.SetDefault(KeyExcludedDiseases, d.ExcludedDiseases)
	v.SetDefault(KeyValRatio, d.ValidationRatio)
	v.SetDefault(KeyBoxMode, d.BoxMode)
	v.SetDefault(KeyLinkMode, d.LinkMode)
	v.SetDefault(KeyCopyWorkers, d.MaxCopyWorkers)
	v.SetDefault(KeySeed, 0)
}

// Load は環境変数と設定ファイル(.env / yaml)から設定を読み込む。
// 相対パスは設定ファイルのあるディレクトリ(なければ作業ディレクトリ)を基準に解決する。
// 空の環境変数も設定値として扱う。EXCLUDED_DISEASES="" は除外なしになり、
// 空の文字列・小数の項目は既定値に戻る。
func Load(v *viper.Viper, file string) (*Config, error) {
	SetDefaults(v)
	v.AllowEmptyEnv(true)
	v.AutomaticEnv()
	d := NewDefaultConfig()

	baseDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("作業ディレクトリの取得に失敗: %w", err)
	}

	if file != "" {
		v.SetConfigFile(file)
		if isDotEnv(file) {
			v.SetConfigType("env")
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("設定ファイルの読み込みに失敗 %s: %w", file, err)
		}
		abs, err := filepath.Abs(file)
		if err != nil {
			return nil, err
		}
		baseDir = filepath.Dir(abs)
	}

	cfg := &Config{
		TrainLabels:      resolve(baseDir, v.GetString(KeyTrainLabels)),
		ValLabels:        resolve(baseDir, v.GetString(KeyValLabels)),
		TrainImageDir:    resolve(baseDir, v.GetString(KeyTrainImages)),
		ValImageDir:      resolve(baseDir, v.GetString(KeyValImages)),
		PlantSpecies:     stringList(v, KeyPlantSpecies),
		OutputDir:        resolve(baseDir, stringOr(v, KeyOutputDir, d.OutputDir)),
		TargetSamples:    v.GetInt(KeyTargetSamples),
		RareThreshold:    floatOr(v, KeyRareThreshold, d.RareThreshold),
		ExcludedDiseases: stringList(v, KeyExcludedDiseases),
		ValidationRatio:  floatOr(v, KeyValRatio, d.ValidationRatio),
		BoxMode:          strings.ToLower(stringOr(v, KeyBoxMode, d.BoxMode)),
		LinkMode:         strings.ToLower(stringOr(v, KeyLinkMode, d.LinkMode)),
		MaxCopyWorkers:   v.GetInt(KeyCopyWorkers),
		Seed:             v.GetInt64(KeySeed),
		S3: S3Config{
			Bucket:   v.GetString(KeyS3Bucket),
			Region:   v.GetString(KeyS3Region),
			Endpoint: v.GetString(KeyS3Endpoint),
			Prefix:   v.GetString(KeyS3Prefix),
		},
	}

	if cfg.ValImageDir == "" {
		cfg.ValImageDir = cfg.TrainImageDir
	}
	if cfg.MaxCopyWorkers == 0 {
		cfg.MaxCopyWorkers = runtime.NumCPU()
	}

	return cfg, nil
}

// Validate は設定の妥当性をチェック
func (c *Config) Validate() error {
	if c.TrainLabels == "" {
		return fmt.Errorf("学習用ラベル表が指定されていません (TRAIN_LABELS_CSV)")
	}
	if c.TrainImageDir == "" {
		return fmt.Errorf("学習用画像ディレクトリが指定されていません (TRAIN_IMAGES_DIR)")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("出力先ディレクトリが指定されていません")
	}
	if c.ValLabels == "" && (c.ValidationRatio <= 0.0 || c.ValidationRatio >= 1.0) {
		return fmt.Errorf("検証データ比率は0.0より大きく1.0より小さい値である必要があります")
	}
	if c.TargetSamples < 0 {
		return fmt.Errorf("目標サンプル数は0以上である必要があります")
	}
	if c.RareThreshold < 0.0 || c.RareThreshold >= 1.0 {
		return fmt.Errorf("希少病名のしきい値は0.0以上1.0未満である必要があります")
	}
	if c.MaxCopyWorkers < 1 {
		return fmt.Errorf("最大コピーワーカー数は1以上である必要があります")
	}
	switch c.BoxMode {
	case "full", "csv":
	default:
		return fmt.Errorf("不明なボックスモードです: %q (full, csv)", c.BoxMode)
	}
	switch c.LinkMode {
	case "copy", "symlink", "hardlink":
	default:
		return fmt.Errorf("不明な配置モードです: %q (copy, symlink, hardlink)", c.LinkMode)
	}
	return nil
}

// OutputPaths はサブディレクトリ名に対応する出力パスを返す
func (c *Config) OutputPaths(subDir string) Paths {
	base := filepath.Join(c.OutputDir, subDir)
	return Paths{
		Base:        base,
		ImagesTrain: filepath.Join(base, "images", "train"),
		ImagesVal:   filepath.Join(base, "images", "val"),
		LabelsTrain: filepath.Join(base, "labels", "train"),
		LabelsVal:   filepath.Join(base, "labels", "val"),
		Manifest:    filepath.Join(base, "dataset.yaml"),
	}
}

func isDotEnv(file string) bool {
	base := filepath.Base(file)
	return base == ".env" || strings.HasSuffix(base, ".env")
}

func resolve(baseDir, p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(baseDir, p)
}

// stringOr は値が空なら def を返す
func stringOr(v *viper.Viper, key, def string) string {
	if s := strings.TrimSpace(v.GetString(key)); s != "" {
		return s
	}
	return def
}

func floatOr(v *viper.Viper, key string, def float64) float64 {
	if strings.TrimSpace(v.GetString(key)) == "" {
		return def
	}
	return v.GetFloat64(key)
}

// stringList はカンマ区切り文字列とリスト値の両方を受け付ける
func stringList(v *viper.Viper, key string) []string {
	var items []string
	switch v.Get(key).(type) {
	case []interface{}, []string:
		items = v.GetStringSlice(key)
	default:
		items = strings.Split(v.GetString(key), ",")
	}

	var out []string
	for _, item := range items {
		if s := strings.TrimSpace(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}
