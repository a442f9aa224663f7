// Package cmd はコマンドラインの定義
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"plantdoc-yolo/internal/config"
	"plantdoc-yolo/internal/metrics"
)

// app はサブコマンド間で共有する状態
type app struct {
	v           *viper.Viper
	cfgFile     string
	debug       bool
	metricsFile string

	logger  *zap.Logger
	metrics *metrics.Metrics
}

// Execute はルートコマンドを実行する。
// コマンドが失敗した場合もログの書き出しとメトリクスファイルの出力を行う
func Execute(ctx context.Context) error {
	a := &app{v: viper.New()}
	return a.execute(ctx, newRootCommand(a))
}

func (a *app) execute(ctx context.Context, root *cobra.Command) error {
	err := root.ExecuteContext(ctx)
	return errors.Join(err, a.finish())
}

// finish はメトリクスファイルを書き出し、ログをフラッシュする
func (a *app) finish() error {
	if a.logger == nil {
		return nil
	}
	defer func() { _ = a.logger.Sync() }()

	if a.metricsFile == "" || a.metrics == nil {
		return nil
	}
	if err := a.metrics.WriteFile(a.metricsFile); err != nil {
		return fmt.Errorf("メトリクスの書き出しに失敗: %w", err)
	}
	a.logger.Debug("メトリクスを書き出しました", zap.String("file", a.metricsFile))
	return nil
}

func newRootCommand(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "plantdoc-yolo",
		Short:         "PlantDocのラベル表からYOLO形式のデータセットを作成",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&a.cfgFile, "config", "", "設定ファイル (.env または yaml)")
	rootCmd.PersistentFlags().BoolVar(&a.debug, "debug", false, "デバッグログを出力")
	rootCmd.PersistentFlags().StringVar(&a.metricsFile, "metrics-file", "", "終了時にPrometheusテキスト形式でメトリクスを書き出すファイル")

	rootCmd.AddCommand(
		runCommand(a),
		statsCommand(a),
		archiveCommand(a),
		publishCommand(a),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if a.logger == nil {
			zcfg := zap.NewProductionConfig()
			if a.debug {
				zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			}
			logger, err := zcfg.Build()
			if err != nil {
				return fmt.Errorf("ロガーの初期化に失敗: %w", err)
			}
			a.logger = logger
		}

		m, err := metrics.New(prometheus.NewRegistry())
		if err != nil {
			return err
		}
		a.metrics = m
		return nil
	}

	return rootCmd
}

// bindFlags はフラグを設定キーに結びつける。
// 共有のviperに対して実行中のコマンドのフラグだけを結びつけるため、RunE の中で呼ぶ
func (a *app) bindFlags(cmd *cobra.Command, keys map[string]string) error {
	for flag, key := range keys {
		if err := a.v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("フラグ %s の設定に失敗: %w", flag, err)
		}
	}
	return nil
}

func (a *app) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("設定を読み込みました",
		zap.String("train_labels", cfg.TrainLabels),
		zap.String("val_labels", cfg.ValLabels),
		zap.String("output_dir", cfg.OutputDir),
		zap.Strings("species", cfg.PlantSpecies))
	return cfg, nil
}
