package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"plantdoc-yolo/internal/config"
	"plantdoc-yolo/internal/pipeline"
	"plantdoc-yolo/internal/processor"
	"plantdoc-yolo/internal/publish"
)

type runOptions struct {
	pipeline string
	all      bool
	tar      bool
	publish  bool
	verify   bool
}

// 設定キーに結びつけるフラグ
var runConfigFlags = map[string]string{
	"target":    config.KeyTargetSamples,
	"box-mode":  config.KeyBoxMode,
	"link":      config.KeyLinkMode,
	"workers":   config.KeyCopyWorkers,
	"seed":      config.KeySeed,
	"val-ratio": config.KeyValRatio,
	"output":    config.KeyOutputDir,
}

func runCommand(a *app) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "パイプラインを実行してデータセットを書き出す",
		Long: `ラベル表を読み込み、パイプラインごとに絞り込み・均等化を行い、
YOLO形式 (images/{train,val}, labels/{train,val}, dataset.yaml) で書き出します。`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.bindFlags(cmd, runConfigFlags); err != nil {
				return err
			}
			return a.run(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.pipeline, "pipeline", "p", "", "実行するパイプライン (binary, species, disease)")
	flags.BoolVar(&opts.all, "all", false, "すべてのパイプラインを順に実行")
	flags.Int("target", 0, "クラスごとの目標サンプル数 (0=均等化なし)")
	flags.String("box-mode", "full", "ラベルの矩形 (full: 画像全体, csv: ラベル表の座標)")
	flags.String("link", "copy", "画像の配置方法 (copy, symlink, hardlink)")
	flags.Int("workers", 0, "ファイルコピーの並列数 (0=CPU数)")
	flags.Int64("seed", 0, "乱数シード (0=時刻から生成)")
	flags.Float64("val-ratio", 0.2, "検証用ラベル表が無い場合の検証データ比率")
	flags.StringP("output", "o", "", "出力先ディレクトリ")
	flags.BoolVar(&opts.tar, "tar", false, "出力をtarファイルにまとめる")
	flags.BoolVar(&opts.publish, "publish", false, "tarファイルをS3へアップロード (--tar を含む)")
	flags.BoolVar(&opts.verify, "verify", false, "書き出し後に画像とラベルの対応を検査")

	return cmd
}

func (a *app) run(ctx context.Context, out io.Writer, opts runOptions) error {
	if opts.all == (opts.pipeline != "") {
		return errors.New("--pipeline か --all のどちらか一方を指定してください")
	}

	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("設定エラー: %w", err)
	}

	// アップロード先は書き出し前に確認する
	var uploader *publish.Uploader
	if opts.publish {
		uploader, err = publish.New(ctx, cfg.S3, a.logger)
		if err != nil {
			return err
		}
	}

	runner := pipeline.NewRunner(cfg, a.logger, a.metrics)
	runner.Verify = opts.verify
	a.logger.Info("データセットの作成を開始します",
		zap.Int64("seed", runner.Seed()),
		zap.Int("target", cfg.TargetSamples),
		zap.String("box_mode", cfg.BoxMode),
		zap.Int("workers", cfg.MaxCopyWorkers))

	var results []*pipeline.Result
	if opts.all {
		results, err = runner.RunAll(ctx)
	} else {
		var kind pipeline.Kind
		kind, err = pipeline.ParseKind(opts.pipeline)
		if err != nil {
			return err
		}
		var p pipeline.Pipeline
		p, err = pipeline.New(kind, cfg)
		if err != nil {
			return err
		}
		var res *pipeline.Result
		res, err = runner.Run(ctx, p)
		if res != nil {
			results = append(results, res)
		}
	}
	// 途中で失敗しても完了した分は表示する
	if len(results) > 0 {
		if rerr := renderResults(out, results); rerr != nil {
			a.logger.Warn("結果の表示に失敗", zap.Error(rerr))
		}
	}
	if err != nil {
		return err
	}

	if !opts.tar && !opts.publish {
		return nil
	}
	for _, res := range results {
		archive, err := processor.CreateTarArchive(res.Dir, "", a.logger)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "tar: %s\n", archive)

		if uploader != nil {
			location, err := uploader.Upload(ctx, archive)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "published: %s\n", location)
		}
	}
	return nil
}

func renderResults(out io.Writer, results []*pipeline.Result) error {
	table := tablewriter.NewWriter(out)
	table.Header("Pipeline", "Classes", "Train", "Val", "Duplicates", "Skipped", "Manifest")
	for _, res := range results {
		table.Append([]string{
			string(res.Kind),
			fmt.Sprintf("%d", len(res.Classes)),
			fmt.Sprintf("%d", res.Train.Exported),
			fmt.Sprintf("%d", res.Val.Exported),
			fmt.Sprintf("%d", res.Balance.Added),
			fmt.Sprintf("%d", res.Train.Skipped+res.Val.Skipped+res.Train.Unmapped+res.Val.Unmapped),
			res.Manifest,
		})
	}
	return table.Render()
}
