package pipeline

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"plantdoc-yolo/internal/balance"
	"plantdoc-yolo/internal/config"
	"plantdoc-yolo/internal/dataset"
	"plantdoc-yolo/internal/metrics"
	"plantdoc-yolo/internal/utils"
	"plantdoc-yolo/internal/yolo"
)

// Plan は絞り込みと均等化までの結果 (ファイルは書き出さない)
type Plan struct {
	Kind    Kind
	Classes []string
	Filter  FilterReport
	Balance balance.Report
	Before  []balance.ClassCount // 均等化前の学習用
	After   []balance.ClassCount // 均等化後の学習用
	ValDist []balance.ClassCount
	Train   []dataset.Record
	Val     []dataset.Record
}

// Result はパイプライン実行結果
type Result struct {
	Kind     Kind
	RunID    string
	Dir      string
	Manifest string
	Classes  []string
	Train    yolo.ExportStats
	Val      yolo.ExportStats
	Balance  balance.Report
	Layout   *yolo.LayoutReport // Verify 有効時のみ
	Elapsed  time.Duration
}

// Runner はデータの読み込みを1度だけ行い、各パイプラインで共有する
type Runner struct {
	// Verify が true なら書き出し後にディレクトリ構成を検査する
	Verify bool

	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics
	rng     *rand.Rand
	seed    int64
	runID   string
	data    *dataset.Dataset
}

// NewRunner は新しいRunnerを作成。m は nil でもよい
func NewRunner(cfg *config.Config, logger *zap.Logger, m *metrics.Metrics) *Runner {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	runID := uuid.NewString()
	return &Runner{
		cfg:     cfg,
		logger:  logger.With(zap.String("run_id", runID)),
		metrics: m,
		rng:     rand.New(rand.NewSource(seed)),
		seed:    seed,
		runID:   runID,
	}
}

// Seed は使用している乱数シード
func (r *Runner) Seed() int64 {
	return r.seed
}

// Load はラベル表を読み込み、整形・検証した上で学習用と検証用に分ける
func (r *Runner) Load(ctx context.Context) (*dataset.Dataset, error) {
	if r.data != nil {
		return r.data, nil
	}

	extractor := dataset.NewExtractor(r.cfg.PlantSpecies)

	train, err := r.loadSplit(ctx, "train", r.cfg.TrainLabels, r.cfg.TrainImageDir, extractor)
	if err != nil {
		return nil, err
	}

	var val []dataset.Record
	if r.cfg.ValLabels != "" {
		val, err = r.loadSplit(ctx, "val", r.cfg.ValLabels, r.cfg.ValImageDir, extractor)
		if err != nil {
			return nil, err
		}
	} else {
		train, val = dataset.Split(train, r.cfg.ValidationRatio, r.rng)
		r.logger.Info("学習用データから検証用データを分割しました",
			zap.Float64("val_ratio", r.cfg.ValidationRatio),
			zap.Int("train", len(train)),
			zap.Int("val", len(val)))
	}

	r.data = &dataset.Dataset{Train: train, Val: val}
	return r.data, nil
}

func (r *Runner) loadSplit(ctx context.Context, split, tablePath, imagesDir string, extractor *dataset.Extractor) ([]dataset.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	table, err := dataset.LoadTable(tablePath)
	if err != nil {
		return nil, fmt.Errorf("ラベル表の読み込みに失敗 %s: %w", tablePath, err)
	}

	records, collected, err := dataset.Collect(table)
	if err != nil {
		return nil, fmt.Errorf("ラベル表の集約に失敗 %s: %w", tablePath, err)
	}
	if collected.Conflicts > 0 {
		r.logger.Warn("複数のクラスを持つ画像は多数決で1つに決めました",
			zap.String("split", split), zap.Int("count", collected.Conflicts))
	}

	extractor.Apply(records)
	records, validated := dataset.NewValidator(r.logger).Validate(records, imagesDir)

	r.logger.Info("ラベル表を読み込みました",
		zap.String("split", split),
		zap.String("file", tablePath),
		zap.Int("rows", collected.Rows),
		zap.Int("malformed", collected.Malformed),
		zap.Int("missing_images", len(validated.Missing)),
		zap.Int("records", len(records)))

	if r.metrics != nil {
		r.metrics.RecordLoaded(split, len(records))
		r.metrics.RecordDropped("malformed", collected.Malformed)
		r.metrics.RecordDropped("missing_image", len(validated.Missing))
	}

	return records, nil
}

// Plan は読み込み・絞り込み・均等化を行う
func (r *Runner) Plan(ctx context.Context, p Pipeline) (*Plan, error) {
	data, err := r.Load(ctx)
	if err != nil {
		return nil, err
	}

	train, val, filtered := p.Filter(data.Train, data.Val)
	if len(filtered.Excluded) > 0 {
		r.logger.Info("除外した病名", zap.String("pipeline", string(p.Kind())), zap.Strings("diseases", filtered.Excluded))
	}
	if r.metrics != nil {
		for reason, n := range filtered.Dropped {
			r.metrics.RecordDropped(reason, n)
		}
	}

	classes := p.Classes(train)
	if len(train) == 0 || len(classes) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoRecords, p.Kind())
	}

	before := balance.Distribution(train, p.Label)
	balanced, report := balance.Balance(train, p.Label, r.cfg.TargetSamples, r.rng)
	if report.Added > 0 {
		r.logger.Info("少数クラスを複製しました",
			zap.String("pipeline", string(p.Kind())),
			zap.Int("target", report.Target),
			zap.Int("added", report.Added))
	}

	return &Plan{
		Kind:    p.Kind(),
		Classes: classes,
		Filter:  filtered,
		Balance: report,
		Before:  before,
		After:   balance.Distribution(balanced, p.Label),
		ValDist: balance.Distribution(val, p.Label),
		Train:   balanced,
		Val:     val,
	}, nil
}

// Run はパイプラインを実行し、YOLO形式のデータセットを書き出す
func (r *Runner) Run(ctx context.Context, p Pipeline) (*Result, error) {
	start := time.Now()
	kind := p.Kind()
	log := r.logger.With(zap.String("pipeline", string(kind)))

	plan, err := r.Plan(ctx, p)
	if err != nil {
		return nil, err
	}

	mapping, err := yolo.NewClassMapping(plan.Classes)
	if err != nil {
		return nil, err
	}
	boxMode, err := yolo.ParseBoxMode(r.cfg.BoxMode)
	if err != nil {
		return nil, err
	}
	linkMode, err := yolo.ParseLinkMode(r.cfg.LinkMode)
	if err != nil {
		return nil, err
	}

	paths := r.cfg.OutputPaths(kind.OutputDir())

	// 前回の出力を残さない
	for _, dir := range []string{filepath.Join(paths.Base, "images"), filepath.Join(paths.Base, "labels")} {
		if err := os.RemoveAll(dir); err != nil {
			return nil, fmt.Errorf("既存の出力の削除に失敗 %s: %w", dir, err)
		}
	}

	if linkMode == yolo.LinkCopy {
		need := utils.FileSizes(sourcePaths(plan.Train, plan.Val))
		if err := utils.CheckFreeSpace(paths.Base, need); err != nil {
			return nil, err
		}
	}

	exporter := yolo.NewExporter(paths.Base, mapping, p.Label, yolo.Options{
		BoxMode:  boxMode,
		LinkMode: linkMode,
		Workers:  r.cfg.MaxCopyWorkers,
		Logger:   log,
	})

	trainStats, err := exporter.Export(ctx, plan.Train, yolo.SplitTrain)
	if err != nil {
		return nil, fmt.Errorf("学習用データの書き出しに失敗: %w", err)
	}
	valStats, err := exporter.Export(ctx, plan.Val, yolo.SplitVal)
	if err != nil {
		return nil, fmt.Errorf("検証用データの書き出しに失敗: %w", err)
	}

	manifest, err := yolo.WriteManifest(paths.Base, mapping)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Kind:     kind,
		RunID:    r.runID,
		Dir:      paths.Base,
		Manifest: manifest,
		Classes:  mapping.Names(),
		Train:    trainStats,
		Val:      valStats,
		Balance:  plan.Balance,
	}

	if r.Verify {
		layout, err := yolo.VerifyLayout(paths.Base)
		if err != nil {
			return nil, err
		}
		if !layout.OK() {
			return nil, fmt.Errorf("出力の検査に失敗: ラベルのみ %d 件, 画像のみ %d 件, 共有ラベル %d 件",
				len(layout.OrphanLabels), len(layout.MissingLabels), len(layout.SharedLabels))
		}
		result.Layout = &layout
	}

	result.Elapsed = time.Since(start)
	if r.metrics != nil {
		r.metrics.RecordDuplicates(string(kind), plan.Balance.Added)
		r.metrics.RecordExport(string(kind), string(yolo.SplitTrain), trainStats.Exported, trainStats.Skipped, trainStats.Unmapped)
		r.metrics.RecordExport(string(kind), string(yolo.SplitVal), valStats.Exported, valStats.Skipped, valStats.Unmapped)
		r.metrics.ObserveRun(string(kind), result.Elapsed)
	}

	log.Info("データセットを作成しました",
		zap.String("dir", paths.Base),
		zap.Int("classes", mapping.Len()),
		zap.Int("train", trainStats.Exported),
		zap.Int("val", valStats.Exported),
		zap.Duration("elapsed", result.Elapsed))

	return result, nil
}

// RunAll は binary, species, disease の順に実行する
func (r *Runner) RunAll(ctx context.Context) ([]*Result, error) {
	var results []*Result
	for _, kind := range AllKinds {
		p, err := New(kind, r.cfg)
		if err != nil {
			return results, err
		}
		res, err := r.Run(ctx, p)
		if err != nil {
			return results, fmt.Errorf("%s パイプラインの実行に失敗: %w", kind, err)
		}
		results = append(results, res)
	}
	return results, nil
}

func sourcePaths(sets ...[]dataset.Record) []string {
	var paths []string
	for _, records := range sets {
		for _, rec := range records {
			paths = append(paths, filepath.Join(rec.SourceDir, rec.SourceName()))
		}
	}
	return paths
}
