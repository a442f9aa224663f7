package yolo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"plantdoc-yolo/internal/dataset"
	"plantdoc-yolo/internal/processor"
	"plantdoc-yolo/internal/utils"
)

const (
	imagesDir = "images"
	labelsDir = "labels"
)

// Split は学習用・検証用の区分
type Split string

const (
	SplitTrain Split = "train"
	SplitVal   Split = "val"
)

// Options は書き出しの設定
type Options struct {
	BoxMode  BoxMode
	LinkMode LinkMode
	Workers  int
	Logger   *zap.Logger
}

// ExportStats は書き出し結果
type ExportStats struct {
	Exported int
	Skipped  int // 元画像が無いもの、ディレクトリを含む名前
	Unmapped int // クラスが対応表に無いもの
	Renamed  int // 同じ stem の画像と重なるため名前を変えたもの
}

// Exporter はレコードを root 配下の images/labels へ書き出す
type Exporter struct {
	root    string
	mapping *ClassMapping
	label   func(dataset.Record) string
	opts    Options
	logger  *zap.Logger
}

// NewExporter は新しいExporterを作成
func NewExporter(root string, mapping *ClassMapping, label func(dataset.Record) string, opts Options) *Exporter {
	if opts.BoxMode == "" {
		opts.BoxMode = BoxFull
	}
	if opts.LinkMode == "" {
		opts.LinkMode = LinkCopy
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{
		root:    root,
		mapping: mapping,
		label:   label,
		opts:    opts,
		logger:  logger,
	}
}

// ImagesDir は split の画像ディレクトリ
func (e *Exporter) ImagesDir(split Split) string {
	return filepath.Join(e.root, imagesDir, string(split))
}

// LabelsDir は split のラベルディレクトリ
func (e *Exporter) LabelsDir(split Split) string {
	return filepath.Join(e.root, labelsDir, string(split))
}

type exportJob struct {
	record dataset.Record
	name   string // images/<split> に置くファイル名
	index  int
}

// Export は records を split として書き出す。
// 元画像が無いレコードやディレクトリを含む名前は警告を出して数えるだけで、処理は続ける。
// 拡張子違いで同じ名前になる画像はラベルが重ならないよう <stem>_<N><ext> に変える。
func (e *Exporter) Export(ctx context.Context, records []dataset.Record, split Split) (ExportStats, error) {
	imgDir, lblDir := e.ImagesDir(split), e.LabelsDir(split)
	if err := utils.EnsureDirs(imgDir, lblDir); err != nil {
		return ExportStats{}, fmt.Errorf("ディレクトリの作成に失敗: %w", err)
	}

	var stats ExportStats
	jobs := make([]exportJob, 0, len(records))
	stems := make(map[string]bool, len(records))

	for _, r := range records {
		class := e.label(r)
		idx, ok := e.mapping.Index(class)
		if !ok {
			stats.Unmapped++
			e.logger.Debug("対応表に無いクラスを除外",
				zap.String("file", r.Filename), zap.String("class", class))
			continue
		}
		if !dataset.IsPlainFilename(r.Filename) || !dataset.IsPlainFilename(r.SourceName()) {
			stats.Skipped++
			e.logger.Warn("ディレクトリを含むファイル名は書き出しません", zap.String("file", r.Filename))
			continue
		}

		name := uniqueName(r.Filename, stems)
		if name != r.Filename {
			stats.Renamed++
			e.logger.Debug("同じ名前の画像があるため名前を変更",
				zap.String("file", r.Filename), zap.String("name", name))
		}
		jobs = append(jobs, exportJob{record: r, name: name, index: idx})
	}

	var exported, skipped atomic.Int64

	err := processor.ForEach(ctx, jobs, e.opts.Workers, func(_ context.Context, job exportJob) error {
		r := job.record
		src := filepath.Join(r.SourceDir, r.SourceName())
		if _, err := os.Stat(src); err != nil {
			skipped.Add(1)
			e.logger.Warn("元画像がありません", zap.String("file", src), zap.Error(err))
			return nil
		}

		dst := filepath.Join(imgDir, job.name)
		if err := placeFile(src, dst, e.opts.LinkMode); err != nil {
			return fmt.Errorf("画像の配置に失敗 %s -> %s: %w", src, dst, err)
		}

		lines := LabelLines(r, job.index, e.opts.BoxMode)
		labelPath := filepath.Join(lblDir, utils.Stem(job.name)+".txt")
		if err := os.WriteFile(labelPath, []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
			// ラベルの無い画像を残さない
			if rmErr := os.Remove(dst); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				e.logger.Warn("画像の削除に失敗", zap.String("file", dst), zap.Error(rmErr))
			}
			return fmt.Errorf("ラベルの書き込みに失敗 %s: %w", labelPath, err)
		}

		exported.Add(1)
		return nil
	})

	stats.Exported = int(exported.Load())
	stats.Skipped += int(skipped.Load())

	e.logger.Info("書き出し完了",
		zap.String("split", string(split)),
		zap.Int("exported", stats.Exported),
		zap.Int("skipped", stats.Skipped),
		zap.Int("unmapped", stats.Unmapped),
		zap.Int("renamed", stats.Renamed))

	return stats, err
}

// uniqueName は stems に無い拡張子抜きの名前を選び、stems に登録する
func uniqueName(name string, stems map[string]bool) string {
	stem, ext := utils.Stem(name), filepath.Ext(name)
	candidate := name
	for n := 1; stems[utils.Stem(candidate)]; n++ {
		candidate = fmt.Sprintf("%s_%d%s", stem, n, ext)
	}
	stems[utils.Stem(candidate)] = true
	return candidate
}
