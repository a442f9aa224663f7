package yolo

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"plantdoc-yolo/internal/utils"
)

// LayoutReport は書き出し済みディレクトリの検査結果
type LayoutReport struct {
	Images        map[Split]int
	Labels        map[Split]int
	OrphanLabels  []string // 対応する画像の無いラベル
	MissingLabels []string // ラベルの無い画像
	SharedLabels  []string // 複数の画像が同じラベルを指すもの
}

// OK は不整合が無いかを返す
func (r LayoutReport) OK() bool {
	return len(r.OrphanLabels) == 0 && len(r.MissingLabels) == 0 && len(r.SharedLabels) == 0
}

// VerifyLayout は root 配下の各 split でラベルと画像が1対1に対応しているかを調べる
func VerifyLayout(root string) (LayoutReport, error) {
	report := LayoutReport{
		Images: make(map[Split]int),
		Labels: make(map[Split]int),
	}

	for _, split := range []Split{SplitTrain, SplitVal} {
		imgDir := filepath.Join(root, imagesDir, string(split))
		lblDir := filepath.Join(root, labelsDir, string(split))

		images, err := utils.ImageStems(imgDir)
		if err != nil {
			return report, fmt.Errorf("画像ディレクトリの読み込みに失敗 %s: %w", imgDir, err)
		}
		entries, err := os.ReadDir(lblDir)
		if err != nil {
			return report, fmt.Errorf("ラベルディレクトリの読み込みに失敗 %s: %w", lblDir, err)
		}

		labels := make(map[string]bool)
		for _, entry := range entries {
			if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".txt") {
				continue
			}
			stem := utils.Stem(entry.Name())
			labels[stem] = true
			if _, ok := images[stem]; !ok {
				report.OrphanLabels = append(report.OrphanLabels, filepath.Join(lblDir, entry.Name()))
			}
		}
		var count int
		for stem, names := range images {
			count += len(names)
			if !labels[stem] {
				for _, name := range names {
					report.MissingLabels = append(report.MissingLabels, filepath.Join(imgDir, name))
				}
			} else if len(names) > 1 {
				report.SharedLabels = append(report.SharedLabels, filepath.Join(lblDir, stem+".txt"))
			}
		}
		sort.Strings(report.MissingLabels)
		sort.Strings(report.SharedLabels)

		report.Images[split] = count
		report.Labels[split] = len(labels)
	}

	return report, nil
}
