package pipeline

import (
	"sort"
	"strings"

	"plantdoc-yolo/internal/dataset"
)

// Disease は病名の分類。健康な画像と希少・除外対象の病名は含めない
type Disease struct {
	threshold float64
	excluded  []string
}

// NewDisease は新しいDiseaseパイプラインを作成
func NewDisease(threshold float64, excluded []string) *Disease {
	return &Disease{threshold: threshold, excluded: append([]string(nil), excluded...)}
}

func (d *Disease) Kind() Kind { return KindDisease }

func (d *Disease) Label(r dataset.Record) string { return r.Disease }

// Filter は健康な画像を除き、学習用での割合が threshold 未満の病名と
// 除外対象の病名を学習用・検証用の両方から取り除く
func (d *Disease) Filter(train, val []dataset.Record) ([]dataset.Record, []dataset.Record, FilterReport) {
	var report FilterReport
	healthy := func(r dataset.Record) string {
		if r.IsHealthy() {
			return "healthy"
		}
		return ""
	}
	train = keep(train, &report, healthy)
	val = keep(val, &report, healthy)

	rare := make(map[string]bool)
	if len(train) > 0 {
		for disease, n := range dataset.Count(train, d.Label) {
			if float64(n)/float64(len(train)) < d.threshold {
				rare[strings.ToLower(disease)] = true
			}
		}
	}

	excluded := make(map[string]bool)
	for _, e := range d.excluded {
		excluded[strings.ToLower(e)] = true
	}

	names := make(map[string]bool)
	drop := func(r dataset.Record) string {
		switch {
		case rare[strings.ToLower(r.Disease)]:
			names[r.Disease] = true
			return "rare"
		case excluded[strings.ToLower(r.Disease)]:
			names[r.Disease] = true
			return "excluded"
		}
		return ""
	}
	train = keep(train, &report, drop)
	val = keep(val, &report, drop)

	for name := range names {
		report.Excluded = append(report.Excluded, name)
	}
	sort.Strings(report.Excluded)

	return train, val, report
}

// Classes は学習用に残った病名を昇順で返す
func (d *Disease) Classes(train []dataset.Record) []string {
	return dataset.Labels(train, d.Label)
}
