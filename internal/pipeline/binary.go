package pipeline

import "plantdoc-yolo/internal/dataset"

// LabelDisease は病気のある画像のクラス名
const LabelDisease = "disease"

// Binary は健康か病気かの2クラス
type Binary struct{}

func (Binary) Kind() Kind { return KindBinary }

func (Binary) Label(r dataset.Record) string {
	if r.IsHealthy() {
		return dataset.Healthy
	}
	return LabelDisease
}

// Filter は何も除外しない
func (Binary) Filter(train, val []dataset.Record) ([]dataset.Record, []dataset.Record, FilterReport) {
	return train, val, FilterReport{}
}

func (Binary) Classes([]dataset.Record) []string {
	return []string{dataset.Healthy, LabelDisease}
}
