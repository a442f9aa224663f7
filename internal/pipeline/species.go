package pipeline

import "plantdoc-yolo/internal/dataset"

// Species は植物種の分類
type Species struct {
	species []string
}

// NewSpecies は species の順にクラスを割り当てる
func NewSpecies(species []string) *Species {
	return &Species{species: append([]string(nil), species...)}
}

func (s *Species) Kind() Kind { return KindSpecies }

func (s *Species) Label(r dataset.Record) string { return r.Species }

// Filter は植物種を判定できなかったレコードを除外する
func (s *Species) Filter(train, val []dataset.Record) ([]dataset.Record, []dataset.Record, FilterReport) {
	var report FilterReport
	noSpecies := func(r dataset.Record) string {
		if r.Species == "" {
			return "no_species"
		}
		return ""
	}
	return keep(train, &report, noSpecies), keep(val, &report, noSpecies), report
}

func (s *Species) Classes([]dataset.Record) []string {
	return append([]string(nil), s.species...)
}
