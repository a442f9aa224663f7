// Package pipeline はラベル表から用途別のYOLOデータセットを作る処理をまとめる
package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"plantdoc-yolo/internal/config"
	"plantdoc-yolo/internal/dataset"
)

var (
	// ErrUnknownPipeline は未知のパイプライン名
	ErrUnknownPipeline = errors.New("不明なパイプラインです")
	// ErrNoRecords は絞り込み後にレコードが残らない場合のエラー
	ErrNoRecords = errors.New("対象となるレコードがありません")
	// ErrNoSpecies は植物種の一覧が必要なパイプラインで一覧が空の場合のエラー
	ErrNoSpecies = errors.New("植物種が設定されていません (PLANT_SPECIES)")
)

// Kind はパイプラインの種類
type Kind string

const (
	KindBinary  Kind = "binary"
	KindSpecies Kind = "species"
	KindDisease Kind = "disease"
)

// AllKinds は --all で実行する順序
var AllKinds = []Kind{KindBinary, KindSpecies, KindDisease}

// ParseKind は名前から Kind を返す
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindBinary, KindSpecies, KindDisease:
		return k, nil
	case "diseases":
		return KindDisease, nil
	}
	return "", fmt.Errorf("%w: %q (binary, species, disease)", ErrUnknownPipeline, s)
}

// OutputDir は出力先のサブディレクトリ名
func (k Kind) OutputDir() string {
	if k == KindDisease {
		return "diseases"
	}
	return string(k)
}

// FilterReport は絞り込みで除外した件数
type FilterReport struct {
	Dropped  map[string]int // 理由ごとの除外件数 (学習用+検証用)
	Excluded []string       // 除外した病名
}

func (r *FilterReport) drop(reason string) {
	if r.Dropped == nil {
		r.Dropped = make(map[string]int)
	}
	r.Dropped[reason]++
}

// Pipeline は用途ごとのラベル付けと絞り込み
type Pipeline interface {
	Kind() Kind
	// Label はレコードのクラス名を返す
	Label(r dataset.Record) string
	// Filter は対象外のレコードを取り除く
	Filter(train, val []dataset.Record) ([]dataset.Record, []dataset.Record, FilterReport)
	// Classes はクラス名をインデックス順に返す
	Classes(train []dataset.Record) []string
}

// New は kind に対応するパイプラインを作成
func New(kind Kind, cfg *config.Config) (Pipeline, error) {
	switch kind {
	case KindBinary:
		return Binary{}, nil
	case KindSpecies:
		if len(cfg.PlantSpecies) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrNoSpecies, kind)
		}
		return NewSpecies(cfg.PlantSpecies), nil
	case KindDisease:
		// 植物種が無いと種名がそのまま病名になる
		if len(cfg.PlantSpecies) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrNoSpecies, kind)
		}
		return NewDisease(cfg.RareThreshold, cfg.ExcludedDiseases), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownPipeline, kind)
}

func keep(records []dataset.Record, report *FilterReport, pred func(dataset.Record) string) []dataset.Record {
	out := make([]dataset.Record, 0, len(records))
	for _, r := range records {
		if reason := pred(r); reason != "" {
			report.drop(reason)
			continue
		}
		out = append(out, r)
	}
	return out
}
