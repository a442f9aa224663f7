// Package dataset はラベル表の読み込み・整形・検証を行う
package dataset

import (
	"errors"
	"math/rand"
	"sort"
)

// Healthy は病気のないサンプルの病名
const Healthy = "healthy"

var (
	// ErrMissingColumn は必須列が無い場合のエラー
	ErrMissingColumn = errors.New("必須列がありません")
	// ErrEmptyTable はデータ行が無い場合のエラー
	ErrEmptyTable = errors.New("ラベル表が空です")
)

// Box はピクセル座標の矩形
type Box struct {
	XMin, YMin, XMax, YMax float64
}

// Valid は矩形が面積を持つかを返す
func (b Box) Valid() bool {
	return b.XMax > b.XMin && b.YMax > b.YMin
}

// Record は画像1枚分のラベル情報
type Record struct {
	Filename    string
	SourceDir   string // 元画像のあるディレクトリ
	Class       string // 整形済みのクラス名
	Species     string
	Disease     string
	Width       int
	Height      int
	Boxes       []Box
	FullImage   bool   // 画像全体を1つの物体として扱う
	DuplicateOf string // 均等化で複製された場合の元ファイル名
}

// SourceName は実ファイルのファイル名を返す
func (r Record) SourceName() string {
	if r.DuplicateOf != "" {
		return r.DuplicateOf
	}
	return r.Filename
}

// IsHealthy は健康な植物の画像かどうか
func (r Record) IsHealthy() bool {
	return r.Disease == Healthy
}

// Dataset は学習用と検証用に分割されたレコード列
type Dataset struct {
	Train []Record
	Val   []Record
}

// Count はラベルごとの件数を返す
func Count(records []Record, label func(Record) string) map[string]int {
	counts := make(map[string]int)
	for _, r := range records {
		counts[label(r)]++
	}
	return counts
}

// Labels はラベルを昇順で返す
func Labels(records []Record, label func(Record) string) []string {
	counts := Count(records, label)
	labels := make([]string, 0, len(counts))
	for l := range counts {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}

// Split はシャッフルした上で学習用と検証用に分割する
func Split(records []Record, valRatio float64, rng *rand.Rand) (train, val []Record) {
	shuffled := make([]Record, len(records))
	copy(shuffled, records)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	// 分割点の計算
	trainingCount := int(float64(len(shuffled)) * (1.0 - valRatio))

	return shuffled[:trainingCount], shuffled[trainingCount:]
}
