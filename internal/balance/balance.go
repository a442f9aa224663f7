// Package balance は少数クラスの複製によるデータ均等化を行う
package balance

import (
	"fmt"
	"math/rand"
	"path/filepath"
	"sort"
	"strings"

	"plantdoc-yolo/internal/dataset"
)

// LabelFunc はレコードのクラス名を返す
type LabelFunc func(dataset.Record) string

// Change はクラスごとの均等化前後の件数
type Change struct {
	Class  string
	Before int
	After  int
}

// Report は均等化の結果
type Report struct {
	Target  int
	Changes []Change
	Added   int
}

// ClassCount はクラスごとの件数と割合
type ClassCount struct {
	Class   string
	Count   int
	Percent float64
}

// Balance は件数が target に満たないクラスについて、同じクラスのレコードを
// 無作為に(復元抽出で)複製して target 件にそろえる。target 以上のクラスはそのまま残す。
// target が0以下なら何もしない。
func Balance(records []dataset.Record, label LabelFunc, target int, rng *rand.Rand) ([]dataset.Record, Report) {
	report := Report{Target: target}

	out := make([]dataset.Record, len(records), len(records)+target)
	copy(out, records)
	if target <= 0 {
		return out, report
	}

	groups := make(map[string][]dataset.Record)
	taken := make(map[string]bool, len(records))
	for _, r := range records {
		groups[label(r)] = append(groups[label(r)], r)
		taken[r.Filename] = true
	}

	classes := make([]string, 0, len(groups))
	for c := range groups {
		classes = append(classes, c)
	}
	sort.Strings(classes)

	next := make(map[string]int)
	for _, class := range classes {
		members := groups[class]
		n := len(members)
		change := Change{Class: class, Before: n, After: n}

		for i := n; i < target; i++ {
			src := members[rng.Intn(n)]
			base := src.SourceName()

			dup := src
			dup.DuplicateOf = base
			dup.Filename = nextName(base, next, taken)
			out = append(out, dup)
			change.After++
		}

		report.Added += change.After - change.Before
		report.Changes = append(report.Changes, change)
	}

	return out, report
}

// DuplicateName は複製のファイル名 <stem>_dup<N><ext> を返す
func DuplicateName(name string, n int) string {
	ext := filepath.Ext(name)
	return fmt.Sprintf("%s_dup%d%s", strings.TrimSuffix(name, ext), n, ext)
}

func nextName(base string, next map[string]int, taken map[string]bool) string {
	for {
		name := DuplicateName(base, next[base])
		next[base]++
		if !taken[name] {
			taken[name] = true
			return name
		}
	}
}

// Distribution はクラスごとの件数を昇順で返す
func Distribution(records []dataset.Record, label LabelFunc) []ClassCount {
	counts := dataset.Count(records, label)
	out := make([]ClassCount, 0, len(counts))
	for _, class := range dataset.Labels(records, label) {
		cc := ClassCount{Class: class, Count: counts[class]}
		if len(records) > 0 {
			cc.Percent = float64(cc.Count) / float64(len(records)) * 100
		}
		out = append(out, cc)
	}
	return out
}
