// Package yolo はレコードをYOLO形式のディレクトリ構成へ書き出す
package yolo

import "fmt"

// ClassMapping はクラス名とインデックスの対応
type ClassMapping struct {
	names   []string
	indices map[string]int
}

// NewClassMapping は names の順序でインデックスを割り当てる
func NewClassMapping(names []string) (*ClassMapping, error) {
	m := &ClassMapping{
		names:   make([]string, 0, len(names)),
		indices: make(map[string]int, len(names)),
	}
	for _, name := range names {
		if name == "" {
			return nil, fmt.Errorf("空のクラス名は使用できません")
		}
		if _, ok := m.indices[name]; ok {
			return nil, fmt.Errorf("クラス名が重複しています: %s", name)
		}
		m.indices[name] = len(m.names)
		m.names = append(m.names, name)
	}
	return m, nil
}

// Index はクラス名のインデックスを返す
func (m *ClassMapping) Index(name string) (int, bool) {
	idx, ok := m.indices[name]
	return idx, ok
}

// Names はインデックス順のクラス名を返す
func (m *ClassMapping) Names() []string {
	out := make([]string, len(m.names))
	copy(out, m.names)
	return out
}

// Len はクラス数
func (m *ClassMapping) Len() int {
	return len(m.names)
}
