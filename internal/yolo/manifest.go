package yolo

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ManifestName はデータセット定義ファイル名
const ManifestName = "dataset.yaml"

// Manifest は学習ツールが読むデータセット定義
type Manifest struct {
	Path  string         `yaml:"path"`
	Train string         `yaml:"train"`
	Val   string         `yaml:"val"`
	NC    int            `yaml:"nc"`
	Names map[int]string `yaml:"names"`
}

// NewManifest は dir をルートとする定義を作る
func NewManifest(dir string, mapping *ClassMapping) (Manifest, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return Manifest{}, err
	}

	names := make(map[int]string, mapping.Len())
	for i, name := range mapping.Names() {
		names[i] = name
	}

	return Manifest{
		Path:  abs,
		Train: filepath.ToSlash(filepath.Join(imagesDir, string(SplitTrain))),
		Val:   filepath.ToSlash(filepath.Join(imagesDir, string(SplitVal))),
		NC:    mapping.Len(),
		Names: names,
	}, nil
}

// WriteManifest は dir/dataset.yaml を書き出してそのパスを返す
func WriteManifest(dir string, mapping *ClassMapping) (string, error) {
	m, err := NewManifest(dir, mapping)
	if err != nil {
		return "", fmt.Errorf("データセット定義の作成に失敗: %w", err)
	}

	out, err := yaml.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("データセット定義の変換に失敗: %w", err)
	}

	path := filepath.Join(dir, ManifestName)
	if err := os.WriteFile(path, out, 0644); err != nil {
		return "", fmt.Errorf("データセット定義の書き込みに失敗 %s: %w", path, err)
	}
	return path, nil
}

// ReadManifest はデータセット定義を読み込む
func ReadManifest(path string) (Manifest, error) {
	var m Manifest
	b, err := os.ReadFile(path)
	if err != nil {
		return m, err
	}
	if err := yaml.Unmarshal(b, &m); err != nil {
		return m, fmt.Errorf("データセット定義の解析に失敗 %s: %w", path, err)
	}
	return m, nil
}
