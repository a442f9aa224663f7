package utils

import (
	"os"
	"path/filepath"
	"strings"
)

var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".webp": true,
}

// IsImageFile は拡張子が画像ファイルかどうかを判定
func IsImageFile(name string) bool {
	return imageExts[strings.ToLower(filepath.Ext(name))]
}

// Stem は拡張子を除いたファイル名を返す
func Stem(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// EnsureDirs はディレクトリをまとめて作成
func EnsureDirs(dirs ...string) error {
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// ImageStems はディレクトリ直下の画像ファイルを拡張子抜きの名前ごとにまとめて返す
func ImageStems(dir string) (map[string][]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	stems := make(map[string][]string)
	for _, entry := range entries {
		// .DS_Storeなどの隠しファイルを除外
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if IsImageFile(entry.Name()) {
			stem := Stem(entry.Name())
			stems[stem] = append(stems[stem], entry.Name())
		}
	}
	return stems, nil
}

// FileSizes はファイルサイズの合計を返す。存在しないファイルは数えない
func FileSizes(paths []string) uint64 {
	var total uint64
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			total += uint64(info.Size())
		}
	}
	return total
}
