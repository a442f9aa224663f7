package yolo

import (
	"fmt"
	"strings"

	"plantdoc-yolo/internal/dataset"
)

// BoxMode はラベル行の作り方
type BoxMode string

const (
	// BoxFull は画像全体を1つの矩形とする
	BoxFull BoxMode = "full"
	// BoxCSV はラベル表の矩形を使う
	BoxCSV BoxMode = "csv"
)

// ParseBoxMode は文字列から BoxMode を返す
func ParseBoxMode(s string) (BoxMode, error) {
	switch BoxMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", BoxFull:
		return BoxFull, nil
	case BoxCSV:
		return BoxCSV, nil
	}
	return "", fmt.Errorf("不明な box_mode です: %s", s)
}

// NormalizeBox はピクセル座標の矩形を中心座標と幅・高さの比率に変換する。
// 値は [0,1] に収める
func NormalizeBox(b dataset.Box, width, height int) (xc, yc, w, h float64) {
	if width <= 0 || height <= 0 {
		return 0.5, 0.5, 1, 1
	}
	fw, fh := float64(width), float64(height)

	xmin, xmax := clamp(b.XMin, 0, fw), clamp(b.XMax, 0, fw)
	ymin, ymax := clamp(b.YMin, 0, fh), clamp(b.YMax, 0, fh)

	xc = (xmin + xmax) / 2 / fw
	yc = (ymin + ymax) / 2 / fh
	w = (xmax - xmin) / fw
	h = (ymax - ymin) / fh
	return xc, yc, w, h
}

// FormatLine はラベルファイルの1行を作る
func FormatLine(idx int, xc, yc, w, h float64) string {
	return fmt.Sprintf("%d %.6f %.6f %.6f %.6f", idx, xc, yc, w, h)
}

// LabelLines はレコード1件分のラベル行を返す
func LabelLines(r dataset.Record, idx int, mode BoxMode) []string {
	if mode == BoxCSV && !r.FullImage && r.Width > 0 && r.Height > 0 {
		var lines []string
		for _, b := range r.Boxes {
			xc, yc, w, h := NormalizeBox(b, r.Width, r.Height)
			if w <= 0 || h <= 0 {
				continue
			}
			lines = append(lines, FormatLine(idx, xc, yc, w, h))
		}
		if len(lines) > 0 {
			return lines
		}
	}
	// 矩形が使えない場合は画像全体
	return []string{FormatLine(idx, 0.5, 0.5, 1, 1)}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
