// Package testutil はテスト用の画像・ラベル表を作るヘルパー
package testutil

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// WritePNG は w×h の単色PNGを書き出す
func WritePNG(t *testing.T, path string, w, h int) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{G: 160, A: 255})
		}
	}

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

// WriteFile はテキストファイルを書き出す
func WriteFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// LabelRow はラベル表の1行
type LabelRow struct {
	Filename string
	Class    string
	Width    int
	Height   int
}

// WriteLabels はPlantDoc形式のCSVを書き出し、各行の画像も作成する
func WriteLabels(t *testing.T, csvPath, imagesDir string, rows []LabelRow) {
	t.Helper()

	var b strings.Builder
	b.WriteString("filename,width,height,class,xmin,ymin,xmax,ymax\n")
	for _, r := range rows {
		b.WriteString(strings.Join([]string{
			r.Filename,
			strconv.Itoa(r.Width), strconv.Itoa(r.Height),
			r.Class,
			"2", "2", strconv.Itoa(r.Width - 2), strconv.Itoa(r.Height - 2),
		}, ","))
		b.WriteString("\n")

		imgPath := filepath.Join(imagesDir, r.Filename)
		if _, err := os.Stat(imgPath); os.IsNotExist(err) {
			w, h := r.Width, r.Height
			if w == 0 || h == 0 {
				w, h = 8, 6
			}
			WritePNG(t, imgPath, w, h)
		}
	}
	WriteFile(t, csvPath, b.String())
}
