package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// 列名の別名
var columnAliases = map[string]string{
	"file":       "filename",
	"file_name":  "filename",
	"image":      "filename",
	"image_path": "filename",
	"label":      "class",
	"class_name": "class",
	"x_min":      "xmin",
	"y_min":      "ymin",
	"x_max":      "xmax",
	"y_max":      "ymax",
}

// Table はヘッダ付きの表データ
type Table struct {
	Header []string
	Rows   [][]string
}

// Index は列名の位置を返す (無ければ-1)
func (t *Table) Index(name string) int {
	for i, h := range t.Header {
		if h == name {
			return i
		}
	}
	return -1
}

// LoadTable はCSV/TSV/XLSXのラベル表を読み込む
func LoadTable(path string) (*Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		return loadDelimited(path, ',')
	case ".tsv":
		return loadDelimited(path, '\t')
	case ".xlsx", ".xlsm":
		return loadExcel(path)
	default:
		return nil, fmt.Errorf("未対応のラベル表形式です: %s", path)
	}
}

func loadDelimited(path string, comma rune) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ラベル表を開けません: %w", err)
	}
	defer f.Close()

	return parseDelimited(f, comma)
}

func parseDelimited(r io.Reader, comma rune) (*Table, error) {
	reader := csv.NewReader(r)
	reader.Comma = comma
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	allRows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("CSVの解析に失敗: %w", err)
	}

	return newTable(allRows)
}

// メタデータ用のシートは読み飛ばす
var skipSheets = map[string]bool{
	"info":     true,
	"metadata": true,
	"about":    true,
	"readme":   true,
	"notes":    true,
}

func loadExcel(path string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("Excelファイルを開けません: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: シートがありません", ErrEmptyTable)
	}

	sheetName := sheets[len(sheets)-1]
	for _, sheet := range sheets {
		if !skipSheets[strings.ToLower(sheet)] {
			sheetName = sheet
			break
		}
	}

	allRows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("シート %s の読み込みに失敗: %w", sheetName, err)
	}

	return newTable(allRows)
}

func newTable(allRows [][]string) (*Table, error) {
	if len(allRows) == 0 {
		return nil, ErrEmptyTable
	}

	header := make([]string, len(allRows[0]))
	for i, h := range allRows[0] {
		header[i] = normalizeColumnName(h)
	}

	// 列数を揃える
	rows := allRows[1:]
	for i, row := range rows {
		if len(row) < len(header) {
			padded := make([]string, len(header))
			copy(padded, row)
			rows[i] = padded
		} else if len(row) > len(header) {
			rows[i] = row[:len(header)]
		}
	}

	return &Table{Header: header, Rows: rows}, nil
}

func normalizeColumnName(name string) string {
	n := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
	n = strings.Trim(nonAlnum.ReplaceAllString(n, "_"), "_")
	if alias, ok := columnAliases[n]; ok {
		return alias
	}
	return n
}

// CollectReport は行の集約結果
type CollectReport struct {
	Rows      int // 読み込んだ行数
	Malformed int // 破棄した不正な行
	Conflicts int // 複数のクラスを持つ画像
}

type rowBox struct {
	class string
	box   Box
}

type collector struct {
	record *Record
	votes  map[string]int
	order  []string
	boxes  []rowBox
}

// Collect は行をファイル名ごとに集約してRecordを作る。
// 不正な行は破棄し、1枚に複数のクラスがある場合は多数決(同数なら先勝ち)で決める。
func Collect(t *Table) ([]Record, CollectReport, error) {
	var report CollectReport

	fi, ci := t.Index("filename"), t.Index("class")
	if fi < 0 || ci < 0 {
		return nil, report, fmt.Errorf("%w: filename, class", ErrMissingColumn)
	}
	wi, hi := t.Index("width"), t.Index("height")
	bi := [4]int{t.Index("xmin"), t.Index("ymin"), t.Index("xmax"), t.Index("ymax")}

	byName := make(map[string]*collector)
	var names []string

	for _, row := range t.Rows {
		report.Rows++

		name := strings.TrimSpace(row[fi])
		class := CleanClassName(row[ci])
		if !IsPlainFilename(name) || class == "" {
			report.Malformed++
			continue
		}

		width, okW := parseInt(cell(row, wi))
		height, okH := parseInt(cell(row, hi))
		box, hasBox, okB := parseBox(row, bi)
		if !okW || !okH || !okB {
			report.Malformed++
			continue
		}

		c, ok := byName[name]
		if !ok {
			c = &collector{
				record: &Record{Filename: name, Width: width, Height: height},
				votes:  make(map[string]int),
			}
			byName[name] = c
			names = append(names, name)
		}
		if c.record.Width == 0 && c.record.Height == 0 {
			c.record.Width, c.record.Height = width, height
		}
		if c.votes[class] == 0 {
			c.order = append(c.order, class)
		}
		c.votes[class]++
		if hasBox && box.Valid() {
			c.boxes = append(c.boxes, rowBox{class: class, box: box})
		}
	}

	records := make([]Record, 0, len(names))
	for _, name := range names {
		c := byName[name]
		if len(c.order) > 1 {
			report.Conflicts++
		}

		best := c.order[0]
		for _, class := range c.order[1:] {
			if c.votes[class] > c.votes[best] {
				best = class
			}
		}

		r := *c.record
		r.Class = best
		for _, rb := range c.boxes {
			if rb.class == best {
				r.Boxes = append(r.Boxes, rb.box)
			}
		}
		r.FullImage = len(r.Boxes) == 0
		records = append(records, r)
	}

	return records, report, nil
}

// IsPlainFilename はディレクトリ部分を含まないファイル名かどうかを返す
func IsPlainFilename(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`) && filepath.Base(name) == name
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func parseInt(s string) (int, bool) {
	if s == "" {
		return 0, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return 0, false
	}
	return int(f), true
}

// parseBox は座標列を読む。いずれかが空なら矩形なしとして扱う
func parseBox(row []string, idx [4]int) (Box, bool, bool) {
	var v [4]float64
	for i, col := range idx {
		s := cell(row, col)
		if s == "" {
			return Box{}, false, true
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Box{}, false, false
		}
		v[i] = f
	}
	return Box{XMin: v[0], YMin: v[1], XMax: v[2], YMax: v[3]}, true, true
}
