package dataset

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	leafWord   = regexp.MustCompile(`(?i)leaf`)
	whitespace = regexp.MustCompile(`\s+`)
)

// CleanClassName はクラス名から "leaf" と余分な空白・アンダースコアを取り除く
func CleanClassName(s string) string {
	s = leafWord.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "_", " ")
	s = whitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Extractor はクラス名から植物種と病名を取り出す
type Extractor struct {
	species  []string
	patterns []*regexp.Regexp
}

// NewExtractor は植物種の一覧からExtractorを作成
func NewExtractor(species []string) *Extractor {
	e := &Extractor{}
	for _, s := range species {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		e.species = append(e.species, s)
		e.patterns = append(e.patterns, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(s)+`\b`))
	}
	return e
}

// Species は最初に一致した植物種を返す (無ければ空文字)
func (e *Extractor) Species(class string) string {
	for i, p := range e.patterns {
		if p.MatchString(class) {
			return e.species[i]
		}
	}
	return ""
}

// Disease は植物種名を除いた病名をタイトルケースで返す。何も残らなければ healthy
func (e *Extractor) Disease(class string) string {
	for _, p := range e.patterns {
		class = p.ReplaceAllString(class, "")
	}
	class = strings.TrimSpace(whitespace.ReplaceAllString(class, " "))
	if class == "" {
		return Healthy
	}
	return cases.Title(language.Und).String(class)
}

// Apply は各レコードに植物種と病名を設定する
func (e *Extractor) Apply(records []Record) {
	for i := range records {
		records[i].Species = e.Species(records[i].Class)
		records[i].Disease = e.Disease(records[i].Class)
	}
}
