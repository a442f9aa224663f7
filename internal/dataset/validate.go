package dataset

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// ValidationReport は検証結果
type ValidationReport struct {
	Fixed   int      // 画像から幅・高さを補ったレコード数
	Missing []string // 画像ファイルが存在しないレコード
}

// Validator はレコードと画像ファイルの整合性を検証する
type Validator struct {
	logger *zap.Logger
}

// NewValidator は新しいValidatorを作成
func NewValidator(logger *zap.Logger) *Validator {
	return &Validator{logger: logger}
}

// Validate は幅・高さが0のレコードを画像ヘッダから補い、画像の無いレコードを取り除く。
// 残ったレコードには SourceDir を設定する。
func (v *Validator) Validate(records []Record, imagesDir string) ([]Record, ValidationReport) {
	var report ValidationReport
	kept := make([]Record, 0, len(records))

	for _, r := range records {
		path := filepath.Join(imagesDir, r.Filename)
		if _, err := os.Stat(path); err != nil {
			report.Missing = append(report.Missing, r.Filename)
			continue
		}

		if r.Width <= 0 || r.Height <= 0 {
			w, h, err := ImageSize(path)
			if err != nil {
				v.logger.Warn("画像サイズを取得できません", zap.String("file", path), zap.Error(err))
			} else {
				r.Width, r.Height = w, h
				report.Fixed++
			}
		}

		r.SourceDir = imagesDir
		kept = append(kept, r)
	}

	if report.Fixed > 0 {
		v.logger.Info("幅・高さが0の画像を補正しました", zap.Int("count", report.Fixed), zap.String("dir", imagesDir))
	}
	if len(report.Missing) > 0 {
		v.logger.Warn("画像ファイルが見つからないレコードを除外しました",
			zap.Int("count", len(report.Missing)),
			zap.Strings("files", report.Missing))
	}

	return kept, report
}

// ImageSize は画像ヘッダから幅と高さを読む
func ImageSize(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("画像ヘッダの解析に失敗: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}
