package processor

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// CreateTarArchive はデータセットディレクトリをtarアーカイブにまとめる。
// tarPath が空なら <sourceDir>.tar を作る。シンボリックリンクは実体を格納する。
func CreateTarArchive(sourceDir, tarPath string, logger *zap.Logger) (string, error) {
	sourceDir = filepath.Clean(sourceDir)
	if tarPath == "" {
		tarPath = sourceDir + ".tar"
	}

	logger.Info("tarファイルの作成を開始", zap.String("source", sourceDir), zap.String("tar", tarPath))

	tarFile, err := os.Create(tarPath)
	if err != nil {
		return "", fmt.Errorf("tarファイルの作成に失敗: %w", err)
	}
	defer tarFile.Close()

	tarWriter := tar.NewWriter(tarFile)

	rootName := filepath.Base(sourceDir)
	var files int

	// ディレクトリ内のファイルを再帰的にtarに追加
	err = filepath.Walk(sourceDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(sourceDir, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(filepath.Join(rootName, relPath))

		if info.Mode()&os.ModeSymlink != 0 {
			if info, err = os.Stat(path); err != nil {
				return fmt.Errorf("リンク先を参照できません %s: %w", path, err)
			}
		}

		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = name
		if info.IsDir() {
			header.Name += "/"
		}

		if err := tarWriter.WriteHeader(header); err != nil {
			return err
		}

		// ディレクトリの場合はファイル内容を書き込まない
		if info.IsDir() {
			return nil
		}

		if err := copyFileContent(path, tarWriter); err != nil {
			return err
		}
		files++
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ファイルのtar化に失敗: %w", err)
	}

	if err := tarWriter.Close(); err != nil {
		return "", fmt.Errorf("tarファイルの書き込みに失敗: %w", err)
	}

	logger.Info("tarファイルが作成されました", zap.String("tar", tarPath), zap.Int("files", files))
	return tarPath, nil
}

// copyFileContent はファイルの内容をtarライターにコピー
func copyFileContent(path string, w io.Writer) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = io.Copy(w, file)
	return err
}
