package yolo

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LinkMode は画像の配置方法
type LinkMode string

const (
	// LinkCopy は画像を複製する
	LinkCopy LinkMode = "copy"
	// LinkSymlink はシンボリックリンクを張る
	LinkSymlink LinkMode = "symlink"
	// LinkHardlink はハードリンクを張る。失敗した場合はコピーする
	LinkHardlink LinkMode = "hardlink"
)

// ParseLinkMode は文字列から LinkMode を返す
func ParseLinkMode(s string) (LinkMode, error) {
	switch LinkMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", LinkCopy:
		return LinkCopy, nil
	case LinkSymlink:
		return LinkSymlink, nil
	case LinkHardlink:
		return LinkHardlink, nil
	}
	return "", fmt.Errorf("不明な link_mode です: %s", s)
}

// placeFile は mode に従って src を dst に配置する。dst が既にあれば置き換える
func placeFile(src, dst string, mode LinkMode) error {
	if err := os.Remove(dst); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	switch mode {
	case LinkSymlink:
		abs, err := filepath.Abs(src)
		if err != nil {
			return err
		}
		return os.Symlink(abs, dst)
	case LinkHardlink:
		if err := os.Link(src, dst); err == nil {
			return nil
		}
		// 別ボリュームなどでリンクできない場合
		return copyFile(src, dst)
	default:
		return copyFile(src, dst)
	}
}

// copyFile は単一ファイルをコピーし、更新時刻を引き継ぐ
func copyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	info, err := srcFile.Stat()
	if err != nil {
		return err
	}

	dstFile, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		dstFile.Close()
		os.Remove(dst)
		return err
	}
	if err := dstFile.Close(); err != nil {
		return err
	}

	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}
