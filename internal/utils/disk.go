package utils

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/v3/disk"
)

// ErrInsufficientSpace は出力先の空き容量が足りない場合のエラー
var ErrInsufficientSpace = errors.New("出力先の空き容量が不足しています")

// CheckFreeSpace は dir を含むボリュームに need バイト以上の空きがあるかを確認する。
// dir がまだ無い場合は存在する親ディレクトリで調べる。
func CheckFreeSpace(dir string, need uint64) error {
	probe, err := existingAncestor(dir)
	if err != nil {
		return err
	}

	usage, err := disk.Usage(probe)
	if err != nil {
		return fmt.Errorf("空き容量の取得に失敗 %s: %w", probe, err)
	}

	if usage.Free < need {
		return fmt.Errorf("%w: 必要 %d バイト, 空き %d バイト (%s)", ErrInsufficientSpace, need, usage.Free, probe)
	}
	return nil
}

func existingAncestor(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(abs); err == nil {
			return abs, nil
		}
		parent := filepath.Dir(abs)
		if parent == abs {
			return "", fmt.Errorf("存在するディレクトリが見つかりません: %s", dir)
		}
		abs = parent
	}
}
