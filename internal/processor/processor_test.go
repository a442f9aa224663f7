package processor

import (
	"archive/tar"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"plantdoc-yolo/internal/testutil"
)

func TestForEachRespectsLimit(t *testing.T) {
	defer goleak.VerifyNone(t)

	items := make([]int, 40)
	for i := range items {
		items[i] = i
	}

	var running, peak atomic.Int32
	var mu sync.Mutex
	var seen []int

	err := ForEach(context.Background(), items, 4, func(_ context.Context, n int) error {
		cur := running.Add(1)
		defer running.Add(-1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(time.Millisecond)

		mu.Lock()
		seen = append(seen, n)
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)

	sort.Ints(seen)
	assert.Equal(t, items, seen)
	assert.LessOrEqual(t, peak.Load(), int32(4))
}

func TestForEachSequential(t *testing.T) {
	var order []string
	err := ForEach(context.Background(), []string{"a", "b", "c"}, 1, func(_ context.Context, s string) error {
		order = append(order, s)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestForEachStopsOnError(t *testing.T) {
	defer goleak.VerifyNone(t)

	boom := errors.New("boom")
	err := ForEach(context.Background(), []int{1, 2, 3, 4, 5, 6}, 2, func(_ context.Context, n int) error {
		if n == 3 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
}

func TestForEachCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	err := ForEach(ctx, []int{1, 2, 3}, 1, func(context.Context, int) error {
		calls.Add(1)
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls.Load())
}

func TestCreateTarArchive(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "binary")
	testutil.WriteFile(t, filepath.Join(src, "dataset.yaml"), "nc: 2\n")
	testutil.WriteFile(t, filepath.Join(src, "labels", "train", "a.txt"), "0 0.5 0.5 1 1\n")

	original := filepath.Join(root, "a.png")
	testutil.WriteFile(t, original, "png-bytes")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "images", "train"), 0o755))
	require.NoError(t, os.Symlink(original, filepath.Join(src, "images", "train", "a.png")))

	tarPath, err := CreateTarArchive(src, "", zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, src+".tar", tarPath)

	f, err := os.Open(tarPath)
	require.NoError(t, err)
	defer f.Close()

	contents := map[string]string{}
	tr := tar.NewReader(f)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		if hdr.Typeflag == tar.TypeReg {
			b, err := io.ReadAll(tr)
			require.NoError(t, err)
			contents[hdr.Name] = string(b)
		}
	}

	assert.Equal(t, "nc: 2\n", contents["binary/dataset.yaml"])
	assert.Equal(t, "0 0.5 0.5 1 1\n", contents["binary/labels/train/a.txt"])
	assert.Equal(t, "png-bytes", contents["binary/images/train/a.png"], "シンボリックリンクは実体を格納する")
}

func TestCreateTarArchiveMissingSource(t *testing.T) {
	_, err := CreateTarArchive(filepath.Join(t.TempDir(), "missing"), "", zap.NewNop())
	assert.Error(t, err)
}
