package processor

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// ForEach は items を最大 limit 並列で処理する。
// fn がエラーを返すか ctx がキャンセルされると残りの処理を打ち切る。
func ForEach[T any](ctx context.Context, items []T, limit int, fn func(context.Context, T) error) error {
	if len(items) == 0 {
		return nil
	}

	// 並列度が1の場合は順次処理
	if limit <= 1 {
		for _, item := range items {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(ctx, item); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for _, item := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, item)
		})
	}

	return g.Wait()
}
