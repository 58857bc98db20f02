package service

import (
	"context"
	"strings"

	"golang.org/x/sync/singleflight"
)

// inflight collapses concurrent submissions of the same action by the same user
// onto a single backend call; every caller gets that call's result.
type inflight struct {
	group singleflight.Group
}

func actionKey(parts ...string) string {
	return strings.Join(parts, "\x00")
}

// guarded runs fn once per key at a time. The shared call does not inherit the
// cancellation of whichever caller started it; each caller still stops waiting
// when its own ctx is done.
func guarded[T any](ctx context.Context, g *inflight, key string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	shared := context.WithoutCancel(ctx)
	ch := g.group.DoChan(key, func() (interface{}, error) {
		return fn(shared)
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}
