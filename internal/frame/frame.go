// Package frame implements the set operations the table builders are made of
// (filter, map, group-max, left join) over in-memory row slices.
//
// Rows are split into contiguous chunks that a bounded worker pool processes
// concurrently. Chunk results are concatenated in chunk order, so every
// operation returns rows in input order regardless of the worker count.
package frame

import (
	"cmp"
	"context"

	"golang.org/x/sync/errgroup"
)

// DefaultChunkSize is the number of rows a single worker processes at a time.
const DefaultChunkSize = 4096

// Pool bounds the parallelism of frame operations.
type Pool struct {
	Workers   int
	ChunkSize int
}

// NewPool returns a pool with the given worker count and the default chunk
// size.
func NewPool(workers int) Pool {
	return Pool{Workers: workers, ChunkSize: DefaultChunkSize}
}

type span struct{ lo, hi int }

func (p Pool) spans(n int) []span {
	size := p.ChunkSize
	if size < 1 {
		size = DefaultChunkSize
	}
	out := make([]span, 0, (n+size-1)/size)
	for lo := 0; lo < n; lo += size {
		out = append(out, span{lo: lo, hi: min(lo+size, n)})
	}
	return out
}

func (p Pool) workers() int {
	if p.Workers < 1 {
		return 1
	}
	return p.Workers
}

// run applies fn to every chunk of rows and concatenates the per-chunk
// output in chunk order.
func run[T, U any](ctx context.Context, p Pool, rows []T, fn func([]T) ([]U, error)) ([]U, error) {
	spans := p.spans(len(rows))
	parts := make([][]U, len(spans))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers())
	for i, s := range spans {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out, err := fn(rows[s.lo:s.hi])
			if err != nil {
				return err
			}
			parts[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, part := range parts {
		total += len(part)
	}
	out := make([]U, 0, total)
	for _, part := range parts {
		out = append(out, part...)
	}
	return out, nil
}

// Filter returns the rows for which keep reports true.
func Filter[T any](ctx context.Context, p Pool, rows []T, keep func(T) bool) ([]T, error) {
	return run(ctx, p, rows, func(chunk []T) ([]T, error) {
		var out []T
		for _, r := range chunk {
			if keep(r) {
				out = append(out, r)
			}
		}
		return out, nil
	})
}

// Map projects every row through fn. An error from fn aborts the operation.
func Map[T, U any](ctx context.Context, p Pool, rows []T, fn func(T) (U, error)) ([]U, error) {
	return run(ctx, p, rows, func(chunk []T) ([]U, error) {
		out := make([]U, 0, len(chunk))
		for _, r := range chunk {
			u, err := fn(r)
			if err != nil {
				return nil, err
			}
			out = append(out, u)
		}
		return out, nil
	})
}

// Project is Map for projections that cannot fail.
func Project[T, U any](ctx context.Context, p Pool, rows []T, fn func(T) U) ([]U, error) {
	return Map(ctx, p, rows, func(r T) (U, error) { return fn(r), nil })
}

// GroupMax returns, for every distinct key, the maximum value over the rows
// carrying that key.
func GroupMax[T any, K comparable, V cmp.Ordered](ctx context.Context, p Pool, rows []T, key func(T) K, value func(T) V) (map[K]V, error) {
	partials, err := run(ctx, p, rows, func(chunk []T) ([]map[K]V, error) {
		m := make(map[K]V)
		for _, r := range chunk {
			k, v := key(r), value(r)
			if cur, ok := m[k]; !ok || v > cur {
				m[k] = v
			}
		}
		return []map[K]V{m}, nil
	})
	if err != nil {
		return nil, err
	}

	out := make(map[K]V)
	for _, m := range partials {
		for k, v := range m {
			if cur, ok := out[k]; !ok || v > cur {
				out[k] = v
			}
		}
	}
	return out, nil
}

// LeftJoin pairs every left row with each right row sharing its key. A left
// row without a match is emitted once with a nil right side; a left row with
// k matches is emitted k times, in right input order. Rows whose key
// function reports false never match.
func LeftJoin[L, R, O any, K comparable](
	ctx context.Context,
	p Pool,
	left []L,
	right []R,
	leftKey func(L) (K, bool),
	rightKey func(R) (K, bool),
	combine func(L, *R) O,
) ([]O, error) {
	index := make(map[K][]int)
	for i, r := range right {
		if k, ok := rightKey(r); ok {
			index[k] = append(index[k], i)
		}
	}

	return run(ctx, p, left, func(chunk []L) ([]O, error) {
		out := make([]O, 0, len(chunk))
		for _, l := range chunk {
			k, ok := leftKey(l)
			matches := index[k]
			if !ok || len(matches) == 0 {
				out = append(out, combine(l, nil))
				continue
			}
			for _, i := range matches {
				out = append(out, combine(l, &right[i]))
			}
		}
		return out, nil
	})
}
