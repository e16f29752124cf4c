package fanout_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/storefleet/pkg/fanout"
	"github.com/dmitrymomot/storefleet/pkg/tenant"
)

var errBoom = errors.New("boom")

func echoExceptB(ctx context.Context, code string) (string, error) {
	bound, ok := tenant.CodeFromContext(ctx)
	if !ok || bound != code {
		return "", errors.New("context not bound to visited tenant")
	}
	if code == "store-b" {
		return "", errBoom
	}
	return "value-" + bound, nil
}

func TestForEach(t *testing.T) {
	t.Parallel()

	t.Run("partial failure keeps other tenants", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		res, err := fanout.ForEach(ctx, fanout.Codes("store-a", "store-b", "store-c"), echoExceptB)

		require.Error(t, err)
		assert.ErrorIs(t, err, fanout.ErrPartialAggregation)
		assert.ErrorIs(t, err, errBoom)

		var partial *fanout.PartialError[string]
		require.ErrorAs(t, err, &partial)
		require.Len(t, partial.Failures, 1)
		assert.Equal(t, "store-b", partial.Failures[0].Code)
		assert.ErrorIs(t, partial.Err("store-b"), errBoom)
		assert.NoError(t, partial.Err("store-a"))

		assert.Equal(t, []string{"value-store-a", "value-store-c"}, res.Values())
		assert.Same(t, res, partial.Result)

		_, bound := tenant.CodeFromContext(ctx)
		assert.False(t, bound)
	})

	t.Run("all succeed", func(t *testing.T) {
		t.Parallel()

		res, err := fanout.ForEach(context.Background(), fanout.Codes("store-a", "store-c"), echoExceptB)
		require.NoError(t, err)
		require.Len(t, res.Items, 2)
		assert.Equal(t, "store-a", res.Items[0].Code)
	})

	t.Run("panic is captured", func(t *testing.T) {
		t.Parallel()

		res, err := fanout.ForEach(context.Background(), fanout.Codes("store-a", "store-p"),
			func(ctx context.Context, code string) (int, error) {
				if code == "store-p" {
					panic("bad tenant")
				}
				return 1, nil
			})
		assert.ErrorIs(t, err, tenant.ErrUnitPanicked)
		assert.Equal(t, []int{1}, res.Values())
	})

	t.Run("caller binding is ignored and preserved", func(t *testing.T) {
		t.Parallel()

		ctx := tenant.WithCode(context.Background(), "outer")
		var seenBySource bool
		source := func(ctx context.Context) ([]string, error) {
			_, seenBySource = tenant.CodeFromContext(ctx)
			return []string{"store-a"}, nil
		}
		_, err := fanout.ForEach(ctx, source, echoExceptB)
		require.NoError(t, err)
		assert.False(t, seenBySource)
		assert.Equal(t, "outer", tenant.MustCode(ctx))
	})

	t.Run("source failure", func(t *testing.T) {
		t.Parallel()

		source := func(context.Context) ([]string, error) { return nil, errBoom }
		res, err := fanout.ForEach(context.Background(), source, echoExceptB)
		assert.ErrorIs(t, err, fanout.ErrListTenants)
		assert.ErrorIs(t, err, errBoom)
		assert.Empty(t, res.Items)
	})

	t.Run("canceled context marks remaining tenants", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		res, err := fanout.ForEach(ctx, fanout.Codes("store-a", "store-c", "store-d"),
			func(ctx context.Context, code string) (string, error) {
				if code == "store-a" {
					cancel()
				}
				return code, nil
			})

		var partial *fanout.PartialError[string]
		require.ErrorAs(t, err, &partial)
		assert.Len(t, partial.Failures, 2)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, []string{"store-a"}, res.Values())
	})
}

func TestForEachConcurrent(t *testing.T) {
	t.Parallel()

	t.Run("partial failure keeps source order", func(t *testing.T) {
		t.Parallel()

		res, err := fanout.ForEachConcurrent(context.Background(),
			fanout.Codes("store-a", "store-b", "store-c"), 3, echoExceptB)

		var partial *fanout.PartialError[string]
		require.ErrorAs(t, err, &partial)
		assert.Equal(t, "store-b", partial.Failures[0].Code)
		assert.Equal(t, []string{"value-store-a", "value-store-c"}, res.Values())
	})

	t.Run("limit bounds parallelism", func(t *testing.T) {
		t.Parallel()

		codes := make([]string, 20)
		for i := range codes {
			codes[i] = "store-" + string(rune('a'+i))
		}

		var running, peak atomic.Int32
		var mu sync.Mutex
		seen := map[string]string{}

		_, err := fanout.ForEachConcurrent(context.Background(), fanout.Codes(codes...), 3,
			func(ctx context.Context, code string) (struct{}, error) {
				n := running.Add(1)
				defer running.Add(-1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)

				mu.Lock()
				seen[code] = tenant.MustCode(ctx)
				mu.Unlock()
				return struct{}{}, nil
			})
		require.NoError(t, err)
		assert.LessOrEqual(t, peak.Load(), int32(3))
		require.Len(t, seen, len(codes))
		for code, bound := range seen {
			assert.Equal(t, code, bound)
		}
	})

	t.Run("invalid limit", func(t *testing.T) {
		t.Parallel()

		_, err := fanout.ForEachConcurrent(context.Background(), fanout.Codes("store-a"), 0, echoExceptB)
		assert.ErrorIs(t, err, fanout.ErrInvalidLimit)
	})
}
