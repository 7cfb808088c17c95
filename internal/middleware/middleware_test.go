package middleware

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecover(t *testing.T) {
	h := Recover(func(context.Context) error {
		panic("boom")
	})
	err := h(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next Handler) Handler {
			return func(ctx context.Context) error {
				order = append(order, name)
				return next(ctx)
			}
		}
	}

	h := Chain(func(context.Context) error {
		order = append(order, "handler")
		return nil
	}, mw("outer"), mw("inner"))

	require.NoError(t, h(context.Background()))
	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}

func TestLoggerPassesErrors(t *testing.T) {
	want := errors.New("failed")
	h := Logger("test")(func(context.Context) error { return want })
	assert.ErrorIs(t, h(context.Background()), want)
}

func TestGroup(t *testing.T) {
	var g Group
	var ran atomic.Int32

	for i := 0; i < 5; i++ {
		g.Go(context.Background(), "update", func(context.Context) error {
			ran.Add(1)
			if ran.Load() == 3 {
				panic("one bad update")
			}
			return nil
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, g.Wait(ctx))
	assert.Equal(t, int32(5), ran.Load())
}

func TestGroupWaitTimeout(t *testing.T) {
	var g Group
	release := make(chan struct{})
	g.Go(context.Background(), "slow", func(context.Context) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, g.Wait(ctx), context.DeadlineExceeded)
	close(release)
}
