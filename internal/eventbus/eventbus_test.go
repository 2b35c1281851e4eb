package eventbus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type ping struct{ N int }
type pong struct{ S string }

func TestBus_DispatchByType(t *testing.T) {
	b := New()
	var pings []int
	var pongs []string
	On(b, func(ctx context.Context, e ping) { pings = append(pings, e.N) })
	On(b, func(ctx context.Context, e pong) { pongs = append(pongs, e.S) })

	Emit(context.Background(), b, ping{N: 1})
	Emit(context.Background(), b, pong{S: "a"})
	Emit(context.Background(), b, ping{N: 2})

	require.Equal(t, []int{1, 2}, pings)
	require.Equal(t, []string{"a"}, pongs)
}

func TestBus_Unsubscribe(t *testing.T) {
	b := New()
	var a, c int
	unA := On(b, func(ctx context.Context, e ping) { a++ })
	On(b, func(ctx context.Context, e ping) { c++ })

	Emit(context.Background(), b, ping{})
	unA()
	unA()
	Emit(context.Background(), b, ping{})

	require.Equal(t, 1, a)
	require.Equal(t, 2, c)
}

func TestGlobal(t *testing.T) {
	Use(nil)
	got := 0
	Subscribe(func(ctx context.Context, e ping) { got++ })
	Publish(context.Background(), ping{})
	require.Equal(t, 0, got)

	Use(New())
	defer Use(nil)
	un := Subscribe(func(ctx context.Context, e ping) { got += e.N })
	Publish(context.Background(), ping{N: 5})
	un()
	Publish(context.Background(), ping{N: 5})
	require.Equal(t, 5, got)
}
