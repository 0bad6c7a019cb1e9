package engine

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func req(game string) *pending {
	return &pending{req: Request{GameID: game}, reply: make(chan Response, 1)}
}

func TestRequestQueue_FIFO(t *testing.T) {
	q := newRequestQueue()
	for _, id := range []string{"A", "B", "C"} {
		require.True(t, q.Enqueue(req(id)))
	}
	for _, want := range []string{"A", "B", "C"} {
		p, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, want, p.req.GameID)
	}
	_, ok := q.TryDequeue()
	assert.False(t, ok)
}

func TestRequestQueue_WaitSignals(t *testing.T) {
	q := newRequestQueue()
	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Enqueue(req("late"))
	}()

	select {
	case <-q.Wait():
		p, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, "late", p.req.GameID)
	case <-time.After(time.Second):
		t.Fatal("wait did not signal")
	}
}

func TestRequestQueue_CloseReturnsLeftovers(t *testing.T) {
	q := newRequestQueue()
	q.Enqueue(req("A"))
	q.Enqueue(req("B"))

	left := q.Close()
	assert.Len(t, left, 2)
	assert.Equal(t, 0, q.Len())
	assert.False(t, q.Enqueue(req("C")), "enqueue after close must fail")
	assert.Nil(t, q.Close(), "second close is a no-op")

	select {
	case <-q.Wait():
	default:
		t.Fatal("closed queue must wake waiters")
	}
}

func TestRequestQueue_ThreadSafe(t *testing.T) {
	q := newRequestQueue()
	const producers = 10
	const perProducer = 50

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Enqueue(req(fmt.Sprintf("%d-%d", p, i)))
			}
		}(p)
	}
	wg.Wait()
	assert.Equal(t, producers*perProducer, q.Len())
}
