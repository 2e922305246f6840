package priority_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sobjgo/actorcore/dispatcher"
	"github.com/sobjgo/actorcore/dispatcher/priority"
)

func TestStrictlyOrderedRunsHighestPriorityFirst(t *testing.T) {
	binder, err := dispatcher.New("priority_strictly_ordered", "t")
	require.NoError(t, err)
	queue, err := binder.Bind(1)
	require.NoError(t, err)

	var mu sync.Mutex
	var order []string
	var wg sync.WaitGroup

	record := func(name string) func() {
		return func() {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			wg.Done()
		}
	}

	// Occupy the single worker with a blocking demand first so the
	// three demands pushed afterward queue up together and ordering is
	// decided by the heap, not by scheduling luck.
	block := make(chan struct{})
	wg.Add(1)
	queue.Push(dispatcher.Demand{Priority: dispatcher.PriorityNormal, Run: func() {
		<-block
		wg.Done()
	}})
	time.Sleep(10 * time.Millisecond)

	wg.Add(3)
	queue.Push(dispatcher.Demand{Priority: dispatcher.PriorityLow, Run: record("low")})
	queue.Push(dispatcher.Demand{Priority: dispatcher.PriorityHighest, Run: record("highest")})
	queue.Push(dispatcher.Demand{Priority: dispatcher.PriorityNormal, Run: record("normal")})

	close(block)
	waitOrTimeout(t, &wg, time.Second)

	assert.Equal(t, []string{"highest", "normal", "low"}, order)
}

func TestQuotedRoundRobinServesEveryLevel(t *testing.T) {
	d := priority.NewQuotedRoundRobin(map[dispatcher.Priority]int{
		dispatcher.PriorityHighest: 2,
		dispatcher.PriorityLowest:  1,
	})
	defer d.Stop()

	binder, err := dispatcher.New("priority_quoted_round_robin", "t")
	require.NoError(t, err)
	queue, err := binder.Bind(1)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	queue.Push(dispatcher.Demand{Priority: dispatcher.PriorityLowest, Run: wg.Done})
	queue.Push(dispatcher.Demand{Priority: dispatcher.PriorityHighest, Run: wg.Done})

	waitOrTimeout(t, &wg, time.Second)
}

func TestOnePerPriorityRunsEachLevelIndependently(t *testing.T) {
	binder, err := dispatcher.New("priority_one_per_priority", "t")
	require.NoError(t, err)
	queue, err := binder.Bind(1)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	queue.Push(dispatcher.Demand{Priority: dispatcher.PriorityLow, Run: wg.Done})
	queue.Push(dispatcher.Demand{Priority: dispatcher.PriorityHigh, Run: wg.Done})

	waitOrTimeout(t, &wg, time.Second)
}

func waitOrTimeout(t *testing.T, wg *sync.WaitGroup, d time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatal("timed out waiting for demands to complete")
	}
}
