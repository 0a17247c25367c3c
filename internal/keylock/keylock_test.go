package keylock

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMap_SerializesSameKey(t *testing.T) {
	var m Map[string]
	var counter int64
	var wg sync.WaitGroup

	const n = 100
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			m.WithLock("task-1", func() {
				cur := atomic.AddInt64(&counter, 1)
				assert.Equal(t, int64(1), cur)
				atomic.AddInt64(&counter, -1)
			})
		}()
	}
	wg.Wait()
}

func TestMap_DistinctKeysDoNotBlock(t *testing.T) {
	var m Map[string]
	done := make(chan struct{})

	m.Lock("a")
	go func() {
		m.WithLock("b", func() {})
		close(done)
	}()
	<-done
	m.Unlock("a")
}

func TestMap_CleansUpEntries(t *testing.T) {
	var m Map[string]
	m.WithLock("x", func() {})
	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Empty(t, m.locks)
}
