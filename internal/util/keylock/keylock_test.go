package keylock_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cipherlink/internal/util/keylock"
)

func TestLock_SerializesSameKey(t *testing.T) {
	m := keylock.New()
	var (
		wg      sync.WaitGroup
		counter int
		maxSeen int
		inside  int
		guard   sync.Mutex
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := m.Lock("link-1")
			defer unlock()

			guard.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			guard.Unlock()

			counter++

			guard.Lock()
			inside--
			guard.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
	assert.Equal(t, 1, maxSeen)
	assert.Zero(t, m.Len())
}

func TestLock_DistinctKeysIndependent(t *testing.T) {
	m := keylock.New()
	unlockA := m.Lock("a")
	done := make(chan struct{})
	go func() {
		unlockB := m.Lock("b")
		unlockB()
		close(done)
	}()
	<-done
	require.Equal(t, 1, m.Len())
	unlockA()
	unlockA()
	require.Zero(t, m.Len())
}
