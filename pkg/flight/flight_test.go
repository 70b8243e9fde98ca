package flight

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetMemoizes(t *testing.T) {
	var calls atomic.Int32
	c := New(time.Hour, func(k string) (string, error) {
		calls.Add(1)
		return k + "!", nil
	})

	for range 3 {
		v, err := c.Get("a")
		require.NoError(t, err)
		assert.Equal(t, "a!", v)
	}
	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, 1, c.Len())
}

func TestGetCoalescesConcurrentCalls(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	c := New(0, func(k int) (int, error) {
		calls.Add(1)
		<-release
		return k * 2, nil
	})

	var wg sync.WaitGroup
	results := make([]int, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], _ = c.Get(21)
		}()
	}
	// Let every goroutine reach Get before the work finishes.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load())
	for _, r := range results {
		assert.Equal(t, 42, r)
	}
}

func TestErrorsAreNotCached(t *testing.T) {
	fail := true
	c := New(time.Hour, func(string) (string, error) {
		if fail {
			return "", errors.New("boom")
		}
		return "ok", nil
	})

	_, err := c.Get("k")
	require.Error(t, err)
	fail = false
	v, err := c.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestForget(t *testing.T) {
	var calls atomic.Int32
	c := New(time.Hour, func(k [2]string) (int, error) {
		return int(calls.Add(1)), nil
	})
	_, _ = c.Get([2]string{"s1", "a"})
	_, _ = c.Get([2]string{"s1", "b"})
	_, _ = c.Get([2]string{"s2", "a"})

	c.Forget(func(k [2]string) bool { return k[0] == "s1" })
	assert.Equal(t, 1, c.Len())

	v, err := c.Get([2]string{"s1", "a"})
	require.NoError(t, err)
	assert.Equal(t, 4, v)
}

func TestExpiredEntryDropsStrongReference(t *testing.T) {
	now := time.Unix(0, 0)
	c := New(time.Minute, func(k string) ([]byte, error) { return []byte(k), nil })
	c.now = func() time.Time { return now }

	_, err := c.Get("x")
	require.NoError(t, err)
	now = now.Add(2 * time.Minute)

	c.mu.Lock()
	_, _ = c.lookup("x")
	e := c.finished["x"]
	c.mu.Unlock()
	if e != nil {
		assert.Nil(t, e.strong)
	}
}
