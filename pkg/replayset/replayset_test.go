package replayset

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryRejectsReplay(t *testing.T) {
	s := NewInMemory(time.Second)
	ctx := context.Background()

	first, err := s.MarkIfAbsent(ctx, "jti-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, first)

	second, err := s.MarkIfAbsent(ctx, "jti-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, second, "replayed jti must be rejected")
}

func TestInMemoryDistinctJTIsIndependent(t *testing.T) {
	s := NewInMemory(time.Second)
	ctx := context.Background()

	ok1, _ := s.MarkIfAbsent(ctx, "jti-a", time.Minute)
	ok2, _ := s.MarkIfAbsent(ctx, "jti-b", time.Minute)
	assert.True(t, ok1)
	assert.True(t, ok2)
}

func TestInMemoryEvictsAfterTTL(t *testing.T) {
	s := NewInMemory(10 * time.Millisecond)
	fakeNow := time.Now()
	s.now = func() time.Time { return fakeNow }
	ctx := context.Background()

	first, err := s.MarkIfAbsent(ctx, "jti-1", 20*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, first)

	fakeNow = fakeNow.Add(100 * time.Millisecond)
	again, err := s.MarkIfAbsent(ctx, "jti-1", 20*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, again, "entry older than ttl must be evicted and accepted again")
}

func TestInMemoryConcurrentMarkIsExactlyOnceWinner(t *testing.T) {
	s := NewInMemory(time.Second)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]bool, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, _ := s.MarkIfAbsent(ctx, "shared-jti", time.Minute)
			results[i] = ok
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, r := range results {
		if r {
			winners++
		}
	}
	assert.Equal(t, 1, winners)
}
