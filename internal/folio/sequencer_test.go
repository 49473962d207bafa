package folio

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/formflow/internal/apperr"
)

func drawConcurrently(t *testing.T, seq *Sequencer, templateID uint, n int) []int64 {
	t.Helper()
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		got = make([]int64, 0, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := seq.Next(context.Background(), templateID)
			assert.NoError(t, err)
			mu.Lock()
			got = append(got, v)
			mu.Unlock()
		}()
	}
	wg.Wait()
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	return got
}

func TestNextIsGaplessUnderConcurrency(t *testing.T) {
	seq := NewSequencer(NewMemoryStore())

	got := drawConcurrently(t, seq, 7, 200)
	require.Len(t, got, 200)
	for i, v := range got {
		assert.Equal(t, int64(i+1), v)
	}
}

func TestNextTwoCallersOnFreshCounter(t *testing.T) {
	seq := NewSequencer(NewMemoryStore())

	assert.Equal(t, []int64{1, 2}, drawConcurrently(t, seq, 7, 2))
}

func TestNextContinuesExistingCounter(t *testing.T) {
	store := NewMemoryStore()
	store.Seed(3, 41)
	seq := NewSequencer(store)

	got := drawConcurrently(t, seq, 3, 5)
	assert.Equal(t, []int64{42, 43, 44, 45, 46}, got)
}

func TestNextTemplatesAreIndependent(t *testing.T) {
	seq := NewSequencer(NewMemoryStore())
	ctx := context.Background()

	a, err := seq.Next(ctx, 1)
	require.NoError(t, err)
	b, err := seq.Next(ctx, 2)
	require.NoError(t, err)
	a2, err := seq.Next(ctx, 1)
	require.NoError(t, err)

	assert.Equal(t, int64(1), a)
	assert.Equal(t, int64(1), b)
	assert.Equal(t, int64(2), a2)
}

type stubStore struct {
	value int64
	err   error
}

func (s stubStore) Increment(context.Context, uint) (int64, error) { return s.value, s.err }
func (s stubStore) Backend() string                                { return "stub" }

func TestNextPropagatesStoreFailure(t *testing.T) {
	boom := errors.New("connection refused")
	_, err := NewSequencer(stubStore{err: boom}).Next(context.Background(), 7)
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
}

func TestNextRejectsNonPositiveCounter(t *testing.T) {
	_, err := NewSequencer(stubStore{value: 0}).Next(context.Background(), 7)
	assert.True(t, errors.Is(err, apperr.ErrConflictingFolio))
}

func TestNextRejectsEmptyTemplate(t *testing.T) {
	_, err := NewSequencer(NewMemoryStore()).Next(context.Background(), 0)
	assert.Error(t, err)
}

func TestMemoryStoreHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMemoryStore().Increment(ctx, 7)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRedisStoreKey(t *testing.T) {
	store := NewRedisStoreWithClient(nil, "")
	assert.Equal(t, "formflow:folio:7", store.key(7))
	assert.Equal(t, "redis", store.Backend())
}
