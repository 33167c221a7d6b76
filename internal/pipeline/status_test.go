package pipeline

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCacheRoundTrip(t *testing.T) {
	cache := NewStatusCache(filepath.Join(t.TempDir(), "status.json"))

	require.NoError(t, cache.Update("job1", JobStatus{Step: StepRender, Status: "running"}))
	require.NoError(t, cache.Update("job2", JobStatus{Step: StepCompose, Status: "done", Completed: true, ChartName: "vertical_bar"}))

	st, ok, err := cache.Get("job1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StepRender, st.Step)
	assert.Equal(t, "running", st.Status)
	assert.False(t, st.UpdatedAt.IsZero())

	st, ok, err = cache.Get("job2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, st.Completed)
	assert.Equal(t, "vertical_bar", st.ChartName)
}

func TestStatusCacheMissingJob(t *testing.T) {
	cache := NewStatusCache(filepath.Join(t.TempDir(), "status.json"))
	_, ok, err := cache.Get("ghost")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStatusCacheNilSafe(t *testing.T) {
	var cache *StatusCache
	assert.NoError(t, cache.Update("job", JobStatus{}))
	_, ok, err := cache.Get("job")
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestStatusCacheConcurrentUpdates(t *testing.T) {
	cache := NewStatusCache(filepath.Join(t.TempDir(), "status.json"))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := string(rune('a' + n))
			assert.NoError(t, cache.Update(id, JobStatus{Step: StepLoad, Status: "running"}))
		}(i)
	}
	wg.Wait()

	for i := 0; i < 8; i++ {
		_, ok, err := cache.Get(string(rune('a' + i)))
		require.NoError(t, err)
		assert.True(t, ok)
	}
}
