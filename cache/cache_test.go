package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetAfterSetWithinTTL(t *testing.T) {
	s := New()
	s.Set(NsDetailArticle, "pk:disc", "value", nil)

	got, ok := s.Get(NsDetailArticle, "pk:disc", time.Hour)
	require.True(t, ok)
	assert.Equal(t, "value", got)
}

func TestGetAfterTTLExpiry(t *testing.T) {
	s := New()
	s.Set(NsDetailArticle, "pk:disc", "value", nil)

	_, ok := s.Get(NsDetailArticle, "pk:disc", -time.Nanosecond)
	assert.False(t, ok)
}

func TestGetMissingKeyIsAbsent(t *testing.T) {
	s := New()
	_, ok := s.Get(NsDetailPublication, "nope", time.Hour)
	assert.False(t, ok)
}

func TestForeverProbeIgnoresExpiry(t *testing.T) {
	s := New(WithTTL(NsListPublications, time.Millisecond))
	s.Set(NsListPublications, "k", []string{"a"}, nil)
	time.Sleep(2 * time.Millisecond)

	_, ok := s.Get(NsListPublications, "k", time.Millisecond)
	assert.False(t, ok, "normal TTL should have expired")

	got, ok := s.Get(NsListPublications, "k", Forever)
	require.True(t, ok, "Forever probe should still see the stale entry")
	assert.Equal(t, []string{"a"}, got)
}

func TestSizeCapEvictsOldestInserted(t *testing.T) {
	s := New(WithCap(NsDetailArticle, 2))

	s.Set(NsDetailArticle, "a", 1, nil)
	s.Set(NsDetailArticle, "b", 2, nil)
	s.Set(NsDetailArticle, "c", 3, nil)

	stats := s.Stats()
	assert.LessOrEqual(t, stats[NsDetailArticle].Count, 2)

	_, ok := s.Get(NsDetailArticle, "a", time.Hour)
	assert.False(t, ok, "oldest-inserted key should have been evicted")

	_, ok = s.Get(NsDetailArticle, "c", time.Hour)
	assert.True(t, ok, "most recently inserted key should survive")
}

func TestSizeCapHoldsUnderRepeatedSets(t *testing.T) {
	s := New(WithCap(NsProfileHandle, 5))
	for i := 0; i < 50; i++ {
		s.Set(NsProfileHandle, string(rune('a'+i%26)), i, nil)
	}
	assert.LessOrEqual(t, s.Stats()[NsProfileHandle].Count, 5)
}

func TestClearAllEmptiesEveryNamespace(t *testing.T) {
	s := New()
	s.Set(NsDetailPublication, "a", 1, nil)
	s.Set(NsHierarchy, "b", 2, nil)

	s.ClearAll()

	for ns, stat := range s.Stats() {
		assert.Equalf(t, 0, stat.Count, "namespace %s should be empty after ClearAll", ns)
	}
}

func TestGetWithExtraRoundTrips(t *testing.T) {
	s := New()
	s.Set(NsMediaImage, "hash", []byte("bytes"), "image/jpeg")

	value, extra, ok := s.GetWithExtra(NsMediaImage, "hash", time.Hour)
	require.True(t, ok)
	assert.Equal(t, []byte("bytes"), value)
	assert.Equal(t, "image/jpeg", extra)
}

func TestSingleSlotListNamespaceEvictsPreviousEntry(t *testing.T) {
	s := New()
	s.Set(NsListPublications, "limit=10;relays=abc", []string{"one"}, nil)
	s.Set(NsListPublications, "limit=20;relays=def", []string{"two"}, nil)

	assert.LessOrEqual(t, s.Stats()[NsListPublications].Count, 1)
}

func TestSingleReturnsNewestEntryRegardlessOfKey(t *testing.T) {
	s := New()
	s.Set(NsListPublications, "limit=10;relays=abc", []string{"old"}, nil)
	s.Set(NsListPublications, "limit=20;relays=def", []string{"new"}, nil)

	key, value, ok := s.Single(NsListPublications, Forever)
	require.True(t, ok)
	assert.Equal(t, "limit=20;relays=def", key)
	assert.Equal(t, []string{"new"}, value)
}

func TestSingleHonorsTTL(t *testing.T) {
	s := New()
	s.Set(NsListPublications, "k", []string{"v"}, nil)

	_, _, ok := s.Single(NsListPublications, -time.Nanosecond)
	assert.False(t, ok)

	_, _, ok = s.Single(NsListPublications, Forever)
	assert.True(t, ok)
}

func TestSizeReportsNonZeroForPopulatedNamespace(t *testing.T) {
	s := New()
	s.Set(NsDerivedFile, "hash:epub", []byte("some bytes here"), nil)

	sizes := s.Size()
	assert.Greater(t, sizes[NsDerivedFile], uint64(0))
}
