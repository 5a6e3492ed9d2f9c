package main

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gsannikov/2ndBrain-RAG/docstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSearcher struct {
	hits    []docstore.SearchResult
	err     error
	queries int
	lastN   int
}

func (f *fakeSearcher) Query(ctx context.Context, query string, n int) ([]docstore.SearchResult, error) {
	f.queries++
	f.lastN = n
	if f.err != nil {
		return nil, f.err
	}

	return f.hits, nil
}

func newTestRetriever(store *fakeSearcher) *Retriever {
	return NewRetriever(store, NewQueryCache(10, time.Hour), testLogger())
}

func Test_Search_BlendsScores(t *testing.T) {
	store := &fakeSearcher{hits: []docstore.SearchResult{
		{Text: "bananas are berries, botanically speaking", File: "/docs/facts.txt", Start: 0, End: 41, Distance: 0.2},
	}}

	res, err := newTestRetriever(store).Search(context.Background(), "bananas are berries", 5, "")
	require.NoError(t, err)
	require.Len(t, res, 1)

	// Exact lexical match in the prefix: 0.8*(1-0.2) + 0.2*1.0
	assert.InDelta(t, 0.84, res[0].Score, 0.01)
	assert.Equal(t, "/docs/facts.txt", res[0].Path)
	assert.Equal(t, 0, res[0].Start)
	assert.Equal(t, 41, res[0].End)
}

func Test_Search_RanksByBlendedScore(t *testing.T) {
	store := &fakeSearcher{hits: []docstore.SearchResult{
		{Text: "nothing relevant here at all", File: "/docs/noise.txt", Distance: 0.3},
		{Text: "venus has the longest day", File: "/docs/venus.txt", Distance: 0.1},
	}}

	res, err := newTestRetriever(store).Search(context.Background(), "venus has the longest day", 5, "")
	require.NoError(t, err)
	require.Len(t, res, 2)

	assert.Equal(t, "/docs/venus.txt", res[0].Path)
	assert.Greater(t, res[0].Score, res[1].Score)
}

func Test_Search_TiesKeepSourceOrder(t *testing.T) {
	store := &fakeSearcher{hits: []docstore.SearchResult{
		{Text: "same text", File: "/docs/first.txt", Distance: 0.5},
		{Text: "same text", File: "/docs/second.txt", Distance: 0.5},
	}}

	res, err := newTestRetriever(store).Search(context.Background(), "unrelated query", 5, "")
	require.NoError(t, err)
	require.Len(t, res, 2)

	assert.Equal(t, "/docs/first.txt", res[0].Path)
	assert.Equal(t, "/docs/second.txt", res[1].Path)
}

func Test_Search_PreviewIsSingleLineAndBounded(t *testing.T) {
	text := strings.Repeat("line one\nline two\n", 100)
	store := &fakeSearcher{hits: []docstore.SearchResult{
		{Text: text, File: "/docs/long.txt", Distance: 0.1},
	}}

	res, err := newTestRetriever(store).Search(context.Background(), "line one", 5, "")
	require.NoError(t, err)
	require.Len(t, res, 1)

	assert.NotContains(t, res[0].Preview, "\n")
	assert.LessOrEqual(t, len(res[0].Preview), previewLen)
	assert.Equal(t, text, res[0].Text)
}

func Test_Search_CachesUnfilteredQueries(t *testing.T) {
	store := &fakeSearcher{hits: []docstore.SearchResult{
		{Text: "cached content", File: "/docs/a.txt", Distance: 0.1},
	}}
	r := newTestRetriever(store)

	first, err := r.Search(context.Background(), "cached content", 5, "")
	require.NoError(t, err)

	second, err := r.Search(context.Background(), "cached content", 5, "")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, store.queries)
}

func Test_Search_PathFilterBypassesCache(t *testing.T) {
	store := &fakeSearcher{hits: []docstore.SearchResult{
		{Text: "alpha", File: "/docs/a/alpha.txt", Distance: 0.1},
		{Text: "beta", File: "/docs/b/beta.txt", Distance: 0.1},
	}}
	r := newTestRetriever(store)

	res, err := r.Search(context.Background(), "alpha", 5, "/docs/a/")
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "/docs/a/alpha.txt", res[0].Path)

	// Filtered queries over-fetch and never populate the cache.
	assert.Equal(t, 5*filterFetchFactor, store.lastN)

	_, err = r.Search(context.Background(), "alpha", 5, "/docs/a/")
	require.NoError(t, err)
	assert.Equal(t, 2, store.queries)
}

func Test_Search_StoreErrorPropagates(t *testing.T) {
	store := &fakeSearcher{err: errors.New("chroma is down")}

	_, err := newTestRetriever(store).Search(context.Background(), "anything", 5, "")
	assert.ErrorContains(t, err, "chroma is down")
}

func Test_lexicalScore(t *testing.T) {
	// Exact occurrence inside the prefix scores a full match.
	assert.InDelta(t, 1.0, lexicalScore("brown fox", "the quick brown fox jumps"), 0.01)

	// Unrelated text scores low.
	assert.Less(t, lexicalScore("quantum physics", "recipe for banana bread"), 0.5)

	assert.Zero(t, lexicalScore("", "some text"))
	assert.Zero(t, lexicalScore("query", ""))
}
