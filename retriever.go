package main

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/gsannikov/2ndBrain-RAG/docstore"
	"github.com/lithammer/fuzzysearch/fuzzy"
)

const (
	semanticWeight = 0.8
	lexicalWeight  = 0.2

	// lexicalPrefix bounds how much of a chunk the fuzzy matcher looks at.
	lexicalPrefix = 800
	previewLen    = 500

	// Over-fetch factor when a path filter is applied client-side.
	filterFetchFactor = 4
)

type Result struct {
	Path    string  `json:"path"`
	Score   float64 `json:"score"`
	Start   int     `json:"start"`
	End     int     `json:"end"`
	Preview string  `json:"preview"`
	Text    string  `json:"-"`
}

type docSearcher interface {
	Query(ctx context.Context, query string, n int) ([]docstore.SearchResult, error)
}

// Retriever ranks vector-database hits with a blended score: cosine
// similarity carries most of the weight, a lexical fuzzy match against the
// chunk's prefix nudges results that literally contain the query terms.
type Retriever struct {
	log   *slog.Logger
	store docSearcher
	cache *QueryCache
}

func NewRetriever(store docSearcher, cache *QueryCache, log *slog.Logger) *Retriever {
	return &Retriever{
		log:   log,
		store: store,
		cache: cache,
	}
}

// Search returns the top k chunks for query, best first. Results for
// unfiltered queries are cached per (query, k); path-filtered queries bypass
// the cache since the filter is not part of the key identity.
func (r *Retriever) Search(ctx context.Context, query string, k int, pathFilter string) ([]Result, error) {
	if pathFilter == "" {
		if cached, ok := r.cache.Get(query, k); ok {
			return cached, nil
		}
	}

	n := k
	if pathFilter != "" {
		n = k * filterFetchFactor
	}

	hits, err := r.store.Query(ctx, query, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query doc store: %w", err)
	}

	results := make([]Result, 0, k)
	for _, hit := range hits {
		if pathFilter != "" && !strings.Contains(hit.File, pathFilter) {
			continue
		}

		semantic := 1 - float64(hit.Distance)
		lexical := lexicalScore(query, hit.Text)
		results = append(results, Result{
			Path:    hit.File,
			Score:   semanticWeight*semantic + lexicalWeight*lexical,
			Start:   hit.Start,
			End:     hit.End,
			Preview: makePreview(hit.Text),
			Text:    hit.Text,
		})
		if len(results) == k {
			break
		}
	}

	// Stable keeps the database's own order for equal scores.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if pathFilter == "" {
		r.cache.Set(query, k, results)
	}

	return results, nil
}

// lexicalScore is a partial-match similarity in [0,1] between the query and
// the first lexicalPrefix characters of text: the best normalized
// Levenshtein similarity over query-sized windows of the prefix.
func lexicalScore(query string, text string) float64 {
	q := []rune(strings.ToLower(query))
	t := []rune(strings.ToLower(text))
	if len(t) > lexicalPrefix {
		t = t[:lexicalPrefix]
	}
	if len(q) == 0 || len(t) == 0 {
		return 0
	}
	if strings.Contains(string(t), string(q)) {
		return 1
	}
	if len(q) >= len(t) {
		return normalizedSimilarity(string(q), string(t))
	}

	step := max(1, len(q)/2)
	best := 0.0
	for i := 0; i < len(t); i += step {
		end := min(i+len(q), len(t))
		s := normalizedSimilarity(string(q), string(t[i:end]))
		if s > best {
			best = s
		}
		if end == len(t) {
			break
		}
	}

	return best
}

func normalizedSimilarity(a string, b string) float64 {
	longest := max(len([]rune(a)), len([]rune(b)))
	if longest == 0 {
		return 1
	}

	s := 1 - float64(fuzzy.LevenshteinDistance(a, b))/float64(longest)
	return max(s, 0)
}

func makePreview(text string) string {
	runes := []rune(text)
	if len(runes) > previewLen {
		runes = runes[:previewLen]
	}

	preview := strings.ReplaceAll(string(runes), "\n", " ")
	return strings.ReplaceAll(preview, "\r", " ")
}
