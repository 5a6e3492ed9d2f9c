package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
)

type indexScanner interface {
	Sync(ctx context.Context) (int, error)
	Rebuild(ctx context.Context) (int, error)
}

type chunkStore interface {
	Count(ctx context.Context) (int, error)
}

type answerGenerator interface {
	Generate(ctx context.Context, prompt string, system string, model string) (string, error)
}

// HTTPServer is the REST front end over the same core the MCP tools use.
type HTTPServer struct {
	log       *slog.Logger
	root      string
	registry  indexScanner
	store     chunkStore
	retriever docRetriever
	cache     *QueryCache
	limiter   *RateLimiter
	llm       answerGenerator
	defaultK  int
}

func NewHTTPServer(
	root string,
	registry indexScanner,
	store chunkStore,
	retriever docRetriever,
	cache *QueryCache,
	limiter *RateLimiter,
	llm answerGenerator,
	defaultK int,
	log *slog.Logger,
) *HTTPServer {
	if defaultK <= 0 {
		defaultK = defaultResults
	}

	return &HTTPServer{
		log:       log,
		root:      root,
		registry:  registry,
		store:     store,
		retriever: retriever,
		cache:     cache,
		limiter:   limiter,
		llm:       llm,
		defaultK:  defaultK,
	}
}

func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /ingest", s.handleIngest)
	mux.HandleFunc("GET /search", s.handleSearch)
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("GET /cache-stats", s.handleCacheStats)

	return s.rateLimit(mux)
}

// rateLimit rejects clients over their per-minute budget before any handler
// runs. Rejection is a 429 with a machine-readable reason, not a failure.
func (s *HTTPServer) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow(clientKey(r)) {
			s.log.Warn("rate limit exceeded", "client", clientKey(r))
			writeError(w, http.StatusTooManyRequests, "rate_limit_exceeded",
				fmt.Sprintf("limit is %d requests per minute", s.limiter.perMinute))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	count, err := s.store.Count(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, "store_unavailable", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"root":   s.root,
		"chunks": count,
	})
}

func (s *HTTPServer) handleIngest(w http.ResponseWriter, r *http.Request) {
	fullRebuild := r.URL.Query().Get("full_rebuild") == "true"

	var processed int
	var err error
	if fullRebuild {
		processed, err = s.registry.Rebuild(r.Context())
	} else {
		processed, err = s.registry.Sync(r.Context())
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "scan_failed", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"processed":    processed,
		"full_rebuild": fullRebuild,
	})
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	k := s.defaultK
	if raw := r.URL.Query().Get("k"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_k", "k must be an integer")
			return
		}
		k = parsed
	}

	if verr := validateSearch(q, k); verr != nil {
		writeError(w, http.StatusBadRequest, verr.Reason, verr.Message)
		return
	}

	results, err := s.retriever.Search(r.Context(), q, k, r.URL.Query().Get("path"))
	if err != nil {
		writeError(w, http.StatusBadGateway, "search_failed", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"query":   q,
		"k":       k,
		"results": results,
	})
}

type chatRequest struct {
	Query  string `json:"query"`
	K      int    `json:"k"`
	System string `json:"system"`
	Model  string `json:"model"`
}

type citation struct {
	Index  int    `json:"index"`
	Source string `json:"source"`
}

func (s *HTTPServer) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.llm == nil {
		writeError(w, http.StatusServiceUnavailable, "llm_not_configured", "no answer generation backend is configured")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON")
		return
	}
	if req.K == 0 {
		req.K = 5
	}
	if verr := validateSearch(req.Query, req.K); verr != nil {
		writeError(w, http.StatusBadRequest, verr.Reason, verr.Message)
		return
	}

	results, err := s.retriever.Search(r.Context(), req.Query, req.K, "")
	if err != nil {
		writeError(w, http.StatusBadGateway, "search_failed", err.Error())
		return
	}

	answer, err := s.llm.Generate(r.Context(), chatPrompt(req.Query, results), req.System, req.Model)
	if err != nil {
		// Degrade instead of failing the request: the retrieved context is
		// still useful even when the generator is down.
		s.log.Warn("answer generation failed", "error", err)
		answer = fmt.Sprintf("[answer generation unavailable: %v]", err)
	}

	citations := make([]citation, 0, len(results))
	for i, res := range results {
		citations = append(citations, citation{Index: i + 1, Source: res.Path})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"answer":    answer,
		"citations": citations,
	})
}

func (s *HTTPServer) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]any{"cache": s.cache.Stats()}
	if s.limiter != nil {
		stats["rate_limit"] = s.limiter.Stats()
	}

	writeJSON(w, http.StatusOK, stats)
}

// chatPrompt numbers the context blocks so the model's [n] citations line up
// with the citation list returned alongside the answer.
func chatPrompt(query string, results []Result) string {
	var blocks []string
	for i, res := range results {
		blocks = append(blocks, fmt.Sprintf("[%d] %s\nSOURCE: %s", i+1, res.Text, res.Path))
	}

	return fmt.Sprintf(`You are a helpful assistant. Answer the user's question strictly using the CONTEXT.
If the answer is not present in the context, say you don't know and suggest where to look in the files.
Cite sources as [n] matching the provided context blocks.

QUESTION: %s

CONTEXT:
%s

Provide a concise answer with citations like [1], [2].`, query, strings.Join(blocks, "\n\n"))
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, reason string, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"reason":  reason,
			"message": message,
		},
	})
}
