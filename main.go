package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amikos-tech/chroma-go/pkg/embeddings"
	gemini "github.com/amikos-tech/chroma-go/pkg/embeddings/gemini"
	openai "github.com/amikos-tech/chroma-go/pkg/embeddings/openai"
	"github.com/gsannikov/2ndBrain-RAG/docstore"
	"github.com/gsannikov/2ndBrain-RAG/llm"
	"github.com/gsannikov/2ndBrain-RAG/readers"
	"github.com/mark3labs/mcp-go/server"
	"golang.org/x/sync/errgroup"
)

func createEmbeddingFunction(cfg *Config) (embeddings.EmbeddingFunction, error) {
	if cfg.OpenAI != nil {
		ef, err := openai.NewOpenAIEmbeddingFunction(
			cfg.OpenAI.ApiKey,
			openai.WithModel(openai.EmbeddingModel(cfg.OpenAI.Model)))
		if err != nil {
			return nil, fmt.Errorf("failed to create OpenAI embedding function: %w", err)
		}

		return ef, nil
	}

	if cfg.Gemini != nil {
		ef, err := gemini.NewGeminiEmbeddingFunction(
			gemini.WithAPIKey(cfg.Gemini.ApiKey),
			gemini.WithDefaultModel(embeddings.EmbeddingModel(cfg.Gemini.Model)))
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini embedding function: %w", err)
		}

		return ef, nil
	}

	return nil, errors.New("invalid embeddings provider configuration")
}

func initDocStore(cfg *Config) (*docstore.ChromaStore, error) {
	ef, err := createEmbeddingFunction(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding function: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := docstore.NewChromaStore(ctx, docstore.ChromaStoreConfig{
		BaseURL:       cfg.ChromaAddr,
		Collection:    cfg.Collection,
		EmbeddingFunc: ef,
		RequestSize:   cfg.RequestSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Chroma doc store: %w", err)
	}

	return store, nil
}

func main() {
	reset := flag.Bool("reset", false, "Reinitialize the database from scratch if set")
	cfgPath := flag.String("config", "cfg/config.yaml", "Configuration file for the server")
	flag.Parse()

	cfg, err := readConfig(*cfgPath)
	if err != nil {
		log.Fatal(err)
	}

	logFile, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		log.Fatalf("failed to open log file: %s", err)
	}
	defer logFile.Close()

	logger := slog.New(slog.NewJSONHandler(logFile, nil))

	store, err := initDocStore(cfg)
	if err != nil {
		log.Fatal(err)
	}

	cache := NewQueryCache(cfg.Cache.MaxSize, time.Duration(cfg.Cache.TTLSeconds)*time.Second)

	var limiter *RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = NewRateLimiter(cfg.RateLimit.PerMinute)
	}

	chunkifier, err := NewChunkfier(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		log.Fatal(err)
	}

	reg := &DocRegistry{
		log:              logger,
		root:             cfg.DocRoot,
		allowedExts:      cfg.AllowedExts,
		maxFileSize:      int64(cfg.MaxFileMB) << 20,
		mergeEventsDelay: time.Duration(cfg.MergeEventsMs) * time.Millisecond,
		state:            NewStateStore(cfg.StateFile, logger),
		store:            store,
		chunkifier:       chunkifier,
		cache:            cache,
	}
	reg.RegisterReader(&readers.TxtFileReader{}, &readers.UniversalFileReader{})

	retriever := NewRetriever(store, cache, logger)

	var generator answerGenerator
	if cfg.Ollama != nil {
		generator = llm.NewOllamaClient(cfg.Ollama.Host, cfg.Ollama.Model)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if *reset {
			if _, err := reg.Rebuild(ctx); err != nil {
				return err
			}
		} else if _, err := reg.Sync(ctx); err != nil {
			return err
		}

		return reg.Watch(ctx)
	})

	if cfg.ServerAddr != "" {
		srv := NewRagServer(retriever, reg, store, cfg.Results)
		sse := server.NewSSEServer(srv, server.WithBaseURL(fmt.Sprintf("http://%s", cfg.ServerAddr)))
		g.Go(func() error {
			return sse.Start(cfg.ServerAddr)
		})
		g.Go(func() error {
			<-ctx.Done()
			return sse.Shutdown(context.Background())
		})
	}

	if cfg.HTTPAddr != "" {
		api := NewHTTPServer(cfg.DocRoot, reg, store, retriever, cache, limiter, generator, cfg.Results, logger)
		httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: api.Handler()}
		g.Go(func() error {
			err := httpSrv.ListenAndServe()
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		})
		g.Go(func() error {
			<-ctx.Done()
			return httpSrv.Shutdown(context.Background())
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal(err)
	}
}
