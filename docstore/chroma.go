package docstore

import (
	"context"
	"fmt"

	chroma "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"
)

const (
	FilePath   = "file_path"
	ChunkStart = "start"
	ChunkEnd   = "end"
	FileMtime  = "mtime"
)

type ChromaStoreConfig struct {
	BaseURL       string
	Collection    string
	EmbeddingFunc embeddings.EmbeddingFunction
	RequestSize   int
}

// ChromaStore keeps the vector collection in sync with on-disk documents.
// Writes for a file are delete-then-insert: a crash between the two steps can
// leave that file partially indexed until the next scan converges it.
type ChromaStore struct {
	client      chroma.Client
	col         chroma.Collection
	collection  string
	ef          embeddings.EmbeddingFunction
	requestSize int
}

func NewChromaStore(ctx context.Context, cfg ChromaStoreConfig) (*ChromaStore, error) {
	client, err := chroma.NewHTTPClient(chroma.WithBaseURL(cfg.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to create chroma client: %w", err)
	}

	ds := &ChromaStore{
		client:      client,
		collection:  cfg.Collection,
		ef:          cfg.EmbeddingFunc,
		requestSize: cfg.RequestSize,
	}

	ds.col, err = ds.openCollection(ctx)
	if err != nil {
		return nil, err
	}

	return ds, nil
}

func (ds *ChromaStore) openCollection(ctx context.Context) (chroma.Collection, error) {
	col, err := ds.client.GetOrCreateCollection(ctx, ds.collection,
		chroma.WithEmbeddingFunctionCreate(ds.ef),
		chroma.WithHNSWSpaceCreate(embeddings.COSINE))
	if err != nil {
		return nil, fmt.Errorf("failed to open collection %s: %w", ds.collection, err)
	}

	return col, nil
}

// SyncFile replaces every indexed entry for doc.File with doc's chunks. An
// empty chunk list still performs the delete, so emptied files drop out of
// the index instead of going stale. Chunk ids are derived from the path and
// span, so re-indexing identical content writes identical entries.
func (ds *ChromaStore) SyncFile(ctx context.Context, doc Doc) error {
	err := ds.DeleteFile(ctx, doc.File)
	if err != nil {
		return err
	}

	for _, bucket := range splitToBuckets(doc.Chunks, ds.requestSize) {
		ids := make([]chroma.DocumentID, 0, len(bucket))
		texts := make([]string, 0, len(bucket))
		metas := make([]chroma.DocumentMetadata, 0, len(bucket))
		for _, c := range bucket {
			ids = append(ids, chroma.DocumentID(ChunkID(doc.File, c)))
			texts = append(texts, c.Text)
			metas = append(metas, chroma.NewDocumentMetadata(
				chroma.NewStringAttribute(FilePath, doc.File),
				chroma.NewIntAttribute(ChunkStart, int64(c.Start)),
				chroma.NewIntAttribute(ChunkEnd, int64(c.End)),
				chroma.NewIntAttribute(FileMtime, doc.Mtime),
			))
		}

		err = ds.col.Add(ctx,
			chroma.WithIDs(ids...),
			chroma.WithTexts(texts...),
			chroma.WithMetadatas(metas...),
		)
		if err != nil {
			return fmt.Errorf("failed to index chunks for %s: %w", doc.File, err)
		}
	}

	return nil
}

func (ds *ChromaStore) DeleteFile(ctx context.Context, file string) error {
	err := ds.col.Delete(ctx, chroma.WithWhereDelete(chroma.EqString(FilePath, file)))
	if err != nil {
		return fmt.Errorf("failed to delete indexed chunks for %s: %w", file, err)
	}

	return nil
}

// Query returns the n nearest chunks with their cosine distances, in the
// order the database reports them.
func (ds *ChromaStore) Query(ctx context.Context, query string, n int) ([]SearchResult, error) {
	r, err := ds.col.Query(ctx,
		chroma.WithQueryTexts(query),
		chroma.WithNResults(n),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve texts: %w", err)
	}

	docGroups := r.GetDocumentsGroups()
	if len(docGroups) == 0 {
		return nil, nil
	}

	docs := docGroups[0]
	metadatas := r.GetMetadatasGroups()[0]
	distances := r.GetDistancesGroups()[0]

	res := make([]SearchResult, 0, len(docs))
	for i := range docs {
		file, _ := metadatas[i].GetString(FilePath)
		start, _ := metadatas[i].GetInt(ChunkStart)
		end, _ := metadatas[i].GetInt(ChunkEnd)
		res = append(res, SearchResult{
			Text:     docs[i].ContentString(),
			File:     file,
			Start:    int(start),
			End:      int(end),
			Distance: float32(distances[i]),
		})
	}

	return res, nil
}

func (ds *ChromaStore) Count(ctx context.Context) (int, error) {
	count, err := ds.col.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count indexed chunks: %w", err)
	}

	return count, nil
}

// Reset drops the collection and recreates it empty.
func (ds *ChromaStore) Reset(ctx context.Context) error {
	err := ds.client.DeleteCollection(ctx, ds.collection)
	if err != nil {
		return fmt.Errorf("failed to drop collection %s: %w", ds.collection, err)
	}

	ds.col, err = ds.openCollection(ctx)
	return err
}

// ChunkID derives the stable indexed id for a chunk of a file.
func ChunkID(file string, c Chunk) string {
	return fmt.Sprintf("%s:%d-%d", file, c.Start, c.End)
}

// splitToBuckets groups chunks so the summed text size of each Add request
// stays under maxSize. A non-positive maxSize means a single request.
func splitToBuckets(chunks []Chunk, maxSize int) [][]Chunk {
	if len(chunks) == 0 {
		return nil
	}
	if maxSize <= 0 {
		return [][]Chunk{chunks}
	}

	var buckets [][]Chunk
	var bucket []Chunk
	size := 0
	for _, c := range chunks {
		if len(bucket) > 0 && size+len(c.Text) > maxSize {
			buckets = append(buckets, bucket)
			bucket = nil
			size = 0
		}

		bucket = append(bucket, c)
		size += len(c.Text)
	}

	return append(buckets, bucket)
}
