package docstore

// Chunk is one window of a document's extracted text. Start and End are
// offsets into the full text the chunk was cut from.
type Chunk struct {
	Start int
	End   int
	Text  string
}

// Doc is a document ready for indexing: its path, content fingerprint and
// the chunks its text was split into.
type Doc struct {
	File   string
	Hash   string
	Mtime  int64
	Chunks []Chunk
}

// SearchResult is a raw nearest-neighbour hit as reported by the vector
// database, before hybrid rescoring.
type SearchResult struct {
	Text     string
	File     string
	Start    int
	End      int
	Distance float32
}
