package main

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/fsnotify/fsnotify"
	"github.com/gsannikov/2ndBrain-RAG/docstore"
)

type DocStore interface {
	SyncFile(ctx context.Context, doc docstore.Doc) error
	DeleteFile(ctx context.Context, file string) error
	Reset(ctx context.Context) error
}

type FileReader interface {
	CanRead(path string) bool
	ReadText(path string) (string, error)
}

type Chunkifier interface {
	Chunkify(text string) []docstore.Chunk
}

type resultCache interface {
	Clear()
}

// DocRegistry keeps the vector index in step with the files under root.
// Change detection is by content hash: mtime is recorded but never trusted
// to decide whether a file changed.
type DocRegistry struct {
	log              *slog.Logger
	root             string
	allowedExts      []string
	maxFileSize      int64
	mergeEventsDelay time.Duration
	state            *StateStore
	store            DocStore
	chunkifier       Chunkifier
	readers          []FileReader
	cache            resultCache

	// mu serializes index mutations so a query never sees a file's chunk
	// set half replaced.
	mu sync.Mutex

	// lastTrigger is only touched from the watch goroutine.
	lastTrigger time.Time
}

func (dr *DocRegistry) RegisterReader(readers ...FileReader) {
	dr.readers = append(dr.readers, readers...)
}

func (dr *DocRegistry) allowed(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return slices.Contains(dr.allowedExts, ext)
}

// Sync runs a full incremental scan: re-index files whose content hash
// changed, forget files that disappeared or are no longer allow-listed.
// A single failing file is logged and skipped, never aborts the scan.
// Returns the number of files whose index entries were touched.
func (dr *DocRegistry) Sync(ctx context.Context) (int, error) {
	processed := 0
	seen := make(map[string]struct{})

	err := filepath.WalkDir(dr.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			dr.log.Warn("skipping unreadable path", "path", path, "error", err)
			return nil
		}
		if d.IsDir() || !dr.allowed(path) {
			return nil
		}

		seen[path] = struct{}{}
		changed, err := dr.syncPath(ctx, path)
		if err != nil {
			dr.log.Warn("failed to sync file, will retry next scan", "path", path, "error", err)
			return nil
		}
		if changed {
			processed++
		}

		return nil
	})
	if err != nil {
		return processed, fmt.Errorf("failed to walk %s: %w", dr.root, err)
	}

	for path := range dr.state.Snapshot() {
		if _, ok := seen[path]; ok {
			continue
		}

		err := dr.Forget(ctx, path)
		if err != nil {
			dr.log.Warn("failed to forget removed file", "path", path, "error", err)
			continue
		}

		processed++
	}

	return processed, nil
}

// syncPath brings the index entries for a single path up to date. A missing
// or excluded file is forgotten; an unchanged hash is a no-op with zero
// index writes. Extraction or index failures leave the recorded state
// untouched so the file is retried on the next scan.
func (dr *DocRegistry) syncPath(ctx context.Context, path string) (bool, error) {
	escaped, err := dr.escapesRoot(path)
	if err == nil && escaped {
		dr.log.Warn("path resolves outside the document root, excluding", "path", path)
		return false, dr.Forget(ctx, path)
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return true, dr.Forget(ctx, path)
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if dr.maxFileSize > 0 && info.Size() > dr.maxFileSize {
		dr.log.Warn("file exceeds size limit, excluding", "path", path, "size", info.Size())
		return false, dr.Forget(ctx, path)
	}

	hash, err := hashFile(path)
	if err != nil {
		return false, fmt.Errorf("failed to hash %s: %w", path, err)
	}

	if fp, ok := dr.state.Get(path); ok && fp.Hash == hash {
		return false, nil
	}

	reader, err := dr.findReader(path)
	if err != nil {
		return false, err
	}

	text, err := reader.ReadText(path)
	if err != nil {
		return false, fmt.Errorf("failed to read document %s: %w", path, err)
	}

	doc := docstore.Doc{
		File:   path,
		Hash:   hash,
		Mtime:  info.ModTime().Unix(),
		Chunks: dr.chunkifier.Chunkify(text),
	}

	dr.mu.Lock()
	defer dr.mu.Unlock()

	err = dr.store.SyncFile(ctx, doc)
	if err != nil {
		return false, fmt.Errorf("failed to index document %s: %w", path, err)
	}

	// State is only persisted after a successful index write.
	err = dr.state.Put(path, Fingerprint{Hash: hash, Mtime: doc.Mtime})
	if err != nil {
		return false, err
	}

	dr.clearCache()
	return true, nil
}

// Rebuild drops the whole index and the recorded fingerprints, then rescans
// from scratch. Clearing the fingerprints is what makes the follow-up scan
// re-index unchanged files; resetting the store alone would leave every
// hash-skipped file missing from the index.
func (dr *DocRegistry) Rebuild(ctx context.Context) (int, error) {
	dr.mu.Lock()
	err := dr.store.Reset(ctx)
	if err == nil {
		err = dr.state.Clear()
	}
	dr.clearCache()
	dr.mu.Unlock()
	if err != nil {
		return 0, fmt.Errorf("failed to reset index: %w", err)
	}

	return dr.Sync(ctx)
}

// Forget removes a path from the index and the recorded state
// unconditionally.
func (dr *DocRegistry) Forget(ctx context.Context, path string) error {
	dr.mu.Lock()
	defer dr.mu.Unlock()

	err := dr.store.DeleteFile(ctx, path)
	if err != nil {
		return fmt.Errorf("failed to remove document %s from store: %w", path, err)
	}

	err = dr.state.Remove(path)
	if err != nil {
		return err
	}

	dr.clearCache()
	return nil
}

// Reindex resyncs the given files or directories; with no paths it runs a
// full incremental scan. Files outside the extension allow-list are skipped.
// Returns the number of paths synced without error.
func (dr *DocRegistry) Reindex(ctx context.Context, paths []string) (int, error) {
	if len(paths) == 0 {
		return dr.Sync(ctx)
	}

	count := 0
	for _, raw := range paths {
		path, err := filepath.Abs(raw)
		if err != nil {
			dr.log.Warn("skipping invalid path", "path", raw, "error", err)
			continue
		}

		info, err := os.Stat(path)
		if err == nil && info.IsDir() {
			err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
				if err != nil || d.IsDir() || !dr.allowed(p) {
					return nil
				}
				if _, e := dr.syncPath(ctx, p); e != nil {
					dr.log.Warn("failed to sync file", "path", p, "error", e)
					return nil
				}
				count++
				return nil
			})
			if err != nil {
				return count, fmt.Errorf("failed to walk %s: %w", path, err)
			}
			continue
		}

		if !dr.allowed(path) {
			dr.log.Warn("skipping file with disallowed extension", "path", path)
			continue
		}

		if _, err := dr.syncPath(ctx, path); err != nil {
			dr.log.Warn("failed to sync file", "path", path, "error", err)
			continue
		}
		count++
	}

	return count, nil
}

// Watch subscribes to filesystem events under root and resyncs changed
// paths. Events arriving within the debounce cooldown of the last trigger
// are dropped; the next scan picks up anything missed that way.
func (dr *DocRegistry) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fs watcher: %w", err)
	}

	err = filepath.WalkDir(dr.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		return watcher.Add(path)
	})
	if err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dr.root, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				dr.handleEvent(ctx, watcher, ev)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				dr.log.Warn("fs watcher error", "error", err)
			}
		}
	}()

	return nil
}

func (dr *DocRegistry) handleEvent(ctx context.Context, watcher *fsnotify.Watcher, ev fsnotify.Event) {
	if ev.Op.Has(fsnotify.Create) {
		info, err := os.Stat(ev.Name)
		if err == nil && info.IsDir() {
			if err := watcher.Add(ev.Name); err != nil {
				dr.log.Warn("failed to watch new directory", "path", ev.Name, "error", err)
			}
			return
		}
	}

	if !dr.allowed(ev.Name) {
		return
	}

	now := time.Now()
	if now.Sub(dr.lastTrigger) < dr.mergeEventsDelay {
		dr.log.Debug("debounced fs event", "path", ev.Name, "op", ev.Op.String())
		return
	}
	dr.lastTrigger = now

	if _, err := dr.syncPath(ctx, ev.Name); err != nil {
		dr.log.Warn("failed to sync changed file", "path", ev.Name, "error", err)
	}
}

// ReadSpan re-extracts a document's text and returns a slice around the
// given offsets, expanded by a quarter of window on each side. With no
// offsets it returns the first window bytes. Offsets are the same byte
// offsets the chunker produces, nudged to rune boundaries.
func (dr *DocRegistry) ReadSpan(path string, start *int, end *int, window int) (DocumentSpan, error) {
	reader, err := dr.findReader(path)
	if err != nil {
		return DocumentSpan{}, err
	}

	text, err := reader.ReadText(path)
	if err != nil {
		return DocumentSpan{}, fmt.Errorf("failed to read document %s: %w", path, err)
	}

	if start == nil && end == nil {
		e := alignRuneStart(text, min(len(text), window))
		return DocumentSpan{Path: path, Start: 0, End: e, Text: text[:e]}, nil
	}

	from := 0
	if start != nil {
		from = *start
	}
	to := from
	if end != nil {
		to = *end
	}

	s := max(0, from-window/4)
	e := min(len(text), to+window/4)
	if s > e {
		s = e
	}
	s = alignRuneStart(text, s)
	e = alignRuneStart(text, e)

	return DocumentSpan{Path: path, Start: s, End: e, Text: text[s:e]}, nil
}

type DocumentSpan struct {
	Path  string `json:"path"`
	Start int    `json:"start"`
	End   int    `json:"end"`
	Text  string `json:"text"`
}

func (dr *DocRegistry) findReader(path string) (FileReader, error) {
	for _, r := range dr.readers {
		if r.CanRead(path) {
			return r, nil
		}
	}

	return nil, fmt.Errorf("unable to find reader for file: %s", path)
}

func (dr *DocRegistry) clearCache() {
	if dr.cache != nil {
		dr.cache.Clear()
	}
}

// escapesRoot reports whether path, after resolving symlinks on both sides,
// lands outside the document root. Comparison is on canonical paths, not
// textual prefixes.
func (dr *DocRegistry) escapesRoot(path string) (bool, error) {
	rootReal, err := filepath.EvalSymlinks(dr.root)
	if err != nil {
		return false, err
	}

	real, err := filepath.EvalSymlinks(path)
	if err != nil {
		return false, err
	}

	rel, err := filepath.Rel(rootReal, real)
	if err != nil {
		return true, nil
	}

	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)), nil
}

// hashFile digests the file content in 1 MiB blocks, so large files never
// load into memory at once.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha1.New()
	_, err = io.CopyBuffer(h, f, make([]byte, 1<<20))
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// alignRuneStart moves pos back to the nearest rune start so byte slicing
// never cuts a multibyte character in half.
func alignRuneStart(text string, pos int) int {
	for pos > 0 && pos < len(text) && !utf8.RuneStart(text[pos]) {
		pos--
	}

	return pos
}
