// cache/store.go
package cache

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gewnthar/bondstats/apperror"
	"github.com/gewnthar/bondstats/config"
	"github.com/gewnthar/bondstats/models"
	"github.com/rs/zerolog"
)

// LogFileName is the mapping log inside the cache directory.
const LogFileName = "cache.log"

// Fetcher downloads a remote document.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Handle points at a cached document on local disk.
type Handle struct {
	Entry models.CacheEntry
	Path  string
	Hit   bool // false when Resolve had to download the document
}

// Bytes reads the cached document.
func (h *Handle) Bytes() ([]byte, error) {
	data, err := os.ReadFile(h.Path)
	if err != nil {
		return nil, apperror.NewStorageError("read", h.Path, err)
	}
	return data, nil
}

// Store maps remote URLs to local files. The append-only log is the source
// of truth; the in-memory maps are rebuilt from it by Open. Entries are never
// evicted and a binding, once logged, never changes.
type Store struct {
	dir       string
	keyLength int
	ext       string
	fetcher   Fetcher
	logger    zerolog.Logger
	hash      func(string) string

	mu      sync.Mutex
	logFile *os.File
	byURL   map[string]models.CacheEntry
	keys    map[string]string // local_key -> remote_url
	order   []string
}

// Open creates the cache directory and log if needed and replays the log.
func Open(cfg config.CacheConfig, fetcher Fetcher, logger zerolog.Logger) (*Store, error) {
	s := &Store{
		dir:       cfg.Dir,
		keyLength: cfg.KeyLength,
		ext:       cfg.Extension,
		fetcher:   fetcher,
		logger:    logger.With().Str("component", "ContentCache").Logger(),
		hash:      sha256Hex,
	}
	if s.keyLength <= 0 || s.keyLength > sha256.Size*2 {
		s.keyLength = 16
	}

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return nil, apperror.NewStorageError("mkdir", s.dir, err)
	}

	logPath := filepath.Join(s.dir, LogFileName)
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, apperror.NewStorageError("open", logPath, err)
	}
	if err := s.replay(f); err != nil {
		f.Close()
		return nil, err
	}
	s.logFile = f

	s.logger.Debug().Str("dir", s.dir).Int("entries", len(s.order)).Msg("Cache log replayed")
	return s, nil
}

// replay rebuilds the mapping from the log from empty state. A final line
// without a newline was never acknowledged by appendLog and is cut off so
// the next append starts on a fresh line.
func (s *Store) replay(f *os.File) error {
	s.byURL = make(map[string]models.CacheEntry)
	s.keys = make(map[string]string)
	s.order = nil

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return apperror.NewStorageError("seek", f.Name(), err)
	}
	reader := bufio.NewReader(f)
	var complete int64
	lineNo := 0
	for {
		line, err := reader.ReadString('\n')
		if err == io.EOF {
			if line != "" {
				s.logger.Warn().Int("line", lineNo+1).Int("bytes", len(line)).Msg("Dropping torn cache log tail")
				if err := f.Truncate(complete); err != nil {
					return apperror.NewStorageError("truncate", f.Name(), err)
				}
			}
			return nil
		}
		if err != nil {
			return apperror.NewStorageError("read", f.Name(), err)
		}
		complete += int64(len(line))
		lineNo++
		s.replayLine(lineNo, line)
	}
}

func (s *Store) replayLine(lineNo int, line string) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		if len(fields) > 0 {
			s.logger.Debug().Int("line", lineNo).Msg("Skipping malformed cache log line")
		}
		return
	}
	key, url := fields[0], fields[1]
	if _, bound := s.byURL[url]; bound {
		return // first binding wins
	}
	if owner, taken := s.keys[key]; taken && owner != url {
		s.logger.Debug().Int("line", lineNo).Str("local_key", key).Msg("Skipping cache log line reusing a bound key")
		return
	}
	s.bind(models.CacheEntry{RemoteURL: url, LocalKey: key, Extension: filepath.Ext(key)})
}

func (s *Store) bind(e models.CacheEntry) {
	s.byURL[e.RemoteURL] = e
	s.keys[e.LocalKey] = e.RemoteURL
	s.order = append(s.order, e.RemoteURL)
}

// Resolve returns the local copy of url, downloading it on first use.
// A hit never touches the network.
func (s *Store) Resolve(ctx context.Context, url string) (*Handle, error) {
	s.mu.Lock()
	entry, ok := s.byURL[url]
	s.mu.Unlock()

	if ok {
		path := s.path(entry.LocalKey)
		if _, err := os.Stat(path); err == nil {
			return &Handle{Entry: entry, Path: path, Hit: true}, nil
		}
		// The binding stays; only the bytes are restored.
		s.logger.Warn().Str("url", url).Str("local_key", entry.LocalKey).Msg("Cached file missing, downloading again")
		data, err := s.fetcher.Fetch(ctx, url)
		if err != nil {
			return nil, err
		}
		if err := s.writeFile(entry.LocalKey, data); err != nil {
			return nil, err
		}
		return &Handle{Entry: entry, Path: path}, nil
	}

	data, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Someone else may have bound url while we were downloading.
	if entry, ok := s.byURL[url]; ok {
		return &Handle{Entry: entry, Path: s.path(entry.LocalKey), Hit: true}, nil
	}

	key := s.deriveKey(url)
	if err := s.writeFile(key, data); err != nil {
		return nil, err
	}
	if err := s.appendLog(key, url); err != nil {
		return nil, err
	}
	entry = models.CacheEntry{RemoteURL: url, LocalKey: key, Extension: s.ext}
	s.bind(entry)

	s.logger.Info().Str("url", url).Str("local_key", key).Int("bytes", len(data)).Msg("Cached new document")
	return &Handle{Entry: entry, Path: s.path(key)}, nil
}

// deriveKey hashes url and, while the candidate is taken, re-hashes the
// candidate. Caller holds s.mu.
func (s *Store) deriveKey(url string) string {
	candidate := s.hash(url)[:s.keyLength]
	for {
		key := candidate + s.ext
		if _, taken := s.keys[key]; !taken {
			return key
		}
		candidate = s.hash(candidate)[:s.keyLength]
	}
}

func (s *Store) writeFile(key string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, ".download-*")
	if err != nil {
		return apperror.NewStorageError("create", s.dir, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return apperror.NewStorageError("write", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return apperror.NewStorageError("close", tmpName, err)
	}
	if err := os.Rename(tmpName, s.path(key)); err != nil {
		os.Remove(tmpName)
		return apperror.NewStorageError("rename", s.path(key), err)
	}
	return nil
}

func (s *Store) appendLog(key, url string) error {
	if _, err := fmt.Fprintf(s.logFile, "%s %s\n", key, url); err != nil {
		return apperror.NewStorageError("append", s.logFile.Name(), err)
	}
	if err := s.logFile.Sync(); err != nil {
		return apperror.NewStorageError("sync", s.logFile.Name(), err)
	}
	return nil
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, key)
}

// Entries returns every binding in log order.
func (s *Store) Entries() []models.CacheEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.CacheEntry, 0, len(s.order))
	for _, url := range s.order {
		out = append(out, s.byURL[url])
	}
	return out
}

// Len returns the number of cached documents.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// Close closes the mapping log.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.logFile == nil {
		return nil
	}
	err := s.logFile.Close()
	s.logFile = nil
	return err
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
