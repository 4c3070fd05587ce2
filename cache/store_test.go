package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gewnthar/bondstats/apperror"
	"github.com/gewnthar/bondstats/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingFetcher struct {
	mu    sync.Mutex
	calls map[string]int
	fail  error
}

func (f *countingFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[url]++
	if f.fail != nil {
		return nil, apperror.NewTransportError(url, "GET failed", f.fail)
	}
	return []byte("content of " + url), nil
}

func testConfig(t *testing.T) config.CacheConfig {
	t.Helper()
	return config.CacheConfig{Dir: filepath.Join(t.TempDir(), "cache"), KeyLength: 16, Extension: ".xlsx"}
}

func openStore(t *testing.T, cfg config.CacheConfig, f Fetcher) *Store {
	t.Helper()
	s, err := Open(cfg, f, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesDirAndLog(t *testing.T) {
	cfg := testConfig(t)
	openStore(t, cfg, &countingFetcher{})

	assert.DirExists(t, cfg.Dir)
	assert.FileExists(t, filepath.Join(cfg.Dir, LogFileName))
}

func TestResolve_Idempotent(t *testing.T) {
	cfg := testConfig(t)
	f := &countingFetcher{}
	s := openStore(t, cfg, f)
	ctx := context.Background()
	url := "https://example.com/__data/assets/excel_doc/0001/lodgements-jan-2023.xlsx"

	first, err := s.Resolve(ctx, url)
	require.NoError(t, err)
	assert.False(t, first.Hit)

	second, err := s.Resolve(ctx, url)
	require.NoError(t, err)
	assert.True(t, second.Hit)

	assert.Equal(t, first.Entry.LocalKey, second.Entry.LocalKey)
	assert.Equal(t, 1, f.calls[url])
	assert.True(t, strings.HasSuffix(first.Entry.LocalKey, ".xlsx"))
	assert.Len(t, first.Entry.LocalKey, 16+len(".xlsx"))

	data, err := second.Bytes()
	require.NoError(t, err)
	assert.Equal(t, "content of "+url, string(data))
}

func TestResolve_SurvivesRestart(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()
	url := "https://example.com/a.xlsx"

	s := openStore(t, cfg, &countingFetcher{})
	h, err := s.Resolve(ctx, url)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	f := &countingFetcher{}
	reopened := openStore(t, cfg, f)
	again, err := reopened.Resolve(ctx, url)
	require.NoError(t, err)

	assert.True(t, again.Hit)
	assert.Equal(t, h.Entry.LocalKey, again.Entry.LocalKey)
	assert.Zero(t, f.calls[url])
}

func TestReplay_Deterministic(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(cfg.Dir, 0755))
	log := strings.Join([]string{
		"aaaaaaaaaaaaaaaa.xlsx https://example.com/1.xlsx",
		"",
		"garbage",
		"bbbbbbbbbbbbbbbb.xlsx https://example.com/2.xlsx",
		"cccccccccccccccc.xlsx https://example.com/1.xlsx", // rebinding is ignored
		"bbbbbbbbbbbbbbbb.xlsx https://example.com/3.xlsx", // key reuse is ignored
		"dddddddddddddddd.xlsx https://example.com/4.xlsx trailing tokens",
	}, "\n") + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Dir, LogFileName), []byte(log), 0644))

	first := openStore(t, cfg, &countingFetcher{}).Entries()
	second := openStore(t, cfg, &countingFetcher{}).Entries()

	assert.Equal(t, first, second)
	require.Len(t, first, 3)
	assert.Equal(t, "https://example.com/1.xlsx", first[0].RemoteURL)
	assert.Equal(t, "aaaaaaaaaaaaaaaa.xlsx", first[0].LocalKey)
	assert.Equal(t, "https://example.com/2.xlsx", first[1].RemoteURL)
	assert.Equal(t, "https://example.com/4.xlsx", first[2].RemoteURL)
	assert.Equal(t, ".xlsx", first[2].Extension)
}

func TestResolve_CollisionGetsDistinctStableKeys(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()
	// every URL hashes to the same candidate; re-hashing a candidate works normally
	collide := func(s string) string {
		if strings.HasPrefix(s, "https://") {
			return strings.Repeat("0", 64)
		}
		return sha256Hex(s)
	}

	s := openStore(t, cfg, &countingFetcher{})
	s.hash = collide

	a, err := s.Resolve(ctx, "https://example.com/a.xlsx")
	require.NoError(t, err)
	b, err := s.Resolve(ctx, "https://example.com/b.xlsx")
	require.NoError(t, err)
	c, err := s.Resolve(ctx, "https://example.com/c.xlsx")
	require.NoError(t, err)

	assert.Equal(t, strings.Repeat("0", 16)+".xlsx", a.Entry.LocalKey)
	assert.NotEqual(t, a.Entry.LocalKey, b.Entry.LocalKey)
	assert.NotEqual(t, b.Entry.LocalKey, c.Entry.LocalKey)
	assert.NotEqual(t, a.Entry.LocalKey, c.Entry.LocalKey)
	require.NoError(t, s.Close())

	reopened := openStore(t, cfg, &countingFetcher{})
	reopened.hash = collide
	for _, h := range []*Handle{a, b, c} {
		again, err := reopened.Resolve(ctx, h.Entry.RemoteURL)
		require.NoError(t, err)
		assert.Equal(t, h.Entry.LocalKey, again.Entry.LocalKey)
	}
}

func TestResolve_TransportErrorNotLogged(t *testing.T) {
	cfg := testConfig(t)
	f := &countingFetcher{fail: errors.New("connection refused")}
	s := openStore(t, cfg, f)

	_, err := s.Resolve(context.Background(), "https://example.com/down.xlsx")
	require.Error(t, err)
	assert.True(t, apperror.IsTransport(err))
	assert.Zero(t, s.Len())

	data, err := os.ReadFile(filepath.Join(cfg.Dir, LogFileName))
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestResolve_RestoresMissingFile(t *testing.T) {
	cfg := testConfig(t)
	f := &countingFetcher{}
	s := openStore(t, cfg, f)
	ctx := context.Background()
	url := "https://example.com/a.xlsx"

	h, err := s.Resolve(ctx, url)
	require.NoError(t, err)
	require.NoError(t, os.Remove(h.Path))

	again, err := s.Resolve(ctx, url)
	require.NoError(t, err)
	assert.Equal(t, h.Entry.LocalKey, again.Entry.LocalKey)
	assert.FileExists(t, again.Path)
	assert.Equal(t, 2, f.calls[url])
	assert.Equal(t, 1, s.Len())
}

func TestResolve_ConcurrentCallersShareOneBinding(t *testing.T) {
	cfg := testConfig(t)
	s := openStore(t, cfg, &countingFetcher{})
	ctx := context.Background()

	var wg sync.WaitGroup
	keys := make([]string, 8)
	for i := range keys {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := s.Resolve(ctx, "https://example.com/shared.xlsx")
			if err == nil {
				keys[i] = h.Entry.LocalKey
			}
		}(i)
	}
	wg.Wait()

	for _, k := range keys {
		assert.Equal(t, keys[0], k)
	}
	assert.Equal(t, 1, s.Len())
}

func TestReplay_TornTailIsDropped(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()
	require.NoError(t, os.MkdirAll(cfg.Dir, 0755))
	logPath := filepath.Join(cfg.Dir, LogFileName)
	torn := "aaaaaaaaaaaaaaaa.xlsx https://example.com/1.xlsx\nbbbbbbbbbbbbbbbb.xlsx https://exa"
	require.NoError(t, os.WriteFile(logPath, []byte(torn), 0644))

	s := openStore(t, cfg, &countingFetcher{})
	require.Len(t, s.Entries(), 1)
	h, err := s.Resolve(ctx, "https://example.com/new.xlsx")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Equal(t, "aaaaaaaaaaaaaaaa.xlsx https://example.com/1.xlsx\n"+h.Entry.LocalKey+" https://example.com/new.xlsx\n", string(data))

	f := &countingFetcher{}
	reopened := openStore(t, cfg, f)
	entries := reopened.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "https://example.com/1.xlsx", entries[0].RemoteURL)
	assert.Equal(t, "https://example.com/new.xlsx", entries[1].RemoteURL)

	again, err := reopened.Resolve(ctx, "https://example.com/new.xlsx")
	require.NoError(t, err)
	assert.True(t, again.Hit)
	assert.Equal(t, h.Entry.LocalKey, again.Entry.LocalKey)
	assert.Zero(t, f.calls["https://example.com/new.xlsx"])
}
