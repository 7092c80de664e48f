package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"newsbits/internal/domain"
	"newsbits/internal/storage"
)

const (
	MinLimit     = 20
	MaxLimit     = 500
	DefaultLimit = 200
)

const (
	keyArticles   = "articles.cache"
	keyFetchTimes = "articles.fetch_times"
	keySeen       = "articles.seen"
	keyLimit      = "articles.cache_limit"
	keyFirstFetch = "articles.first_fetch_done"
)

// Store is the bounded, deduplicating article cache together with the seen
// set and per-source fetch times. Every operation holds one mutex for its
// whole read-modify-write-persist cycle, so concurrent callers are applied
// one after another.
type Store struct {
	mu     sync.Mutex
	kv     storage.KV
	logger *slog.Logger

	articles   []domain.Article
	keys       map[string]struct{}
	seen       map[string]struct{}
	fetchTimes map[string]time.Time
	limit      int
	firstFetch bool
}

// Open loads all state from kv once. Missing or undecodable values are
// logged and treated as absent. defaultLimit applies when no limit has
// been stored yet.
func Open(ctx context.Context, kv storage.KV, defaultLimit int, logger *slog.Logger) *Store {
	s := &Store{
		kv:         kv,
		logger:     logger.With("component", "article_store"),
		keys:       make(map[string]struct{}),
		seen:       make(map[string]struct{}),
		fetchTimes: make(map[string]time.Time),
		limit:      ClampLimit(defaultLimit),
	}
	s.load(ctx)
	return s
}

// ClampLimit bounds n to [MinLimit, MaxLimit].
func ClampLimit(n int) int {
	switch {
	case n < MinLimit:
		return MinLimit
	case n > MaxLimit:
		return MaxLimit
	default:
		return n
	}
}

func (s *Store) load(ctx context.Context) {
	if raw, ok := s.read(ctx, keyLimit); ok {
		if n, err := strconv.Atoi(string(raw)); err == nil {
			s.limit = ClampLimit(n)
		} else {
			s.logger.Warn("invalid stored cache limit", "value", string(raw))
		}
	}

	if raw, ok := s.read(ctx, keyFirstFetch); ok {
		s.firstFetch = string(raw) == "true"
	}

	var articles []domain.Article
	if s.decode(ctx, keyArticles, &articles) {
		for _, a := range articles {
			k := a.IdentityKey()
			if _, dup := s.keys[k]; dup {
				continue
			}
			s.keys[k] = struct{}{}
			s.articles = append(s.articles, a)
		}
		sortNewestFirst(s.articles)
		s.truncateLocked(s.limit)
	}

	var seen []string
	if s.decode(ctx, keySeen, &seen) {
		for _, k := range seen {
			s.seen[k] = struct{}{}
		}
	}

	var times map[string]time.Time
	if s.decode(ctx, keyFetchTimes, &times) {
		for src, t := range times {
			s.fetchTimes[src] = t
		}
	}

	s.logger.Info("article store loaded",
		"articles", len(s.articles),
		"seen", len(s.seen),
		"sources_fetched", len(s.fetchTimes),
		"limit", s.limit,
	)
}

func (s *Store) read(ctx context.Context, key string) ([]byte, bool) {
	raw, err := s.kv.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false
	}
	if err != nil {
		s.logger.Warn("failed to read state", "key", key, "error", err)
		return nil, false
	}
	return raw, true
}

func (s *Store) decode(ctx context.Context, key string, v any) bool {
	raw, ok := s.read(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, v); err != nil {
		s.logger.Warn("failed to decode state", "key", key, "error", err)
		return false
	}
	return true
}

// Merge adds every item whose identity key is not already cached, sorts the
// cache newest first, trims it to the limit and persists it. Items that sort
// below the limit are evicted straight away. It returns the added items that
// are still cached.
func (s *Store) Merge(ctx context.Context, items []domain.Article) []domain.Article {
	s.mu.Lock()
	defer s.mu.Unlock()

	var added []domain.Article
	for _, a := range items {
		k := a.IdentityKey()
		if _, exists := s.keys[k]; exists {
			continue
		}
		s.keys[k] = struct{}{}
		s.articles = append(s.articles, a)
		added = append(added, a)
	}

	if len(added) == 0 {
		return nil
	}

	sortNewestFirst(s.articles)
	s.truncateLocked(s.limit)

	retained := added[:0]
	for _, a := range added {
		if _, ok := s.keys[a.IdentityKey()]; ok {
			retained = append(retained, a)
		}
	}

	s.persist(ctx, map[string]any{keyArticles: s.articles})
	return retained
}

// SetCacheLimit clamps n, stores it and truncates the cache to it. Raising
// the limit clears the per-source fetch times so the next fetch backfills.
func (s *Store) SetCacheLimit(ctx context.Context, n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n = ClampLimit(n)
	old := s.limit
	s.limit = n
	s.truncateLocked(n)

	entries := map[string]any{
		keyLimit:    n,
		keyArticles: s.articles,
	}
	if n > old {
		s.fetchTimes = make(map[string]time.Time)
		entries[keyFetchTimes] = s.fetchTimes
	}
	s.persist(ctx, entries)

	s.logger.Info("cache limit changed", "old", old, "new", n, "articles", len(s.articles))
	return n
}

func (s *Store) CacheLimit() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limit
}

// truncateLocked keeps the first n articles. It does not re-sort.
func (s *Store) truncateLocked(n int) {
	if len(s.articles) <= n {
		return
	}
	for _, a := range s.articles[n:] {
		delete(s.keys, a.IdentityKey())
	}
	kept := make([]domain.Article, n)
	copy(kept, s.articles[:n])
	s.articles = kept
}

// Articles returns a copy of the cache, newest first.
func (s *Store) Articles() []domain.Article {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Article, len(s.articles))
	copy(out, s.articles)
	return out
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.articles)
}

// UnseenArticles returns the cached articles whose identity key is not in
// the seen set.
func (s *Store) UnseenArticles() []domain.Article {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Article, 0, len(s.articles))
	for _, a := range s.articles {
		if _, ok := s.seen[a.IdentityKey()]; !ok {
			out = append(out, a)
		}
	}
	return out
}

// Remove drops the article with a's identity key from the cache. Seen state
// is left alone.
func (s *Store) Remove(ctx context.Context, a domain.Article) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := a.IdentityKey()
	if _, ok := s.keys[k]; !ok {
		return false
	}

	kept := make([]domain.Article, 0, len(s.articles)-1)
	for _, c := range s.articles {
		if c.IdentityKey() != k {
			kept = append(kept, c)
		}
	}
	s.articles = kept
	delete(s.keys, k)

	s.persist(ctx, map[string]any{keyArticles: s.articles})
	return true
}

func (s *Store) MarkSeen(ctx context.Context, a domain.Article) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := a.IdentityKey()
	if _, ok := s.seen[k]; ok {
		return
	}
	s.seen[k] = struct{}{}
	s.persist(ctx, map[string]any{keySeen: s.seenList()})
}

func (s *Store) IsSeen(a domain.Article) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.seen[a.IdentityKey()]
	return ok
}

func (s *Store) SeenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

// ResetSeen forgets every seen article.
func (s *Store) ResetSeen(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seen = make(map[string]struct{})
	s.persist(ctx, map[string]any{keySeen: []string{}})
}

func (s *Store) seenList() []string {
	out := make([]string, 0, len(s.seen))
	for k := range s.seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// LastFetchTime reports when source was last fetched; ok is false if it
// never was.
func (s *Store) LastFetchTime(source string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.fetchTimes[source]
	return t, ok
}

func (s *Store) SetLastFetchTime(ctx context.Context, source string, t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fetchTimes[source] = t
	s.persist(ctx, map[string]any{keyFetchTimes: s.fetchTimes})
}

func (s *Store) ClearLastFetchTimes(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fetchTimes = make(map[string]time.Time)
	s.persist(ctx, map[string]any{keyFetchTimes: s.fetchTimes})
}

func (s *Store) HasCompletedFirstFetch() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.firstFetch
}

func (s *Store) MarkFirstFetchComplete(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.firstFetch {
		return
	}
	s.firstFetch = true
	s.persist(ctx, map[string]any{keyFirstFetch: true})
}

// persist encodes and writes entries. Failures are logged; the in-memory
// state stays authoritative.
func (s *Store) persist(ctx context.Context, entries map[string]any) {
	encoded := make(map[string][]byte, len(entries))
	for key, v := range entries {
		raw, err := json.Marshal(v)
		if err != nil {
			s.logger.Error("failed to encode state", "key", key, "error", err)
			return
		}
		encoded[key] = raw
	}

	var err error
	if len(encoded) == 1 {
		for key, raw := range encoded {
			err = s.kv.Set(ctx, key, raw)
		}
	} else {
		err = s.kv.SetMany(ctx, encoded)
	}
	if err != nil {
		s.logger.Warn("failed to persist state", "keys", len(encoded), "error", err)
	}
}

// sortNewestFirst is stable so equal timestamps keep merge order.
func sortNewestFirst(articles []domain.Article) {
	sort.SliceStable(articles, func(i, j int) bool {
		return articles[i].PublishedAt.After(articles[j].PublishedAt)
	})
}
