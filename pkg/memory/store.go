package memory

import (
	"bufio"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const dayMs = 24 * 60 * 60 * 1000

// Entry is one append-only memory record (§3 Memory entry).
type Entry struct {
	ID         string   `json:"id"`
	CreatedAt  int64    `json:"createdAt"`
	Content    string   `json:"content"`
	Importance float64  `json:"importance"`
	Tags       []string `json:"tags,omitempty"`
	SessionID  string   `json:"sessionId,omitempty"`
}

// Weights controls the relative contribution of the three sub-scores to
// a search result's final score. Zero-value Weights means "use defaults".
type Weights struct {
	Recency    float64
	Importance float64
	Relevance  float64
}

func defaultWeights() Weights {
	return Weights{Recency: 0.3, Importance: 0.2, Relevance: 0.5}
}

// SearchOptions controls Store.Search.
type SearchOptions struct {
	Query      string
	Tags       []string
	SessionID  string
	MaxResults int
	MinScore   float64
	Weights    *Weights
}

// Result pairs an entry with its computed score.
type Result struct {
	Entry Entry
	Score float64
}

// ListOptions controls Store.List.
type ListOptions struct {
	Limit  int
	Offset int
	Tags   []string
}

// Store is the append-only, line-delimited JSON memory store for one
// agent. Writes are serialized through a single mutex ("single-writer
// chain" in the spec's vocabulary); reads use a lazily populated cache
// that is invalidated on every successful append.
type Store struct {
	path string

	writeMu sync.Mutex

	cacheMu    sync.RWMutex
	cache      []Entry
	cacheValid bool
}

// Open constructs a Store backed by the JSONL file at path. The file and
// its parent directory are created on first write if absent.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("memory: path is required")
	}
	return &Store{path: path}, nil
}

// Add appends a new entry and returns it. It invalidates the read cache.
func (s *Store) Add(content string, importance float64, tags []string, sessionID string) (Entry, error) {
	entry := Entry{
		ID:         uuid.New().String(),
		CreatedAt:  time.Now().UnixMilli(),
		Content:    content,
		Importance: importance,
		Tags:       tags,
		SessionID:  sessionID,
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return Entry{}, fmt.Errorf("memory: create directory: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return Entry{}, fmt.Errorf("memory: open store: %w", err)
	}
	defer f.Close()

	line, err := json.Marshal(entry)
	if err != nil {
		return Entry{}, fmt.Errorf("memory: marshal entry: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return Entry{}, fmt.Errorf("memory: write entry: %w", err)
	}

	s.cacheMu.Lock()
	s.cacheValid = false
	s.cacheMu.Unlock()

	return entry, nil
}

// load returns the cached entry set, populating it from disk on first use
// or after an invalidation. Malformed lines are skipped.
func (s *Store) load() ([]Entry, error) {
	s.cacheMu.RLock()
	if s.cacheValid {
		entries := s.cache
		s.cacheMu.RUnlock()
		return entries, nil
	}
	s.cacheMu.RUnlock()

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.cacheValid {
		return s.cache, nil
	}

	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		s.cache = nil
		s.cacheValid = true
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("memory: read store: %w", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("memory: scan store: %w", err)
	}

	s.cache = entries
	s.cacheValid = true
	return entries, nil
}

// Get returns the entry with the given id, if present.
func (s *Store) Get(id string) (Entry, bool, error) {
	entries, err := s.load()
	if err != nil {
		return Entry{}, false, err
	}
	for _, e := range entries {
		if e.ID == id {
			return e, true, nil
		}
	}
	return Entry{}, false, nil
}

// List returns entries filtered by tag, newest first, with offset/limit
// pagination. A zero Limit means unbounded.
func (s *Store) List(opts ListOptions) ([]Entry, error) {
	entries, err := s.load()
	if err != nil {
		return nil, err
	}

	filtered := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if len(opts.Tags) > 0 && !hasAnyTag(e.Tags, opts.Tags) {
			continue
		}
		filtered = append(filtered, e)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt > filtered[j].CreatedAt
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(filtered) {
			return nil, nil
		}
		filtered = filtered[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(filtered) {
		filtered = filtered[:opts.Limit]
	}
	return filtered, nil
}

// Count returns the number of entries matching tags (or all entries when
// tags is empty).
func (s *Store) Count(tags []string) (int, error) {
	entries, err := s.load()
	if err != nil {
		return 0, err
	}
	if len(tags) == 0 {
		return len(entries), nil
	}
	count := 0
	for _, e := range entries {
		if hasAnyTag(e.Tags, tags) {
			count++
		}
	}
	return count, nil
}

// Search ranks entries by a weighted sum of recency, importance, and
// relevance, per §4.4.
func (s *Store) Search(opts SearchOptions) ([]Result, error) {
	entries, err := s.load()
	if err != nil {
		return nil, err
	}

	weights := defaultWeights()
	if opts.Weights != nil {
		weights = *opts.Weights
	}
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = 10
	}

	now := time.Now().UnixMilli()
	tokens := queryTokens(opts.Query)

	var results []Result
	for _, e := range entries {
		if opts.SessionID != "" {
			if e.SessionID != "" && e.SessionID != opts.SessionID {
				continue
			}
		}
		if len(opts.Tags) > 0 && !hasAnyTag(e.Tags, opts.Tags) {
			continue
		}

		score := scoreEntry(e, now, opts.Query, tokens, weights)
		if score < opts.MinScore {
			continue
		}
		results = append(results, Result{Entry: e, Score: score})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > maxResults {
		results = results[:maxResults]
	}
	return results, nil
}

// Close is a no-op: the store holds no long-lived OS resources beyond a
// per-operation file handle.
func (s *Store) Close() error {
	return nil
}

func scoreEntry(e Entry, nowMs int64, query string, tokens []string, w Weights) float64 {
	ageMs := float64(nowMs - e.CreatedAt)
	if ageMs < 0 {
		ageMs = 0
	}
	recency := math.Exp(-ageMs / (7 * dayMs))
	importance := e.Importance
	relevance := relevanceScore(e.Content, query, tokens)

	return w.Recency*recency + w.Importance*importance + w.Relevance*relevance
}

// relevanceScore returns 0.5 when query is absent, otherwise the fraction
// of query tokens (length > 2, lowercased) that appear as substrings of
// the lowercased content.
func relevanceScore(content, query string, tokens []string) float64 {
	if query == "" || len(tokens) == 0 {
		return 0.5
	}

	lowerContent := strings.ToLower(content)
	matched := 0
	for _, tok := range tokens {
		if strings.Contains(lowerContent, tok) {
			matched++
		}
	}
	return float64(matched) / float64(len(tokens))
}

func queryTokens(query string) []string {
	if query == "" {
		return nil
	}
	fields := strings.Fields(strings.ToLower(query))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) > 2 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

func hasAnyTag(entryTags, want []string) bool {
	set := make(map[string]struct{}, len(entryTags))
	for _, t := range entryTags {
		set[strings.ToLower(t)] = struct{}{}
	}
	for _, w := range want {
		if _, ok := set[strings.ToLower(w)]; ok {
			return true
		}
	}
	return false
}
