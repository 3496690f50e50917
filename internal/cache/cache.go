package cache

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rashenal/navigator/pkg/models"
)

// DefaultTTL bounds how long a cached reply stays servable. Stale model
// output is worse than a recomputation.
const DefaultTTL = 24 * time.Hour

// ScopeGlobal is the scope for replies that are not user-specific.
const ScopeGlobal = "global"

// Entry is one cached model reply together with the provenance callers see.
// Hits and LastAccess are maintained by the cache itself.
type Entry struct {
	Text       string
	Tier       models.Tier
	Quality    float64
	Tokens     int
	CostUSD    float64
	CreatedAt  time.Time
	LastAccess time.Time
	Hits       int64
}

// Stats is a point-in-time snapshot of cache effectiveness.
type Stats struct {
	Entries        int     `json:"entries"`
	Capacity       int     `json:"capacity"`
	Hits           int64   `json:"hits"`
	SimilarityHits int64   `json:"similarity_hits"`
	Misses         int64   `json:"misses"`
	Evictions      int64   `json:"evictions"`
	HitRate        float64 `json:"hit_rate"`
}

type item struct {
	key     string
	bucket  string
	wordSet map[string]struct{}
	entry   Entry
}

// Cache is an in-process LRU of model replies keyed by a canonical hash of
// (operation, scope, normalized prompt). A near-miss can still be served
// through word-set similarity when the caller's category tolerates it.
type Cache struct {
	mu       sync.Mutex
	items    map[string]*list.Element
	order    *list.List // front = most recently used
	capacity int
	ttl      time.Duration

	hits           int64
	similarityHits int64
	misses         int64
	evictions      int64
}

func New(capacity int) *Cache {
	if capacity < 1 {
		capacity = 1
	}
	return &Cache{
		items:    make(map[string]*list.Element),
		order:    list.New(),
		capacity: capacity,
		ttl:      DefaultTTL,
	}
}

// Key derives the canonical exact-match key. Prompts differing only in case
// or whitespace collapse to the same key. An empty scope means global.
func Key(operation, scope, prompt string) string {
	if scope == "" {
		scope = ScopeGlobal
	}
	sum := sha256.Sum256([]byte(operation + "\x00" + scope + "\x00" + normalize(prompt)))
	return hex.EncodeToString(sum[:])
}

func normalize(prompt string) string {
	return strings.Join(strings.Fields(strings.ToLower(prompt)), " ")
}

// bucket groups entries eligible for similarity comparison.
func bucket(operation, scope string) string {
	if scope == "" {
		scope = ScopeGlobal
	}
	return operation + "\x00" + scope
}

func wordSet(prompt string) map[string]struct{} {
	words := strings.Fields(strings.ToLower(prompt))
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// jaccard is |A∩B| / |A∪B| over prompt word sets. Empty prompts are treated
// as dissimilar so a blank prompt never matches everything.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for w := range a {
		if _, ok := b[w]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// Get looks up a reply for the prompt. Exact key hits are always eligible.
// When the exact key misses, entries in the same (operation, scope) bucket
// are scanned for word-set similarity at or above threshold, unless the
// category is critical or threshold is outside (0, 1].
func (c *Cache) Get(operation, scope, prompt string, category models.Category, threshold float64) (Entry, bool) {
	key := Key(operation, scope, prompt)
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if element, ok := c.items[key]; ok {
		it := element.Value.(*item)
		if now.Sub(it.entry.CreatedAt) <= c.ttl {
			c.touchLocked(element, now)
			c.hits++
			return it.entry, true
		}
		c.removeLocked(element)
	}

	if category != models.CategoryCritical && threshold > 0 && threshold <= 1 {
		if entry, ok := c.similarLocked(bucket(operation, scope), prompt, threshold, now); ok {
			c.similarityHits++
			return entry, true
		}
	}

	c.misses++
	return Entry{}, false
}

func (c *Cache) touchLocked(element *list.Element, now time.Time) {
	it := element.Value.(*item)
	it.entry.LastAccess = now
	it.entry.Hits++
	c.order.MoveToFront(element)
}

func (c *Cache) similarLocked(bucket, prompt string, threshold float64, now time.Time) (Entry, bool) {
	probe := wordSet(prompt)

	var best *list.Element
	bestScore := 0.0
	for element := c.order.Front(); element != nil; element = element.Next() {
		it := element.Value.(*item)
		if it.bucket != bucket {
			continue
		}
		if now.Sub(it.entry.CreatedAt) > c.ttl {
			continue
		}
		if score := jaccard(probe, it.wordSet); score >= threshold && score > bestScore {
			best = element
			bestScore = score
		}
	}
	if best == nil {
		return Entry{}, false
	}
	c.touchLocked(best, now)
	return best.Value.(*item).entry, true
}

// Contains reports whether Get would hit, without recording the lookup or
// touching entry recency. Used as a routing probe.
func (c *Cache) Contains(operation, scope, prompt string, category models.Category, threshold float64) bool {
	key := Key(operation, scope, prompt)
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if element, ok := c.items[key]; ok {
		if now.Sub(element.Value.(*item).entry.CreatedAt) <= c.ttl {
			return true
		}
	}

	if category == models.CategoryCritical || threshold <= 0 || threshold > 1 {
		return false
	}

	probe := wordSet(prompt)
	wanted := bucket(operation, scope)
	for element := c.order.Front(); element != nil; element = element.Next() {
		it := element.Value.(*item)
		if it.bucket != wanted || now.Sub(it.entry.CreatedAt) > c.ttl {
			continue
		}
		if jaccard(probe, it.wordSet) >= threshold {
			return true
		}
	}
	return false
}

// Put stores a reply, evicting the least recently used entries when full.
// Storing under an existing key overwrites it (last writer wins).
func (c *Cache) Put(operation, scope, prompt string, entry Entry) {
	now := time.Now()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.LastAccess = now
	key := Key(operation, scope, prompt)
	set := wordSet(prompt)

	c.mu.Lock()
	defer c.mu.Unlock()

	if element, ok := c.items[key]; ok {
		it := element.Value.(*item)
		it.entry = entry
		it.wordSet = set
		c.order.MoveToFront(element)
		return
	}

	for c.order.Len() >= c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest)
		c.evictions++
	}

	element := c.order.PushFront(&item{
		key:     key,
		bucket:  bucket(operation, scope),
		wordSet: set,
		entry:   entry,
	})
	c.items[key] = element
}

func (c *Cache) removeLocked(element *list.Element) {
	it := element.Value.(*item)
	delete(c.items, it.key)
	c.order.Remove(element)
}

// Resize changes capacity, evicting oldest entries if the new capacity is
// smaller than the current population.
func (c *Cache) Resize(capacity int) {
	if capacity < 1 {
		capacity = 1
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.capacity = capacity
	for c.order.Len() > c.capacity {
		c.removeLocked(c.order.Back())
		c.evictions++
	}
}

// Flush drops every entry. Counters survive so the stats remain a full
// process history.
func (c *Cache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.order.Init()
}

// Len returns the current entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats snapshots the counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Stats{
		Entries:        c.order.Len(),
		Capacity:       c.capacity,
		Hits:           c.hits,
		SimilarityHits: c.similarityHits,
		Misses:         c.misses,
		Evictions:      c.evictions,
	}
	lookups := stats.Hits + stats.SimilarityHits + stats.Misses
	if lookups > 0 {
		stats.HitRate = float64(stats.Hits+stats.SimilarityHits) / float64(lookups)
	}
	return stats
}

// Seed is a preload unit: a prompt whose reply should be warm at startup.
type Seed struct {
	Operation string
	Scope     string
	Prompt    string
	Fetch     func(ctx context.Context) (Entry, error)
}

// Preload warms the cache concurrently. The first fetch error aborts the
// remaining seeds; already-stored entries stay.
func (c *Cache) Preload(ctx context.Context, seeds []Seed) error {
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(4)

	for _, seed := range seeds {
		seed := seed
		group.Go(func() error {
			entry, err := seed.Fetch(groupCtx)
			if err != nil {
				return err
			}
			c.Put(seed.Operation, seed.Scope, seed.Prompt, entry)
			return nil
		})
	}
	return group.Wait()
}
