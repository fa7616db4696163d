package cache

import (
	"sync"
	"time"
)

// Category partitions cached values by kind of data.
type Category string

const (
	// GroupList holds the signed-in user's group list.
	GroupList Category = "group-list"
	// GroupTimeline holds group timeline pages keyed by group and page.
	GroupTimeline Category = "group-timeline"
	// HomeTimeline holds home timeline pages keyed by page.
	HomeTimeline Category = "home-timeline"
	// SpecialFocus holds special focus timeline pages keyed by page.
	SpecialFocus Category = "special-focus"
	// ParsedHTML holds records scraped from HTML responses keyed by request URL.
	ParsedHTML Category = "parsed-html"
	// UserInfo holds the signed-in user's profile.
	UserInfo Category = "user-info"

	// DefaultTimelineTTL is the lifetime of timeline pages and scraped HTML.
	DefaultTimelineTTL = 5 * time.Minute
	// DefaultGroupListTTL is the lifetime of the group list.
	DefaultGroupListTTL = time.Hour
	// DefaultUserInfoTTL is the lifetime of the user profile.
	DefaultUserInfoTTL = time.Hour

	// ScalarKey is the key used by categories that hold a single value.
	ScalarKey = ""
)

var defaultCategoryTTLs = map[Category]time.Duration{
	GroupList:     DefaultGroupListTTL,
	GroupTimeline: DefaultTimelineTTL,
	HomeTimeline:  DefaultTimelineTTL,
	SpecialFocus:  DefaultTimelineTTL,
	ParsedHTML:    DefaultTimelineTTL,
	UserInfo:      DefaultUserInfoTTL,
}

// Categories lists every known category.
func Categories() []Category {
	return []Category{GroupList, GroupTimeline, HomeTimeline, SpecialFocus, ParsedHTML, UserInfo}
}

// DefaultTTL returns the default lifetime for category.
func DefaultTTL(category Category) time.Duration {
	if ttl, exists := defaultCategoryTTLs[category]; exists {
		return ttl
	}
	return DefaultTimelineTTL
}

// Entry is a cached value with its expiry instant.
type Entry struct {
	Category  Category
	Key       string
	Value     any
	StoredAt  time.Time
	ExpiresAt time.Time
}

// ValidAt reports whether the entry is still fresh at the supplied instant.
func (entry Entry) ValidAt(now time.Time) bool {
	return now.Before(entry.ExpiresAt)
}

// Config customizes a Store.
type Config struct {
	// TTLs overrides default lifetimes per category.
	TTLs map[Category]time.Duration
	// Now supplies the current time; defaults to time.Now.
	Now func() time.Time
}

// Store is a per-category TTL cache. Reads never extend an entry's lifetime.
type Store struct {
	mutex   sync.RWMutex
	entries map[Category]map[string]Entry
	ttls    map[Category]time.Duration
	now     func() time.Time
}

// New constructs an empty Store.
func New(configuration Config) *Store {
	ttls := make(map[Category]time.Duration, len(defaultCategoryTTLs))
	for category, ttl := range defaultCategoryTTLs {
		ttls[category] = ttl
	}
	for category, ttl := range configuration.TTLs {
		if ttl > 0 {
			ttls[category] = ttl
		}
	}
	now := configuration.Now
	if now == nil {
		now = time.Now
	}
	return &Store{
		entries: make(map[Category]map[string]Entry),
		ttls:    ttls,
		now:     now,
	}
}

// Get returns the value stored under category and key when it has not expired.
func (store *Store) Get(category Category, key string) (any, bool) {
	store.mutex.RLock()
	defer store.mutex.RUnlock()

	categoryEntries, exists := store.entries[category]
	if !exists {
		return nil, false
	}
	entry, exists := categoryEntries[key]
	if !exists || !entry.ValidAt(store.now()) {
		return nil, false
	}
	return entry.Value, true
}

// Lookup returns the full entry, including expired ones, for diagnostics.
func (store *Store) Lookup(category Category, key string) (Entry, bool) {
	store.mutex.RLock()
	defer store.mutex.RUnlock()

	entry, exists := store.entries[category][key]
	return entry, exists
}

// Set stores value with the category's lifetime.
func (store *Store) Set(category Category, key string, value any) {
	store.SetWithTTL(category, key, value, 0)
}

// SetWithTTL stores value with an explicit lifetime. A non-positive ttl selects the category default.
func (store *Store) SetWithTTL(category Category, key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = store.ttlFor(category)
	}

	store.mutex.Lock()
	defer store.mutex.Unlock()

	categoryEntries, exists := store.entries[category]
	if !exists {
		categoryEntries = make(map[string]Entry)
		store.entries[category] = categoryEntries
	}
	storedAt := store.now()
	categoryEntries[key] = Entry{
		Category:  category,
		Key:       key,
		Value:     value,
		StoredAt:  storedAt,
		ExpiresAt: storedAt.Add(ttl),
	}
}

// Clear removes every entry in every category.
func (store *Store) Clear() {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.entries = make(map[Category]map[string]Entry)
}

// ClearCategory removes every entry of category.
func (store *Store) ClearCategory(category Category) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	delete(store.entries, category)
}

// ClearKey removes a single entry.
func (store *Store) ClearKey(category Category, key string) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	if categoryEntries, exists := store.entries[category]; exists {
		delete(categoryEntries, key)
	}
}

// Len returns the number of stored entries in category, expired ones included.
func (store *Store) Len(category Category) int {
	store.mutex.RLock()
	defer store.mutex.RUnlock()
	return len(store.entries[category])
}

func (store *Store) ttlFor(category Category) time.Duration {
	if ttl, exists := store.ttls[category]; exists {
		return ttl
	}
	return DefaultTimelineTTL
}
