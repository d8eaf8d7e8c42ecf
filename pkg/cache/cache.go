// Package cache provides an LRU store for encoded graph snapshots with
// disk persistence.
package cache

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/calder-lang/ssaopt/pkg/graphio"
	"github.com/calder-lang/ssaopt/pkg/ir"
)

// ErrNotFound is returned when a snapshot is neither in memory nor on disk.
var ErrNotFound = errors.New("snapshot not found")

// entry is a cached snapshot with metadata.
type entry struct {
	key        string
	data       []byte
	accessedAt time.Time
	createdAt  time.Time
}

// listItem is an item in the doubly-linked list.
type listItem struct {
	entry
	prev *listItem
	next *listItem
}

// list represents a doubly-linked list, most recently used at the front.
type list struct {
	head *listItem
	tail *listItem
	len  int
}

func (l *list) moveToFront(item *listItem) {
	if item == l.head {
		return
	}

	if item.prev != nil {
		item.prev.next = item.next
	}
	if item.next != nil {
		item.next.prev = item.prev
	}
	if item == l.tail {
		l.tail = item.prev
	}

	item.prev = nil
	item.next = l.head
	if l.head != nil {
		l.head.prev = item
	}
	l.head = item

	if l.tail == nil {
		l.tail = item
	}
}

// removeBack removes and returns the least recently used item.
func (l *list) removeBack() *listItem {
	if l.tail == nil {
		return nil
	}

	item := l.tail
	l.tail = item.prev
	if l.tail != nil {
		l.tail.next = nil
	} else {
		l.head = nil
	}
	l.len--
	return item
}

// pushFront adds an item to the front of the list.
func (l *list) pushFront(item *listItem) {
	item.next = l.head
	item.prev = nil
	if l.head != nil {
		l.head.prev = item
	}
	l.head = item
	if l.tail == nil {
		l.tail = item
	}
	l.len++
}

func (l *list) remove(item *listItem) {
	if item.prev != nil {
		item.prev.next = item.next
	} else {
		l.head = item.next
	}
	if item.next != nil {
		item.next.prev = item.prev
	} else {
		l.tail = item.prev
	}
	l.len--
}

// Options configures the snapshot store.
type Options struct {
	// MaxEntries is the maximum number of snapshots held in memory.
	// 0 means unlimited.
	MaxEntries int

	// MaxBytes is the approximate maximum in-memory size in bytes.
	// 0 means unlimited.
	MaxBytes int64

	// OnEvict is called when a snapshot is dropped from memory.
	// The on-disk copy is not touched.
	OnEvict func(key string)
}

// Store keeps encoded graph snapshots in an in-memory LRU backed by
// files in a directory. Keys are snapshot names without extension.
type Store struct {
	mu           sync.RWMutex
	dir          string
	items        map[string]*listItem
	lru          *list
	maxEntries   int
	maxBytes     int64
	currentBytes int64
	onEvict      func(key string)
}

// NewStore creates a snapshot store rooted at dir.
func NewStore(dir string, opts Options) *Store {
	return &Store{
		dir:        dir,
		items:      make(map[string]*listItem),
		lru:        &list{},
		maxEntries: opts.MaxEntries,
		maxBytes:   opts.MaxBytes,
		onEvict:    opts.OnEvict,
	}
}

// Path returns the on-disk location for a snapshot key.
func (s *Store) Path(key string) string {
	return filepath.Join(s.dir, key+".bin")
}

// Put encodes fn and stores the snapshot both in memory and on disk.
func (s *Store) Put(key string, fn *ir.Func) error {
	var buf bytes.Buffer
	if err := graphio.SaveSnapshot(&buf, fn); err != nil {
		return fmt.Errorf("encoding snapshot %s: %w", key, err)
	}
	data := buf.Bytes()

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("creating cache dir %s: %w", s.dir, err)
	}
	if err := os.WriteFile(s.Path(key), data, 0644); err != nil {
		return fmt.Errorf("writing snapshot %s: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.insert(key, data)
	return nil
}

// Get decodes the snapshot for key, reading it from disk when it is not
// in memory. The returned graph is freshly built on every call, so the
// caller may mutate it freely.
func (s *Store) Get(key string) (*ir.Func, error) {
	s.mu.Lock()
	item, found := s.items[key]
	if found {
		item.accessedAt = time.Now()
		s.lru.moveToFront(item)
		data := item.data
		s.mu.Unlock()
		return decode(key, data)
	}
	s.mu.Unlock()

	data, err := os.ReadFile(s.Path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("reading snapshot %s: %w", key, err)
	}

	s.mu.Lock()
	s.insert(key, data)
	s.mu.Unlock()

	return decode(key, data)
}

// Delete removes a snapshot from memory and disk.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	if item, found := s.items[key]; found {
		s.lru.remove(item)
		delete(s.items, key)
		s.currentBytes -= int64(len(item.data))
		if s.onEvict != nil {
			s.onEvict(key)
		}
	}
	s.mu.Unlock()

	if err := os.Remove(s.Path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing snapshot %s: %w", key, err)
	}
	return nil
}

// Len returns the number of snapshots held in memory.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// CurrentBytes returns the approximate in-memory size in bytes.
func (s *Store) CurrentBytes() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentBytes
}

// insert adds or replaces an in-memory entry. Callers hold the lock.
func (s *Store) insert(key string, data []byte) {
	if item, exists := s.items[key]; exists {
		s.currentBytes -= int64(len(item.data))
		item.data = data
		item.accessedAt = time.Now()
		s.currentBytes += int64(len(data))
		s.lru.moveToFront(item)
		s.evictIfNeeded()
		return
	}

	now := time.Now()
	item := &listItem{
		entry: entry{
			key:        key,
			data:       data,
			accessedAt: now,
			createdAt:  now,
		},
	}
	s.items[key] = item
	s.lru.pushFront(item)
	s.currentBytes += int64(len(data))

	s.evictIfNeeded()
}

// evictIfNeeded drops least recently used entries past the limits.
func (s *Store) evictIfNeeded() {
	for s.shouldEvict() {
		item := s.lru.removeBack()
		if item == nil {
			break
		}
		delete(s.items, item.key)
		s.currentBytes -= int64(len(item.data))

		if s.onEvict != nil {
			s.onEvict(item.key)
		}
	}
}

func (s *Store) shouldEvict() bool {
	if s.maxEntries > 0 && s.lru.len > s.maxEntries {
		return true
	}
	if s.maxBytes > 0 && s.currentBytes >= s.maxBytes {
		return true
	}
	return false
}

func decode(key string, data []byte) (*ir.Func, error) {
	fn, err := graphio.LoadSnapshot(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding snapshot %s: %w", key, err)
	}
	return fn, nil
}
