// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package memory provides the agent's conversational memory: a bounded window of
// recent items used as active context, an unbounded full history kept for audit,
// and a keyed long-term store.
package memory

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"
)

// Kind classifies a memory item.
type Kind string

const (
	KindUserInput     Kind = "user_input"
	KindAgentResponse Kind = "agent_response"
	KindToolResult    Kind = "tool_result"
	KindReasoning     Kind = "reasoning"
)

// Default sizing.
const (
	DefaultWindowSize    = 10
	DefaultRelevantItems = 3

	// UserInputRelevance is the relevance score assigned to stored user input.
	UserInputRelevance = 0.9
)

// Item is a single memory entry. Items are never modified after being stored;
// every read returns copies.
type Item struct {
	Kind      Kind              `json:"kind"`
	Content   string            `json:"content"`
	Timestamp time.Time         `json:"timestamp"`
	Relevance float64           `json:"relevance,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func (it Item) clone() Item {
	if it.Metadata != nil {
		it.Metadata = maps.Clone(it.Metadata)
	}
	return it
}

func cloneItems(items []Item) []Item {
	out := make([]Item, len(items))
	for i, it := range items {
		out[i] = it.clone()
	}
	return out
}

// Config controls store sizing.
type Config struct {
	// WindowSize bounds the conversation window (FIFO eviction).
	WindowSize int
	// RelevantItems is the K used by RetrieveRelevant.
	RelevantItems int
}

// Option configures a Store.
type Option func(*Store)

// WithWindowSize sets the conversation window bound.
func WithWindowSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.cfg.WindowSize = n
		}
	}
}

// WithRelevantItems sets how many items RetrieveRelevant returns at most.
func WithRelevantItems(k int) Option {
	return func(s *Store) {
		if k > 0 {
			s.cfg.RelevantItems = k
		}
	}
}

// WithRetriever replaces the default recency retriever.
func WithRetriever(r Retriever) Option {
	return func(s *Store) {
		if r != nil {
			s.retriever = r
		}
	}
}

// WithClock overrides the time source used to stamp items.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Store is safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	cfg       Config
	window    []Item
	history   []Item
	longTerm  map[string][]Item
	retriever Retriever
	now       func() time.Time
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		cfg: Config{
			WindowSize:    DefaultWindowSize,
			RelevantItems: DefaultRelevantItems,
		},
		longTerm:  make(map[string][]Item),
		retriever: Recency(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the effective sizing.
func (s *Store) Config() Config {
	return s.cfg
}

// Store appends item to the window and the full history, evicting the
// oldest window entry when the bound is exceeded.
func (s *Store) Store(item Item) Item {
	if item.Timestamp.IsZero() {
		item.Timestamp = s.now()
	}
	item = item.clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.window = append(s.window, item)
	if over := len(s.window) - s.cfg.WindowSize; over > 0 {
		s.window = append(s.window[:0:0], s.window[over:]...)
	}
	s.history = append(s.history, item)
	return item.clone()
}

// StoreUserInput records a user query.
func (s *Store) StoreUserInput(text string) Item {
	return s.Store(Item{Kind: KindUserInput, Content: text, Relevance: UserInputRelevance})
}

// StoreAgentResponse records a final agent response.
func (s *Store) StoreAgentResponse(text string, metadata map[string]string) Item {
	return s.Store(Item{Kind: KindAgentResponse, Content: text, Metadata: metadata})
}

// StoreToolResult records the rendered output of a tool call.
func (s *Store) StoreToolResult(tool, content string) Item {
	return s.Store(Item{Kind: KindToolResult, Content: content, Metadata: map[string]string{"tool": tool}})
}

// StoreReasoning records a reasoning thought.
func (s *Store) StoreReasoning(thought string) Item {
	return s.Store(Item{Kind: KindReasoning, Content: thought})
}

// RetrieveRelevant returns at most K items from the window, most relevant first.
// The result never exceeds the current window size regardless of the retriever.
func (s *Store) RetrieveRelevant(ctx context.Context, query string) []Item {
	s.mu.RLock()
	window := cloneItems(s.window)
	k := s.cfg.RelevantItems
	retriever := s.retriever
	s.mu.RUnlock()

	if k > len(window) {
		k = len(window)
	}
	if k == 0 {
		return []Item{}
	}
	out := retriever.Retrieve(ctx, query, window, k)
	if len(out) > k {
		out = out[:k]
	}
	return out
}

// StoreLongTerm appends item under key, creating the key on first write.
func (s *Store) StoreLongTerm(key string, item Item) {
	if item.Timestamp.IsZero() {
		item.Timestamp = s.now()
	}
	item = item.clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.longTerm[key] = append(s.longTerm[key], item)
}

// LongTerm returns the items stored under key, oldest first.
func (s *Store) LongTerm(key string) []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneItems(s.longTerm[key])
}

// LongTermKeys returns the long-term keys in lexical order.
func (s *Store) LongTermKeys() []string {
	s.mu.RLock()
	keys := make([]string, 0, len(s.longTerm))
	for k := range s.longTerm {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// ClearShortTerm empties the window. History and long-term items are kept.
func (s *Store) ClearShortTerm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.window = nil
}

// Window returns the current conversation window, oldest first.
func (s *Store) Window() []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneItems(s.window)
}

// History returns every item ever stored, oldest first.
func (s *Store) History() []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneItems(s.history)
}
