// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"sort"

	"github.com/jllopis/kairos-orchestrator/pkg/textutil"
)

// Retriever ranks window items against a query. window is ordered oldest
// first and k is already clamped to len(window).
type Retriever interface {
	Retrieve(ctx context.Context, query string, window []Item, k int) []Item
}

// RetrieverFunc adapts a function to the Retriever interface.
type RetrieverFunc func(ctx context.Context, query string, window []Item, k int) []Item

// Retrieve implements Retriever.
func (f RetrieverFunc) Retrieve(ctx context.Context, query string, window []Item, k int) []Item {
	return f(ctx, query, window, k)
}

// Recency returns the k most recent items, newest first.
func Recency() Retriever {
	return RetrieverFunc(func(_ context.Context, _ string, window []Item, k int) []Item {
		out := make([]Item, 0, k)
		for i := len(window) - 1; i >= 0 && len(out) < k; i-- {
			out = append(out, window[i])
		}
		return out
	})
}

// Similarity ranks items by score(query, content), breaking ties by recency.
// A nil score uses textutil.LengthRatio.
func Similarity(score textutil.SimilarityFunc) Retriever {
	if score == nil {
		score = textutil.LengthRatio
	}
	return RetrieverFunc(func(_ context.Context, query string, window []Item, k int) []Item {
		type ranked struct {
			item  Item
			score float64
			pos   int
		}
		all := make([]ranked, len(window))
		for i, it := range window {
			all[i] = ranked{item: it, score: score(query, it.Content), pos: i}
		}
		sort.SliceStable(all, func(i, j int) bool {
			if all[i].score != all[j].score {
				return all[i].score > all[j].score
			}
			return all[i].pos > all[j].pos
		})
		out := make([]Item, 0, k)
		for _, r := range all[:k] {
			out = append(out, r.item)
		}
		return out
	})
}
