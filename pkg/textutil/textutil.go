// SPDX-License-Identifier: Apache-2.0
// Package textutil contains small text helpers used across the orchestrator.
// Similarity, keyword extraction and cloning are exposed as replaceable
// strategy functions; the defaults are deliberately simple heuristics.
package textutil

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/mitchellh/copystructure"
)

// TimestampLayout is the layout used by FormatTimestamp.
const TimestampLayout = "2006-01-02 15:04:05 MST"

// FormatTimestamp renders t in a human-readable form.
func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// Truncate shortens text to at most maxLen runes, appending "..." when cut.
func Truncate(text string, maxLen int) string {
	if maxLen < 0 {
		maxLen = 0
	}
	if utf8.RuneCountInString(text) <= maxLen {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxLen]) + "..."
}

// SimilarityFunc scores two texts in the range [0, 1].
type SimilarityFunc func(a, b string) float64

// LengthRatio scores texts by the ratio of their lengths.
func LengthRatio(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	if la == 0 && lb == 0 {
		return 1
	}
	return float64(min(la, lb)) / float64(max(la, lb))
}

// KeywordFunc extracts keywords from text.
type KeywordFunc func(text string) []string

// MaxKeywords bounds the output of SimpleKeywords.
const MaxKeywords = 5

// SimpleKeywords returns up to MaxKeywords unique lowercase words longer than
// three characters, in order of first appearance.
func SimpleKeywords(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	seen := make(map[string]struct{}, len(words))
	out := make([]string, 0, MaxKeywords)
	for _, w := range words {
		if utf8.RuneCountInString(w) <= 3 {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
		if len(out) == MaxKeywords {
			break
		}
	}
	return out
}

// CloneFunc deep-copies an arbitrary value.
type CloneFunc func(v any) (any, error)

// CopyStructure clones v with mitchellh/copystructure.
func CopyStructure(v any) (any, error) {
	return copystructure.Copy(v)
}

// DeepClone returns an independently mutable copy of v using clone, or
// CopyStructure when clone is nil.
func DeepClone[T any](v T, clone CloneFunc) (T, error) {
	var zero T
	if clone == nil {
		clone = CopyStructure
	}
	out, err := clone(v)
	if err != nil {
		return zero, err
	}
	typed, ok := out.(T)
	if !ok {
		return zero, fmt.Errorf("clone returned %T, want %T", out, v)
	}
	return typed, nil
}

var scriptTag = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`)

// Sanitize removes script elements from user-provided text.
func Sanitize(input string) string {
	return scriptTag.ReplaceAllString(input, "")
}

// GenerateID returns a unique identifier for agent operations.
func GenerateID() string {
	return fmt.Sprintf("agent-%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}

// FillTemplate replaces every {key} placeholder in template with its value.
// Unknown placeholders are left untouched.
func FillTemplate(template string, values map[string]string) string {
	if len(values) == 0 {
		return template
	}
	pairs := make([]string, 0, len(values)*2)
	for k, v := range values {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
