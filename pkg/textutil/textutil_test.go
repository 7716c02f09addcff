// SPDX-License-Identifier: Apache-2.0
package textutil

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly", 7, "exactly"},
		{"headphones", 4, "head..."},
		{"ñandú", 2, "ña..."},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestLengthRatioRange(t *testing.T) {
	pairs := [][2]string{{"", ""}, {"a", ""}, {"abc", "abcdef"}, {"same", "same"}}
	for _, p := range pairs {
		s := LengthRatio(p[0], p[1])
		if s < 0 || s > 1 {
			t.Errorf("LengthRatio(%q, %q) = %v out of range", p[0], p[1], s)
		}
	}
	if LengthRatio("same", "same") != 1 {
		t.Error("identical texts should score 1")
	}
}

func TestSimpleKeywords(t *testing.T) {
	got := SimpleKeywords("Find me wireless headphones, WIRELESS noise cancelling headphones under budget today")
	want := []string{"find", "wireless", "headphones", "noise", "cancelling"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if len(SimpleKeywords("a an the")) != 0 {
		t.Fatal("expected no keywords for short words")
	}
}

func TestDeepClone(t *testing.T) {
	type payload struct {
		Tags  []string
		Attrs map[string]any
	}
	orig := payload{Tags: []string{"a"}, Attrs: map[string]any{"k": []int{1}}}

	clone, err := DeepClone(orig, nil)
	if err != nil {
		t.Fatalf("DeepClone: %v", err)
	}
	if !reflect.DeepEqual(orig, clone) {
		t.Fatalf("clone differs from original")
	}
	clone.Tags[0] = "b"
	clone.Attrs["k"] = "changed"
	if orig.Tags[0] != "a" || !reflect.DeepEqual(orig.Attrs["k"], []int{1}) {
		t.Fatalf("mutating the clone changed the original: %+v", orig)
	}
}

func TestDeepCloneCustomStrategy(t *testing.T) {
	_, err := DeepClone("x", func(any) (any, error) { return 42, nil })
	if err == nil {
		t.Fatal("expected type mismatch error")
	}
}

func TestSanitize(t *testing.T) {
	in := `hello <script type="text/javascript">alert('x')</script>world <SCRIPT>
evil()</SCRIPT>!`
	if got := Sanitize(in); got != "hello world !" {
		t.Fatalf("unexpected sanitized text %q", got)
	}
	if got := Sanitize("Tom & Jerry"); got != "Tom & Jerry" {
		t.Fatalf("plain text should be untouched, got %q", got)
	}
}

func TestGenerateID(t *testing.T) {
	a, b := GenerateID(), GenerateID()
	if !strings.HasPrefix(a, "agent-") || a == b {
		t.Fatalf("unexpected ids %q %q", a, b)
	}
}

func TestFillTemplate(t *testing.T) {
	got := FillTemplate("{greeting}, {name}! {greeting} again. {missing}", map[string]string{
		"greeting": "Hi",
		"name":     "Ada",
	})
	if got != "Hi, Ada! Hi again. {missing}" {
		t.Fatalf("unexpected output %q", got)
	}
}

func TestFormatTimestamp(t *testing.T) {
	ts := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	if got := FormatTimestamp(ts); got != "2026-03-04 05:06:07 UTC" {
		t.Fatalf("unexpected format %q", got)
	}
}
