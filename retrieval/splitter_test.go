package retrieval

import (
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitter_Split(t *testing.T) {
	tests := []struct {
		name     string
		chunk    int
		overlap  int
		text     string
		expected []string
	}{
		{"words no overlap", 7, 0, "aaa bbb ccc ddd", []string{"aaa bbb", "ccc ddd"}},
		{"words with overlap", 7, 3, "aaa bbb ccc ddd", []string{"aaa bbb", "bbb ccc", "ccc ddd"}},
		{"paragraphs fit", 100, 10, "para one\n\npara two", []string{"para one\n\npara two"}},
		{"characters", 4, 0, "abcdefghij", []string{"abcd", "efgh", "ij"}},
		{"empty", 10, 0, "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSplitter(tt.chunk, tt.overlap)
			if err != nil {
				t.Fatalf("NewSplitter: %v", err)
			}
			got := s.Split(tt.text)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("Split() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestSplitter_RecursesIntoLongPieces(t *testing.T) {
	s, _ := NewSplitter(12, 0)
	text := "short\n\n" + strings.Repeat("word ", 10)

	chunks := s.Split(text)
	if len(chunks) != 6 {
		t.Fatalf("expected 6 chunks, got %d: %q", len(chunks), chunks)
	}
	if chunks[0] != "short" {
		t.Errorf("first chunk = %q", chunks[0])
	}
	for _, c := range chunks {
		if utf8.RuneCountInString(c) > 12 {
			t.Errorf("chunk %q exceeds size", c)
		}
	}
}

func TestSplitter_Validate(t *testing.T) {
	for _, tc := range []struct{ chunk, overlap int }{{0, 0}, {10, -1}, {10, 10}} {
		if _, err := NewSplitter(tc.chunk, tc.overlap); err == nil {
			t.Errorf("NewSplitter(%d, %d) should fail", tc.chunk, tc.overlap)
		}
	}
}

func TestSplitter_SplitDocuments(t *testing.T) {
	s, _ := NewSplitter(7, 0)
	docs := s.SplitDocuments([]Document{
		{ID: "faq", Content: "aaa bbb ccc", Metadata: map[string]any{"source": "faq.md"}},
		{Content: "zzz"},
	})
	if len(docs) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(docs))
	}
	if docs[0].ID != "faq#0" || docs[1].ID != "faq#1" {
		t.Errorf("chunk IDs = %q, %q", docs[0].ID, docs[1].ID)
	}
	if docs[1].Metadata["source"] != "faq.md" || docs[1].Metadata["chunk"] != 1 {
		t.Errorf("chunk metadata = %v", docs[1].Metadata)
	}
	if docs[2].ID != "" {
		t.Errorf("chunk of an unnamed document should have no ID, got %q", docs[2].ID)
	}
}
