package retrieval

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Splitter cuts long text into overlapping chunks for indexing.
//
// It tries each separator in turn: text is split on the first separator it
// contains, pieces that still exceed ChunkSize are split again with the
// remaining separators, and adjacent small pieces are merged back up to
// ChunkSize with about Overlap characters repeated between chunks. Sizes
// count runes.
type Splitter struct {
	ChunkSize  int
	Overlap    int
	Separators []string
}

// DefaultSeparators prefers paragraph, then line, then word boundaries.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// NewSplitter returns a Splitter with DefaultSeparators.
func NewSplitter(chunkSize, overlap int) (*Splitter, error) {
	s := &Splitter{ChunkSize: chunkSize, Overlap: overlap, Separators: DefaultSeparators}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks the splitter settings.
func (s *Splitter) Validate() error {
	if s.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be > 0, got %d", s.ChunkSize)
	}
	if s.Overlap < 0 || s.Overlap >= s.ChunkSize {
		return fmt.Errorf("overlap must be in [0, %d), got %d", s.ChunkSize, s.Overlap)
	}
	return nil
}

// Split returns the chunks of text. Empty chunks are dropped.
func (s *Splitter) Split(text string) []string {
	seps := s.Separators
	if len(seps) == 0 {
		seps = DefaultSeparators
	}
	return s.split(text, seps)
}

// SplitDocuments splits each document and returns one document per chunk.
// Chunk IDs are "<id>#<n>"; metadata is copied and gains a "chunk" index.
func (s *Splitter) SplitDocuments(docs []Document) []Document {
	var out []Document
	for _, doc := range docs {
		for i, chunk := range s.Split(doc.Content) {
			meta := make(map[string]any, len(doc.Metadata)+1)
			for k, v := range doc.Metadata {
				meta[k] = v
			}
			meta["chunk"] = i
			id := ""
			if doc.ID != "" {
				id = fmt.Sprintf("%s#%d", doc.ID, i)
			}
			out = append(out, Document{ID: id, Content: chunk, Metadata: meta})
		}
	}
	return out
}

func (s *Splitter) split(text string, seps []string) []string {
	sep := seps[len(seps)-1]
	var rest []string
	for i, candidate := range seps {
		if candidate == "" || strings.Contains(text, candidate) {
			sep = candidate
			rest = seps[i+1:]
			break
		}
	}

	var pieces []string
	if sep == "" {
		pieces = strings.Split(text, "")
	} else {
		pieces = strings.Split(text, sep)
	}

	var (
		chunks []string
		small  []string
	)
	for _, p := range pieces {
		if p == "" {
			continue
		}
		if utf8.RuneCountInString(p) <= s.ChunkSize {
			small = append(small, p)
			continue
		}
		if len(small) > 0 {
			chunks = append(chunks, s.merge(small, sep)...)
			small = nil
		}
		if len(rest) == 0 {
			chunks = append(chunks, p)
		} else {
			chunks = append(chunks, s.split(p, rest)...)
		}
	}
	if len(small) > 0 {
		chunks = append(chunks, s.merge(small, sep)...)
	}
	return chunks
}

// merge joins pieces with sep into chunks of at most ChunkSize runes, carrying
// up to Overlap runes of trailing pieces into the next chunk.
func (s *Splitter) merge(pieces []string, sep string) []string {
	sepLen := utf8.RuneCountInString(sep)
	var (
		chunks  []string
		current []string
		total   int
	)
	joinCost := func() int {
		if len(current) > 0 {
			return sepLen
		}
		return 0
	}

	for _, p := range pieces {
		n := utf8.RuneCountInString(p)
		if len(current) > 0 && total+joinCost()+n > s.ChunkSize {
			if chunk := strings.TrimSpace(strings.Join(current, sep)); chunk != "" {
				chunks = append(chunks, chunk)
			}
			for len(current) > 0 && (total > s.Overlap || total+joinCost()+n > s.ChunkSize) {
				total -= utf8.RuneCountInString(current[0])
				if len(current) > 1 {
					total -= sepLen
				}
				current = current[1:]
			}
		}
		total += joinCost() + n
		current = append(current, p)
	}
	if chunk := strings.TrimSpace(strings.Join(current, sep)); chunk != "" {
		chunks = append(chunks, chunk)
	}
	return chunks
}
