// Package splitter turns page text into overlapping fixed-size windows,
// preferring natural boundaries: paragraphs first, then lines, sentences,
// words, and only as a last resort raw character positions.
package splitter

import (
	"strings"

	"github.com/bull/kb-server/internal/document"
)

// separators in preference order. The empty string means a hard cut at
// character positions and is only reached for unbroken runs of text.
var separators = []string{"\n\n", "\n", ". ", " ", ""}

// Chunk is one retrievable window of text with its provenance. The source
// name is attached at creation time and never changes afterwards.
type Chunk struct {
	Text   string
	Source string
	Page   int
}

// Splitter splits text into chunks of at most Size characters with an
// overlap budget of Overlap characters between consecutive chunks. The
// overlap is a budget, not a guarantee: a natural boundary falling earlier
// shortens the repeated region.
type Splitter struct {
	Size    int
	Overlap int
}

// New creates a splitter with the given window size and overlap budget.
func New(size, overlap int) *Splitter {
	return &Splitter{Size: size, Overlap: overlap}
}

// Split chunks every page, carrying each page's source and number into the
// produced chunks. A page with no extractable text yields no chunks.
func (s *Splitter) Split(pages []document.Page) []Chunk {
	var chunks []Chunk
	for _, page := range pages {
		for _, text := range s.SplitText(page.Text) {
			chunks = append(chunks, Chunk{Text: text, Source: page.Source, Page: page.Number})
		}
	}
	return chunks
}

// SplitText splits raw text into windows of at most Size characters.
func (s *Splitter) SplitText(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	parts := s.split(text, separators)
	out := parts[:0]
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// split recursively cuts text at the coarsest separator that appears in it,
// merging the pieces back into windows and descending to finer separators
// for any piece that is still too large.
func (s *Splitter) split(text string, seps []string) []string {
	if len(text) <= s.Size {
		return []string{text}
	}

	sep, rest := pick(text, seps)
	if sep == "" {
		return s.hardSplit(text)
	}

	parts := strings.Split(text, sep)
	var final []string
	var fitting []string
	for _, part := range parts {
		if len(part) <= s.Size {
			fitting = append(fitting, part)
			continue
		}
		if len(fitting) > 0 {
			final = append(final, s.merge(fitting, sep)...)
			fitting = nil
		}
		final = append(final, s.split(part, rest)...)
	}
	if len(fitting) > 0 {
		final = append(final, s.merge(fitting, sep)...)
	}
	return final
}

// pick returns the first separator present in text and the finer ones
// remaining after it.
func pick(text string, seps []string) (string, []string) {
	for i, sep := range seps {
		if sep == "" {
			return "", nil
		}
		if strings.Contains(text, sep) {
			return sep, seps[i+1:]
		}
	}
	return "", nil
}

// merge greedily joins small pieces into windows of at most Size
// characters. When a window is emitted, pieces are retained from its tail
// until their total length drops within the overlap budget, so consecutive
// windows repeat up to Overlap characters of content.
func (s *Splitter) merge(parts []string, sep string) []string {
	var chunks []string
	var window []string
	windowLen := 0

	joinedLen := func(extra string) int {
		n := windowLen + len(extra)
		if len(window) > 0 {
			n += len(sep)
		}
		return n
	}

	for _, part := range parts {
		if len(window) > 0 && joinedLen(part) > s.Size {
			chunks = append(chunks, strings.Join(window, sep))
			for len(window) > 0 && (windowLen > s.Overlap || joinedLen(part) > s.Size) {
				windowLen -= len(window[0])
				if len(window) > 1 {
					windowLen -= len(sep)
				}
				window = window[1:]
			}
		}
		if len(window) > 0 {
			windowLen += len(sep)
		}
		window = append(window, part)
		windowLen += len(part)
	}
	if len(window) > 0 {
		chunks = append(chunks, strings.Join(window, sep))
	}
	return chunks
}

// hardSplit cuts an unbroken run at rune boundaries into Size-character
// windows stepping by Size-Overlap.
func (s *Splitter) hardSplit(text string) []string {
	runes := []rune(text)
	step := s.Size - s.Overlap
	if step <= 0 {
		step = s.Size
	}

	var chunks []string
	for i := 0; i < len(runes); i += step {
		end := i + s.Size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}
