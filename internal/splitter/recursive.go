// Package splitter cuts page text into overlapping chunks with a
// recursive separator policy.
package splitter

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/arturoeanton/medguide-qa/internal/domain"
	"github.com/arturoeanton/medguide-qa/internal/port"
)

// Default policy values.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// DefaultSeparators are tried in order, most specific first. The empty
// separator splits into single characters.
var DefaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// chunkNamespace scopes the deterministic chunk IDs.
var chunkNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("medguide-qa/chunk"))

// Policy controls chunk size, overlap and separator preference.
// Sizes are measured in characters (runes).
type Policy struct {
	ChunkSize    int
	ChunkOverlap int
	Separators   []string
}

// Recursive splits text on the first separator that occurs in it and
// recurses into pieces that are still too long.
type Recursive struct {
	size       int
	overlap    int
	separators []string
}

// New validates the policy and returns a splitter.
func New(p Policy) (*Recursive, error) {
	if p.ChunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", port.ErrConfiguration, p.ChunkSize)
	}
	if p.ChunkOverlap < 0 {
		return nil, fmt.Errorf("%w: chunk overlap must not be negative, got %d", port.ErrConfiguration, p.ChunkOverlap)
	}
	if p.ChunkOverlap >= p.ChunkSize {
		return nil, fmt.Errorf("%w: chunk overlap (%d) must be smaller than chunk size (%d)",
			port.ErrConfiguration, p.ChunkOverlap, p.ChunkSize)
	}

	seps := p.Separators
	if len(seps) == 0 {
		seps = DefaultSeparators
	}
	seps = append([]string(nil), seps...)
	if seps[len(seps)-1] != "" {
		// character-level splitting is always the last resort
		seps = append(seps, "")
	}

	return &Recursive{size: p.ChunkSize, overlap: p.ChunkOverlap, separators: seps}, nil
}

// ChunkSize returns the configured maximum chunk length.
func (r *Recursive) ChunkSize() int { return r.size }

// ChunkOverlap returns the configured overlap.
func (r *Recursive) ChunkOverlap() int { return r.overlap }

// SplitPages chunks every page independently; no chunk spans two pages.
func (r *Recursive) SplitPages(pages []domain.PageRecord) []domain.Chunk {
	var chunks []domain.Chunk
	for _, page := range pages {
		for i, text := range r.SplitText(page.Text) {
			chunks = append(chunks, domain.Chunk{
				ID:         ChunkID(page.SourceFile, page.PageNumber, i),
				Text:       text,
				SourceFile: page.SourceFile,
				PageNumber: page.PageNumber,
				ChunkIndex: i,
			})
		}
	}
	return chunks
}

// SplitText returns the chunks of text in order. Whitespace-only chunks
// are dropped.
func (r *Recursive) SplitText(text string) []string {
	return r.split(text, r.separators)
}

func (r *Recursive) split(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var rest []string
	for i, s := range separators {
		if s == "" {
			separator = s
			break
		}
		if strings.Contains(text, s) {
			separator = s
			rest = separators[i+1:]
			break
		}
	}

	var (
		out  []string
		good []string
	)
	for _, piece := range splitKeepingSeparator(text, separator) {
		if runeLen(piece) < r.size {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			out = append(out, r.merge(good)...)
			good = nil
		}
		if len(rest) == 0 {
			if strings.TrimSpace(piece) != "" {
				out = append(out, piece)
			}
		} else {
			out = append(out, r.split(piece, rest)...)
		}
	}
	if len(good) > 0 {
		out = append(out, r.merge(good)...)
	}
	return out
}

// merge packs consecutive pieces into chunks of at most r.size runes,
// carrying at most r.overlap runes of trailing pieces into the next chunk.
func (r *Recursive) merge(pieces []string) []string {
	var (
		out     []string
		current []string
		total   int
	)
	for _, p := range pieces {
		n := runeLen(p)
		if total+n > r.size && len(current) > 0 {
			if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
				out = append(out, doc)
			}
			for total > r.overlap || (total+n > r.size && total > 0) {
				total -= runeLen(current[0])
				current = current[1:]
			}
		}
		current = append(current, p)
		total += n
	}
	if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
		out = append(out, doc)
	}
	return out
}

// splitKeepingSeparator splits text on sep and re-attaches each separator
// to the start of the piece that follows it, so concatenating the pieces
// restores text. An empty sep yields single characters.
func splitKeepingSeparator(text, sep string) []string {
	if sep == "" {
		pieces := make([]string, 0, len(text))
		for _, r := range text {
			pieces = append(pieces, string(r))
		}
		return pieces
	}
	parts := strings.Split(text, sep)
	pieces := make([]string, 0, len(parts))
	for i, p := range parts {
		if i > 0 {
			p = sep + p
		}
		if p != "" {
			pieces = append(pieces, p)
		}
	}
	return pieces
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }

// ChunkID is stable for a given file, page and position, so rebuilding an
// unchanged corpus yields the same IDs.
func ChunkID(sourceFile string, page, index int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(fmt.Sprintf("%s|%d|%d", sourceFile, page, index))).String()
}
